package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sentira/feedsync/internal/history"
	"github.com/sentira/feedsync/internal/stubserver"
)

func main() {
	// Parse command-line flags
	addr := flag.String("addr", ":8080", "Listen address")
	noSources := flag.Bool("no-sources", false, "Simulate a workspace with no connectors")
	failOne := flag.Bool("fail-one", false, "Make one connector fail its sync")
	injectEvery := flag.Duration("inject-every", 0, "Inject an external periodic sync at this interval (0 disables)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	opts := stubserver.DefaultOptions()
	if *noSources {
		opts.Connectors = nil
	}
	if *failOne && len(opts.Connectors) > 0 {
		opts.Connectors[0].Fail = true
		opts.Connectors[0].ErrorMessage = "connector credentials expired"
	}

	server := stubserver.New(opts, logger)

	if *injectEvery > 0 {
		go func() {
			ticker := time.NewTicker(*injectEvery)
			defer ticker.Stop()
			for range ticker.C {
				server.InjectExternalSync(history.KindSourceSync, "Scheduled ingestion")
			}
		}()
	}

	slog.Info("feedsync stub upstream listening",
		"addr", *addr,
		"connectors", len(opts.Connectors))

	if err := http.ListenAndServe(*addr, server.Router()); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
