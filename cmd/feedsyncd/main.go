package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sentira/feedsync/internal/api"
	"github.com/sentira/feedsync/internal/config"
	"github.com/sentira/feedsync/internal/history"
	"github.com/sentira/feedsync/internal/syncer"
)

func main() {
	// Parse command-line flags
	configFile := flag.String("config", "", "Path to configuration file (TOML)")
	workspaceID := flag.String("workspace", "", "Workspace ID (overrides config)")
	apiURL := flag.String("api", "", "Sync API base URL (overrides config)")
	trigger := flag.String("sync", "none", "Sync to trigger on startup: themes, sources, both, none")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *workspaceID != "" {
		cfg.Sync.WorkspaceID = *workspaceID
	}
	if *apiURL != "" {
		cfg.API.BaseURL = *apiURL
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("starting feedsync monitor",
		"workspace", cfg.Sync.WorkspaceID,
		"api", cfg.API.BaseURL)

	client, err := api.NewClient(cfg.API, logger)
	if err != nil {
		slog.Error("failed to create sync api client", "error", err)
		os.Exit(1)
	}

	store := history.NewStore()
	manager, err := syncer.NewManager(cfg.Sync, client, store, nil, logger)
	if err != nil {
		slog.Error("failed to create sync manager", "error", err)
		os.Exit(1)
	}
	defer manager.Close()

	// Seed the history view before anything starts polling
	ctx := context.Background()
	if err := manager.RefreshHistory(ctx); err != nil {
		slog.Warn("initial history load failed", "error", err)
	} else {
		slog.Info("history loaded", "records", len(manager.History()))
	}

	manager.Start()

	if *trigger == "themes" || *trigger == "both" {
		if syncID, err := manager.SyncThemes(ctx); err != nil {
			slog.Error("theme sync start failed", "error", err)
		} else {
			slog.Info("tracking theme sync", "sync_id", syncID)
		}
	}
	if *trigger == "sources" || *trigger == "both" {
		syncIDs, err := manager.SyncAllSources(ctx)
		switch {
		case errors.Is(err, syncer.ErrNoSources):
			slog.Warn("no sources connected; connect a source before syncing")
		case err != nil:
			slog.Error("all-sources sync start failed", "error", err)
		default:
			slog.Info("tracking source syncs", "jobs", len(syncIDs))
		}
	}

	// Wait for interrupt signal, surfacing notifications as they arrive
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case n, ok := <-manager.Notifications():
			if !ok {
				return
			}
			slog.Info("sync notification",
				"kind", n.Kind.String(),
				"severity", n.Severity.String(),
				"message", n.Message,
				"succeeded", n.Outcome.Succeeded,
				"failed", n.Outcome.Failed)

		case <-sigChan:
			slog.Info("shutting down gracefully")
			return
		}
	}
}
