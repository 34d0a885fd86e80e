package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentira/feedsync/internal/history"
)

// HeadFetcher fetches the single most-recent record of the remote sync
// history. A nil record with nil error means the history is empty.
type HeadFetcher interface {
	FetchHead(ctx context.Context) (*history.SyncRecord, error)
}

// WatcherConfig defines the parameters of a history watcher
type WatcherConfig struct {
	// Interval between head checks
	Interval time.Duration

	// OnNewSync fires exactly once per newly observed head ID
	OnNewSync func()

	// Suspended, when set, is consulted before each check. A check that
	// begins while suspended is skipped wholesale, leaving the remembered
	// head untouched. Used to pause watching while a job poller is already
	// refreshing the same history.
	Suspended func() bool
}

// validateWatcherConfig validates watcher configuration and returns error if invalid
func validateWatcherConfig(config WatcherConfig) error {
	if config.Interval <= 0 {
		return fmt.Errorf("Interval must be positive, got %v", config.Interval)
	}

	if config.OnNewSync == nil {
		return fmt.Errorf("OnNewSync must not be nil")
	}

	return nil
}

// WatcherStats provides current watcher statistics
type WatcherStats struct {
	ChecksRun     int
	ChecksSkipped int
	FetchFailures int
	NewSyncsSeen  int
}

// Watcher is a low-frequency poller that notices syncs this client did not
// initiate, such as periodic server-side ingestions. It remembers the head ID
// of the remote history; the first observation only primes that memory, so
// mounting the watcher never produces a false positive. Fetch failures are
// swallowed and retried on the next check.
type Watcher struct {
	config  WatcherConfig
	fetcher HeadFetcher
	logger  *slog.Logger

	mu     sync.Mutex
	primed bool
	headID string
	stats  WatcherStats

	cancel chan struct{}
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a watcher with validated configuration
func NewWatcher(config WatcherConfig, fetcher HeadFetcher, logger *slog.Logger) (*Watcher, error) {
	if err := validateWatcherConfig(config); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher must not be nil")
	}

	return &Watcher{
		config:  config,
		fetcher: fetcher,
		logger:  logger,
		cancel:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the watcher loop. The first check runs immediately.
func (w *Watcher) Start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

// Stop halts the watcher deterministically. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.cancel)
	})
}

// Done is closed once the watcher loop has exited
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Stats returns a copy of the current watcher statistics
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.check()

	for {
		select {
		case <-w.cancel:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check fetches the remote history head and fires OnNewSync when it changed
// since the last primed observation
func (w *Watcher) check() {
	if w.config.Suspended != nil && w.config.Suspended() {
		w.mu.Lock()
		w.stats.ChecksSkipped++
		w.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.config.Interval)
	defer cancel()

	rec, err := w.fetcher.FetchHead(ctx)

	w.mu.Lock()
	w.stats.ChecksRun++
	if err != nil {
		// Never surfaced; retried on the next check.
		w.stats.FetchFailures++
		w.mu.Unlock()
		w.logger.Debug("history head fetch failed", "error", err)
		return
	}
	if rec == nil {
		// Empty remote history; nothing to remember yet.
		w.mu.Unlock()
		return
	}

	if !w.primed {
		w.primed = true
		w.headID = rec.ID
		w.mu.Unlock()
		w.logger.Debug("history watcher primed", "head_id", rec.ID)
		return
	}

	if rec.ID == w.headID {
		w.mu.Unlock()
		return
	}

	w.headID = rec.ID
	w.stats.NewSyncsSeen++
	w.mu.Unlock()

	w.logger.Info("new sync observed in history", "head_id", rec.ID)
	w.config.OnNewSync()
}
