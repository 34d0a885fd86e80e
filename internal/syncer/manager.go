package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentira/feedsync/internal/api"
	"github.com/sentira/feedsync/internal/history"
	"github.com/sentira/feedsync/internal/poller"
)

// Manager owns the user-facing sync actions for one workspace: it starts
// jobs, tracks them with at most one running poller per sync kind, drives the
// history watcher, and emits one summary notification per completed run.
//
// Starting a new sync of a kind force-cancels the previous poller of that
// kind first; two pollers of different kinds may run concurrently since they
// track disjoint job sets.
type Manager struct {
	config      Config
	client      SyncAPI
	store       *history.Store
	invalidator CacheInvalidator
	logger      *slog.Logger

	mu             sync.Mutex
	pollers        map[history.Kind]*poller.Poller
	watcher        *poller.Watcher
	watcherStarted bool
	closed         bool

	notifications chan Notification
	dropped       atomic.Int64
}

// NewManager creates a sync manager with validated configuration. The
// invalidator may be nil when no read-model caching is in play.
func NewManager(config Config, client SyncAPI, store *history.Store, invalidator CacheInvalidator, logger *slog.Logger) (*Manager, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}

	m := &Manager{
		config:        config,
		client:        client,
		store:         store,
		invalidator:   invalidator,
		logger:        logger,
		pollers:       make(map[history.Kind]*poller.Poller),
		notifications: make(chan Notification, config.NotificationBuffer),
	}

	watcher, err := poller.NewWatcher(poller.WatcherConfig{
		Interval:  config.WatchInterval,
		OnNewSync: m.handleNewSync,
		Suspended: m.anyPollerRunning,
	}, &headFetcher{client: client, workspaceID: config.WorkspaceID}, logger)
	if err != nil {
		return nil, fmt.Errorf("create history watcher: %w", err)
	}
	m.watcher = watcher

	return m, nil
}

// Start launches the history watcher. Sync actions work before Start; only
// external-sync detection needs it.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.watcherStarted = true
	m.mu.Unlock()

	m.watcher.Start()
}

// SyncThemes starts a theme reclassification job and polls it to a terminal
// state. Returns the job ID. A start failure surfaces immediately and no
// poller is created.
func (m *Manager) SyncThemes(ctx context.Context) (string, error) {
	if m.isClosed() {
		return "", ErrClosed
	}

	m.cancelPoller(history.KindThemeSync)

	result, err := m.client.StartThemeSync(ctx, m.config.WorkspaceID)
	if err != nil {
		return "", err
	}

	m.logger.Info("theme sync started",
		"sync_id", result.SyncID,
		"workspace", m.config.WorkspaceID)

	m.store.UpsertOptimistic(history.SyncRecord{
		ID:          result.SyncID,
		Kind:        history.KindThemeSync,
		DisplayName: "Theme reclassification",
		Status:      history.StatusPending,
		Trigger:     history.TriggerManual,
		StartedAt:   time.Now(),
	})

	if err := m.startPoller(history.KindThemeSync, []string{result.SyncID}, m.config.ThemeMaxTicks); err != nil {
		return "", err
	}

	return result.SyncID, nil
}

// SyncAllSources starts an ingestion job for every configured connector and
// polls the whole fan-out to terminal states. Returns the job IDs. A
// workspace with no connectors yields ErrNoSources and leaves the history
// untouched.
func (m *Manager) SyncAllSources(ctx context.Context) ([]string, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	m.cancelPoller(history.KindSourceSync)

	result, err := m.client.StartAllSourcesSync(ctx, m.config.WorkspaceID)
	if err != nil {
		return nil, err
	}

	if result.TotalSources == 0 || len(result.SyncOperations) == 0 {
		m.logger.Info("all-sources sync requested with no connectors",
			"workspace", m.config.WorkspaceID)
		return nil, ErrNoSources
	}

	m.logger.Info("all-sources sync started",
		"workspace", m.config.WorkspaceID,
		"sources", result.TotalSources)

	now := time.Now()
	syncIDs := make([]string, 0, len(result.SyncOperations))
	for _, op := range result.SyncOperations {
		syncIDs = append(syncIDs, op.SyncID)
		m.store.UpsertOptimistic(history.SyncRecord{
			ID:          op.SyncID,
			Kind:        history.KindSourceSync,
			DisplayName: op.SourceType,
			OriginKind:  op.SourceType,
			Status:      history.StatusPending,
			Trigger:     history.TriggerManual,
			StartedAt:   now,
		})
	}

	if err := m.startPoller(history.KindSourceSync, syncIDs, m.config.SourcesMaxTicks); err != nil {
		return nil, err
	}

	return syncIDs, nil
}

// RefreshHistory reloads the first history page from the remote API into the
// store, preserving terminal statuses this client already observed
func (m *Manager) RefreshHistory(ctx context.Context) error {
	page, err := m.client.SyncHistory(ctx, m.config.WorkspaceID, 1, m.config.HistoryPageSize, api.HistoryFilter{})
	if err != nil {
		return fmt.Errorf("refresh history: %w", err)
	}

	m.store.ReplaceAll(page.Records())
	return nil
}

// History returns a snapshot of the tracked sync history, newest-first
func (m *Manager) History() []history.SyncRecord {
	return m.store.Snapshot()
}

// Notifications returns the channel of aggregate sync notifications. Closed
// by Close.
func (m *Manager) Notifications() <-chan Notification {
	return m.notifications
}

// DroppedNotifications returns how many notifications overflowed the buffer
func (m *Manager) DroppedNotifications() int64 {
	return m.dropped.Load()
}

// WatcherStats exposes the background watcher's counters
func (m *Manager) WatcherStats() poller.WatcherStats {
	return m.watcher.Stats()
}

// Running reports whether a poller of the given kind is actively ticking
func (m *Manager) Running(kind history.Kind) bool {
	m.mu.Lock()
	p := m.pollers[kind]
	m.mu.Unlock()

	return p != nil && p.Running()
}

// Close cancels the watcher and all pollers deterministically and closes the
// notification channel. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	watcherStarted := m.watcherStarted
	active := make([]*poller.Poller, 0, len(m.pollers))
	for _, p := range m.pollers {
		active = append(active, p)
	}
	m.mu.Unlock()

	m.watcher.Stop()
	for _, p := range active {
		p.Stop()
	}

	// Wait for loop goroutines so no callback can race the channel close.
	if watcherStarted {
		<-m.watcher.Done()
	}
	for _, p := range active {
		<-p.Done()
	}

	m.mu.Lock()
	m.closed = true
	close(m.notifications)
	m.mu.Unlock()

	m.logger.Info("sync manager closed", "workspace", m.config.WorkspaceID)
}

// startPoller constructs and starts the poller for one sync kind
func (m *Manager) startPoller(kind history.Kind, syncIDs []string, maxTicks int) error {
	p, err := poller.New(poller.Config{
		SyncIDs:  syncIDs,
		Interval: m.config.PollInterval,
		MaxTicks: maxTicks,
		OnTerminal: func(outcome poller.Outcome) {
			m.handleTerminal(kind, outcome)
		},
		OnExhausted: func() {
			// Soft timeout: no notification, last known statuses stay.
			m.logger.Warn("sync polling stopped before all jobs finished",
				"kind", kind.String(),
				"jobs", len(syncIDs))
		},
	}, &statusFetcher{client: m.client, workspaceID: m.config.WorkspaceID, kind: kind}, m.store, m.logger)
	if err != nil {
		return fmt.Errorf("create %s sync poller: %w", kind, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.pollers[kind] = p
	m.mu.Unlock()

	return p.Start()
}

// cancelPoller force-cancels the previous poller of a kind, keeping the
// at-most-one-running-poller-per-kind invariant
func (m *Manager) cancelPoller(kind history.Kind) {
	m.mu.Lock()
	p := m.pollers[kind]
	m.mu.Unlock()

	if p == nil {
		return
	}

	if p.Running() {
		m.logger.Info("cancelling previous sync poller", "kind", kind.String())
	}
	p.Stop()
}

// anyPollerRunning is the watcher's suspension hook: while a poller is
// already refreshing the history there is nothing for the watcher to add
func (m *Manager) anyPollerRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.pollers {
		if p.Running() {
			return true
		}
	}
	return false
}

// handleTerminal invalidates affected read-models and emits the single
// summary notification for a completed orchestration run
func (m *Manager) handleTerminal(kind history.Kind, outcome poller.Outcome) {
	if m.invalidator != nil {
		m.invalidator.InvalidateSyncViews(kind)
	}

	m.notify(Notification{
		Kind:     kind,
		Severity: severityFor(outcome),
		Message:  summaryMessage(kind, outcome),
		Outcome:  outcome,
		Time:     time.Now(),
	})
}

// handleNewSync reacts to the watcher noticing a sync this client did not
// start: refresh the history view and drop caches for the new head's kind
func (m *Manager) handleNewSync() {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.WatchInterval)
	defer cancel()

	if err := m.RefreshHistory(ctx); err != nil {
		m.logger.Warn("history refresh after external sync failed", "error", err)
		return
	}

	if head, ok := m.store.Head(); ok && m.invalidator != nil {
		m.invalidator.InvalidateSyncViews(head.Kind)
	}
}

// notify delivers a notification without ever blocking a poller goroutine;
// overflow drops the message and counts it
func (m *Manager) notify(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	select {
	case m.notifications <- n:
	default:
		m.dropped.Add(1)
		m.logger.Warn("notification dropped",
			"message", n.Message,
			"dropped_total", m.dropped.Load())
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// statusFetcher binds the API client to one workspace and stamps the sync
// kind the status endpoint does not report
type statusFetcher struct {
	client      SyncAPI
	workspaceID string
	kind        history.Kind
}

func (f *statusFetcher) FetchStatus(ctx context.Context, syncID string) (*history.SyncRecord, error) {
	rec, err := f.client.SyncStatus(ctx, f.workspaceID, syncID)
	if err != nil {
		return nil, err
	}

	if rec.Kind == history.KindUnknown {
		rec.Kind = f.kind
	}
	if rec.Trigger == history.TriggerUnknown {
		rec.Trigger = history.TriggerManual
	}
	return rec, nil
}

// headFetcher reads the single most-recent history record for the watcher
type headFetcher struct {
	client      SyncAPI
	workspaceID string
}

func (f *headFetcher) FetchHead(ctx context.Context) (*history.SyncRecord, error) {
	page, err := f.client.SyncHistory(ctx, f.workspaceID, 1, 1, api.HistoryFilter{})
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}

	rec := page.Items[0].ToRecord()
	return &rec, nil
}
