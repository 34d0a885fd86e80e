package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentira/feedsync/internal/api"
	"github.com/sentira/feedsync/internal/history"
	"github.com/sentira/feedsync/internal/poller"
	"github.com/sentira/feedsync/internal/testutil"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeAPI is an in-memory SyncAPI double. Status responses come from a
// scripted fetcher keyed by sync ID.
type fakeAPI struct {
	mu         sync.Mutex
	theme      api.StartThemeSyncResult
	themeErr   error
	sources    api.StartAllSourcesSyncResult
	sourcesErr error
	page       api.HistoryPage
	pageErr    error
	fetcher    *testutil.ScriptedFetcher
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{fetcher: testutil.NewScriptedFetcher()}
}

func (f *fakeAPI) StartThemeSync(_ context.Context, _ string) (api.StartThemeSyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.theme, f.themeErr
}

func (f *fakeAPI) StartAllSourcesSync(_ context.Context, _ string) (api.StartAllSourcesSyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources, f.sourcesErr
}

func (f *fakeAPI) SyncStatus(ctx context.Context, _, syncID string) (*history.SyncRecord, error) {
	return f.fetcher.FetchStatus(ctx, syncID)
}

func (f *fakeAPI) SyncHistory(_ context.Context, _ string, _, _ int, _ api.HistoryFilter) (api.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page, f.pageErr
}

type fakeInvalidator struct {
	mu    sync.Mutex
	kinds []history.Kind
}

func (f *fakeInvalidator) InvalidateSyncViews(kind history.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

func (f *fakeInvalidator) invalidated() []history.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]history.Kind, len(f.kinds))
	copy(out, f.kinds)
	return out
}

func testManagerConfig() Config {
	config := DefaultConfig()
	config.WorkspaceID = "ws1"
	config.PollInterval = 5 * time.Millisecond
	config.WatchInterval = 10 * time.Millisecond
	return config
}

func statusRec(id string, status history.Status) *history.SyncRecord {
	return &history.SyncRecord{ID: id, Status: status}
}

func waitNotification(t *testing.T, m *Manager) Notification {
	t.Helper()
	select {
	case n := <-m.Notifications():
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
		return Notification{}
	}
}

// =============================================================================
// Theme Sync Tests
// =============================================================================

func TestManager_SyncThemesHappyPath(t *testing.T) {
	client := newFakeAPI()
	client.theme = api.StartThemeSyncResult{SyncID: "t1", Message: "Theme sync started"}
	client.fetcher.Script("t1",
		testutil.StatusStep{Record: statusRec("t1", history.StatusInProgress)},
		testutil.StatusStep{Record: statusRec("t1", history.StatusSuccess)},
	)

	store := history.NewStore()
	invalidator := &fakeInvalidator{}
	m, err := NewManager(testManagerConfig(), client, store, invalidator, testutil.NewTestLogger().Logger())
	require.NoError(t, err)
	defer m.Close()

	syncID, err := m.SyncThemes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", syncID)

	// The optimistic record is visible before any poll resolves.
	got, ok := store.Get("t1")
	require.True(t, ok, "optimistic insert must be visible immediately")
	assert.Equal(t, history.KindThemeSync, got.Kind)
	assert.Equal(t, history.TriggerManual, got.Trigger)

	n := waitNotification(t, m)
	assert.Equal(t, history.KindThemeSync, n.Kind)
	assert.Equal(t, SeverityInfo, n.Severity)
	assert.Equal(t, "Theme sync completed", n.Message)
	assert.Equal(t, poller.Outcome{Succeeded: 1, Failed: 0}, n.Outcome)

	assert.Equal(t, []history.Kind{history.KindThemeSync}, invalidator.invalidated())

	got, _ = store.Get("t1")
	assert.Equal(t, history.StatusSuccess, got.Status)
	assert.Equal(t, history.KindThemeSync, got.Kind, "fetcher stamps the kind the status endpoint omits")
}

func TestManager_SyncThemesStartFailure(t *testing.T) {
	client := newFakeAPI()
	client.themeErr = errors.New("503 from gateway")

	store := history.NewStore()
	m, err := NewManager(testManagerConfig(), client, store, nil, testutil.NewTestLogger().Logger())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.SyncThemes(context.Background())
	require.Error(t, err)

	assert.Equal(t, 0, store.Len(), "start failure leaves history untouched")
	assert.False(t, m.Running(history.KindThemeSync), "no poller created on start failure")
}

func TestManager_NewThemeSyncCancelsPrevious(t *testing.T) {
	client := newFakeAPI()
	client.theme = api.StartThemeSyncResult{SyncID: "t1"}
	// t1 never resolves; t2 succeeds straight away.
	client.fetcher.Script("t1", testutil.StatusStep{Record: statusRec("t1", history.StatusInProgress)})
	client.fetcher.Script("t2", testutil.StatusStep{Record: statusRec("t2", history.StatusSuccess)})

	store := history.NewStore()
	m, err := NewManager(testManagerConfig(), client, store, nil, testutil.NewTestLogger().Logger())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.SyncThemes(context.Background())
	require.NoError(t, err)
	testutil.WaitFor(t, func() bool { return client.fetcher.Calls("t1") >= 1 }, time.Second, "first poller ticking")

	client.mu.Lock()
	client.theme = api.StartThemeSyncResult{SyncID: "t2"}
	client.mu.Unlock()

	_, err = m.SyncThemes(context.Background())
	require.NoError(t, err)

	// Exactly one notification arrives, and it is for the second sync.
	n := waitNotification(t, m)
	assert.Equal(t, "Theme sync completed", n.Message)

	// The abandoned job keeps its last known status; no second outcome fires.
	got, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, history.StatusInProgress, got.Status)

	calls := client.fetcher.Calls("t1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, client.fetcher.Calls("t1"), "cancelled poller must stop fetching")

	select {
	case n := <-m.Notifications():
		t.Fatalf("unexpected second notification: %q", n.Message)
	default:
	}
}

// =============================================================================
// All-Sources Sync Tests
// =============================================================================

func TestManager_SyncAllSourcesFanOut(t *testing.T) {
	client := newFakeAPI()
	client.sources = api.StartAllSourcesSyncResult{
		TotalSources: 2,
		SyncOperations: []api.SyncOperation{
			{SyncID: "a", SourceType: "zendesk"},
			{SyncID: "b", SourceType: "intercom"},
		},
	}
	client.fetcher.Script("a", testutil.StatusStep{Record: statusRec("a", history.StatusSuccess)})
	failed := statusRec("b", history.StatusFailed)
	failed.ErrorMessage = "connector credentials expired"
	client.fetcher.Script("b", testutil.StatusStep{Record: failed})

	store := history.NewStore()
	m, err := NewManager(testManagerConfig(), client, store, nil, testutil.NewTestLogger().Logger())
	require.NoError(t, err)
	defer m.Close()

	syncIDs, err := m.SyncAllSources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, syncIDs)

	n := waitNotification(t, m)
	assert.Equal(t, SeverityWarning, n.Severity)
	assert.Equal(t, "Source sync finished with errors: 1 succeeded, 1 failed", n.Message)
	assert.Equal(t, poller.Outcome{Succeeded: 1, Failed: 1}, n.Outcome)

	got, _ := store.Get("b")
	assert.Equal(t, "connector credentials expired", got.ErrorMessage)
	assert.Equal(t, "intercom", got.OriginKind, "optimistic insert carries the source type")
}

func TestManager_SyncAllSourcesZeroTargets(t *testing.T) {
	client := newFakeAPI()
	client.sources = api.StartAllSourcesSyncResult{
		TotalSources:   0,
		SyncOperations: []api.SyncOperation{},
		Message:        "No sources configured",
	}

	store := history.NewStore()
	m, err := NewManager(testManagerConfig(), client, store, nil, testutil.NewTestLogger().Logger())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.SyncAllSources(context.Background())
	require.ErrorIs(t, err, ErrNoSources)

	assert.Equal(t, 0, store.Len(), "history unchanged on zero targets")
	assert.False(t, m.Running(history.KindSourceSync), "no poller created on zero targets")
}

// =============================================================================
// Notification Wording Tests
// =============================================================================

func TestSummaryMessage(t *testing.T) {
	cases := []struct {
		name     string
		kind     history.Kind
		outcome  poller.Outcome
		message  string
		severity Severity
	}{
		{"theme success", history.KindThemeSync, poller.Outcome{Succeeded: 1}, "Theme sync completed", SeverityInfo},
		{"theme failure", history.KindThemeSync, poller.Outcome{Failed: 1}, "Theme sync failed", SeverityError},
		{"sources all success", history.KindSourceSync, poller.Outcome{Succeeded: 3}, "Source sync completed: 3 of 3 sources synced", SeverityInfo},
		{"sources partial", history.KindSourceSync, poller.Outcome{Succeeded: 2, Failed: 1}, "Source sync finished with errors: 2 succeeded, 1 failed", SeverityWarning},
		{"sources all failed", history.KindSourceSync, poller.Outcome{Failed: 2}, "Source sync failed: all 2 sources failed", SeverityError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.message, summaryMessage(tc.kind, tc.outcome))
			assert.Equal(t, tc.severity, severityFor(tc.outcome))
		})
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestManager_RefreshHistorySeedsStore(t *testing.T) {
	started := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	client := newFakeAPI()
	client.page = api.HistoryPage{
		Items: []api.HistoryItem{
			{SyncID: "s2", Kind: "source", DisplayName: "Zendesk", Status: "success", Trigger: "periodic", StartedAt: &started},
			{SyncID: "s1", Kind: "theme", DisplayName: "Theme reclassification", Status: "failed", Trigger: "manual"},
		},
		TotalPages: 1,
	}

	store := history.NewStore()
	m, err := NewManager(testManagerConfig(), client, store, nil, testutil.NewTestLogger().Logger())
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.RefreshHistory(context.Background()))

	records := m.History()
	require.Len(t, records, 2)
	assert.Equal(t, "s2", records[0].ID)
	assert.Equal(t, history.KindSourceSync, records[0].Kind)
	assert.Equal(t, history.TriggerPeriodic, records[0].Trigger)
	assert.Equal(t, history.StatusFailed, records[1].Status)
}

func TestManager_CloseIsIdempotentAndClosesNotifications(t *testing.T) {
	client := newFakeAPI()
	m, err := NewManager(testManagerConfig(), client, history.NewStore(), nil, testutil.NewTestLogger().Logger())
	require.NoError(t, err)

	m.Start()
	m.Close()
	m.Close()

	_, ok := <-m.Notifications()
	assert.False(t, ok, "notification channel closed")

	_, err = m.SyncThemes(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
