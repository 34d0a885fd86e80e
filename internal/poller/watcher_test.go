package poller

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentira/feedsync/internal/history"
	"github.com/sentira/feedsync/internal/testutil"
)

func watcherConfig(onNew func()) WatcherConfig {
	return WatcherConfig{
		Interval:  5 * time.Millisecond,
		OnNewSync: onNew,
	}
}

// TestWatcher_FiresOncePerNewHead verifies the first observation only primes
// the watcher and a changed head ID fires the callback exactly once.
func TestWatcher_FiresOncePerNewHead(t *testing.T) {
	head := testutil.NewScriptedHeadFetcher(
		testutil.StatusStep{Record: rec("s1", history.StatusSuccess)},
	)

	var fired atomic.Int32
	w, err := NewWatcher(watcherConfig(func() { fired.Add(1) }), head, testutil.NewTestLogger().Logger())
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	// Let the watcher observe s1 a few times: priming, then no-op checks.
	testutil.WaitFor(t, func() bool { return w.Stats().ChecksRun >= 3 }, time.Second, "watcher checking")
	assert.Equal(t, int32(0), fired.Load(), "no false positive on mount")

	// A new sync appears at the head.
	head.Append(testutil.StatusStep{Record: rec("s2", history.StatusSuccess)})

	testutil.WaitFor(t, func() bool { return fired.Load() == 1 }, time.Second, "callback fired")

	// The new head is now remembered; repeated observations stay quiet.
	testutil.WaitFor(t, func() bool { return w.Stats().NewSyncsSeen == 1 && w.Stats().ChecksRun >= 8 },
		time.Second, "watcher settled")
	assert.Equal(t, int32(1), fired.Load())
}

// TestWatcher_SwallowsFetchFailures verifies failures are retried on the next
// check and never fire the callback.
func TestWatcher_SwallowsFetchFailures(t *testing.T) {
	head := testutil.NewScriptedHeadFetcher(
		testutil.StatusStep{Err: errors.New("gateway timeout")},
		testutil.StatusStep{Err: errors.New("gateway timeout")},
		testutil.StatusStep{Record: rec("s1", history.StatusSuccess)},
	)

	var fired atomic.Int32
	w, err := NewWatcher(watcherConfig(func() { fired.Add(1) }), head, testutil.NewTestLogger().Logger())
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	testutil.WaitFor(t, func() bool { return w.Stats().ChecksRun >= 4 }, time.Second, "watcher checking")

	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.FetchFailures, 2)
	assert.Equal(t, int32(0), fired.Load(), "failures never surface")
}

// TestWatcher_EmptyHistoryDoesNotPrime verifies an empty remote history is
// not an observation; the first real record primes without firing.
func TestWatcher_EmptyHistoryDoesNotPrime(t *testing.T) {
	head := testutil.NewScriptedHeadFetcher(
		testutil.StatusStep{}, // nil record: empty history
		testutil.StatusStep{Record: rec("s1", history.StatusSuccess)},
	)

	var fired atomic.Int32
	w, err := NewWatcher(watcherConfig(func() { fired.Add(1) }), head, testutil.NewTestLogger().Logger())
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	testutil.WaitFor(t, func() bool { return w.Stats().ChecksRun >= 3 }, time.Second, "watcher checking")
	assert.Equal(t, int32(0), fired.Load())
}

// TestWatcher_SuspendedChecksAreSkipped verifies checks beginning while
// suspended are skipped wholesale and resume once the hook clears.
func TestWatcher_SuspendedChecksAreSkipped(t *testing.T) {
	head := testutil.NewScriptedHeadFetcher(
		testutil.StatusStep{Record: rec("s1", history.StatusSuccess)},
	)

	var suspended atomic.Bool
	suspended.Store(true)

	var fired atomic.Int32
	config := watcherConfig(func() { fired.Add(1) })
	config.Suspended = func() bool { return suspended.Load() }

	w, err := NewWatcher(config, head, testutil.NewTestLogger().Logger())
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	testutil.WaitFor(t, func() bool { return w.Stats().ChecksSkipped >= 3 }, time.Second, "checks skipped")
	assert.Equal(t, 0, head.Calls(), "no fetch while suspended")

	suspended.Store(false)
	testutil.WaitFor(t, func() bool { return w.Stats().ChecksRun >= 1 }, time.Second, "watcher resumed")
}

// TestWatcher_StopIsIdempotent verifies Stop can be called repeatedly.
func TestWatcher_StopIsIdempotent(t *testing.T) {
	head := testutil.NewScriptedHeadFetcher()
	w, err := NewWatcher(watcherConfig(func() {}), head, testutil.NewTestLogger().Logger())
	require.NoError(t, err)

	w.Start()
	w.Stop()
	w.Stop()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
