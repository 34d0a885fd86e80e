package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentira/feedsync/internal/history"
)

// StatusStep is one scripted response of a fake status fetch
type StatusStep struct {
	Record *history.SyncRecord
	Err    error
}

// ScriptedFetcher fakes the remote status endpoint: each sync ID follows a
// fixed sequence of responses, one per fetch, sticking on the last step once
// the script runs out.
type ScriptedFetcher struct {
	mu      sync.Mutex
	scripts map[string][]StatusStep
	calls   map[string]int
}

func NewScriptedFetcher() *ScriptedFetcher {
	return &ScriptedFetcher{
		scripts: make(map[string][]StatusStep),
		calls:   make(map[string]int),
	}
}

// Script sets the response sequence for one sync ID
func (f *ScriptedFetcher) Script(syncID string, steps ...StatusStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[syncID] = steps
}

// Calls returns how many times a sync ID was fetched
func (f *ScriptedFetcher) Calls(syncID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[syncID]
}

func (f *ScriptedFetcher) FetchStatus(_ context.Context, syncID string) (*history.SyncRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	steps := f.scripts[syncID]
	if len(steps) == 0 {
		return nil, fmt.Errorf("no script for sync %s", syncID)
	}

	n := f.calls[syncID]
	f.calls[syncID]++
	if n >= len(steps) {
		n = len(steps) - 1
	}

	step := steps[n]
	if step.Err != nil {
		return nil, step.Err
	}

	rec := *step.Record
	return &rec, nil
}

// ScriptedHeadFetcher fakes the history head endpoint with a fixed response
// sequence, sticking on the last step
type ScriptedHeadFetcher struct {
	mu    sync.Mutex
	steps []StatusStep
	calls int
}

func NewScriptedHeadFetcher(steps ...StatusStep) *ScriptedHeadFetcher {
	return &ScriptedHeadFetcher{steps: steps}
}

// Append adds further steps to the script
func (f *ScriptedHeadFetcher) Append(steps ...StatusStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, steps...)
}

// Calls returns how many head fetches were made
func (f *ScriptedHeadFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *ScriptedHeadFetcher) FetchHead(_ context.Context) (*history.SyncRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.steps) == 0 {
		return nil, nil
	}

	n := f.calls
	f.calls++
	if n >= len(f.steps) {
		n = len(f.steps) - 1
	}

	step := f.steps[n]
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Record == nil {
		return nil, nil
	}

	rec := *step.Record
	return &rec, nil
}

// TestLogger captures log output for assertions while still producing a
// usable *slog.Logger
type TestLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

type LogEntry struct {
	Level   string
	Message string
}

func NewTestLogger() *TestLogger {
	return &TestLogger{entries: make([]LogEntry, 0)}
}

// Logger returns a *slog.Logger that records into this TestLogger
func (l *TestLogger) Logger() *slog.Logger {
	return slog.New(&captureHandler{logger: l})
}

// Entries returns a copy of everything logged so far
func (l *TestLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// HasLevel reports whether anything was logged at the given level
func (l *TestLogger) HasLevel(level string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.Level == level {
			return true
		}
	}
	return false
}

func (l *TestLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg})
}

type captureHandler struct {
	logger *TestLogger
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.logger.record(r.Level.String(), r.Message)
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(_ string) slog.Handler      { return h }

// TestingT is a minimal interface for testing
type TestingT interface {
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// WaitFor waits for a condition to be true with timeout
func WaitFor(t TestingT, condition func() bool, timeout time.Duration, msgAndArgs ...interface{}) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		<-ticker.C
		if time.Now().After(deadline) {
			t.Errorf("timeout waiting for condition: %v", msgAndArgs)
			return false
		}
	}
}
