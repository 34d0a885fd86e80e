package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sentira/feedsync/internal/api"
	"github.com/sentira/feedsync/internal/history"
	"github.com/sentira/feedsync/internal/poller"
)

// ErrNoSources is returned by SyncAllSources when the workspace has no
// connectors configured. A user-facing condition, not a technical failure.
var ErrNoSources = errors.New("no sources configured to sync")

// ErrClosed is returned by start operations after the manager was closed
var ErrClosed = errors.New("sync manager closed")

// SyncAPI is the remote collaborator boundary the manager depends on
type SyncAPI interface {
	StartThemeSync(ctx context.Context, workspaceID string) (api.StartThemeSyncResult, error)
	StartAllSourcesSync(ctx context.Context, workspaceID string) (api.StartAllSourcesSyncResult, error)
	SyncStatus(ctx context.Context, workspaceID, syncID string) (*history.SyncRecord, error)
	SyncHistory(ctx context.Context, workspaceID string, page, pageSize int, filter api.HistoryFilter) (api.HistoryPage, error)
}

// CacheInvalidator drops cached read-models a completed sync would affect
type CacheInvalidator interface {
	InvalidateSyncViews(kind history.Kind)
}

// Severity classifies a notification for presentation
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns a human-readable representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is the single aggregate message emitted per completed
// orchestration run
type Notification struct {
	Kind     history.Kind
	Severity Severity
	Message  string
	Outcome  poller.Outcome
	Time     time.Time
}

// summaryMessage derives the notification wording from the per-job breakdown
func summaryMessage(kind history.Kind, outcome poller.Outcome) string {
	if kind == history.KindThemeSync {
		if outcome.Failed == 0 {
			return "Theme sync completed"
		}
		return "Theme sync failed"
	}

	total := outcome.Succeeded + outcome.Failed
	switch {
	case outcome.Failed == 0:
		return fmt.Sprintf("Source sync completed: %d of %d sources synced", outcome.Succeeded, total)
	case outcome.Succeeded == 0:
		return fmt.Sprintf("Source sync failed: all %d sources failed", total)
	default:
		return fmt.Sprintf("Source sync finished with errors: %d succeeded, %d failed",
			outcome.Succeeded, outcome.Failed)
	}
}

// severityFor maps an outcome breakdown to a notification severity
func severityFor(outcome poller.Outcome) Severity {
	switch {
	case outcome.Failed == 0:
		return SeverityInfo
	case outcome.Succeeded == 0:
		return SeverityError
	default:
		return SeverityWarning
	}
}
