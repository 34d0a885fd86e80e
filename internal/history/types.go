package history

import (
	"fmt"
	"time"
)

// SyncRecord represents one background ingestion job as known to this client.
// Records come from the remote sync API, either reported by a status poll or
// inserted optimistically when this client starts the job itself.
type SyncRecord struct {
	ID             string
	Kind           Kind
	DisplayName    string
	OriginKind     string // source-system identifier, source syncs only
	Status         Status
	Trigger        Trigger
	StartedAt      time.Time
	ItemsProcessed int
	ItemsNew       int
	ErrorMessage   string
}

// Kind distinguishes the two job families the backend runs
type Kind int

const (
	KindUnknown Kind = iota
	KindSourceSync
	KindThemeSync
)

// String returns a human-readable representation of the sync kind
func (k Kind) String() string {
	switch k {
	case KindSourceSync:
		return "source"
	case KindThemeSync:
		return "theme"
	default:
		return "unknown"
	}
}

// ParseKind parses a wire-format kind string
func ParseKind(s string) (Kind, error) {
	switch s {
	case "source":
		return KindSourceSync, nil
	case "theme":
		return KindThemeSync, nil
	default:
		return KindUnknown, fmt.Errorf("unknown sync kind: %q", s)
	}
}

// Status represents the remote job state as last reported
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusSuccess
	StatusFailed
)

// String returns a human-readable representation of the status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can occur from this status
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ParseStatus parses a wire-format status string
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "in_progress":
		return StatusInProgress, nil
	case "success":
		return StatusSuccess, nil
	case "failed":
		return StatusFailed, nil
	default:
		return StatusPending, fmt.Errorf("unknown sync status: %q", s)
	}
}

// Trigger records how a job was started
type Trigger int

const (
	TriggerUnknown Trigger = iota
	TriggerManual
	TriggerPeriodic
)

// String returns a human-readable representation of the trigger
func (t Trigger) String() string {
	switch t {
	case TriggerManual:
		return "manual"
	case TriggerPeriodic:
		return "periodic"
	default:
		return "unknown"
	}
}

// ParseTrigger parses a wire-format trigger string
func ParseTrigger(s string) (Trigger, error) {
	switch s {
	case "manual":
		return TriggerManual, nil
	case "periodic":
		return TriggerPeriodic, nil
	default:
		return TriggerUnknown, fmt.Errorf("unknown sync trigger: %q", s)
	}
}
