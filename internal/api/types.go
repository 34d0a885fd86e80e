package api

import (
	"time"

	"github.com/sentira/feedsync/internal/history"
)

// StartThemeSyncResult is the response to a theme sync start request
type StartThemeSyncResult struct {
	SyncID  string `json:"syncId"`
	Message string `json:"message"`
}

// SyncOperation identifies one job of an all-sources fan-out
type SyncOperation struct {
	SyncID     string `json:"syncId"`
	SourceType string `json:"sourceType"`
}

// StartAllSourcesSyncResult is the response to an all-sources sync start
// request. TotalSources may be zero when no connectors are configured.
type StartAllSourcesSyncResult struct {
	TotalSources   int             `json:"totalSources"`
	SyncOperations []SyncOperation `json:"syncOperations"`
	Message        string          `json:"message"`
}

// syncStatusResponse is the wire form of a single job status
type syncStatusResponse struct {
	Status         string     `json:"status"`
	ItemsProcessed int        `json:"itemsProcessed"`
	ItemsNew       int        `json:"itemsNew"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	SourceName     string     `json:"sourceName,omitempty"`
}

// HistoryItem is the wire form of one sync history entry
type HistoryItem struct {
	SyncID         string     `json:"syncId"`
	Kind           string     `json:"kind"`
	DisplayName    string     `json:"displayName"`
	OriginKind     string     `json:"originKind,omitempty"`
	Status         string     `json:"status"`
	Trigger        string     `json:"trigger"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	ItemsProcessed int        `json:"itemsProcessed"`
	ItemsNew       int        `json:"itemsNew"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
}

// ToRecord converts a wire history item into the client-side record model.
// Unparseable enum fields degrade to their unknown values rather than failing
// the whole page.
func (it HistoryItem) ToRecord() history.SyncRecord {
	kind, _ := history.ParseKind(it.Kind)
	status, _ := history.ParseStatus(it.Status)
	trigger, _ := history.ParseTrigger(it.Trigger)

	rec := history.SyncRecord{
		ID:             it.SyncID,
		Kind:           kind,
		DisplayName:    it.DisplayName,
		OriginKind:     it.OriginKind,
		Status:         status,
		Trigger:        trigger,
		ItemsProcessed: it.ItemsProcessed,
		ItemsNew:       it.ItemsNew,
		ErrorMessage:   it.ErrorMessage,
	}
	if it.StartedAt != nil {
		rec.StartedAt = *it.StartedAt
	}
	return rec
}

// HistoryPage is one page of the paginated sync history
type HistoryPage struct {
	Items      []HistoryItem `json:"items"`
	TotalPages int           `json:"totalPages"`
}

// Records converts all items of the page into client-side records
func (p HistoryPage) Records() []history.SyncRecord {
	out := make([]history.SyncRecord, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.ToRecord()
	}
	return out
}

// HistoryFilter narrows a sync history query. Empty fields are not applied.
type HistoryFilter struct {
	Kind    string
	Status  string
	Trigger string
}
