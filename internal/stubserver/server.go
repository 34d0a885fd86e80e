// Package stubserver implements an in-memory stand-in for the remote sync
// API: jobs advance through a scripted progression on every status poll, so
// the client-side polling machinery can be exercised without a real worker
// pool. Used by cmd/feedsync-stub for local development and by integration
// tests directly.
package stubserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sentira/feedsync/internal/api"
	"github.com/sentira/feedsync/internal/history"
)

// Connector describes one simulated data source
type Connector struct {
	Name         string
	SourceType   string
	TotalItems   int
	Fail         bool   // report Failed instead of Success
	ErrorMessage string // error text when Fail is set
	Stuck        bool   // never leave InProgress (simulates a hung worker)
}

// Options configures the simulated upstream
type Options struct {
	// Connectors available for all-sources syncs. Empty exercises the
	// zero-targets path.
	Connectors []Connector

	// StepsToFinish is how many status polls a job reports progress before
	// reaching its terminal status
	StepsToFinish int

	// ThemeTotalItems is the item count a theme sync reports when done
	ThemeTotalItems int
}

// DefaultOptions returns a three-connector simulation that finishes each job
// on its third poll
func DefaultOptions() Options {
	return Options{
		Connectors: []Connector{
			{Name: "Zendesk", SourceType: "zendesk", TotalItems: 120},
			{Name: "Intercom", SourceType: "intercom", TotalItems: 85},
			{Name: "App Store Reviews", SourceType: "appstore", TotalItems: 40},
		},
		StepsToFinish:   3,
		ThemeTotalItems: 200,
	}
}

// jobState tracks one simulated job and its scripted progression
type jobState struct {
	rec        history.SyncRecord
	polls      int
	steps      int
	totalItems int
	fail       bool
	errMsg     string
	stuck      bool
}

// advance moves the job one poll forward. Terminal jobs never move again.
func (j *jobState) advance() {
	if j.rec.Status.Terminal() {
		return
	}

	j.polls++
	if j.stuck || j.polls < j.steps {
		j.rec.Status = history.StatusInProgress
		if j.steps > 0 {
			j.rec.ItemsProcessed = j.totalItems * j.polls / j.steps
			if j.rec.ItemsProcessed > j.totalItems {
				j.rec.ItemsProcessed = j.totalItems
			}
		}
		j.rec.ItemsNew = j.rec.ItemsProcessed / 4
		return
	}

	if j.fail {
		j.rec.Status = history.StatusFailed
		j.rec.ErrorMessage = j.errMsg
		if j.rec.ErrorMessage == "" {
			j.rec.ErrorMessage = "upstream connector error"
		}
		return
	}

	j.rec.Status = history.StatusSuccess
	j.rec.ItemsProcessed = j.totalItems
	j.rec.ItemsNew = j.totalItems / 4
}

// Server simulates the remote sync API for one or more workspaces. All state
// is in memory; a restart resets the simulation.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*jobState
	// newest-first job IDs, the simulated sync history
	order []string
}

// New creates a simulated upstream
func New(opts Options, logger *slog.Logger) *Server {
	if opts.StepsToFinish <= 0 {
		opts.StepsToFinish = 3
	}
	if opts.ThemeTotalItems <= 0 {
		opts.ThemeTotalItems = 200
	}

	return &Server{
		opts:   opts,
		logger: logger,
		jobs:   make(map[string]*jobState),
		order:  make([]string, 0),
	}
}

// Router returns the HTTP routes of the simulated API
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/workspaces/{workspace}/syncs/themes", s.handleStartThemeSync).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/workspaces/{workspace}/syncs/sources", s.handleStartAllSourcesSync).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/workspaces/{workspace}/syncs/{syncID}", s.handleSyncStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/workspaces/{workspace}/syncs", s.handleSyncHistory).Methods(http.MethodGet)
	return r
}

// InjectExternalSync records a completed sync this client did not start, as a
// periodic server-side ingestion would. Returns the new sync ID.
func (s *Server) InjectExternalSync(kind history.Kind, displayName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &jobState{
		rec: history.SyncRecord{
			ID:             newSyncID(),
			Kind:           kind,
			DisplayName:    displayName,
			Status:         history.StatusSuccess,
			Trigger:        history.TriggerPeriodic,
			StartedAt:      time.Now(),
			ItemsProcessed: 10,
			ItemsNew:       2,
		},
	}
	s.insertJob(job)

	s.logger.Info("injected external sync", "sync_id", job.rec.ID, "kind", kind.String())
	return job.rec.ID
}

// JobCount returns how many simulated jobs exist
func (s *Server) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Server) handleStartThemeSync(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	job := &jobState{
		rec: history.SyncRecord{
			ID:          newSyncID(),
			Kind:        history.KindThemeSync,
			DisplayName: "Theme reclassification",
			Status:      history.StatusPending,
			Trigger:     history.TriggerManual,
			StartedAt:   time.Now(),
		},
		steps:      s.opts.StepsToFinish,
		totalItems: s.opts.ThemeTotalItems,
	}
	s.insertJob(job)
	s.mu.Unlock()

	s.logger.Info("theme sync started",
		"workspace", mux.Vars(r)["workspace"],
		"sync_id", job.rec.ID)

	writeJSON(w, http.StatusAccepted, api.StartThemeSyncResult{
		SyncID:  job.rec.ID,
		Message: "Theme sync started",
	})
}

func (s *Server) handleStartAllSourcesSync(w http.ResponseWriter, r *http.Request) {
	if len(s.opts.Connectors) == 0 {
		writeJSON(w, http.StatusOK, api.StartAllSourcesSyncResult{
			TotalSources:   0,
			SyncOperations: []api.SyncOperation{},
			Message:        "No sources configured",
		})
		return
	}

	s.mu.Lock()
	ops := make([]api.SyncOperation, 0, len(s.opts.Connectors))
	for _, c := range s.opts.Connectors {
		job := &jobState{
			rec: history.SyncRecord{
				ID:          newSyncID(),
				Kind:        history.KindSourceSync,
				DisplayName: c.Name,
				OriginKind:  c.SourceType,
				Status:      history.StatusPending,
				Trigger:     history.TriggerManual,
				StartedAt:   time.Now(),
			},
			steps:      s.opts.StepsToFinish,
			totalItems: c.TotalItems,
			fail:       c.Fail,
			errMsg:     c.ErrorMessage,
			stuck:      c.Stuck,
		}
		s.insertJob(job)
		ops = append(ops, api.SyncOperation{SyncID: job.rec.ID, SourceType: c.SourceType})
	}
	s.mu.Unlock()

	s.logger.Info("all-sources sync started",
		"workspace", mux.Vars(r)["workspace"],
		"sources", len(ops))

	writeJSON(w, http.StatusAccepted, api.StartAllSourcesSyncResult{
		TotalSources:   len(ops),
		SyncOperations: ops,
		Message:        "Source sync started",
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	syncID := mux.Vars(r)["syncID"]

	s.mu.Lock()
	job, ok := s.jobs[syncID]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "sync not found", http.StatusNotFound)
		return
	}

	job.advance()
	rec := job.rec
	s.mu.Unlock()

	startedAt := rec.StartedAt
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         rec.Status.String(),
		"itemsProcessed": rec.ItemsProcessed,
		"itemsNew":       rec.ItemsNew,
		"errorMessage":   rec.ErrorMessage,
		"startedAt":      &startedAt,
		"sourceName":     rec.DisplayName,
	})
}

func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	kind := r.URL.Query().Get("kind")
	status := r.URL.Query().Get("status")
	trigger := r.URL.Query().Get("trigger")

	s.mu.Lock()
	items := make([]api.HistoryItem, 0, len(s.order))
	for _, id := range s.order {
		rec := s.jobs[id].rec
		if kind != "" && rec.Kind.String() != kind {
			continue
		}
		if status != "" && rec.Status.String() != status {
			continue
		}
		if trigger != "" && rec.Trigger.String() != trigger {
			continue
		}

		startedAt := rec.StartedAt
		items = append(items, api.HistoryItem{
			SyncID:         rec.ID,
			Kind:           rec.Kind.String(),
			DisplayName:    rec.DisplayName,
			OriginKind:     rec.OriginKind,
			Status:         rec.Status.String(),
			Trigger:        rec.Trigger.String(),
			StartedAt:      &startedAt,
			ItemsProcessed: rec.ItemsProcessed,
			ItemsNew:       rec.ItemsNew,
			ErrorMessage:   rec.ErrorMessage,
		})
	}
	s.mu.Unlock()

	totalPages := (len(items) + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > len(items) {
		start = len(items)
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}

	writeJSON(w, http.StatusOK, api.HistoryPage{
		Items:      items[start:end],
		TotalPages: totalPages,
	})
}

// insertJob registers a job at the head of the history. Caller holds s.mu.
func (s *Server) insertJob(job *jobState) {
	s.jobs[job.rec.ID] = job
	s.order = append([]string{job.rec.ID}, s.order...)
}

func newSyncID() string {
	return "sync_" + uuid.NewString()
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
