package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sentira/feedsync/internal/history"
)

// StatusFetcher queries the remote status of one sync job.
// A nil record with a non-nil error means "unknown this tick", never failure.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, syncID string) (*history.SyncRecord, error)
}

// Outcome is the per-job breakdown delivered when every tracked job reached a
// terminal status. Notification wording is derived from it.
type Outcome struct {
	Succeeded int
	Failed    int
}

// Config defines the fixed parameters of one poller instance. The job set is
// set at construction and never extended; a status response naming an ID
// outside the set is ignored.
type Config struct {
	// IDs of the jobs to track
	SyncIDs []string

	// Interval between ticks. The first tick fires immediately on Start so
	// the history view is never blank.
	Interval time.Duration

	// Maximum number of ticks before the poller gives up and stops silently
	MaxTicks int

	// OnTick receives a history snapshot after each reconciled tick
	OnTick func(records []history.SyncRecord)

	// OnTerminal fires exactly once when every tracked job is terminal
	OnTerminal func(outcome Outcome)

	// OnExhausted fires when the tick budget runs out first. Exhaustion is a
	// soft timeout, not a failure; non-terminal jobs keep their last known
	// status.
	OnExhausted func()
}

// validateConfig validates poller configuration and returns error if invalid
func validateConfig(config Config) error {
	if len(config.SyncIDs) == 0 {
		return fmt.Errorf("SyncIDs must not be empty")
	}

	seen := make(map[string]struct{}, len(config.SyncIDs))
	for _, id := range config.SyncIDs {
		if id == "" {
			return fmt.Errorf("SyncIDs must not contain empty IDs")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("SyncIDs must not contain duplicates, got %q twice", id)
		}
		seen[id] = struct{}{}
	}

	if config.Interval <= 0 {
		return fmt.Errorf("Interval must be positive, got %v", config.Interval)
	}

	if config.MaxTicks <= 0 {
		return fmt.Errorf("MaxTicks must be positive, got %d", config.MaxTicks)
	}

	return nil
}

// State represents the poller lifecycle
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateExhausted
	StateCancelled
)

// String returns a human-readable representation of the poller state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Stats provides current poller statistics
type Stats struct {
	TicksRun         int
	FetchFailures    int
	LastTickDuration time.Duration
}

// Poller tracks a fixed set of sync jobs by polling their statuses on a fixed
// interval, reconciling each tick's results into the shared history store.
//
// Lifecycle: Idle -> Running -> {Completed, Exhausted, Cancelled}. All
// terminal transitions happen exactly once; Completed and Exhausted are
// mutually exclusive with each other and with Cancelled. After Stop returns
// the poller contributes no further store mutation, even for fetches that were
// in flight when it was called.
type Poller struct {
	config  Config
	fetcher StatusFetcher
	store   *history.Store
	logger  *slog.Logger

	mu    sync.Mutex
	state State
	stats Stats

	cancel chan struct{}
	done   chan struct{}
}

// New creates a poller with validated configuration. The poller does not tick
// until Start is called.
func New(config Config, fetcher StatusFetcher, store *history.Store, logger *slog.Logger) (*Poller, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}

	return &Poller{
		config:  config,
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		state:   StateIdle,
		cancel:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start transitions the poller to Running and launches its loop goroutine.
// The first tick fires immediately, not after one interval.
func (p *Poller) Start() error {
	if !p.transition(StateIdle, StateRunning) {
		return fmt.Errorf("poller already started, state %s", p.State())
	}

	go p.run()
	return nil
}

// Stop cancels the poller. Idempotent; safe to call in any state. Results of a
// tick in flight at cancellation time are discarded, never reconciled, and no
// terminal callback fires afterwards.
func (p *Poller) Stop() {
	cancelled := p.transition(StateIdle, StateCancelled) ||
		p.transition(StateRunning, StateCancelled)
	if cancelled {
		close(p.cancel)
	}
}

// State returns the current lifecycle state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Running reports whether the poller is actively ticking
func (p *Poller) Running() bool {
	return p.State() == StateRunning
}

// Stats returns a copy of the current poller statistics
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Done is closed once the loop goroutine has fully exited, including any
// terminal callback. A poller that was never started never closes it.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// transition performs a compare-and-swap state transition and logs it
func (p *Poller) transition(from, to State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != from {
		return false
	}
	p.state = to

	p.logger.Debug("poller state transition",
		"from", from.String(),
		"to", to.String(),
		"jobs", len(p.config.SyncIDs))
	return true
}

// run is the poller's main loop. Each iteration runs one full tick inline, so
// ticks never overlap and reconciliation for tick N is visible to all readers
// before tick N+1 is scheduled.
func (p *Poller) run() {
	defer close(p.done)

	for tick := 1; ; tick++ {
		applied := p.tick(tick)
		if !applied {
			// Cancelled mid-tick; results already discarded.
			return
		}

		outcome, allTerminal := p.outcome()
		if allTerminal {
			if p.transition(StateRunning, StateCompleted) {
				p.logger.Info("all sync jobs terminal",
					"ticks", tick,
					"succeeded", outcome.Succeeded,
					"failed", outcome.Failed)
				if p.config.OnTerminal != nil {
					p.config.OnTerminal(outcome)
				}
			}
			return
		}

		if tick >= p.config.MaxTicks {
			if p.transition(StateRunning, StateExhausted) {
				// Soft timeout: last known statuses stay displayed,
				// polling simply stops.
				p.logger.Warn("poll budget exhausted",
					"ticks", tick,
					"succeeded", outcome.Succeeded,
					"failed", outcome.Failed)
				if p.config.OnExhausted != nil {
					p.config.OnExhausted()
				}
			}
			return
		}

		timer := time.NewTimer(p.config.Interval)
		select {
		case <-p.cancel:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// tick fetches the status of every not-yet-terminal job concurrently, jointly
// awaits the batch, and reconciles the results. Individual fetch failures
// degrade to a nil update for that job and never abort the tick. Returns false
// when the poller was cancelled before the results could be applied.
func (p *Poller) tick(n int) bool {
	start := time.Now()

	ctx, cancelFetches := context.WithCancel(context.Background())
	defer cancelFetches()
	go func() {
		select {
		case <-p.cancel:
			cancelFetches()
		case <-ctx.Done():
		}
	}()

	pending := p.pendingIDs()
	updates := make([]*history.SyncRecord, len(pending))
	failures := 0

	var failMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range pending {
		i, id := i, id
		g.Go(func() error {
			rec, err := p.fetcher.FetchStatus(gctx, id)
			if err != nil {
				// Unknown this tick; prior value is preserved.
				p.logger.Debug("status fetch failed",
					"sync_id", id,
					"tick", n,
					"error", err)
				failMu.Lock()
				failures++
				failMu.Unlock()
				return nil
			}
			updates[i] = rec
			return nil
		})
	}
	g.Wait()

	// Apply under the state lock so a poller cancelled while the batch was in
	// flight never mutates the store.
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return false
	}
	p.store.Apply(updates)
	p.stats.TicksRun++
	p.stats.FetchFailures += failures
	p.stats.LastTickDuration = time.Since(start)
	p.mu.Unlock()

	if p.config.OnTick != nil {
		p.config.OnTick(p.store.Snapshot())
	}

	return true
}

// pendingIDs returns the tracked jobs that still need fetching this tick
func (p *Poller) pendingIDs() []string {
	pending := make([]string, 0, len(p.config.SyncIDs))
	for _, id := range p.config.SyncIDs {
		if rec, ok := p.store.Get(id); ok && rec.Status.Terminal() {
			continue
		}
		pending = append(pending, id)
	}
	return pending
}

// outcome computes the terminal breakdown over the tracked job set. A job with
// no record yet, or a non-terminal status, keeps the poller running.
func (p *Poller) outcome() (Outcome, bool) {
	var outcome Outcome
	allTerminal := true

	for _, id := range p.config.SyncIDs {
		rec, ok := p.store.Get(id)
		if !ok {
			allTerminal = false
			continue
		}

		switch rec.Status {
		case history.StatusSuccess:
			outcome.Succeeded++
		case history.StatusFailed:
			outcome.Failed++
		default:
			allTerminal = false
		}
	}

	return outcome, allTerminal
}
