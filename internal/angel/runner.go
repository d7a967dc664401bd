package angel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redinc23/hathor-red/internal/config"
	"github.com/redinc23/hathor-red/internal/events"
	"github.com/redinc23/hathor-red/internal/state"
)

// tickTimeout bounds one full pass over all targets plus housekeeping.
const tickTimeout = 10 * time.Minute

// Target is one repository the runner watches.
type Target struct {
	Owner string
	Repo  string
}

// Runner drives periodic checkups over a fixed set of repositories and
// runs ledger housekeeping between them.
type Runner struct {
	mu sync.Mutex

	angel     *Angel
	store     state.Store
	bus       events.Publisher
	targets   []Target
	interval  time.Duration
	retention config.RetentionConfig
	log       *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	lastCleanup time.Time
}

// NewRunner wires a checkup loop. interval at or below zero falls back to
// daily.
func NewRunner(a *Angel, store state.Store, bus events.Publisher, targets []Target, interval time.Duration, retention config.RetentionConfig, logger *slog.Logger) (*Runner, error) {
	if a == nil {
		return nil, fmt.Errorf("angel is required")
	}
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one repository target is required")
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		angel:     a,
		store:     store,
		bus:       bus,
		targets:   targets,
		interval:  interval,
		retention: retention,
		log:       logger,
	}, nil
}

// Start launches the loop. The first pass runs immediately; later passes
// follow the configured interval.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("runner already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.running = true

	r.wg.Add(1)
	go r.loop()

	r.log.Info("angel loop started",
		"targets", len(r.targets), "interval", r.interval.String())
	return nil
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.cancel()
	r.running = false
	r.wg.Wait()
	r.log.Info("angel loop stopped")
}

func (r *Runner) loop() {
	defer r.wg.Done()

	r.tick()

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-timer.C:
			r.tick()
			timer.Reset(r.interval)
		}
	}
}

// tick performs one pass: every target gets a checkup, then expired
// records are purged when the cleanup interval has elapsed. A failing
// target never blocks the others.
func (r *Runner) tick() {
	ctx, cancel := context.WithTimeout(r.ctx, tickTimeout)
	defer cancel()

	for _, target := range r.targets {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.angel.PerformCheckup(ctx, target.Owner, target.Repo); err != nil {
			r.log.Error("checkup failed",
				"owner", target.Owner, "repo", target.Repo, "error", err)
		}
	}

	r.maybeCleanup(ctx)
}

func (r *Runner) maybeCleanup(ctx context.Context) {
	if !r.retention.CleanupEnabled {
		return
	}
	due := r.lastCleanup.Add(time.Duration(r.retention.CleanupIntervalHours) * time.Hour)
	if !r.lastCleanup.IsZero() && time.Now().Before(due) {
		return
	}
	r.lastCleanup = time.Now()

	batch := r.retention.CleanupBatchSize
	purgedRecords, err := r.store.PurgeExpired(ctx, batch)
	if err != nil {
		r.log.Warn("purging expired records", "error", err)
	}

	purgedEvents := 0
	if n, err := r.store.CleanupEventsByAge(ctx, r.retention.EventRetentionDays, batch); err != nil {
		r.log.Warn("purging aged events", "error", err)
	} else {
		purgedEvents += n
	}
	if n, err := r.store.CleanupEventsByGlobalLimit(ctx, r.retention.GlobalLimitEvents, batch); err != nil {
		r.log.Warn("enforcing event cap", "error", err)
	} else {
		purgedEvents += n
	}

	if purgedRecords == 0 && purgedEvents == 0 {
		return
	}
	r.log.Info("cleanup pass complete",
		"purged_records", purgedRecords, "purged_events", purgedEvents)
	if r.bus == nil {
		return
	}
	event, err := events.NewCleanupEvent(events.SeverityInfo,
		fmt.Sprintf("purged %d expired records and %d audit events", purgedRecords, purgedEvents),
		events.CleanupData{PurgedRecords: purgedRecords, PurgedEvents: purgedEvents})
	if err != nil {
		r.log.Warn("building cleanup event", "error", err)
		return
	}
	if err := r.bus.Publish(ctx, event); err != nil {
		r.log.Warn("publishing cleanup event", "error", err)
	}
}
