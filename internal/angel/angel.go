// Package angel implements the proactive guardian: periodic health
// checkups that fan out oracles over recent run history, score the
// results, run automated interventions against the worst signals, bless
// pull requests before merge, and distill lessons from failures.
package angel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/redinc23/hathor-red/internal/config"
	"github.com/redinc23/hathor-red/internal/events"
	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/intervene"
	"github.com/redinc23/hathor-red/internal/ml"
	"github.com/redinc23/hathor-red/internal/notify"
	"github.com/redinc23/hathor-red/internal/oracle"
	"github.com/redinc23/hathor-red/internal/state"
	"github.com/redinc23/hathor-red/internal/types"
	"github.com/redinc23/hathor-red/internal/vector"
)

// Angel watches repositories the triage pipeline only reacts to. It holds
// the oracles and interventions in registration order; both orders are
// part of the observable contract.
type Angel struct {
	github        github.Port
	store         state.Store
	engine        ml.Engine
	notifier      notify.Notifier
	vectors       vector.Store
	bus           events.Publisher
	oracles       []oracle.Oracle
	interventions []intervene.Intervention
	cfg           config.AngelConfig
	log           *slog.Logger
	now           func() time.Time
}

// Deps carries the ports an Angel needs. Notifier and Vectors fall back
// to inert implementations; everything else is mandatory.
type Deps struct {
	GitHub   github.Port
	Store    state.Store
	Engine   ml.Engine
	Notifier notify.Notifier
	Vectors  vector.Store
	Bus      events.Publisher
	Logger   *slog.Logger
}

// New wires an Angel with the default oracles and interventions.
func New(deps Deps, cfg config.AngelConfig) (*Angel, error) {
	if deps.GitHub == nil {
		return nil, fmt.Errorf("github port is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("ml engine is required")
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	vectors := deps.Vectors
	if vectors == nil {
		vectors = vector.NewMemory()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 90
	}
	if cfg.MaxRuns <= 0 {
		cfg.MaxRuns = 200
	}
	if cfg.MaxCheckSHAs <= 0 {
		cfg.MaxCheckSHAs = 20
	}
	if cfg.MaxConcurrentOracles <= 0 {
		cfg.MaxConcurrentOracles = 4
	}
	if cfg.InterventionWindowDuration <= 0 {
		cfg.InterventionWindowDuration = 7 * 24 * time.Hour
	}

	return &Angel{
		github:        deps.GitHub,
		store:         deps.Store,
		engine:        deps.Engine,
		notifier:      notifier,
		vectors:       vectors,
		bus:           deps.Bus,
		oracles:       oracle.Defaults(),
		interventions: intervene.Defaults(),
		cfg:           cfg,
		log:           logger,
		now:           time.Now,
	}, nil
}

// PerformCheckup assesses one repository: assemble the bounded history
// window, divine signals and prophecies, score, intervene, and publish
// the checkup event. The returned snapshot is recomputed every time and
// never cached.
func (a *Angel) PerformCheckup(ctx context.Context, owner, repo string) (*types.RepositoryHealth, error) {
	a.log.Info("beginning repository checkup", "owner", owner, "repo", repo)

	repository, err := a.github.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("fetching repository %s/%s: %w", owner, repo, err)
	}

	history, err := a.fetchRunHistory(ctx, owner, repo, repository.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("assembling run history for %s/%s: %w", owner, repo, err)
	}

	var signals []types.HealthSignal
	var prophecies []types.Prophecy
	for _, finding := range a.divine(ctx, owner, repo, history) {
		signals = append(signals, finding.signals...)
		prophecies = append(prophecies, finding.prophecies...)
	}

	score := Score(signals)
	health := &types.RepositoryHealth{
		Owner:         owner,
		Repo:          repo,
		Score:         score,
		Healthy:       IsHealthy(score, signals),
		DefaultBranch: repository.DefaultBranch,
		Signals:       signals,
		Prophecies:    prophecies,
		Trends:        signalTrends(signals),
		CheckedAt:     a.now(),
	}

	a.intervene(ctx, health)
	a.publishCheckup(ctx, health)

	a.log.Info("checkup complete",
		"owner", owner, "repo", repo,
		"score", health.Score,
		"healthy", health.Healthy,
		"signals", len(signals),
		"prophecies", len(prophecies))
	return health, nil
}

// oracleFinding keeps one oracle's output in its registration slot so the
// flattened signal order is deterministic regardless of goroutine timing.
type oracleFinding struct {
	signals    []types.HealthSignal
	prophecies []types.Prophecy
}

// divine fans the oracles out under the concurrency bound. One failing
// oracle never aborts the others; whatever signals it gathered before the
// error still count.
func (a *Angel) divine(ctx context.Context, owner, repo string, history *types.RunHistory) []oracleFinding {
	findings := make([]oracleFinding, len(a.oracles))
	sem := semaphore.NewWeighted(int64(a.cfg.MaxConcurrentOracles))
	var wg sync.WaitGroup

	for i, o := range a.oracles {
		wg.Add(1)
		go func(slot int, o oracle.Oracle) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				a.log.Warn("oracle skipped, checkup cancelled",
					"oracle", o.Name(), "error", err)
				return
			}
			defer sem.Release(1)

			signals, err := o.Divine(ctx, owner, repo, history, a.github)
			if err != nil {
				a.log.Warn("oracle failed", "oracle", o.Name(), "error", err)
			}

			finding := oracleFinding{signals: signals}
			for _, signal := range signals {
				prophecy, err := o.Prophesy(ctx, signal, history, a.engine)
				if err != nil {
					a.log.Warn("prophecy failed",
						"oracle", o.Name(), "signal", signal.Key(), "error", err)
					continue
				}
				if prophecy != nil {
					finding.prophecies = append(finding.prophecies, *prophecy)
				}
			}
			findings[slot] = finding
		}(i, o)
	}
	wg.Wait()
	return findings
}

// fetchRunHistory assembles the bounded window the oracles reason over:
// recent runs on the default branch plus test outcomes projected from
// check runs on a capped number of distinct head commits.
func (a *Angel) fetchRunHistory(ctx context.Context, owner, repo, branch string) (*types.RunHistory, error) {
	runs, err := a.github.ListRecentRuns(ctx, owner, repo, branch, a.cfg.MaxRuns)
	if err != nil {
		return nil, fmt.Errorf("listing recent runs: %w", err)
	}

	cutoff := a.now().AddDate(0, 0, -a.cfg.HistoryDays)
	recent := make([]types.WorkflowRun, 0, len(runs))
	for _, run := range runs {
		if run.RunStartedAt.Before(cutoff) {
			continue
		}
		recent = append(recent, run)
	}

	return &types.RunHistory{
		Owner: owner,
		Repo:  repo,
		Runs:  recent,
		Tests: a.fetchTestOutcomes(ctx, owner, repo, recent),
	}, nil
}

func (a *Angel) fetchTestOutcomes(ctx context.Context, owner, repo string, runs []types.WorkflowRun) []types.TestOutcome {
	seen := make(map[string]struct{})
	var outcomes []types.TestOutcome
	for _, run := range runs {
		if run.HeadSHA == "" {
			continue
		}
		if _, ok := seen[run.HeadSHA]; ok {
			continue
		}
		if len(seen) >= a.cfg.MaxCheckSHAs {
			break
		}
		seen[run.HeadSHA] = struct{}{}

		checks, err := a.github.ListCheckRuns(ctx, owner, repo, run.HeadSHA)
		if err != nil {
			a.log.Warn("listing check runs",
				"owner", owner, "repo", repo, "sha", run.HeadSHA, "error", err)
			continue
		}
		for _, check := range checks {
			if outcome, ok := checkOutcome(check); ok {
				outcomes = append(outcomes, outcome)
			}
		}
	}
	return outcomes
}

// checkOutcome projects a completed check run onto a pass/fail test
// observation. Skipped, neutral, and still-running checks are not
// outcomes and would poison the flakiness statistics.
func checkOutcome(check github.CheckRun) (types.TestOutcome, bool) {
	outcome := types.TestOutcome{Name: check.Name, RecordedAt: check.CompletedAt}
	switch {
	case check.Conclusion == types.ConclusionSuccess:
		outcome.Passed = true
		return outcome, true
	case check.Conclusion.IsFailure():
		return outcome, true
	default:
		return types.TestOutcome{}, false
	}
}

// intervene runs the intervention pass: signals at or above severity 0.5,
// first claiming intervention per signal, at most one execution per
// signal per checkup.
func (a *Angel) intervene(ctx context.Context, health *types.RepositoryHealth) {
	for _, signal := range health.Signals {
		if signal.Severity < 0.5 {
			continue
		}
		for _, iv := range a.interventions {
			if !iv.CanAddress(signal) {
				continue
			}
			a.executeIntervention(ctx, iv, signal, health)
			break
		}
	}
}

func (a *Angel) executeIntervention(ctx context.Context, iv intervene.Intervention, signal types.HealthSignal, health *types.RepositoryHealth) {
	key := signal.Key()
	recent, err := a.store.HasRecentIntervention(ctx, health.Owner, health.Repo, key, a.cfg.InterventionWindowDuration)
	if err != nil {
		// Without the ledger we cannot rule out a repeat PR, so skip.
		a.log.Warn("reading intervention ledger, skipping signal",
			"signal", key, "error", err)
		return
	}
	if recent {
		a.log.Info("signal addressed recently, skipping", "signal", key)
		return
	}

	a.log.Info("executing intervention", "intervention", iv.Name(), "signal", key)
	result, err := iv.Execute(ctx, signal, health, a.github, a.notifier)
	if err != nil {
		a.log.Warn("intervention failed",
			"intervention", iv.Name(), "signal", key, "error", err)
		return
	}

	// Failures are recorded too, for the audit trail; the dedup window
	// only honors successes so the next checkup can retry.
	if err := a.store.RecordIntervention(ctx, health.Owner, health.Repo, result); err != nil {
		a.log.Warn("recording intervention",
			"intervention", iv.Name(), "signal", key, "error", err)
	}

	severity := events.SeverityInfo
	message := fmt.Sprintf("%s addressed %s", result.Intervention, key)
	if !result.Success {
		severity = events.SeverityWarning
		message = fmt.Sprintf("%s could not address %s: %s", result.Intervention, key, result.Error)
	}
	event, eventErr := events.NewInterventionEvent(health.Owner, health.Repo, severity, message,
		events.InterventionData{
			Intervention: result.Intervention,
			SignalKey:    result.SignalKey,
			Success:      result.Success,
			URL:          result.URL,
		})
	a.publish(ctx, event, eventErr)
}

func (a *Angel) publishCheckup(ctx context.Context, health *types.RepositoryHealth) {
	severity := events.SeverityInfo
	if !health.Healthy {
		severity = events.SeverityWarning
	}
	event, err := events.NewCheckupEvent(health.Owner, health.Repo, severity,
		fmt.Sprintf("checkup scored %.1f with %d signals", health.Score, len(health.Signals)),
		events.CheckupData{
			Score:         health.Score,
			Healthy:       health.Healthy,
			SignalCount:   len(health.Signals),
			ProphecyCount: len(health.Prophecies),
		})
	a.publish(ctx, event, err)
}

// publish is best effort: a lost audit event must not fail a checkup
// whose interventions already ran.
func (a *Angel) publish(ctx context.Context, event *events.GuardianEvent, err error) {
	if err != nil {
		a.log.Warn("building guardian event", "error", err)
		return
	}
	if err := a.bus.Publish(ctx, event); err != nil {
		a.log.Warn("publishing guardian event", "type", string(event.Type), "error", err)
	}
}
