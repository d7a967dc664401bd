// Package remedy holds the pluggable fix strategies the triage pipeline
// tries after filing a tracking issue. Strategies are an ordered,
// explicitly registered list: the first fix meeting the confidence gate
// wins and nothing after it runs. Only mechanical, verifiable failure
// classes may report gate-passing confidence; semantic fixes stay below
// the gate and route to human review.
package remedy

import (
	"context"
	"log/slog"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/ml"
	"github.com/redinc23/hathor-red/internal/types"
)

// DefaultThreshold is the autofix confidence gate. Fixes below it are
// logged and dropped, never applied.
const DefaultThreshold = 0.9

// Strategy is one way of turning a failed run into a proposed fix.
type Strategy interface {
	// Name identifies the strategy in results and logs.
	Name() string

	// CanRemediate reports whether this strategy understands the failure.
	// It must be cheap: no network calls, just log inspection.
	CanRemediate(run *types.WorkflowRun, logs string) bool

	// GenerateFix proposes a fix. Nil without error means the strategy
	// looked closer and declined.
	GenerateFix(ctx context.Context, run *types.WorkflowRun, logs string, gh github.Port) (*types.RemediationResult, error)
}

// Defaults returns the production strategies in registration order. The
// LLM strategy joins only when a completion backend exists.
func Defaults(completer ml.Completer) []Strategy {
	strategies := []Strategy{NewFormat()}
	if completer != nil {
		strategies = append(strategies, NewLLM(completer))
	}
	return strategies
}

// Registry tries strategies in registration order against one failure.
type Registry struct {
	strategies []Strategy
	threshold  float64
	log        *slog.Logger
}

// NewRegistry builds the ordered registry. A non-positive threshold gets
// the default gate.
func NewRegistry(threshold float64, logger *slog.Logger, strategies ...Strategy) *Registry {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{strategies: strategies, threshold: threshold, log: logger}
}

// Attempt returns the first fix meeting the gate, or nil when no strategy
// produces one. Declines and strategy errors skip to the next strategy:
// remediation is advisory and never blocks the pipeline. A sub-gate fix
// is logged for human review and skipped.
func (r *Registry) Attempt(ctx context.Context, run *types.WorkflowRun, logs string, gh github.Port) *types.RemediationResult {
	for _, strategy := range r.strategies {
		if !strategy.CanRemediate(run, logs) {
			continue
		}

		fix, err := strategy.GenerateFix(ctx, run, logs, gh)
		if err != nil {
			r.log.Warn("remediation strategy failed",
				"strategy", strategy.Name(),
				"run", run.ID.String(),
				"error", err)
			continue
		}
		if fix == nil {
			continue
		}
		if fix.Confidence < r.threshold {
			r.log.Info("fix below confidence gate, routing to human review",
				"strategy", strategy.Name(),
				"run", run.ID.String(),
				"confidence", fix.Confidence,
				"threshold", r.threshold)
			continue
		}

		r.log.Info("generated fix",
			"strategy", strategy.Name(),
			"run", run.ID.String(),
			"confidence", fix.Confidence)
		return fix
	}
	return nil
}
