// Package ml provides failure-probability scoring and text synthesis for
// the guardian. The anthropic provider calls the Claude API behind a retry
// loop and circuit breaker; the heuristic provider is deterministic and
// needs no network, which also makes it the test double.
package ml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redinc23/hathor-red/internal/config"
)

// Feature keys the engines understand. Callers populate what they know;
// a missing key contributes nothing to the score.
const (
	FeatureFailureRate    = "failure_rate"
	FeatureDurationTrend  = "duration_trend"
	FeatureFlakyTests     = "flaky_tests"
	FeatureStaleDeps      = "stale_dependencies"
	FeatureVulnerableDeps = "vulnerable_dependencies"
)

// ErrNoCompleter reports that the configured provider cannot synthesize
// text. Callers fall back to template output.
var ErrNoCompleter = errors.New("ml provider has no completion support")

// Engine scores the likelihood of a future workflow failure from numeric
// features describing recent run history.
type Engine interface {
	// PredictFailureProbability returns a probability in [0, 1].
	PredictFailureProbability(ctx context.Context, features map[string]float64) (float64, error)
}

// Completer produces free-form text from a prompt. The model-backed
// remediation strategy and the teaching engine use it for synthesis.
type Completer interface {
	// Complete returns the model's text for the prompt. maxTokens caps the
	// response length; zero or negative means the provider default.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// New builds the provider named by cfg. The returned Engine and Completer
// are the same underlying client.
func New(cfg *config.MLConfig, logger *slog.Logger) (Engine, Completer, error) {
	switch cfg.Provider {
	case "anthropic":
		a, err := NewAnthropic(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return a, a, nil
	case "heuristic", "":
		h := NewHeuristic()
		return h, h, nil
	default:
		return nil, nil, fmt.Errorf("unknown ml provider: %q", cfg.Provider)
	}
}
