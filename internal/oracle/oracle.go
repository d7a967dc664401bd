// Package oracle implements the pattern detectors behind a checkup. Each
// oracle observes run history or the repository itself and emits health
// signals for one dimension; some also derive a prophecy from a signal
// they emitted. Oracles are pure observers: interventions act, oracles
// only testify.
package oracle

import (
	"context"
	"time"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/ml"
	"github.com/redinc23/hathor-red/internal/types"
)

// Window is the trailing slice of history oracles reason over.
const Window = 30 * 24 * time.Hour

// Oracle detects one class of repository-health pattern.
type Oracle interface {
	// Name identifies the oracle in logs and events.
	Name() string

	// Divine inspects the history and repository and returns every signal
	// it can support with evidence. No signals with no error means healthy
	// along this oracle's dimension.
	Divine(ctx context.Context, owner, repo string, history *types.RunHistory, gh github.Port) ([]types.HealthSignal, error)

	// Prophesy derives a future-failure prediction from one of this
	// oracle's signals. Nil without error means the signal does not
	// support a prediction.
	Prophesy(ctx context.Context, signal types.HealthSignal, history *types.RunHistory, engine ml.Engine) (*types.Prophecy, error)
}

// Defaults returns the production oracles in registration order.
func Defaults() []Oracle {
	return []Oracle{
		NewFlakiness(),
		NewDuration(),
		NewKnowledgeSilo(),
		NewDependency(),
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleVariance uses the n-1 denominator. Fewer than two samples have no
// variance.
func sampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values)-1)
}
