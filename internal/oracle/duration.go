package oracle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/ml"
	"github.com/redinc23/hathor-red/internal/types"
)

// Duration detects CI slowdown. Ten runs in the window are the minimum
// before the oldest and newest five are worth comparing.
type Duration struct {
	now func() time.Time
}

var _ Oracle = (*Duration)(nil)

// NewDuration returns the duration-regression detector.
func NewDuration() *Duration {
	return &Duration{now: time.Now}
}

func (o *Duration) Name() string { return "duration" }

// Divine compares the mean of the five most recent run durations against
// the mean of the five oldest. A regression needs the recent mean to
// exceed the older by more than 20%.
func (o *Duration) Divine(_ context.Context, _, _ string, history *types.RunHistory, _ github.Port) ([]types.HealthSignal, error) {
	now := o.now().UTC()
	durations := history.Durations(Window, now)
	if len(durations) < 10 {
		return nil, nil
	}

	seconds := make([]float64, len(durations))
	for i, d := range durations {
		seconds[i] = d.Seconds()
	}
	older := mean(seconds[:5])
	recent := mean(seconds[len(seconds)-5:])

	if recent <= older*1.2 {
		return nil, nil
	}

	olderAvg := time.Duration(older * float64(time.Second)).Round(time.Second)
	recentAvg := time.Duration(recent * float64(time.Second)).Round(time.Second)

	return []types.HealthSignal{{
		Dimension:  types.DimensionDuration,
		Severity:   math.Min((recent/older-1)*2, 1.0),
		Confidence: 0.9,
		Description: fmt.Sprintf("Average run duration rose from %s to %s",
			olderAvg, recentAvg),
		Evidence: map[string]string{
			"older_avg":  olderAvg.String(),
			"recent_avg": recentAvg.String(),
			"trend":      "increasing",
		},
		SuggestedAction: "Profile slow tests, parallelize, or optimize",
		AffectedPaths:   []string{"*"},
		DetectedAt:      now,
	}}, nil
}

// Prophesy predicts developer-visible slowdown for regressions past half
// severity.
func (o *Duration) Prophesy(_ context.Context, signal types.HealthSignal, _ *types.RunHistory, _ ml.Engine) (*types.Prophecy, error) {
	if signal.Severity <= 0.5 {
		return nil, nil
	}
	return &types.Prophecy{
		Dimension:       signal.Dimension,
		Prediction:      "CI time exceeds developer patience threshold",
		Probability:     0.6,
		HorizonDays:     30,
		PreventionSteps: []string{"Profile and parallelize before duration doubles again"},
	}, nil
}
