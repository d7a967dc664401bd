package oracle

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/ml"
	"github.com/redinc23/hathor-red/internal/types"
)

// Flakiness detects non-deterministic tests before they erode trust in
// the suite. A test needs at least five recorded outcomes in the window
// before any judgment.
type Flakiness struct {
	now func() time.Time
}

var _ Oracle = (*Flakiness)(nil)

// NewFlakiness returns the flakiness detector.
func NewFlakiness() *Flakiness {
	return &Flakiness{now: time.Now}
}

func (o *Flakiness) Name() string { return "flakiness" }

// Divine flags a test when its success rate sits strictly between 0.1 and
// 0.9, or its outcome variance exceeds 0.1. Severity peaks at a 50% rate:
// a coin-flip test is maximally flaky, one failing almost always is just
// broken.
func (o *Flakiness) Divine(_ context.Context, _, _ string, history *types.RunHistory, _ github.Port) ([]types.HealthSignal, error) {
	now := o.now().UTC()
	results := history.TestResults(Window, now)

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var signals []types.HealthSignal
	for _, name := range names {
		outcomes := results[name]
		if len(outcomes) < 5 {
			continue
		}

		passes := 0
		samples := make([]float64, len(outcomes))
		for i, outcome := range outcomes {
			if outcome.Passed {
				passes++
				samples[i] = 1
			}
		}
		rate := float64(passes) / float64(len(outcomes))
		variance := sampleVariance(samples)

		if !(rate > 0.1 && rate < 0.9) && variance <= 0.1 {
			continue
		}

		recentFailures := 0
		recent := outcomes
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}
		for _, outcome := range recent {
			if !outcome.Passed {
				recentFailures++
			}
		}

		signal := types.HealthSignal{
			Dimension:  types.DimensionFlakiness,
			Severity:   1 - math.Abs(rate-0.5)*2,
			Confidence: math.Min(float64(len(outcomes))/20, 1.0),
			Description: fmt.Sprintf("Test %s passed %d of %d recent runs",
				name, passes, len(outcomes)),
			Evidence: map[string]string{
				"test_name":       name,
				"success_rate":    strconv.FormatFloat(rate, 'f', 4, 64),
				"samples":         strconv.Itoa(len(outcomes)),
				"recent_failures": strconv.Itoa(recentFailures),
			},
			SuggestedAction: "Quarantine or fix test",
			DetectedAt:      now,
		}
		if outcomes[0].FilePath != "" {
			signal.AffectedPaths = []string{outcomes[0].FilePath}
		}
		signals = append(signals, signal)
	}
	return signals, nil
}

// Prophesy predicts a masked regression for severely flaky tests. The
// precedent is the incident that motivated quarantine-by-default.
func (o *Flakiness) Prophesy(_ context.Context, signal types.HealthSignal, _ *types.RunHistory, _ ml.Engine) (*types.Prophecy, error) {
	if signal.Severity <= 0.7 {
		return nil, nil
	}
	return &types.Prophecy{
		Dimension:       signal.Dimension,
		Prediction:      "Flaky test masks real regression",
		Probability:     0.8,
		HorizonDays:     7,
		PreventionSteps: []string{"Quarantine immediately, require fix before next release"},
		Precedent:       "Similar pattern caused outage on 2024-01-15",
	}, nil
}
