package ml

import (
	"context"
	"math"
)

// heuristicWeights are hand-tuned logistic weights. Failure rate dominates;
// vulnerable dependencies weigh more than merely stale ones.
var heuristicWeights = map[string]float64{
	FeatureFailureRate:    3.0,
	FeatureDurationTrend:  1.0,
	FeatureFlakyTests:     0.8,
	FeatureStaleDeps:      0.5,
	FeatureVulnerableDeps: 2.0,
}

// heuristicBias sets the base rate: a repo with no adverse features
// predicts at roughly 0.18.
const heuristicBias = -1.5

// Heuristic is a deterministic engine with no external dependencies.
// It is the default provider and the double used throughout the tests.
type Heuristic struct{}

var (
	_ Engine    = (*Heuristic)(nil)
	_ Completer = (*Heuristic)(nil)
)

// NewHeuristic returns a deterministic engine.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// PredictFailureProbability squashes a weighted feature sum through a
// logistic curve. Unknown feature keys have zero weight.
func (h *Heuristic) PredictFailureProbability(_ context.Context, features map[string]float64) (float64, error) {
	score := heuristicBias
	for name, value := range features {
		score += heuristicWeights[name] * value
	}
	return 1 / (1 + math.Exp(-score)), nil
}

// Complete always fails: there is no model behind the heuristic provider.
func (h *Heuristic) Complete(context.Context, string, int) (string, error) {
	return "", ErrNoCompleter
}
