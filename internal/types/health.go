package types

import (
	"fmt"
	"time"
)

// HealthDimension names one axis along which repository health degrades.
type HealthDimension string

const (
	DimensionFlakiness  HealthDimension = "flakiness"
	DimensionDuration   HealthDimension = "duration_regression"
	DimensionCoverage   HealthDimension = "coverage_atrophy"
	DimensionDependency HealthDimension = "dependency_risk"
	DimensionKnowledge  HealthDimension = "knowledge_silo"
)

// IsValid checks if the dimension value is valid
func (d HealthDimension) IsValid() bool {
	switch d {
	case DimensionFlakiness, DimensionDuration, DimensionCoverage,
		DimensionDependency, DimensionKnowledge:
		return true
	}
	return false
}

// HealthSignal is a present-tense, evidenced observation about one health
// dimension. Signals describe what is, not what will be; predictions are
// Prophecies, derived separately from a signal.
type HealthSignal struct {
	Dimension       HealthDimension   `json:"dimension"`
	Severity        float64           `json:"severity"`
	Confidence      float64           `json:"confidence"`
	Description     string            `json:"description"`
	Evidence        map[string]string `json:"evidence,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`
	AffectedPaths   []string          `json:"affected_paths,omitempty"`
	DetectedAt      time.Time         `json:"detected_at"`
}

// Validate checks if the signal has valid field values
func (s *HealthSignal) Validate() error {
	if !s.Dimension.IsValid() {
		return fmt.Errorf("invalid dimension: %s", s.Dimension)
	}
	if s.Severity < 0 || s.Severity > 1 {
		return fmt.Errorf("severity must be between 0 and 1 (got %g)", s.Severity)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1 (got %g)", s.Confidence)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	return nil
}

// Key identifies the signal for cross-checkup intervention deduplication:
// the dimension plus the primary affected path, falling back to the test
// name for signals detected without a resolvable path. Two checkups
// observing the same standing problem produce signals with the same key.
func (s *HealthSignal) Key() string {
	target := ""
	if len(s.AffectedPaths) > 0 {
		target = s.AffectedPaths[0]
	}
	if target == "" {
		target = s.Evidence["test_name"]
	}
	return string(s.Dimension) + ":" + target
}

// IsCritical reports whether the signal alone makes the repository
// unhealthy regardless of the aggregate score.
func (s *HealthSignal) IsCritical() bool {
	return s.Severity > 0.8 && s.Confidence > 0.7
}

// Prophecy is a predicted future failure derived from a health signal.
type Prophecy struct {
	Dimension       HealthDimension `json:"dimension"`
	Prediction      string          `json:"prediction"`
	Probability     float64         `json:"probability"`
	HorizonDays     int             `json:"horizon_days"`
	PreventionSteps []string        `json:"prevention_steps,omitempty"`
	Precedent       string          `json:"precedent,omitempty"`
}

// TrendPoint is one daily severity bucket for a dimension.
type TrendPoint struct {
	Day      time.Time `json:"day"`
	Severity float64   `json:"severity"`
}

// RepositoryHealth is the derived snapshot a checkup produces: all signals
// and prophecies plus the aggregate 0..100 score. It is recomputed on every
// checkup and never treated as the durable record; the state store is.
type RepositoryHealth struct {
	Owner         string                           `json:"owner"`
	Repo          string                           `json:"repo"`
	Score         float64                          `json:"score"`
	Healthy       bool                             `json:"healthy"`
	DefaultBranch string                           `json:"default_branch"`
	Signals       []HealthSignal                   `json:"signals"`
	Prophecies    []Prophecy                       `json:"prophecies"`
	Trends        map[HealthDimension][]TrendPoint `json:"trends,omitempty"`
	CheckedAt     time.Time                        `json:"checked_at"`
}

// SignalsForDimension returns the signals observed along one dimension.
func (h *RepositoryHealth) SignalsForDimension(dim HealthDimension) []HealthSignal {
	var out []HealthSignal
	for _, sig := range h.Signals {
		if sig.Dimension == dim {
			out = append(out, sig)
		}
	}
	return out
}

// InterventionResult records what one automated intervention did for one
// signal. Results are persisted so later checkups can skip signals that
// were addressed recently.
type InterventionResult struct {
	ID           string    `json:"id"`
	Intervention string    `json:"intervention"`
	SignalKey    string    `json:"signal_key"`
	Success      bool      `json:"success"`
	Actions      []string  `json:"actions,omitempty"`
	URL          string    `json:"url,omitempty"`
	Error        string    `json:"error,omitempty"`
	ExecutedAt   time.Time `json:"executed_at"`
}
