package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthSignalValidate(t *testing.T) {
	valid := HealthSignal{
		Dimension:   DimensionFlakiness,
		Severity:    0.6,
		Confidence:  0.8,
		Description: "test flaps",
		DetectedAt:  time.Now(),
	}

	tests := []struct {
		name    string
		mutate  func(*HealthSignal)
		wantErr string
	}{
		{"valid", func(s *HealthSignal) {}, ""},
		{"bad dimension", func(s *HealthSignal) { s.Dimension = "vibes" }, "invalid dimension"},
		{"severity too high", func(s *HealthSignal) { s.Severity = 1.5 }, "severity must be between"},
		{"severity negative", func(s *HealthSignal) { s.Severity = -0.1 }, "severity must be between"},
		{"confidence too high", func(s *HealthSignal) { s.Confidence = 2 }, "confidence must be between"},
		{"missing description", func(s *HealthSignal) { s.Description = "" }, "description is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := valid
			tt.mutate(&sig)
			err := sig.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestHealthSignalKey(t *testing.T) {
	sig := HealthSignal{
		Dimension:     DimensionFlakiness,
		AffectedPaths: []string{"tests/checkout_test.go", "tests/login_test.go"},
	}
	assert.Equal(t, "flakiness:tests/checkout_test.go", sig.Key())

	bare := HealthSignal{Dimension: DimensionDuration}
	assert.Equal(t, "duration_regression:", bare.Key())
}

func TestHealthSignalIsCritical(t *testing.T) {
	tests := []struct {
		name       string
		severity   float64
		confidence float64
		want       bool
	}{
		{"both above threshold", 0.9, 0.8, true},
		{"severity at boundary", 0.8, 0.9, false},
		{"confidence at boundary", 0.9, 0.7, false},
		{"both low", 0.4, 0.4, false},
		{"just above", 0.81, 0.71, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := HealthSignal{Severity: tt.severity, Confidence: tt.confidence}
			assert.Equal(t, tt.want, sig.IsCritical())
		})
	}
}

func TestRepositoryHealthSignalsForDimension(t *testing.T) {
	health := RepositoryHealth{
		Signals: []HealthSignal{
			{Dimension: DimensionFlakiness, Description: "a"},
			{Dimension: DimensionKnowledge, Description: "b"},
			{Dimension: DimensionFlakiness, Description: "c"},
		},
	}

	flaky := health.SignalsForDimension(DimensionFlakiness)
	require.Len(t, flaky, 2)
	assert.Equal(t, "a", flaky[0].Description)
	assert.Equal(t, "c", flaky[1].Description)

	assert.Empty(t, health.SignalsForDimension(DimensionDependency))
}
