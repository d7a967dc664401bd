package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsRegistrationOrder(t *testing.T) {
	oracles := Defaults()

	names := make([]string, len(oracles))
	for i, o := range oracles {
		names[i] = o.Name()
	}
	assert.Equal(t, []string{"flakiness", "duration", "knowledge_silo", "dependency"}, names)
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
	assert.Equal(t, 2.0, mean([]float64{2}))
	assert.InDelta(t, 2.5, mean([]float64{1, 2, 3, 4}), 1e-9)
}

func TestSampleVariance(t *testing.T) {
	t.Run("fewer than two samples", func(t *testing.T) {
		assert.Equal(t, 0.0, sampleVariance(nil))
		assert.Equal(t, 0.0, sampleVariance([]float64{5}))
	})

	t.Run("constant series", func(t *testing.T) {
		assert.Equal(t, 0.0, sampleVariance([]float64{3, 3, 3}))
	})

	t.Run("uses n-1 denominator", func(t *testing.T) {
		// Sum of squared deviations is 1, over n-1 = 3.
		assert.InDelta(t, 1.0/3.0, sampleVariance([]float64{0, 1, 0, 1}), 1e-9)
	})
}
