package ml

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEngine builds an Anthropic shell with fast backoff and no SDK
// client. retryWithBackoff never touches the client, the closure does.
func testEngine(circuit *CircuitBreaker) *Anthropic {
	return &Anthropic{
		retry: RetryConfig{
			MaxRetries:        2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        4 * time.Millisecond,
			BackoffMultiplier: 2.0,
			Timeout:           time.Second,
		},
		circuit: circuit,
		log:     quietLogger(),
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	engine := testEngine(nil)

	calls := 0
	err := engine.retryWithBackoff(context.Background(), "test-op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "two transient failures then success")
}

func TestRetryStopsOnNonRetriableError(t *testing.T) {
	engine := testEngine(nil)

	calls := 0
	err := engine.retryWithBackoff(context.Background(), "test-op", func(context.Context) error {
		calls++
		return errors.New("401 unauthorized")
	})

	assert.EqualError(t, err, "401 unauthorized")
	assert.Equal(t, 1, calls, "auth failures must not retry")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	engine := testEngine(nil)

	calls := 0
	err := engine.retryWithBackoff(context.Background(), "test-op", func(context.Context) error {
		calls++
		return errors.New("502 bad gateway")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "test-op failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestRetryFailsFastWhenCircuitOpen(t *testing.T) {
	circuit := NewCircuitBreaker(1, 1, time.Minute, quietLogger())
	circuit.RecordFailure()
	require.Equal(t, CircuitOpen, circuit.GetState())

	engine := testEngine(circuit)

	calls := 0
	err := engine.retryWithBackoff(context.Background(), "test-op", func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls, "open circuit must block the call entirely")
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	engine := testEngine(nil)
	engine.retry.InitialBackoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- engine.retryWithBackoff(ctx, "test-op", func(context.Context) error {
			calls++
			return errors.New("503 service unavailable")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "context canceled")
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, time.Minute, quietLogger())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.GetState(), "below threshold stays closed")
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, time.Minute, quietLogger())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	_, failures, _ := cb.GetMetrics()
	assert.Zero(t, failures)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.GetState(), "counter restarted after success")
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond, quietLogger())

	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.GetState())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Allow(), "open timeout elapsed, probe allowed")
	assert.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.GetState(), "one probe success is not enough")
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 1, 10*time.Millisecond, quietLogger())

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())
	require.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState(), "any half-open failure reopens")
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", CircuitClosed.String())
	assert.Equal(t, "OPEN", CircuitOpen.String())
	assert.Equal(t, "HALF_OPEN", CircuitHalfOpen.String())
	assert.Equal(t, "UNKNOWN", CircuitState(99).String())
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"nil error", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"rate limited", errors.New("HTTP 429: rate limit exceeded"), true},
		{"server error", errors.New("500 internal server error"), true},
		{"bad gateway", errors.New("502 bad gateway"), true},
		{"service unavailable", errors.New("service unavailable"), true},
		{"gateway timeout", errors.New("504 gateway timeout"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"network flake", errors.New("network is unreachable"), true},
		{"bad request", errors.New("HTTP 400: bad request"), false},
		{"unauthorized", errors.New("401 unauthorized"), false},
		{"forbidden", errors.New("403 forbidden"), false},
		{"not found", errors.New("404 not found"), false},
		{"unknown error", errors.New("mysterious failure"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retriable, isRetriableError(tt.err))
		})
	}
}

func TestParseProbability(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    float64
		wantErr bool
	}{
		{"bare decimal", "0.73", 0.73, false},
		{"padded whitespace", "  0.5\n", 0.5, false},
		{"prose wrapped", "Probability: 0.8", 0.8, false},
		{"above one clamps", "1.7", 1.0, false},
		{"below zero clamps", "-0.2", 0.0, false},
		{"no number", "the model declines to answer", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbability(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestBuildPredictionPromptIsDeterministic(t *testing.T) {
	features := map[string]float64{
		FeatureDurationTrend: 0.3,
		FeatureFailureRate:   0.6,
		FeatureFlakyTests:    2,
	}

	first := buildPredictionPrompt(features)
	second := buildPredictionPrompt(features)
	assert.Equal(t, first, second)

	assert.Contains(t, first, "- duration_trend: 0.3000")
	assert.Contains(t, first, "- failure_rate: 0.6000")
	assert.Contains(t, first, "ONLY a single decimal number")
	assert.Less(t,
		strings.Index(first, "duration_trend"),
		strings.Index(first, "failure_rate"),
		"feature lines are sorted by key")
}
