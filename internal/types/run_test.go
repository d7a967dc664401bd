package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintHashDeterministic(t *testing.T) {
	tests := []struct {
		name string
		fp   FailureFingerprint
		want string
	}{
		{
			name: "plain push failure",
			fp:   FailureFingerprint{Workflow: "CI", Conclusion: ConclusionFailure, Event: "push"},
			want: "084ebbe57a9238c4",
		},
		{
			name: "lint workflow",
			fp:   FailureFingerprint{Workflow: "lint", Conclusion: ConclusionFailure, Event: "push"},
			want: "8edff5e5f4d00106",
		},
		{
			name: "matrix key participates",
			fp:   FailureFingerprint{Workflow: "lint", Conclusion: ConclusionFailure, Event: "push", MatrixKey: "os=linux"},
			want: "4c5921e77417a497",
		},
		{
			name: "timed out",
			fp:   FailureFingerprint{Workflow: "CI", Conclusion: ConclusionTimedOut, Event: "push"},
			want: "545445e3ef758753",
		},
		{
			name: "pull request event",
			fp:   FailureFingerprint{Workflow: "CI", Conclusion: ConclusionFailure, Event: "pull_request"},
			want: "bb1a5b7bffd1cc68",
		},
		{
			name: "cancelled scheduled deploy",
			fp:   FailureFingerprint{Workflow: "deploy", Conclusion: ConclusionCancelled, Event: "schedule"},
			want: "673724fd3245dc30",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fp.Hash()
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 16)
			// Hashing the same value again must not drift.
			assert.Equal(t, got, tt.fp.Hash())
		})
	}
}

func TestFingerprintHashFieldSensitivity(t *testing.T) {
	base := FailureFingerprint{Workflow: "CI", Conclusion: ConclusionFailure, Event: "push"}

	variants := map[string]FailureFingerprint{
		"workflow":   {Workflow: "CI2", Conclusion: ConclusionFailure, Event: "push"},
		"conclusion": {Workflow: "CI", Conclusion: ConclusionTimedOut, Event: "push"},
		"event":      {Workflow: "CI", Conclusion: ConclusionFailure, Event: "schedule"},
		"matrix key": {Workflow: "CI", Conclusion: ConclusionFailure, Event: "push", MatrixKey: "go=1.25"},
	}

	for field, variant := range variants {
		t.Run(field, func(t *testing.T) {
			assert.NotEqual(t, base.Hash(), variant.Hash(), "changing %s must change the hash", field)
		})
	}
}

func TestConclusionIsFailure(t *testing.T) {
	tests := []struct {
		conclusion Conclusion
		want       bool
	}{
		{ConclusionFailure, true},
		{ConclusionTimedOut, true},
		{ConclusionCancelled, true},
		{ConclusionSuccess, false},
		{ConclusionSkipped, false},
		{ConclusionNeutral, false},
		{ConclusionActionRequired, false},
		{ConclusionStale, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.conclusion), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.conclusion.IsFailure())
		})
	}
}

func TestRunIDOperationID(t *testing.T) {
	id := RunID{Owner: "acme", Repo: "widgets", ID: 42}
	assert.Equal(t, "acme/widgets/42", id.String())
	assert.Equal(t, "run:acme/widgets/42", id.OperationID())
}

func TestRunIDValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      RunID
		wantErr string
	}{
		{"valid", RunID{Owner: "acme", Repo: "widgets", ID: 1}, ""},
		{"missing owner", RunID{Repo: "widgets", ID: 1}, "owner is required"},
		{"missing repo", RunID{Owner: "acme", ID: 1}, "repo is required"},
		{"non-positive id", RunID{Owner: "acme", Repo: "widgets", ID: 0}, "run id must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWorkflowRunFingerprint(t *testing.T) {
	run := WorkflowRun{
		ID:         RunID{Owner: "acme", Repo: "widgets", ID: 7},
		Name:       "CI",
		Conclusion: ConclusionFailure,
		Event:      "push",
		HeadBranch: "main",
	}

	fp := run.Fingerprint()
	assert.Equal(t, "CI", fp.Workflow)
	assert.Equal(t, ConclusionFailure, fp.Conclusion)
	assert.Equal(t, "push", fp.Event)
	assert.Empty(t, fp.MatrixKey)

	// Two runs failing the same way share a fingerprint regardless of run id.
	other := run
	other.ID.ID = 8
	other.HeadSHA = "deadbeef"
	assert.Equal(t, fp.Hash(), other.Fingerprint().Hash())
}

func TestWorkflowRunDuration(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	run := WorkflowRun{RunStartedAt: start, UpdatedAt: start.Add(5 * time.Minute)}
	assert.Equal(t, 5*time.Minute, run.Duration())

	missing := WorkflowRun{UpdatedAt: start}
	assert.Zero(t, missing.Duration())

	inverted := WorkflowRun{RunStartedAt: start, UpdatedAt: start.Add(-time.Minute)}
	assert.Zero(t, inverted.Duration())
}

func TestRunHistoryDurations(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	mkRun := func(daysAgo int, dur time.Duration) WorkflowRun {
		start := now.AddDate(0, 0, -daysAgo)
		return WorkflowRun{RunStartedAt: start, UpdatedAt: start.Add(dur)}
	}

	history := RunHistory{
		Owner: "acme",
		Repo:  "widgets",
		Runs: []WorkflowRun{
			mkRun(1, 10*time.Minute),
			mkRun(45, 2*time.Minute), // outside the 30 day window
			mkRun(3, 8*time.Minute),
			mkRun(2, 0), // no usable timestamps
		},
	}

	durations := history.Durations(30*24*time.Hour, now)
	require.Len(t, durations, 2)
	// Oldest first.
	assert.Equal(t, 8*time.Minute, durations[0])
	assert.Equal(t, 10*time.Minute, durations[1])
}

func TestRunHistoryTestResults(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	history := RunHistory{
		Tests: []TestOutcome{
			{Name: "TestCheckout", Passed: false, RecordedAt: now},
			{Name: "TestCheckout", Passed: true, RecordedAt: now.Add(-time.Hour)},
			{Name: "TestCheckout", Passed: true, RecordedAt: now.AddDate(0, 0, -40)},
			{Name: "TestLogin", Passed: true, RecordedAt: now},
		},
	}

	results := history.TestResults(30*24*time.Hour, now)
	require.Len(t, results, 2)
	// The 40 day old observation falls outside the window.
	require.Len(t, results["TestCheckout"], 2)
	// Oldest observation first.
	assert.True(t, results["TestCheckout"][0].Passed)
	assert.False(t, results["TestCheckout"][1].Passed)
	require.Len(t, results["TestLogin"], 1)
}
