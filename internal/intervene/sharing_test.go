package intervene

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/notify"
	"github.com/redinc23/hathor-red/internal/types"
)

func siloSignal() types.HealthSignal {
	return types.HealthSignal{
		Dimension:  types.DimensionKnowledge,
		Severity:   0.6,
		Confidence: 0.8,
		Evidence: map[string]string{
			"file":        "internal/auth/token.go",
			"sole_author": "rivera",
		},
		AffectedPaths: []string{"internal/auth/token.go"},
		DetectedAt:    interventionTime,
	}
}

func newTestSharing() *KnowledgeSharing {
	i := NewKnowledgeSharing()
	i.now = func() time.Time { return interventionTime }
	return i
}

func TestSharingClaimsAnySiloSignal(t *testing.T) {
	i := newTestSharing()

	signal := siloSignal()
	signal.Severity = 0.1
	assert.True(t, i.CanAddress(signal))
	assert.False(t, i.CanAddress(flakySignal(0.9)))
}

func TestSharingExecute(t *testing.T) {
	fake := github.NewFake()

	result, err := newTestSharing().Execute(context.Background(), siloSignal(), testHealth(), fake, &notify.Memory{})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Success)
	assert.Equal(t, "knowledge_request", result.Intervention)
	assert.Equal(t, "knowledge_silo:internal/auth/token.go", result.SignalKey)
	assert.Equal(t, "https://github.com/acme/widgets/issues/1", result.URL)
	assert.Equal(t, []string{"opened issue #1 assigned to rivera"}, result.Actions)
	assert.Equal(t, interventionTime, result.ExecutedAt)

	issue := fake.OpenIssue(1)
	require.NotNil(t, issue)
	assert.Equal(t, "Document: internal/auth/token.go", issue.Title)
	assert.Equal(t, []string{"documentation", "knowledge-sharing", "angel"}, issue.Labels)
	assert.Equal(t, []string{"rivera"}, issue.Assignees)
	assert.Contains(t, issue.Body, "## Knowledge Silo Detected")
	assert.Contains(t, issue.Body, "**File:** `internal/auth/token.go`")
	assert.Contains(t, issue.Body, "**Primary Author:** @rivera")
	assert.Contains(t, issue.Body, "**Risk:** Bus factor = 1")
	assert.Contains(t, issue.Body, "- [ ] Architecture decision record (ADR)")
	assert.Contains(t, issue.Body, "- [ ] Secondary reviewer assigned")
}

func TestSharingMissingEvidence(t *testing.T) {
	fake := github.NewFake()
	signal := siloSignal()
	delete(signal.Evidence, "sole_author")

	result, err := newTestSharing().Execute(context.Background(), signal, testHealth(), fake, &notify.Memory{})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "signal evidence is missing file or sole_author", result.Error)
	assert.Empty(t, fake.Issues)
}

func TestSharingIssueErrorAborts(t *testing.T) {
	fake := github.NewFake()
	fake.Err = assert.AnError

	_, err := newTestSharing().Execute(context.Background(), siloSignal(), testHealth(), fake, &notify.Memory{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening documentation issue for internal/auth/token.go")
}

func TestDefaultsRegistrationOrder(t *testing.T) {
	interventions := Defaults()

	names := make([]string, len(interventions))
	for i, iv := range interventions {
		names[i] = iv.Name()
	}
	assert.Equal(t, []string{"quarantine", "knowledge_request"}, names)
}
