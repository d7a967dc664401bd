package intervene

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/notify"
	"github.com/redinc23/hathor-red/internal/types"
)

// KnowledgeSharing files a documentation-request issue against the sole
// author of a silo file. The issue is the forcing function; the checklist
// names the artifacts that spread the knowledge.
type KnowledgeSharing struct {
	now func() time.Time
}

var _ Intervention = (*KnowledgeSharing)(nil)

// NewKnowledgeSharing returns the knowledge-transfer intervention.
func NewKnowledgeSharing() *KnowledgeSharing {
	return &KnowledgeSharing{now: time.Now}
}

func (i *KnowledgeSharing) Name() string { return "knowledge_request" }

// CanAddress claims every knowledge-silo signal.
func (i *KnowledgeSharing) CanAddress(signal types.HealthSignal) bool {
	return signal.Dimension == types.DimensionKnowledge
}

func (i *KnowledgeSharing) Execute(ctx context.Context, signal types.HealthSignal, health *types.RepositoryHealth, gh github.Port, _ notify.Notifier) (*types.InterventionResult, error) {
	result := newResult(i.Name(), &signal, i.now().UTC())

	file := signal.Evidence["file"]
	expert := signal.Evidence["sole_author"]
	if file == "" || expert == "" {
		result.Error = "signal evidence is missing file or sole_author"
		return result, nil
	}

	issue, err := gh.CreateIssue(ctx, health.Owner, health.Repo, github.IssueSpec{
		Title:     "Document: " + file,
		Body:      sharingIssueBody(file, expert),
		Labels:    []string{"documentation", "knowledge-sharing", "angel"},
		Assignees: []string{expert},
	})
	if err != nil {
		return nil, fmt.Errorf("opening documentation issue for %s: %w", file, err)
	}

	result.Success = true
	result.URL = issue.HTMLURL
	result.Actions = []string{fmt.Sprintf("opened issue #%d assigned to %s", issue.Number, expert)}
	return result, nil
}

func sharingIssueBody(file, expert string) string {
	var b strings.Builder
	b.WriteString("## Knowledge Silo Detected\n\n")
	fmt.Fprintf(&b, "**File:** `%s`\n", file)
	fmt.Fprintf(&b, "**Primary Author:** @%s\n", expert)
	b.WriteString("**Risk:** Bus factor = 1\n\n")
	b.WriteString("**Required:**\n")
	b.WriteString("- [ ] Architecture decision record (ADR)\n")
	b.WriteString("- [ ] Code comments for complex logic\n")
	b.WriteString("- [ ] Pair programming session recorded/shared\n")
	b.WriteString("- [ ] Secondary reviewer assigned\n\n")
	b.WriteString("*Created by the Hathor guardian angel to prevent knowledge loss.*")
	return b.String()
}
