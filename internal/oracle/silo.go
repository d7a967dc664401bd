package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/ml"
	"github.com/redinc23/hathor-red/internal/types"
)

const (
	// siloCommitWindow is how many trailing commits define sole authorship.
	siloCommitWindow = 20

	// maxAuditedFiles caps the per-checkup file sweep.
	maxAuditedFiles = 50
)

// KnowledgeSilo detects bus-factor-of-one files: code whose entire recent
// commit history belongs to a single author.
type KnowledgeSilo struct {
	now func() time.Time
}

var _ Oracle = (*KnowledgeSilo)(nil)

// NewKnowledgeSilo returns the bus-factor detector.
func NewKnowledgeSilo() *KnowledgeSilo {
	return &KnowledgeSilo{now: time.Now}
}

func (o *KnowledgeSilo) Name() string { return "knowledge_silo" }

// Divine emits a fixed severity-0.6, confidence-0.8 signal per sole-author
// file. The severity is fixed because a silo is a standing structural risk,
// not a graded one.
func (o *KnowledgeSilo) Divine(ctx context.Context, owner, repo string, _ *types.RunHistory, gh github.Port) ([]types.HealthSignal, error) {
	now := o.now().UTC()

	files, err := gh.ListCodeFiles(ctx, owner, repo, "", maxAuditedFiles)
	if err != nil {
		return nil, fmt.Errorf("listing code files: %w", err)
	}

	var signals []types.HealthSignal
	for _, path := range files {
		commits, err := gh.ListFileCommits(ctx, owner, repo, path, siloCommitWindow)
		if err != nil {
			return signals, fmt.Errorf("listing commits for %s: %w", path, err)
		}
		if len(commits) == 0 {
			continue
		}

		authors := make(map[string]struct{}, len(commits))
		for _, commit := range commits {
			authors[commit.Author] = struct{}{}
		}
		if len(authors) != 1 {
			continue
		}
		soleAuthor := commits[0].Author
		if soleAuthor == "" {
			continue
		}

		evidence := map[string]string{
			"file":        path,
			"sole_author": soleAuthor,
		}
		if touch := lastOthersTouch(commits); touch != "" {
			evidence["last_others_touch"] = touch
		}

		signals = append(signals, types.HealthSignal{
			Dimension:  types.DimensionKnowledge,
			Severity:   0.6,
			Confidence: 0.8,
			Description: fmt.Sprintf("Only %s has touched %s in the last %d commits",
				soleAuthor, path, len(commits)),
			Evidence:        evidence,
			SuggestedAction: "Pair program or document architecture",
			AffectedPaths:   []string{path},
			DetectedAt:      now,
		})
	}
	return signals, nil
}

// Prophesy never predicts: silos grow silently, with no time-bounded
// failure to foretell.
func (o *KnowledgeSilo) Prophesy(context.Context, types.HealthSignal, *types.RunHistory, ml.Engine) (*types.Prophecy, error) {
	return nil, nil
}

// lastOthersTouch returns the timestamp of the most recent commit not by
// the sole author, empty when every commit in the window is theirs.
func lastOthersTouch(commits []types.CommitInfo) string {
	if len(commits) == 0 {
		return ""
	}
	soleAuthor := commits[0].Author
	for _, commit := range commits {
		if commit.Author != soleAuthor {
			return commit.CommittedAt.UTC().Format(time.RFC3339)
		}
	}
	return ""
}
