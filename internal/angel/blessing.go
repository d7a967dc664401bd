package angel

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redinc23/hathor-red/internal/types"
)

const (
	// oversizedDiffLines is the total changed-line count above which a
	// pull request draws an oversized-diff concern.
	oversizedDiffLines = 500

	// siloLookback is how far back the blessing checks the intervention
	// ledger for knowledge-silo records touching the PR's files.
	siloLookback = 30 * 24 * time.Hour

	riskOversized = 0.4
	riskSilo      = 0.3
	riskUntested  = 0.3
)

// BlessPR assesses a pull request before merge: concerns for oversized
// diffs, changes to silo-owned files, and code changes without test
// changes. A change with no concerns earns a blessing and, below the risk
// threshold, auto-approval.
func (a *Angel) BlessPR(ctx context.Context, owner, repo string, number int) (*types.Blessing, error) {
	files, err := a.github.ListPullFiles(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("listing files for %s/%s#%d: %w", owner, repo, number, err)
	}

	var concerns []types.Concern
	risk := 0.0

	totalLines := 0
	codeChanged := false
	testsChanged := false
	for _, file := range files {
		totalLines += file.Additions + file.Deletions
		switch {
		case strings.HasSuffix(file.Path, "_test.go"):
			testsChanged = true
		case strings.HasSuffix(file.Path, ".go"):
			codeChanged = true
		}
	}

	if totalLines > oversizedDiffLines {
		concerns = append(concerns, types.Concern{
			Kind:       "oversized_diff",
			Message:    fmt.Sprintf("Diff touches %d lines across %d files; large changes hide defects", totalLines, len(files)),
			Severity:   "medium",
			Suggestion: "Split into smaller, independently reviewable changes",
		})
		risk += riskOversized
	}

	for _, file := range files {
		siloed, err := a.store.HasRecentIntervention(ctx, owner, repo,
			string(types.DimensionKnowledge)+":"+file.Path, siloLookback)
		if err != nil {
			a.log.Warn("reading silo ledger for blessing",
				"path", file.Path, "error", err)
			continue
		}
		if siloed {
			concerns = append(concerns, types.Concern{
				Kind:       "silo_touch",
				Message:    fmt.Sprintf("%s is effectively owned by a single author", file.Path),
				Severity:   "high",
				Suggestion: "Request review from someone outside the file's usual author",
			})
			risk += riskSilo
		}
	}

	if codeChanged && !testsChanged {
		concerns = append(concerns, types.Concern{
			Kind:       "untested_change",
			Message:    "Code changed with no accompanying test changes",
			Severity:   "medium",
			Suggestion: "Add or update tests covering the changed behavior",
		})
		risk += riskUntested
	}

	risk = math.Min(risk, 1)

	var praises []types.Praise
	if len(concerns) == 0 {
		praises = append(praises, types.Praise{
			Kind:    "clean_change",
			Message: "Clean, well-tested change. Thank you for maintaining quality.",
		})
	}

	return &types.Blessing{
		Owner:        owner,
		Repo:         repo,
		Number:       number,
		Risk:         risk,
		Concerns:     concerns,
		Praises:      praises,
		AutoApproved: risk < 0.2 && len(concerns) == 0,
		BlessedAt:    a.now(),
	}, nil
}
