package angel

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/redinc23/hathor-red/internal/events"
	"github.com/redinc23/hathor-red/internal/types"
)

// TeachFromFailure distills an organizational lesson from a failed run:
// classify the root cause from the logs, deliver the write-up to the team
// channel, and index it so curricula and answers improve. Delivery is
// best effort; indexing is not, since an unindexed lesson teaches nobody
// twice.
func (a *Angel) TeachFromFailure(ctx context.Context, run *types.WorkflowRun, logs string) (*types.Lesson, error) {
	lesson := &types.Lesson{
		ID:              uuid.NewString(),
		Title:           fmt.Sprintf("Learning from %s failure", run.Name),
		RootCause:       classifyRootCause(logs),
		PreventionSteps: []string{"Investigate logs", "Add regression test"},
		RunURL:          run.HTMLURL,
		CreatedAt:       a.now(),
	}

	rendered := lesson.ToMarkdown()
	if err := a.notifier.SendChannel(ctx, "", rendered); err != nil {
		a.log.Warn("delivering lesson", "run", run.ID.String(), "error", err)
	}

	metadata := map[string]string{
		"type":       "lesson",
		"repo":       run.ID.Owner + "/" + run.ID.Repo,
		"root_cause": lesson.RootCause.Category,
		"title":      lesson.Title,
	}
	if err := a.vectors.Upsert(ctx, lesson.ID, rendered, metadata); err != nil {
		return nil, fmt.Errorf("indexing lesson for %s: %w", run.ID, err)
	}

	a.publish(ctx, events.NewLessonEvent(run.ID.Owner, run.ID.Repo, "published lesson: "+lesson.Title), nil)
	return lesson, nil
}

// classifyRootCause matches the logs against known failure patterns. The
// category is the stable label curricula cluster on, so the set here must
// stay aligned with what the teaching engine expects.
func classifyRootCause(logs string) types.RootCause {
	if logs == "" {
		return types.RootCause{
			Category:    "unknown",
			Description: "Root cause analysis pending until logs are available.",
		}
	}

	lower := strings.ToLower(logs)
	switch {
	case strings.Contains(lower, "flaky") || strings.Contains(lower, "intermittent") ||
		strings.Contains(logs, "DATA RACE"):
		return types.RootCause{
			Category:    "flaky_test",
			Description: "Test behavior is nondeterministic across runs.",
		}
	case strings.Contains(lower, "missing go.sum entry") || strings.Contains(lower, "cannot find module") ||
		strings.Contains(lower, "unknown revision") || strings.Contains(lower, "checksum mismatch"):
		return types.RootCause{
			Category:    "dependency",
			Description: "Dependency resolution failed during the build.",
		}
	case strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded"):
		return types.RootCause{
			Category:    "timeout",
			Description: "The run hit a time limit before completing.",
		}
	default:
		return types.RootCause{
			Category:    "unknown",
			Description: "No known failure pattern matched the logs.",
		}
	}
}
