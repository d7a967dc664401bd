package remedy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/ml"
	"github.com/redinc23/hathor-red/internal/types"
)

const (
	// llmConfidence sits below every sane autofix gate: a model diagnosis
	// is a lead for a human, not a mergeable fix.
	llmConfidence = 0.5

	llmLogTailBytes = 4000
	llmMaxTokens    = 1024
)

// LLM asks the completion backend to diagnose a failure from the log
// tail. It proposes no patches; the diagnosis rides in the description.
type LLM struct {
	completer ml.Completer
}

var _ Strategy = (*LLM)(nil)

// NewLLM returns the model-backed diagnosis strategy.
func NewLLM(completer ml.Completer) *LLM {
	return &LLM{completer: completer}
}

func (s *LLM) Name() string { return "llm" }

// CanRemediate claims logs that show a failed step with an error message
// worth reading.
func (s *LLM) CanRemediate(_ *types.WorkflowRun, logs string) bool {
	return strings.Contains(logs, "FAILED") && strings.Contains(logs, "Error:")
}

func (s *LLM) GenerateFix(ctx context.Context, run *types.WorkflowRun, logs string, _ github.Port) (*types.RemediationResult, error) {
	if s.completer == nil {
		return nil, nil
	}

	diagnosis, err := s.completer.Complete(ctx, buildDiagnosisPrompt(run, logs), llmMaxTokens)
	if errors.Is(err, ml.ErrNoCompleter) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("diagnosing %s: %w", run.ID, err)
	}

	diagnosis = strings.TrimSpace(diagnosis)
	if diagnosis == "" {
		return nil, nil
	}
	return &types.RemediationResult{
		Strategy:    s.Name(),
		Description: diagnosis,
		Confidence:  llmConfidence,
	}, nil
}

func buildDiagnosisPrompt(run *types.WorkflowRun, logs string) string {
	tail := logs
	if len(tail) > llmLogTailBytes {
		tail = tail[len(tail)-llmLogTailBytes:]
	}

	var b strings.Builder
	b.WriteString("A CI workflow failed. Diagnose the root cause and propose a fix.\n\n")
	fmt.Fprintf(&b, "Workflow: %s\n", run.Name)
	fmt.Fprintf(&b, "Conclusion: %s\n", run.Conclusion)
	fmt.Fprintf(&b, "Branch: %s\n\n", run.HeadBranch)
	b.WriteString("Log tail:\n")
	b.WriteString(tail)
	b.WriteString("\n\nRespond with a short diagnosis followed by concrete fix steps.")
	return b.String()
}
