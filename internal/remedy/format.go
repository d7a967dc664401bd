package remedy

import (
	"context"
	"errors"
	"fmt"
	"go/format"
	"strings"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/types"
)

const formatConfidence = 0.95

// Format fixes gofmt failures, the one failure class where the fix is
// mechanical and verifiable: refetch the flagged files, reformat them,
// and propose the diff.
type Format struct{}

var _ Strategy = (*Format)(nil)

// NewFormat returns the formatting strategy.
func NewFormat() *Format { return &Format{} }

func (s *Format) Name() string { return "format" }

// CanRemediate claims any log that mentions gofmt. Claiming loosely is
// safe: GenerateFix declines when no file actually needs reformatting.
func (s *Format) CanRemediate(_ *types.WorkflowRun, logs string) bool {
	return strings.Contains(logs, "gofmt")
}

// GenerateFix reformats every flagged file that still exists at the run's
// commit. Files that no longer parse are skipped: formatting cannot fix a
// syntax error.
func (s *Format) GenerateFix(ctx context.Context, run *types.WorkflowRun, logs string, gh github.Port) (*types.RemediationResult, error) {
	paths := goFilesIn(logs)
	if len(paths) == 0 {
		return nil, nil
	}

	var patches []types.FilePatch
	for _, path := range paths {
		original, err := gh.GetFileContent(ctx, run.ID.Owner, run.ID.Repo, path, run.HeadSHA)
		if errors.Is(err, github.ErrFileNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", path, err)
		}

		formatted, err := format.Source([]byte(original))
		if err != nil {
			continue
		}
		if string(formatted) == original {
			continue
		}

		before := original
		patches = append(patches, types.FilePatch{
			Path:            path,
			Content:         string(formatted),
			OriginalContent: &before,
		})
	}
	if len(patches) == 0 {
		return nil, nil
	}

	sha := run.HeadSHA
	if len(sha) > 8 {
		sha = sha[:8]
	}
	return &types.RemediationResult{
		Strategy:    s.Name(),
		Description: "style: gofmt affected files",
		Patches:     patches,
		BranchName:  "hathor/format-" + sha,
		Confidence:  formatConfidence,
	}, nil
}

// goFilesIn extracts the .go paths a formatting gate printed, either as
// bare gofmt -l lines or as file:line diagnostics.
func goFilesIn(logs string) []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, line := range strings.Split(logs, "\n") {
		line = strings.TrimSpace(stripLogTimestamp(line))
		if idx := strings.IndexByte(line, ':'); idx > 0 {
			line = line[:idx]
		}
		if !strings.HasSuffix(line, ".go") || strings.ContainsAny(line, " \t") {
			continue
		}
		line = strings.TrimPrefix(line, "./")
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		paths = append(paths, line)
	}
	return paths
}

// stripLogTimestamp removes the ISO timestamp prefix Actions log lines
// carry.
func stripLogTimestamp(line string) string {
	idx := strings.IndexByte(line, ' ')
	if idx <= 0 {
		return line
	}
	prefix := line[:idx]
	if strings.HasSuffix(prefix, "Z") && strings.ContainsRune(prefix, 'T') {
		return line[idx+1:]
	}
	return line
}
