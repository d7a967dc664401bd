package intervene

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/notify"
	"github.com/redinc23/hathor-red/internal/types"
)

const quarantineChannel = "#ci-alerts"

// FlakyQuarantine opens a PR that marks a severely flaky test skipped.
// The test stops gating CI the moment the PR merges, and the PR itself
// is the tracking artifact for the fix.
type FlakyQuarantine struct {
	now func() time.Time
}

var _ Intervention = (*FlakyQuarantine)(nil)

// NewFlakyQuarantine returns the quarantine intervention.
func NewFlakyQuarantine() *FlakyQuarantine {
	return &FlakyQuarantine{now: time.Now}
}

func (i *FlakyQuarantine) Name() string { return "quarantine" }

// CanAddress claims flakiness signals past severity 0.7. Milder flakiness
// stays a signal: quarantining a mostly-green test costs more than it
// saves.
func (i *FlakyQuarantine) CanAddress(signal types.HealthSignal) bool {
	return signal.Dimension == types.DimensionFlakiness && signal.Severity > 0.7
}

// Execute commits a skip marker for the test onto a deterministic branch
// and opens a PR against the default branch. A missing source path is a
// precondition failure, not an error: the signal stays retryable once the
// path resolves.
func (i *FlakyQuarantine) Execute(ctx context.Context, signal types.HealthSignal, health *types.RepositoryHealth, gh github.Port, notifier notify.Notifier) (*types.InterventionResult, error) {
	result := newResult(i.Name(), &signal, i.now().UTC())

	testName := signal.Evidence["test_name"]
	if testName == "" {
		result.Error = "no test name in evidence"
		return result, nil
	}
	if len(signal.AffectedPaths) == 0 || signal.AffectedPaths[0] == "" {
		result.Error = "no file path in evidence"
		return result, nil
	}
	path := signal.AffectedPaths[0]
	branch := quarantineBranch(testName)

	content, err := gh.GetFileContent(ctx, health.Owner, health.Repo, path, health.DefaultBranch)
	if err != nil && !errors.Is(err, github.ErrFileNotFound) {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}

	commit := github.FileCommit{
		Branch:  branch,
		Base:    health.DefaultBranch,
		Path:    path,
		Content: quarantineTest(content, testName),
		Message: "test: quarantine flaky " + testName,
	}
	if err := gh.CommitFile(ctx, health.Owner, health.Repo, commit); err != nil {
		return nil, fmt.Errorf("committing quarantine to %s: %w", branch, err)
	}

	pr, err := gh.CreatePull(ctx, health.Owner, health.Repo, github.PullSpec{
		Title: "Auto-quarantine flaky test: " + testName,
		Body:  quarantinePRBody(signal),
		Head:  branch,
		Base:  health.DefaultBranch,
	})
	if err != nil {
		return nil, fmt.Errorf("opening quarantine PR: %w", err)
	}

	result.Success = true
	result.URL = pr.HTMLURL
	result.Actions = []string{
		"committed quarantine to " + branch,
		fmt.Sprintf("opened PR #%d", pr.Number),
	}

	// Best effort: a missed ping must not leave the intervention
	// unrecorded, or the next checkup would open the same PR again.
	message := fmt.Sprintf("Auto-quarantined flaky test `%s`. PR: %s", testName, pr.HTMLURL)
	if err := notifier.SendChannel(ctx, quarantineChannel, message); err != nil {
		result.Actions = append(result.Actions, "channel notification failed: "+err.Error())
	} else {
		result.Actions = append(result.Actions, "notified "+quarantineChannel)
	}
	return result, nil
}

// quarantineBranch derives the deterministic branch for a test so reruns
// land on the same branch instead of minting new ones.
func quarantineBranch(testName string) string {
	sum := md5.Sum([]byte(testName))
	return "angel/quarantine-" + hex.EncodeToString(sum[:])[:8]
}

// quarantineTest marks the named test skipped. When the function is found
// the skip goes at the top of its body; otherwise a marker comment is
// prepended so the PR still carries the quarantine intent for a human to
// place.
func quarantineTest(content, testName string) string {
	header := fmt.Sprintf("func %s(t *testing.T) {", testName)
	idx := strings.Index(content, header)
	if idx < 0 {
		return fmt.Sprintf("// QUARANTINED: %s is flaky and must not gate CI.\n%s", testName, content)
	}
	insert := idx + len(header)
	return content[:insert] + "\n\tt.Skip(\"quarantined: flaky test under investigation\")" + content[insert:]
}

func quarantinePRBody(signal types.HealthSignal) string {
	rate := 0.0
	if v, err := strconv.ParseFloat(signal.Evidence["success_rate"], 64); err == nil {
		rate = v
	}

	var b strings.Builder
	b.WriteString("## Angel Intervention\n\n")
	fmt.Fprintf(&b, "**Detected:** Flaky test with %.0f%% success rate\n\n", rate*100)
	b.WriteString("**Action:** Temporarily quarantined to prevent CI noise\n\n")
	b.WriteString("**Next Steps:**\n")
	b.WriteString("- [ ] Investigate root cause\n")
	b.WriteString("- [ ] Fix determinism\n")
	b.WriteString("- [ ] Re-enable test\n\n")
	b.WriteString("*This PR was automatically created by the Hathor guardian angel.*")
	return b.String()
}
