// Package triage implements the reactive pipeline: one webhook delivery in,
// at most one deduplicated tracking issue out. The pipeline is idempotent
// under redelivery and leaves no partial ledger state behind on failure.
package triage

import (
	"fmt"
	"time"

	"github.com/redinc23/hathor-red/internal/config"
	"github.com/redinc23/hathor-red/internal/types"
)

// RenderIssue builds the tracking issue for a failing run. Pure: the same
// run, hash, config, and clock reading always produce the same issue, so
// tests can assert exact output.
func RenderIssue(run *types.WorkflowRun, hash string, guardian config.GuardianConfig, now time.Time) *types.TriageIssue {
	shortHash := hash
	if len(shortHash) > 8 {
		shortHash = shortHash[:8]
	}

	body := fmt.Sprintf(`%s

**Failure Signature:** `+"`%s`"+`
| Field | Value |
|-------|-------|
| Workflow | `+"`%s`"+` |
| Conclusion | `+"`%s`"+` |
| Event | `+"`%s`"+` |
| Branch | `+"`%s`"+` |
| Commit | `+"`%s`"+` |

**Run URL:** %s
**First Seen:** %s
**Last Updated:** %s

<details>
<summary>Diagnosis Guide</summary>

1. Check logs: `+"`gh run view %d --log`"+`
2. If flaky: Add `+"`retry`"+` to workflow or quarantine test
3. If deterministic: Fix root cause, add regression test
4. If infra-related: Escalate to platform team

</details>
`,
		guardian.IssueHeader,
		hash,
		run.Name,
		run.Conclusion,
		run.Event,
		run.HeadBranch,
		shortSHA(run.HeadSHA),
		run.HTMLURL,
		run.RunStartedAt.UTC().Format(time.RFC3339),
		now.UTC().Format(time.RFC3339),
		run.ID.ID,
	)

	return &types.TriageIssue{
		Title:           fmt.Sprintf("%sCI Failure: %s [%s]", guardian.IssuePrefix, run.Name, shortHash),
		Body:            body,
		Labels:          append([]string(nil), guardian.IssueLabels...),
		FingerprintHash: hash,
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
