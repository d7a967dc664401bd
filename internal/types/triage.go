package types

import (
	"fmt"
	"time"
)

// TriageIssue is the immutable description of the tracking issue filed for
// a failure fingerprint. It is a value object: built once by a pure
// renderer, then handed to the GitHub port unchanged.
type TriageIssue struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Labels          []string `json:"labels"`
	FingerprintHash string   `json:"fingerprint_hash"`
}

// Validate checks if the issue has valid field values
func (i *TriageIssue) Validate() error {
	if i.Title == "" {
		return fmt.Errorf("title is required")
	}
	if i.FingerprintHash == "" {
		return fmt.Errorf("fingerprint hash is required")
	}
	return nil
}

// TitleToken returns the short hash prefix embedded in the issue title.
// Duplicate detection searches open issues for this token, so the title
// and the search must agree on its length.
func (i *TriageIssue) TitleToken() string {
	if len(i.FingerprintHash) > 8 {
		return i.FingerprintHash[:8]
	}
	return i.FingerprintHash
}

// TriageOutcome summarizes one pass through the reactive pipeline. It is
// recorded against the operation ledger and published on the event bus.
type TriageOutcome string

const (
	// TriageSkippedDuplicate means the operation was already processed.
	TriageSkippedDuplicate TriageOutcome = "skipped_duplicate"
	// TriageSkippedSuccess means the run completed successfully.
	TriageSkippedSuccess TriageOutcome = "skipped_success"
	// TriageIssueFiled means a tracking issue was created or updated.
	TriageIssueFiled TriageOutcome = "issue_filed"
)

// FilePatch is one proposed file change. A nil OriginalContent marks the
// creation of a new file.
type FilePatch struct {
	Path            string  `json:"path"`
	Content         string  `json:"content"`
	OriginalContent *string `json:"original_content,omitempty"`
}

// IsCreation reports whether the patch creates a file rather than
// rewriting one.
func (p *FilePatch) IsCreation() bool {
	return p.OriginalContent == nil
}

// RemediationResult is a proposed fix for a failing run. Confidence gates
// whether the fix is applied automatically or routed to human review.
type RemediationResult struct {
	Strategy    string      `json:"strategy"`
	Description string      `json:"description"`
	Patches     []FilePatch `json:"patches,omitempty"`
	BranchName  string      `json:"branch_name,omitempty"`
	Confidence  float64     `json:"confidence"`
}

// Validate checks if the remediation result has valid field values
func (r *RemediationResult) Validate() error {
	if r.Strategy == "" {
		return fmt.Errorf("strategy is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1 (got %g)", r.Confidence)
	}
	return nil
}

// Concern is one risk flagged during a pre-merge review.
type Concern struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Praise is one positive observation from a pre-merge review, optionally
// pointing at resources worth reading.
type Praise struct {
	Kind      string   `json:"kind"`
	Message   string   `json:"message"`
	Resources []string `json:"resources,omitempty"`
}

// Blessing is the pre-merge risk assessment for a pull request. Risk is
// 0..1; a request auto-approves only when risk stays low and no concern
// was raised.
type Blessing struct {
	Owner        string    `json:"owner"`
	Repo         string    `json:"repo"`
	Number       int       `json:"number"`
	Risk         float64   `json:"risk"`
	Concerns     []Concern `json:"concerns,omitempty"`
	Praises      []Praise  `json:"praises,omitempty"`
	AutoApproved bool      `json:"auto_approved"`
	BlessedAt    time.Time `json:"blessed_at"`
}
