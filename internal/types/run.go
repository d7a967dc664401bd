// Package types defines the domain model shared by the triage pipeline,
// the guardian angel, and the port adapters: workflow runs and their
// failure fingerprints, health signals and prophecies, remediation and
// intervention results, and the teaching artifacts built from them.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// RunID identifies a single CI workflow run.
type RunID struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	ID    int64  `json:"id"`
}

// String formats the run identity as owner/repo/id.
func (r RunID) String() string {
	return fmt.Sprintf("%s/%s/%d", r.Owner, r.Repo, r.ID)
}

// OperationID returns the idempotency key under which processing of this
// run is recorded. Repeated webhook deliveries for the same run map to the
// same operation.
func (r RunID) OperationID() string {
	return "run:" + r.String()
}

// Validate checks if the run identity has valid field values
func (r RunID) Validate() error {
	if r.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if r.Repo == "" {
		return fmt.Errorf("repo is required")
	}
	if r.ID <= 0 {
		return fmt.Errorf("run id must be positive (got %d)", r.ID)
	}
	return nil
}

// Conclusion is the terminal status GitHub reports for a completed
// workflow run.
type Conclusion string

const (
	ConclusionSuccess        Conclusion = "success"
	ConclusionFailure        Conclusion = "failure"
	ConclusionTimedOut       Conclusion = "timed_out"
	ConclusionCancelled      Conclusion = "cancelled"
	ConclusionSkipped        Conclusion = "skipped"
	ConclusionNeutral        Conclusion = "neutral"
	ConclusionActionRequired Conclusion = "action_required"
	ConclusionStale          Conclusion = "stale"
)

// IsValid checks if the conclusion value is valid
func (c Conclusion) IsValid() bool {
	switch c {
	case ConclusionSuccess, ConclusionFailure, ConclusionTimedOut,
		ConclusionCancelled, ConclusionSkipped, ConclusionNeutral,
		ConclusionActionRequired, ConclusionStale:
		return true
	}
	return false
}

// IsFailure reports whether the conclusion counts as a triageable failure.
// Timed-out and cancelled runs are failures for triage purposes: both leave
// the branch in an unverified state.
func (c Conclusion) IsFailure() bool {
	switch c {
	case ConclusionFailure, ConclusionTimedOut, ConclusionCancelled:
		return true
	}
	return false
}

// FailureFingerprint is the content-addressed signature of a failure class.
// Runs that fail the same way share a fingerprint and therefore share one
// tracking issue. MatrixKey distinguishes matrix cells when a caller opts
// into per-cell fingerprinting; the triage pipeline leaves it empty.
type FailureFingerprint struct {
	Workflow   string     `json:"workflow"`
	Conclusion Conclusion `json:"conclusion"`
	Event      string     `json:"event"`
	MatrixKey  string     `json:"matrix_key,omitempty"`
}

// Hash returns the first 16 hex characters of the SHA-256 digest over the
// fingerprint fields. Identical fields yield identical hashes across
// processes and restarts.
func (f FailureFingerprint) Hash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%s", f.Workflow, f.Conclusion, f.Event, f.MatrixKey)))
	return hex.EncodeToString(sum[:])[:16]
}

// WorkflowRun is an immutable snapshot of one CI run, projected from the
// webhook payload or the runs API.
type WorkflowRun struct {
	ID           RunID      `json:"id"`
	Name         string     `json:"name"`
	HeadBranch   string     `json:"head_branch"`
	HeadSHA      string     `json:"head_sha"`
	Conclusion   Conclusion `json:"conclusion"`
	Event        string     `json:"event"`
	HTMLURL      string     `json:"html_url,omitempty"`
	LogsURL      string     `json:"logs_url,omitempty"`
	RunStartedAt time.Time  `json:"run_started_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate checks if the run snapshot has valid field values
func (r *WorkflowRun) Validate() error {
	if err := r.ID.Validate(); err != nil {
		return err
	}
	if r.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if !r.Conclusion.IsValid() {
		return fmt.Errorf("invalid conclusion: %s", r.Conclusion)
	}
	return nil
}

// IsFailure reports whether this run should be triaged.
func (r *WorkflowRun) IsFailure() bool {
	return r.Conclusion.IsFailure()
}

// Fingerprint derives the failure signature for this run. Pure: no I/O,
// same run always yields the same fingerprint.
func (r *WorkflowRun) Fingerprint() FailureFingerprint {
	return FailureFingerprint{
		Workflow:   r.Name,
		Conclusion: r.Conclusion,
		Event:      r.Event,
	}
}

// Duration returns the wall-clock duration of the run, or zero when the
// timestamps are missing or inverted.
func (r *WorkflowRun) Duration() time.Duration {
	if r.RunStartedAt.IsZero() || r.UpdatedAt.Before(r.RunStartedAt) {
		return 0
	}
	return r.UpdatedAt.Sub(r.RunStartedAt)
}

// TestOutcome is a single pass/fail observation for one named test,
// typically projected from a check run conclusion. FilePath is the repo
// path the test lives in when the source could determine it, else empty.
type TestOutcome struct {
	Name       string    `json:"name"`
	Passed     bool      `json:"passed"`
	FilePath   string    `json:"file_path,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// CommitInfo is the author/time projection of one commit touching a file.
type CommitInfo struct {
	SHA         string    `json:"sha"`
	Author      string    `json:"author"`
	CommittedAt time.Time `json:"committed_at"`
}

// RunHistory is the bounded window of past activity a checkup inspects.
// Oracles read it; they never fetch on their own beyond what their
// contract names.
type RunHistory struct {
	Owner string        `json:"owner"`
	Repo  string        `json:"repo"`
	Runs  []WorkflowRun `json:"runs"`
	Tests []TestOutcome `json:"tests"`
}

// Durations returns the durations of runs that started within the trailing
// window ending at now, oldest first. Zero durations are dropped.
func (h *RunHistory) Durations(window time.Duration, now time.Time) []time.Duration {
	cutoff := now.Add(-window)
	runs := make([]WorkflowRun, 0, len(h.Runs))
	for _, run := range h.Runs {
		if run.RunStartedAt.Before(cutoff) || run.Duration() == 0 {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].RunStartedAt.Before(runs[j].RunStartedAt)
	})
	durations := make([]time.Duration, len(runs))
	for i, run := range runs {
		durations[i] = run.Duration()
	}
	return durations
}

// TestResults groups outcomes recorded within the trailing window ending
// at now by test name, oldest observation first.
func (h *RunHistory) TestResults(window time.Duration, now time.Time) map[string][]TestOutcome {
	cutoff := now.Add(-window)
	results := make(map[string][]TestOutcome)
	for _, outcome := range h.Tests {
		if outcome.RecordedAt.Before(cutoff) {
			continue
		}
		results[outcome.Name] = append(results[outcome.Name], outcome)
	}
	for name := range results {
		group := results[name]
		sort.Slice(group, func(i, j int) bool {
			return group[i].RecordedAt.Before(group[j].RecordedAt)
		})
		results[name] = group
	}
	return results
}
