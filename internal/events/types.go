// Package events defines the guardian event feed: typed records of what
// the triage pipeline and the angel did, published on a bus and persisted
// as an audit trail.
package events

import (
	"time"
)

// EventType represents the type of guardian event that occurred.
type EventType string

const (
	// EventTypeTriageCompleted indicates the reactive pipeline finished processing a run
	EventTypeTriageCompleted EventType = "triage_completed"
	// EventTypeTriageSkipped indicates a delivery was skipped (duplicate or successful run)
	EventTypeTriageSkipped EventType = "triage_skipped"
	// EventTypeIssueFiled indicates a tracking issue was created or updated
	EventTypeIssueFiled EventType = "issue_filed"
	// EventTypeRemediationProposed indicates a remediation strategy produced a fix
	EventTypeRemediationProposed EventType = "remediation_proposed"
	// EventTypeCheckupCompleted indicates the angel finished a health checkup
	EventTypeCheckupCompleted EventType = "checkup_completed"
	// EventTypeInterventionExecuted indicates an automated intervention ran
	EventTypeInterventionExecuted EventType = "intervention_executed"
	// EventTypeLessonPublished indicates a lesson was distilled and delivered
	EventTypeLessonPublished EventType = "lesson_published"
	// EventTypeCleanupCompleted indicates an expired-record purge cycle completed
	EventTypeCleanupCompleted EventType = "cleanup_completed"
)

// IsValid checks if the event type value is valid
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeTriageCompleted, EventTypeTriageSkipped, EventTypeIssueFiled,
		EventTypeRemediationProposed, EventTypeCheckupCompleted,
		EventTypeInterventionExecuted, EventTypeLessonPublished,
		EventTypeCleanupCompleted:
		return true
	}
	return false
}

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo is routine operation
	SeverityInfo EventSeverity = "info"
	// SeverityWarning is degraded but continuing operation
	SeverityWarning EventSeverity = "warning"
	// SeverityError is a failed operation
	SeverityError EventSeverity = "error"
)

// GuardianEvent is one record in the audit feed.
type GuardianEvent struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// Owner is the repository owner the event concerns
	Owner string `json:"owner"`
	// Repo is the repository the event concerns
	Repo string `json:"repo"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// TriageData contains structured data for triage lifecycle events.
type TriageData struct {
	// OperationID is the idempotency key of the processed delivery
	OperationID string `json:"operation_id"`
	// FingerprintHash is the failure signature, empty for skipped successes
	FingerprintHash string `json:"fingerprint_hash,omitempty"`
	// Outcome summarizes how the pipeline disposed of the run
	Outcome string `json:"outcome"`
	// IssueNumber is the tracking issue, zero when none was filed
	IssueNumber int `json:"issue_number,omitempty"`
}

// CheckupData contains structured data for checkup completion events.
type CheckupData struct {
	// Score is the aggregate health score, 0..100
	Score float64 `json:"score"`
	// Healthy is the overall verdict
	Healthy bool `json:"healthy"`
	// SignalCount is how many signals the oracles emitted
	SignalCount int `json:"signal_count"`
	// ProphecyCount is how many prophecies were derived
	ProphecyCount int `json:"prophecy_count"`
}

// InterventionData contains structured data for intervention events.
type InterventionData struct {
	// Intervention is the name of the intervention that ran
	Intervention string `json:"intervention"`
	// SignalKey identifies the signal that was addressed
	SignalKey string `json:"signal_key"`
	// Success indicates whether the intervention completed
	Success bool `json:"success"`
	// URL points at the PR or issue the intervention opened
	URL string `json:"url,omitempty"`
}

// RemediationData contains structured data for remediation events.
type RemediationData struct {
	// Strategy is the name of the strategy that produced the fix
	Strategy string `json:"strategy"`
	// Confidence is the strategy's reported confidence, 0..1
	Confidence float64 `json:"confidence"`
	// BranchName is the branch the fix was pushed to, if any
	BranchName string `json:"branch_name,omitempty"`
}

// CleanupData contains structured data for purge cycle events.
type CleanupData struct {
	// PurgedRecords is how many expired ledger rows were removed
	PurgedRecords int `json:"purged_records"`
	// PurgedEvents is how many audit events were removed
	PurgedEvents int `json:"purged_events"`
}
