package events

import (
	"time"

	"github.com/google/uuid"
)

// NewTriageEvent creates a GuardianEvent for a triage lifecycle step with
// type-safe data. The event type distinguishes completed pipelines from
// skipped deliveries.
func NewTriageEvent(eventType EventType, owner, repo string, severity EventSeverity, message string, data TriageData) (*GuardianEvent, error) {
	event := &GuardianEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Owner:     owner,
		Repo:      repo,
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetTriageData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewCheckupEvent creates a GuardianEvent for a completed checkup with
// type-safe data.
func NewCheckupEvent(owner, repo string, severity EventSeverity, message string, data CheckupData) (*GuardianEvent, error) {
	event := &GuardianEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeCheckupCompleted,
		Timestamp: time.Now(),
		Owner:     owner,
		Repo:      repo,
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetCheckupData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewInterventionEvent creates a GuardianEvent for an executed intervention
// with type-safe data.
func NewInterventionEvent(owner, repo string, severity EventSeverity, message string, data InterventionData) (*GuardianEvent, error) {
	event := &GuardianEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeInterventionExecuted,
		Timestamp: time.Now(),
		Owner:     owner,
		Repo:      repo,
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetInterventionData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewRemediationEvent creates a GuardianEvent for a proposed remediation
// with type-safe data.
func NewRemediationEvent(owner, repo string, severity EventSeverity, message string, data RemediationData) (*GuardianEvent, error) {
	event := &GuardianEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeRemediationProposed,
		Timestamp: time.Now(),
		Owner:     owner,
		Repo:      repo,
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetRemediationData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewCleanupEvent creates a GuardianEvent for a completed purge cycle with
// type-safe data.
func NewCleanupEvent(severity EventSeverity, message string, data CleanupData) (*GuardianEvent, error) {
	event := &GuardianEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeCleanupCompleted,
		Timestamp: time.Now(),
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetCleanupData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewLessonEvent creates a GuardianEvent for a published lesson. Lessons
// carry no structured data beyond the message; the lesson body itself lives
// in the vector store.
func NewLessonEvent(owner, repo, message string) *GuardianEvent {
	return &GuardianEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeLessonPublished,
		Timestamp: time.Now(),
		Owner:     owner,
		Repo:      repo,
		Severity:  SeverityInfo,
		Message:   message,
		Data:      make(map[string]interface{}),
	}
}
