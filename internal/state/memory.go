package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redinc23/hathor-red/internal/events"
	"github.com/redinc23/hathor-red/internal/types"
)

// Memory is the in-process Store used by tests and by single-shot CLI
// invocations that do not need durability. It honors the same claim and
// TTL semantics as the database adapters.
type Memory struct {
	mu            sync.Mutex
	operations    map[string]*memOperation
	links         map[string]*memLink
	interventions []memIntervention
	events        []*events.GuardianEvent
	now           func() time.Time
}

type memOperation struct {
	processed bool
	result    string
	expiresAt time.Time
}

type memLink struct {
	issueNumber int
	expiresAt   time.Time
}

type memIntervention struct {
	owner      string
	repo       string
	signalKey  string
	success    bool
	executedAt time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		operations: make(map[string]*memOperation),
		links:      make(map[string]*memLink),
		now:        time.Now,
	}
}

// SetClock overrides the store's clock. Tests use this to step time past
// TTL boundaries without sleeping.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) ClaimOperation(ctx context.Context, operationID string, ttl time.Duration) (bool, error) {
	if operationID == "" {
		return false, fmt.Errorf("operation id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if op, ok := m.operations[operationID]; ok && op.expiresAt.After(now) {
		return false, nil
	}
	m.operations[operationID] = &memOperation{expiresAt: now.Add(ttl)}
	return true, nil
}

func (m *Memory) MarkProcessed(ctx context.Context, operationID, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.operations[operationID]
	if !ok || !op.expiresAt.After(m.now()) {
		return fmt.Errorf("operation %s is not claimed", operationID)
	}
	op.processed = true
	op.result = result
	return nil
}

func (m *Memory) ReleaseOperation(ctx context.Context, operationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if op, ok := m.operations[operationID]; ok && !op.processed {
		delete(m.operations, operationID)
	}
	return nil
}

func (m *Memory) IsProcessed(ctx context.Context, operationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.operations[operationID]
	return ok && op.processed && op.expiresAt.After(m.now()), nil
}

func linkKey(owner, repo, hash string) string {
	return owner + "/" + repo + ":" + hash
}

func (m *Memory) LinkFingerprint(ctx context.Context, owner, repo, hash string, issueNumber int, ttl time.Duration) error {
	if hash == "" {
		return fmt.Errorf("fingerprint hash is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.links[linkKey(owner, repo, hash)] = &memLink{
		issueNumber: issueNumber,
		expiresAt:   m.now().Add(ttl),
	}
	return nil
}

func (m *Memory) IssueForFingerprint(ctx context.Context, owner, repo, hash string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[linkKey(owner, repo, hash)]
	if !ok || !link.expiresAt.After(m.now()) {
		return 0, ErrNotFound
	}
	return link.issueNumber, nil
}

func (m *Memory) RecordIntervention(ctx context.Context, owner, repo string, result *types.InterventionResult) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.interventions = append(m.interventions, memIntervention{
		owner:      owner,
		repo:       repo,
		signalKey:  result.SignalKey,
		success:    result.Success,
		executedAt: result.ExecutedAt,
	})
	return nil
}

func (m *Memory) HasRecentIntervention(ctx context.Context, owner, repo, signalKey string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-window)
	for _, iv := range m.interventions {
		if iv.owner == owner && iv.repo == repo && iv.signalKey == signalKey &&
			iv.success && iv.executedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) AppendEvent(ctx context.Context, event *events.GuardianEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
	return nil
}

func (m *Memory) RecentEvents(ctx context.Context, limit int) ([]*events.GuardianEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := make([]*events.GuardianEvent, len(m.events))
	copy(sorted, m.events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

func (m *Memory) PurgeExpired(ctx context.Context, batchSize int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	purged := 0
	for id, op := range m.operations {
		if !op.expiresAt.After(now) {
			delete(m.operations, id)
			purged++
		}
	}
	for key, link := range m.links {
		if !link.expiresAt.After(now) {
			delete(m.links, key)
			purged++
		}
	}
	return purged, nil
}

func (m *Memory) CleanupEventsByAge(ctx context.Context, retentionDays, batchSize int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().AddDate(0, 0, -retentionDays)
	kept := m.events[:0]
	deleted := 0
	for _, event := range m.events {
		if event.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	m.events = kept
	return deleted, nil
}

func (m *Memory) CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.events) <= globalLimit {
		return 0, nil
	}
	sort.Slice(m.events, func(i, j int) bool {
		return m.events[i].Timestamp.Before(m.events[j].Timestamp)
	})
	deleted := len(m.events) - globalLimit
	m.events = append([]*events.GuardianEvent(nil), m.events[deleted:]...)
	return deleted, nil
}

func (m *Memory) Close() error { return nil }
