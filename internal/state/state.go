// Package state defines the durable store behind the guardian: the
// processed-operation ledger that makes webhook handling idempotent, the
// fingerprint-to-issue links that deduplicate failures, the intervention
// ledger that stops repeated healing, and the guardian event audit feed.
//
// The store is the single source of truth for all of these. Orchestrators
// never cache its answers across invocations, and every record that backs
// idempotency carries a TTL so the ledger stays bounded.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/redinc23/hathor-red/internal/events"
	"github.com/redinc23/hathor-red/internal/types"
)

// ErrNotFound is returned when a requested record does not exist or has
// expired.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract shared by the triage pipeline and the
// angel. Implementations must be safe for concurrent use from multiple
// goroutines and, for the database-backed adapters, from multiple worker
// processes.
type Store interface {
	// ClaimOperation atomically claims an operation id for processing.
	// It returns true when this caller won the claim and false when the
	// operation is already claimed or processed. The claim expires after
	// ttl so a crashed worker cannot block redelivery forever.
	ClaimOperation(ctx context.Context, operationID string, ttl time.Duration) (bool, error)

	// MarkProcessed finalizes a claimed operation with a result summary.
	// It fails if the operation was never claimed.
	MarkProcessed(ctx context.Context, operationID, result string) error

	// ReleaseOperation drops an unfinished claim so the next delivery can
	// retry the full pipeline. Releasing a processed operation is a no-op.
	ReleaseOperation(ctx context.Context, operationID string) error

	// IsProcessed reports whether the operation has been finalized.
	// Expired records read as not processed.
	IsProcessed(ctx context.Context, operationID string) (bool, error)

	// LinkFingerprint records that a failure fingerprint is tracked by an
	// issue. Re-linking an existing fingerprint overwrites the previous
	// issue number and refreshes the TTL.
	LinkFingerprint(ctx context.Context, owner, repo, hash string, issueNumber int, ttl time.Duration) error

	// IssueForFingerprint returns the linked issue number, or ErrNotFound
	// when no live link exists.
	IssueForFingerprint(ctx context.Context, owner, repo, hash string) (int, error)

	// RecordIntervention appends an intervention result to the ledger.
	RecordIntervention(ctx context.Context, owner, repo string, result *types.InterventionResult) error

	// HasRecentIntervention reports whether a successful intervention for
	// the signal key executed within the trailing window. The angel uses
	// this to avoid reopening the same PR or issue every checkup.
	HasRecentIntervention(ctx context.Context, owner, repo, signalKey string, window time.Duration) (bool, error)

	// AppendEvent adds a guardian event to the audit feed.
	AppendEvent(ctx context.Context, event *events.GuardianEvent) error

	// RecentEvents returns up to limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]*events.GuardianEvent, error)

	// PurgeExpired removes expired operation and fingerprint records in
	// batches and returns how many rows were deleted.
	PurgeExpired(ctx context.Context, batchSize int) (int, error)

	// CleanupEventsByAge deletes audit events older than the retention
	// period, batchSize rows per statement.
	CleanupEventsByAge(ctx context.Context, retentionDays, batchSize int) (int, error)

	// CleanupEventsByGlobalLimit keeps the audit feed under a hard cap by
	// deleting the oldest events first.
	CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error)

	// Close releases the underlying resources.
	Close() error
}
