// Package postgres implements the state.Store interface on PostgreSQL for
// deployments that run multiple webhook workers. The claim ledger relies on
// the primary key constraint, so concurrent workers on separate hosts still
// agree on who owns an operation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redinc23/hathor-red/internal/events"
	"github.com/redinc23/hathor-red/internal/state"
	"github.com/redinc23/hathor-red/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	operation_id TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'claimed',
	result       TEXT,
	claimed_at   TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	expires_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_operations_expires ON operations(expires_at);

CREATE TABLE IF NOT EXISTS fingerprint_links (
	owner            TEXT NOT NULL,
	repo             TEXT NOT NULL,
	fingerprint_hash TEXT NOT NULL,
	issue_number     INTEGER NOT NULL,
	linked_at        TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner, repo, fingerprint_hash)
);

CREATE INDEX IF NOT EXISTS idx_fingerprint_links_expires ON fingerprint_links(expires_at);

CREATE TABLE IF NOT EXISTS interventions (
	id           TEXT PRIMARY KEY,
	owner        TEXT NOT NULL,
	repo         TEXT NOT NULL,
	intervention TEXT NOT NULL,
	signal_key   TEXT NOT NULL,
	success      BOOLEAN NOT NULL,
	actions      JSONB,
	url          TEXT,
	error        TEXT,
	executed_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interventions_lookup
	ON interventions(owner, repo, signal_key, executed_at);

CREATE TABLE IF NOT EXISTS guardian_events (
	id        TEXT PRIMARY KEY,
	type      TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	owner     TEXT,
	repo      TEXT,
	severity  TEXT NOT NULL,
	message   TEXT NOT NULL,
	data      JSONB
);

CREATE INDEX IF NOT EXISTS idx_guardian_events_timestamp ON guardian_events(timestamp);
`

// Config holds PostgreSQL connection pool tuning.
type Config struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxConns:        25,
		MinConns:        2,
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// PostgresStore implements state.Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New creates a PostgreSQL-backed store with connection pooling and
// initializes the schema.
func New(ctx context.Context, dsn string, cfg *Config) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ClaimOperation atomically claims an operation id; see the sqlite adapter
// for the takeover semantics, which are identical.
func (s *PostgresStore) ClaimOperation(ctx context.Context, operationID string, ttl time.Duration) (bool, error) {
	if operationID == "" {
		return false, fmt.Errorf("operation id is required")
	}
	now := s.now().UTC()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO operations (operation_id, status, result, claimed_at, processed_at, expires_at)
		VALUES ($1, 'claimed', NULL, $2, NULL, $3)
		ON CONFLICT (operation_id) DO UPDATE SET
			status = 'claimed',
			result = NULL,
			claimed_at = EXCLUDED.claimed_at,
			processed_at = NULL,
			expires_at = EXCLUDED.expires_at
		WHERE operations.expires_at <= EXCLUDED.claimed_at
	`, operationID, now, now.Add(ttl))
	if err != nil {
		return false, fmt.Errorf("failed to claim operation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkProcessed finalizes a live claim with a result summary.
func (s *PostgresStore) MarkProcessed(ctx context.Context, operationID, result string) error {
	now := s.now().UTC()

	tag, err := s.pool.Exec(ctx, `
		UPDATE operations
		SET status = 'processed', result = $1, processed_at = $2
		WHERE operation_id = $3 AND expires_at > $2
	`, result, now, operationID)
	if err != nil {
		return fmt.Errorf("failed to mark operation processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operation %s is not claimed", operationID)
	}
	return nil
}

// ReleaseOperation drops an unfinished claim.
func (s *PostgresStore) ReleaseOperation(ctx context.Context, operationID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM operations WHERE operation_id = $1 AND status = 'claimed'
	`, operationID)
	if err != nil {
		return fmt.Errorf("failed to release operation: %w", err)
	}
	return nil
}

// IsProcessed reports whether a live processed record exists.
func (s *PostgresStore) IsProcessed(ctx context.Context, operationID string) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM operations
		WHERE operation_id = $1 AND status = 'processed' AND expires_at > $2
	`, operationID, s.now().UTC()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check operation: %w", err)
	}
	return count > 0, nil
}

// LinkFingerprint upserts a fingerprint-to-issue link.
func (s *PostgresStore) LinkFingerprint(ctx context.Context, owner, repo, hash string, issueNumber int, ttl time.Duration) error {
	if hash == "" {
		return fmt.Errorf("fingerprint hash is required")
	}
	now := s.now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO fingerprint_links (owner, repo, fingerprint_hash, issue_number, linked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner, repo, fingerprint_hash) DO UPDATE SET
			issue_number = EXCLUDED.issue_number,
			linked_at = EXCLUDED.linked_at,
			expires_at = EXCLUDED.expires_at
	`, owner, repo, hash, issueNumber, now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to link fingerprint: %w", err)
	}
	return nil
}

// IssueForFingerprint returns the linked issue number for a live link.
func (s *PostgresStore) IssueForFingerprint(ctx context.Context, owner, repo, hash string) (int, error) {
	var number int
	err := s.pool.QueryRow(ctx, `
		SELECT issue_number FROM fingerprint_links
		WHERE owner = $1 AND repo = $2 AND fingerprint_hash = $3 AND expires_at > $4
	`, owner, repo, hash, s.now().UTC()).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, state.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	return number, nil
}

// RecordIntervention appends an intervention result to the ledger.
func (s *PostgresStore) RecordIntervention(ctx context.Context, owner, repo string, result *types.InterventionResult) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}
	if result.ID == "" {
		return fmt.Errorf("result id is required")
	}

	actions, err := json.Marshal(result.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO interventions (id, owner, repo, intervention, signal_key, success, actions, url, error, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, result.ID, owner, repo, result.Intervention, result.SignalKey,
		result.Success, actions, result.URL, result.Error, result.ExecutedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record intervention: %w", err)
	}
	return nil
}

// HasRecentIntervention reports whether a successful intervention for the
// signal key executed within the trailing window.
func (s *PostgresStore) HasRecentIntervention(ctx context.Context, owner, repo, signalKey string, window time.Duration) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM interventions
		WHERE owner = $1 AND repo = $2 AND signal_key = $3 AND success AND executed_at > $4
	`, owner, repo, signalKey, s.now().UTC().Add(-window)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check interventions: %w", err)
	}
	return count > 0, nil
}

// AppendEvent adds a guardian event to the audit feed.
func (s *PostgresStore) AppendEvent(ctx context.Context, event *events.GuardianEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO guardian_events (id, type, timestamp, owner, repo, severity, message, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, string(event.Type), event.Timestamp.UTC(), event.Owner,
		event.Repo, string(event.Severity), event.Message, data)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first. A non-positive
// limit returns everything.
func (s *PostgresStore) RecentEvents(ctx context.Context, limit int) ([]*events.GuardianEvent, error) {
	query := `
		SELECT id, type, timestamp, owner, repo, severity, message, data
		FROM guardian_events ORDER BY timestamp DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*events.GuardianEvent
	for rows.Next() {
		var (
			event     events.GuardianEvent
			eventType string
			severity  string
			data      []byte
		)
		if err := rows.Scan(&event.ID, &eventType, &event.Timestamp, &event.Owner,
			&event.Repo, &severity, &event.Message, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Type = events.EventType(eventType)
		event.Severity = events.EventSeverity(severity)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		out = append(out, &event)
	}
	return out, rows.Err()
}

// PurgeExpired removes expired operation and fingerprint rows in batches.
func (s *PostgresStore) PurgeExpired(ctx context.Context, batchSize int) (int, error) {
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}
	now := s.now().UTC()

	total := 0
	deleted, err := s.deleteBatched(ctx, `
		DELETE FROM operations WHERE ctid IN (
			SELECT ctid FROM operations WHERE expires_at <= $1 LIMIT $2
		)
	`, now, batchSize)
	if err != nil {
		return total, fmt.Errorf("failed to purge operations: %w", err)
	}
	total += deleted

	deleted, err = s.deleteBatched(ctx, `
		DELETE FROM fingerprint_links WHERE ctid IN (
			SELECT ctid FROM fingerprint_links WHERE expires_at <= $1 LIMIT $2
		)
	`, now, batchSize)
	if err != nil {
		return total, fmt.Errorf("failed to purge fingerprint links: %w", err)
	}
	total += deleted

	return total, nil
}

// CleanupEventsByAge deletes audit events older than the retention period.
func (s *PostgresStore) CleanupEventsByAge(ctx context.Context, retentionDays, batchSize int) (int, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := s.deleteBatched(ctx, `
		DELETE FROM guardian_events WHERE ctid IN (
			SELECT ctid FROM guardian_events WHERE timestamp < $1 ORDER BY timestamp ASC LIMIT $2
		)
	`, cutoff, batchSize)
	if err != nil {
		return deleted, fmt.Errorf("failed to delete old events: %w", err)
	}
	return deleted, nil
}

// CleanupEventsByGlobalLimit keeps the audit feed under a hard cap,
// deleting oldest first.
func (s *PostgresStore) CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error) {
	if globalLimit < 1 {
		return 0, fmt.Errorf("global limit must be at least 1")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM guardian_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	excess := count - globalLimit
	if excess <= 0 {
		return 0, nil
	}

	total := 0
	for total < excess {
		batch := batchSize
		if remaining := excess - total; remaining < batch {
			batch = remaining
		}

		tag, err := s.pool.Exec(ctx, `
			DELETE FROM guardian_events WHERE ctid IN (
				SELECT ctid FROM guardian_events ORDER BY timestamp ASC LIMIT $1
			)
		`, batch)
		if err != nil {
			return total, fmt.Errorf("failed to delete excess events: %w", err)
		}
		if tag.RowsAffected() == 0 {
			break
		}
		total += int(tag.RowsAffected())
	}
	return total, nil
}

// deleteBatched runs a batched delete until a batch comes back short.
func (s *PostgresStore) deleteBatched(ctx context.Context, query string, cutoff time.Time, batchSize int) (int, error) {
	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		tag, err := s.pool.Exec(ctx, query, cutoff, batchSize)
		if err != nil {
			return total, err
		}
		total += int(tag.RowsAffected())
		if tag.RowsAffected() < int64(batchSize) {
			return total, nil
		}
	}
}
