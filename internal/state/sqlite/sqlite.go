// Package sqlite implements the state.Store interface on SQLite. It is the
// default backend for single-host deployments: WAL mode gives the webhook
// handler and the angel loop safe concurrent access through one file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/redinc23/hathor-red/internal/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	operation_id TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'claimed',
	result       TEXT,
	claimed_at   INTEGER NOT NULL,
	processed_at INTEGER,
	expires_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_operations_expires ON operations(expires_at);

CREATE TABLE IF NOT EXISTS fingerprint_links (
	owner            TEXT NOT NULL,
	repo             TEXT NOT NULL,
	fingerprint_hash TEXT NOT NULL,
	issue_number     INTEGER NOT NULL,
	linked_at        INTEGER NOT NULL,
	expires_at       INTEGER NOT NULL,
	PRIMARY KEY (owner, repo, fingerprint_hash)
);

CREATE INDEX IF NOT EXISTS idx_fingerprint_links_expires ON fingerprint_links(expires_at);

CREATE TABLE IF NOT EXISTS interventions (
	id           TEXT PRIMARY KEY,
	owner        TEXT NOT NULL,
	repo         TEXT NOT NULL,
	intervention TEXT NOT NULL,
	signal_key   TEXT NOT NULL,
	success      INTEGER NOT NULL,
	actions      TEXT,
	url          TEXT,
	error        TEXT,
	executed_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interventions_lookup
	ON interventions(owner, repo, signal_key, executed_at);

CREATE TABLE IF NOT EXISTS guardian_events (
	id        TEXT PRIMARY KEY,
	type      TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	owner     TEXT,
	repo      TEXT,
	severity  TEXT NOT NULL,
	message   TEXT NOT NULL,
	data      TEXT
);

CREATE INDEX IF NOT EXISTS idx_guardian_events_timestamp ON guardian_events(timestamp);
`

// SQLiteStore implements state.Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Timestamps are stored as UTC unix nanoseconds so expiry comparisons stay
// numeric inside SQL.

// New creates a SQLite-backed store at path, initializing the schema on
// first open. Passing ":memory:" yields an ephemeral store for tests.
func New(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ClaimOperation atomically claims an operation id. A single upsert keeps
// the claim race-free: the insert wins outright, and the conditional update
// takes over only a claim whose TTL has lapsed.
func (s *SQLiteStore) ClaimOperation(ctx context.Context, operationID string, ttl time.Duration) (bool, error) {
	if operationID == "" {
		return false, fmt.Errorf("operation id is required")
	}
	now := s.now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (operation_id, status, result, claimed_at, processed_at, expires_at)
		VALUES (?, 'claimed', NULL, ?, NULL, ?)
		ON CONFLICT(operation_id) DO UPDATE SET
			status = 'claimed',
			result = NULL,
			claimed_at = excluded.claimed_at,
			processed_at = NULL,
			expires_at = excluded.expires_at
		WHERE operations.expires_at <= excluded.claimed_at
	`, operationID, now.UnixNano(), now.Add(ttl).UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to claim operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// MarkProcessed finalizes a live claim with a result summary.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, operationID, result string) error {
	now := s.now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE operations
		SET status = 'processed', result = ?, processed_at = ?
		WHERE operation_id = ? AND expires_at > ?
	`, result, now.UnixNano(), operationID, now.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to mark operation processed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("operation %s is not claimed", operationID)
	}
	return nil
}

// ReleaseOperation drops an unfinished claim. Processed operations are
// left alone.
func (s *SQLiteStore) ReleaseOperation(ctx context.Context, operationID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM operations WHERE operation_id = ? AND status = 'claimed'
	`, operationID)
	if err != nil {
		return fmt.Errorf("failed to release operation: %w", err)
	}
	return nil
}

// IsProcessed reports whether a live processed record exists.
func (s *SQLiteStore) IsProcessed(ctx context.Context, operationID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM operations
		WHERE operation_id = ? AND status = 'processed' AND expires_at > ?
	`, operationID, s.now().UTC().UnixNano()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check operation: %w", err)
	}
	return count > 0, nil
}

// LinkFingerprint upserts a fingerprint-to-issue link, refreshing its TTL.
func (s *SQLiteStore) LinkFingerprint(ctx context.Context, owner, repo, hash string, issueNumber int, ttl time.Duration) error {
	if hash == "" {
		return fmt.Errorf("fingerprint hash is required")
	}
	now := s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fingerprint_links (owner, repo, fingerprint_hash, issue_number, linked_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, repo, fingerprint_hash) DO UPDATE SET
			issue_number = excluded.issue_number,
			linked_at = excluded.linked_at,
			expires_at = excluded.expires_at
	`, owner, repo, hash, issueNumber, now.UnixNano(), now.Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("failed to link fingerprint: %w", err)
	}
	return nil
}

// IssueForFingerprint returns the linked issue number for a live link.
func (s *SQLiteStore) IssueForFingerprint(ctx context.Context, owner, repo, hash string) (int, error) {
	var number int
	err := s.db.QueryRowContext(ctx, `
		SELECT issue_number FROM fingerprint_links
		WHERE owner = ? AND repo = ? AND fingerprint_hash = ? AND expires_at > ?
	`, owner, repo, hash, s.now().UTC().UnixNano()).Scan(&number)
	if err == sql.ErrNoRows {
		return 0, state.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	return number, nil
}

// PurgeExpired removes expired operation and fingerprint rows in batches.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, batchSize int) (int, error) {
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}
	now := s.now().UTC().UnixNano()

	total := 0
	deleted, err := s.deleteBatched(ctx, `
		DELETE FROM operations WHERE operation_id IN (
			SELECT operation_id FROM operations WHERE expires_at <= ? LIMIT ?
		)
	`, now, batchSize)
	if err != nil {
		return total, fmt.Errorf("failed to purge operations: %w", err)
	}
	total += deleted

	deleted, err = s.deleteBatched(ctx, `
		DELETE FROM fingerprint_links WHERE rowid IN (
			SELECT rowid FROM fingerprint_links WHERE expires_at <= ? LIMIT ?
		)
	`, now, batchSize)
	if err != nil {
		return total, fmt.Errorf("failed to purge fingerprint links: %w", err)
	}
	total += deleted

	return total, nil
}

// deleteBatched runs a batched delete until a batch comes back short.
func (s *SQLiteStore) deleteBatched(ctx context.Context, query string, cutoff int64, batchSize int) (int, error) {
	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		result, err := s.db.ExecContext(ctx, query, cutoff, batchSize)
		if err != nil {
			return total, err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(rows)
		if rows < int64(batchSize) {
			return total, nil
		}
	}
}
