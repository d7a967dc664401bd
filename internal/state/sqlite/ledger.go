package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redinc23/hathor-red/internal/events"
	"github.com/redinc23/hathor-red/internal/types"
)

// RecordIntervention appends an intervention result to the ledger.
func (s *SQLiteStore) RecordIntervention(ctx context.Context, owner, repo string, result *types.InterventionResult) error {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interventions (id, owner, repo, intervention, signal_key, success, actions, url, error, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.ID, owner, repo, result.Intervention, result.SignalKey,
		boolToInt(result.Success), string(actions), result.URL, result.Error,
		result.ExecutedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record intervention: %w", err)
	}
	return nil
}

// HasRecentIntervention reports whether a successful intervention for the
// signal key executed within the trailing window.
func (s *SQLiteStore) HasRecentIntervention(ctx context.Context, owner, repo, signalKey string, window time.Duration) (bool, error) {
	cutoff := s.now().UTC().Add(-window).UnixNano()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM interventions
		WHERE owner = ? AND repo = ? AND signal_key = ? AND success = 1 AND executed_at > ?
	`, owner, repo, signalKey, cutoff).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check interventions: %w", err)
	}
	return count > 0, nil
}

// AppendEvent adds a guardian event to the audit feed.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *events.GuardianEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guardian_events (id, type, timestamp, owner, repo, severity, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, string(event.Type), event.Timestamp.UTC().UnixNano(),
		event.Owner, event.Repo, string(event.Severity), event.Message, string(data))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first. A non-positive
// limit returns everything.
func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]*events.GuardianEvent, error) {
	query := `
		SELECT id, type, timestamp, owner, repo, severity, message, data
		FROM guardian_events ORDER BY timestamp DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*events.GuardianEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func scanEvent(rows *sql.Rows) (*events.GuardianEvent, error) {
	var (
		event     events.GuardianEvent
		eventType string
		severity  string
		timestamp int64
		data      string
	)
	if err := rows.Scan(&event.ID, &eventType, &timestamp, &event.Owner,
		&event.Repo, &severity, &event.Message, &data); err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	event.Type = events.EventType(eventType)
	event.Severity = events.EventSeverity(severity)
	event.Timestamp = time.Unix(0, timestamp).UTC()
	if data != "" {
		if err := json.Unmarshal([]byte(data), &event.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
	}
	return &event, nil
}

// CleanupEventsByAge deletes audit events older than the retention period.
func (s *SQLiteStore) CleanupEventsByAge(ctx context.Context, retentionDays, batchSize int) (int, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays).UnixNano()
	deleted, err := s.deleteBatched(ctx, `
		DELETE FROM guardian_events WHERE id IN (
			SELECT id FROM guardian_events WHERE timestamp < ? ORDER BY timestamp ASC LIMIT ?
		)
	`, cutoff, batchSize)
	if err != nil {
		return deleted, fmt.Errorf("failed to delete old events: %w", err)
	}
	return deleted, nil
}

// CleanupEventsByGlobalLimit keeps the audit feed under a hard cap,
// deleting oldest first.
func (s *SQLiteStore) CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error) {
	if globalLimit < 1 {
		return 0, fmt.Errorf("global limit must be at least 1")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guardian_events`).Scan(&count); err != nil {
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

		result, err := s.db.ExecContext(ctx, `
			DELETE FROM guardian_events WHERE id IN (
				SELECT id FROM guardian_events ORDER BY timestamp ASC LIMIT ?
			)
		`, batch)
		if err != nil {
			return total, fmt.Errorf("failed to delete excess events: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			break
		}
		total += int(rows)
	}
	return total, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
