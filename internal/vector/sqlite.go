package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	updated_at INTEGER NOT NULL
);
`

// SQLite persists the index in the same database file family as the state
// store. Scoring happens in process after a table scan; the corpus is
// lessons and failure records, not web scale.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens or creates the index at path. Passing ":memory:" yields
// an ephemeral index for tests.
func NewSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
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

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Upsert(ctx context.Context, id, content string, metadata map[string]string) error {
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, content, metadata, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, id, content, string(meta), s.now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (s *SQLite) Query(ctx context.Context, text string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	docs, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	query := tokenize(text)
	matched := docs[:0]
	for _, doc := range docs {
		score := lexicalScore(query, tokenize(indexText(doc.Content, doc.Metadata)))
		if score <= 0 {
			continue
		}
		doc.Score = score
		matched = append(matched, doc)
	}

	rank(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *SQLite) SimilaritySearch(ctx context.Context, query string, filters map[string]string) ([]Document, error) {
	docs, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	tokens := tokenize(query)
	matched := docs[:0]
	for _, doc := range docs {
		if !matchesFilters(doc.Metadata, filters) {
			continue
		}
		doc.Score = lexicalScore(tokens, tokenize(indexText(doc.Content, doc.Metadata)))
		matched = append(matched, doc)
	}

	rank(matched)
	if len(matched) > searchLimit {
		matched = matched[:searchLimit]
	}
	return matched, nil
}

// scan loads every document with decoded metadata.
func (s *SQLite) scan(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var meta string
		if err := rows.Scan(&doc.ID, &doc.Content, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}
