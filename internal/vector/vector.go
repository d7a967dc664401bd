// Package vector indexes lessons and triaged failures for retrieval. The
// index is lexical: documents are scored by query-token overlap, which
// keeps retrieval deterministic and dependency-free while serving the
// same port a true embedding store would.
package vector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/redinc23/hathor-red/internal/config"
)

// defaultQueryLimit bounds Query when the caller passes no limit.
const defaultQueryLimit = 10

// searchLimit bounds SimilaritySearch. Ten sources saturate answer
// confidence, so returning more would never change a caller's result.
const searchLimit = 10

// Document is one indexed record with its relevance to the last query.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
	Score    float64
}

// Store indexes documents and retrieves them by lexical relevance.
type Store interface {
	// Query returns up to limit documents overlapping the text, best first.
	// Documents with no overlap are not returned.
	Query(ctx context.Context, text string, limit int) ([]Document, error)

	// SimilaritySearch returns documents whose metadata matches every
	// filter, best first. An empty filter value matches any document.
	SimilaritySearch(ctx context.Context, query string, filters map[string]string) ([]Document, error)

	// Upsert stores a document, replacing any previous version.
	Upsert(ctx context.Context, id, content string, metadata map[string]string) error
}

// New builds the backend named by cfg.
func New(cfg *config.VectorConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		path := cfg.Path
		if path == "" {
			return nil, fmt.Errorf("vector.path is required for the sqlite backend")
		}
		return NewSQLite(path)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend: %q", cfg.Backend)
	}
}

// tokenize lowercases text and splits on non-alphanumeric runs, dropping
// single-character tokens.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(field) > 1 {
			tokens[field] = struct{}{}
		}
	}
	return tokens
}

// indexText is the searchable surface of a document: its content plus its
// metadata values, so "team:platform" finds documents tagged team=platform.
func indexText(content string, metadata map[string]string) string {
	var b strings.Builder
	b.WriteString(content)
	for _, v := range metadata {
		b.WriteByte(' ')
		b.WriteString(v)
	}
	return b.String()
}

// lexicalScore is the share of query tokens present in the document.
func lexicalScore(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for token := range query {
		if _, ok := doc[token]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// matchesFilters reports whether metadata satisfies every filter. Empty
// filter values are wildcards.
func matchesFilters(metadata, filters map[string]string) bool {
	for key, want := range filters {
		if want == "" {
			continue
		}
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// rank orders documents best first, breaking score ties by ID so results
// are stable across runs.
func rank(docs []Document) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].ID < docs[j].ID
	})
}
