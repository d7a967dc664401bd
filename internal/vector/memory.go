package vector

import (
	"context"
	"sync"
)

// Memory is the in-process backend used in tests and the default when no
// index path is configured.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]Document

	// Err, when set, is returned by every call.
	Err error
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty index.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]Document)}
}

func (m *Memory) Upsert(_ context.Context, id, content string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	m.docs[id] = Document{ID: id, Content: content, Metadata: meta}
	return nil
}

func (m *Memory) Query(_ context.Context, text string, limit int) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	query := tokenize(text)
	var matched []Document
	for _, doc := range m.docs {
		score := lexicalScore(query, tokenize(indexText(doc.Content, doc.Metadata)))
		if score <= 0 {
			continue
		}
		doc.Score = score
		matched = append(matched, copyDoc(doc))
	}

	rank(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *Memory) SimilaritySearch(_ context.Context, query string, filters map[string]string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	tokens := tokenize(query)
	var matched []Document
	for _, doc := range m.docs {
		if !matchesFilters(doc.Metadata, filters) {
			continue
		}
		doc.Score = lexicalScore(tokens, tokenize(indexText(doc.Content, doc.Metadata)))
		matched = append(matched, copyDoc(doc))
	}

	rank(matched)
	if len(matched) > searchLimit {
		matched = matched[:searchLimit]
	}
	return matched, nil
}

// copyDoc detaches the metadata map so callers cannot mutate the index.
func copyDoc(doc Document) Document {
	meta := make(map[string]string, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	doc.Metadata = meta
	return doc
}
