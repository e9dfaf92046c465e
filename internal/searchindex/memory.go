package searchindex

import (
	"context"
	"sort"
	"sync"

	"github.com/storekit/searchsync/internal/catalog"
	"github.com/storekit/searchsync/internal/transform"
)

// MemoryWriter is an in-memory Writer used by tests and local development.
// Writes are instantly durable; WaitFor never blocks. Semantics mirror the
// external index: whole-document replace keyed by "id".
type MemoryWriter struct {
	mu      sync.RWMutex
	docs    map[catalog.Kind]map[string]transform.Document
	schemas map[catalog.Kind]Schema
	nextUID int64

	// FailUpserts injects a transient error on every Upsert call while set.
	FailUpserts error

	// UpsertBatches counts Upsert calls per kind, for batching assertions.
	UpsertBatches map[catalog.Kind]int
}

// NewMemoryWriter creates an empty in-memory index.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{
		docs:          make(map[catalog.Kind]map[string]transform.Document),
		schemas:       make(map[catalog.Kind]Schema),
		UpsertBatches: make(map[catalog.Kind]int),
	}
}

func (w *MemoryWriter) kindDocs(kind catalog.Kind) map[string]transform.Document {
	if w.docs[kind] == nil {
		w.docs[kind] = make(map[string]transform.Document)
	}
	return w.docs[kind]
}

func (w *MemoryWriter) task() Task {
	uid := w.nextUID
	w.nextUID++
	return Task{UID: uid, Valid: true}
}

// ConfigureSchema records the schema for later inspection.
func (w *MemoryWriter) ConfigureSchema(_ context.Context, kind catalog.Kind, schema Schema) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.schemas[kind] = schema
	return nil
}

// Schema returns the last configured schema for the kind.
func (w *MemoryWriter) Schema(kind catalog.Kind) Schema {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.schemas[kind]
}

// ReplaceAll clears the kind's documents and inserts the fresh set.
func (w *MemoryWriter) ReplaceAll(_ context.Context, kind catalog.Kind, docs []transform.Document) (Task, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fresh := make(map[string]transform.Document, len(docs))
	for _, doc := range docs {
		fresh[doc.ID()] = doc
	}
	w.docs[kind] = fresh
	return w.task(), nil
}

// Upsert adds or wholly replaces the given documents.
func (w *MemoryWriter) Upsert(_ context.Context, kind catalog.Kind, docs []transform.Document) (Task, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.FailUpserts != nil {
		return Task{}, w.FailUpserts
	}
	if len(docs) == 0 {
		return Task{}, nil
	}

	w.UpsertBatches[kind]++
	bucket := w.kindDocs(kind)
	for _, doc := range docs {
		bucket[doc.ID()] = doc
	}
	return w.task(), nil
}

// DeleteByID removes one document. Absent ids succeed.
func (w *MemoryWriter) DeleteByID(_ context.Context, kind catalog.Kind, id string) (Task, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.kindDocs(kind), id)
	return w.task(), nil
}

// WaitFor is a no-op: memory writes are instantly durable.
func (w *MemoryWriter) WaitFor(context.Context, Task) error {
	return nil
}

// Count returns the number of documents for the kind.
func (w *MemoryWriter) Count(_ context.Context, kind catalog.Kind) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return int64(len(w.docs[kind])), nil
}

// LastUpdatedAt returns the freshest updated_at for the kind, or 0.
func (w *MemoryWriter) LastUpdatedAt(_ context.Context, kind catalog.Kind) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var max int64
	for _, doc := range w.docs[kind] {
		if ms, ok := doc["updated_at"].(int64); ok && ms > max {
			max = ms
		}
	}
	return max, nil
}

// ListIDs returns every document id for the kind in sorted order.
func (w *MemoryWriter) ListIDs(_ context.Context, kind catalog.Kind) ([]string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ids := make([]string, 0, len(w.docs[kind]))
	for id := range w.docs[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Get returns one document and whether it exists. Test helper.
func (w *MemoryWriter) Get(kind catalog.Kind, id string) (transform.Document, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	doc, ok := w.docs[kind][id]
	return doc, ok
}

// Close is a no-op.
func (w *MemoryWriter) Close() error {
	return nil
}
