// Package searchindex wraps the external search index's document API behind
// a Writer interface with at-least-once, whole-document replace semantics.
package searchindex

import (
	"context"
	"errors"

	"github.com/storekit/searchsync/internal/catalog"
	"github.com/storekit/searchsync/internal/transform"
)

var (
	// ErrTaskFailed is returned by WaitFor when the index reports the write
	// task as failed or canceled.
	ErrTaskFailed = errors.New("index task failed")
)

// Task is a handle to an asynchronous index write. Writes are durable only
// once WaitFor on the handle returns. The zero Task is not a valid handle:
// task uids start at 0, so Valid distinguishes a real handle from "no write
// happened".
type Task struct {
	UID   int64
	Valid bool
}

// Schema declares the attribute sets the index needs for filtering, sorting
// and full-text search. Applying a schema is idempotent and cheap, so it is
// safe to reapply on every full resync.
type Schema struct {
	Filterable []string
	Sortable   []string
	Searchable []string
}

// Writer is the document API of the external search index. Every write is an
// at-least-once whole-document replace keyed by primary id: repeating a write
// with identical content is a no-op for readers, and documents are never
// patched field-by-field.
//
// Callers needing read-after-write consistency must WaitFor the returned
// task; background callers may fire and forget.
type Writer interface {
	// ConfigureSchema declares the filterable/sortable/searchable sets for
	// the kind's index.
	ConfigureSchema(ctx context.Context, kind catalog.Kind, schema Schema) error

	// ReplaceAll deletes every document for the kind, then bulk-inserts the
	// fresh set, as two separate non-transactional steps. The returned task
	// covers the insert.
	ReplaceAll(ctx context.Context, kind catalog.Kind, docs []transform.Document) (Task, error)

	// Upsert adds or wholly replaces the given documents.
	Upsert(ctx context.Context, kind catalog.Kind, docs []transform.Document) (Task, error)

	// DeleteByID removes one document by primary id. Deleting an absent id
	// succeeds.
	DeleteByID(ctx context.Context, kind catalog.Kind, id string) (Task, error)

	// WaitFor blocks until the task is durably applied by the index.
	WaitFor(ctx context.Context, task Task) error

	// Count returns the number of documents currently in the kind's index.
	Count(ctx context.Context, kind catalog.Kind) (int64, error)

	// LastUpdatedAt returns the updated_at of the most recently updated
	// document in epoch milliseconds via a single sorted query, or 0 when
	// the index is empty.
	LastUpdatedAt(ctx context.Context, kind catalog.Kind) (int64, error)

	// ListIDs returns the primary ids of every document in the kind's
	// index. Used by the resync prune pass.
	ListIDs(ctx context.Context, kind catalog.Kind) ([]string, error)

	// Close releases client resources.
	Close() error
}
