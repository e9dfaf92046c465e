// Package syncer keeps the search index consistent with the catalog source
// of truth. It implements the full resync workflow, the per-event
// incremental upsert, the drift detector and the per-entity concurrency
// guard.
//
// The index is treated as an eventually consistent cache: every write is an
// idempotent whole-document upsert, failed runs are never rolled back, and a
// crashed resync restarts from offset zero. There is no persisted watermark;
// that trade-off is acceptable at moderate catalog sizes.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storekit/searchsync/internal/catalog"
	"github.com/storekit/searchsync/internal/searchindex"
	"github.com/storekit/searchsync/internal/transform"
)

// Syncer runs the sync workflows for every entity kind.
type Syncer struct {
	cfg     Config
	store   catalog.Store
	writer  searchindex.Writer
	guard   *Guard
	filters map[catalog.Kind]*Filter
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	lastRuns map[catalog.Kind]RunInfo
}

// New creates a Syncer, compiling any configured eligibility filters.
func New(cfg Config, store catalog.Store, writer searchindex.Writer, logger *slog.Logger) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	filters := make(map[catalog.Kind]*Filter)
	for kindName, expr := range cfg.Filters {
		kind := catalog.Kind(kindName)
		if !kind.IsValid() {
			return nil, fmt.Errorf("filter configured for unknown kind %q", kindName)
		}
		f, err := CompileFilter(expr)
		if err != nil {
			return nil, err
		}
		filters[kind] = f
	}

	return &Syncer{
		cfg:      cfg,
		store:    store,
		writer:   writer,
		guard:    NewGuard(),
		filters:  filters,
		logger:   logger.With("component", "syncer"),
		now:      time.Now,
		lastRuns: make(map[catalog.Kind]RunInfo),
	}, nil
}

// Guard exposes the concurrency guard, mainly for tests.
func (s *Syncer) Guard() *Guard {
	return s.guard
}

// LastRun returns the recorded outcome of the most recent full resync for
// the kind.
func (s *Syncer) LastRun(kind catalog.Kind) (RunInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.lastRuns[kind]
	return info, ok
}

// SyncNow performs a full catalog resync for one entity kind.
//
// If another resync for the kind is in flight the call returns immediately
// with StatusAlreadyRunning — a legitimate skip, not an error. On any
// failure mid-run the guard is released, batches already written stay
// written, and the error propagates; the next run restarts from scratch.
func (s *Syncer) SyncNow(ctx context.Context, kind catalog.Kind) (Result, error) {
	if !kind.IsValid() {
		return Result{}, catalog.ErrUnknownKind
	}

	if !s.guard.TryAcquire(kind) {
		s.logger.Info("sync already in progress, skipping", "kind", kind)
		return Result{Status: StatusAlreadyRunning}, nil
	}
	defer s.guard.Release(kind)

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	started := s.now()
	s.logger.Info("starting full resync", "kind", kind, "batchSize", s.cfg.BatchSize)

	synced, pruned, err := s.runPass(ctx, kind)

	info := RunInfo{
		StartedAt:  started,
		FinishedAt: s.now(),
		Synced:     synced,
		Pruned:     pruned,
	}
	if err != nil {
		info.Error = err.Error()
	}
	s.mu.Lock()
	s.lastRuns[kind] = info
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("full resync failed",
			"kind", kind,
			"synced", synced,
			"duration", info.FinishedAt.Sub(started),
			"error", err)
		return Result{}, fmt.Errorf("full resync for %s failed: %w", kind, err)
	}

	s.logger.Info("full resync completed",
		"kind", kind,
		"synced", synced,
		"pruned", pruned,
		"duration", info.FinishedAt.Sub(started))
	return Result{Status: StatusSyncedNow, Synced: synced}, nil
}

// runPass executes the scan-transform-upsert loop plus the prune pass.
func (s *Syncer) runPass(ctx context.Context, kind catalog.Kind) (synced, pruned int, err error) {
	if err := s.writer.ConfigureSchema(ctx, kind, SchemaFor(kind)); err != nil {
		return 0, 0, err
	}

	seen := make(map[string]struct{})
	var lastTask searchindex.Task
	skip := 0

	for {
		if err := ctx.Err(); err != nil {
			return synced, pruned, err
		}

		docs, fetched, err := s.fetchPage(ctx, kind, catalog.Page{Take: s.cfg.BatchSize, Skip: skip})
		if err != nil {
			return synced, pruned, err
		}
		if fetched == 0 {
			break
		}
		skip += fetched

		if len(docs) > 0 {
			task, err := s.writer.Upsert(ctx, kind, docs)
			if err != nil {
				return synced, pruned, err
			}
			lastTask = task
			for _, doc := range docs {
				seen[doc.ID()] = struct{}{}
			}
			synced += len(docs)
		}

		if fetched < s.cfg.BatchSize {
			break
		}

		// Cooperative yield between batches.
		if s.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return synced, pruned, ctx.Err()
			case <-time.After(s.cfg.BatchDelay):
			}
		}
	}

	pruned, err = s.prune(ctx, kind, seen)
	if err != nil {
		return synced, pruned, err
	}

	if s.cfg.WaitForDurability && lastTask.Valid {
		if err := s.writer.WaitFor(ctx, lastTask); err != nil {
			return synced, pruned, err
		}
	}

	return synced, pruned, nil
}

// fetchPage fetches one batch of source records and transforms them, applying
// the kind's eligibility filter. The second return is the number of source
// records fetched, which drives scan progress independently of how many
// documents survived transformation.
func (s *Syncer) fetchPage(ctx context.Context, kind catalog.Kind, page catalog.Page) ([]transform.Document, int, error) {
	switch kind {
	case catalog.KindProducts:
		records, err := s.store.ListProducts(ctx, page)
		if err != nil {
			return nil, 0, err
		}
		docs := make([]transform.Document, 0, len(records))
		for _, r := range records {
			docs = s.appendEligible(kind, docs, transform.Product(r))
		}
		return docs, len(records), nil

	case catalog.KindCustomers:
		records, err := s.store.ListCustomers(ctx, page)
		if err != nil {
			return nil, 0, err
		}
		docs := make([]transform.Document, 0, len(records))
		for _, r := range records {
			docs = s.appendEligible(kind, docs, transform.Customer(r))
		}
		return docs, len(records), nil

	case catalog.KindInventory:
		pairs, fetched, err := s.store.ListInventory(ctx, page)
		if err != nil {
			return nil, 0, err
		}
		docs := make([]transform.Document, 0, len(pairs))
		for _, pair := range pairs {
			doc, ok := transform.Inventory(pair)
			if !ok {
				continue // orphan, must never reach the index
			}
			docs = s.appendEligible(kind, docs, doc)
		}
		return docs, fetched, nil

	default:
		return nil, 0, catalog.ErrUnknownKind
	}
}

// countEligible scans the source and counts the documents that would be
// indexed after transformation and filtering. The drift check uses it for
// kinds with an eligibility filter, where the raw store count is not
// comparable to the index count.
func (s *Syncer) countEligible(ctx context.Context, kind catalog.Kind) (int64, error) {
	var n int64
	skip := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		docs, fetched, err := s.fetchPage(ctx, kind, catalog.Page{Take: s.cfg.BatchSize, Skip: skip})
		if err != nil {
			return 0, err
		}
		if fetched == 0 {
			break
		}
		n += int64(len(docs))
		skip += fetched

		if fetched < s.cfg.BatchSize {
			break
		}
	}
	return n, nil
}

// appendEligible applies the kind's filter. Evaluation failures fail open
// with a warning: a broken filter must not silently empty the index.
func (s *Syncer) appendEligible(kind catalog.Kind, docs []transform.Document, doc transform.Document) []transform.Document {
	f := s.filters[kind]
	if f == nil {
		return append(docs, doc)
	}

	matched, err := f.Matches(doc)
	if err != nil {
		s.logger.Warn("filter evaluation failed, keeping document",
			"kind", kind, "id", doc.ID(), "error", err)
		return append(docs, doc)
	}
	if !matched {
		return docs
	}
	return append(docs, doc)
}

// prune deletes index documents whose source record no longer exists (or is
// no longer eligible). This is how deletions converge without the
// delete-all-then-reinsert window: the index is never empty mid-resync.
func (s *Syncer) prune(ctx context.Context, kind catalog.Kind, seen map[string]struct{}) (int, error) {
	ids, err := s.writer.ListIDs(ctx, kind)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, err := s.writer.DeleteByID(ctx, kind, id); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}
