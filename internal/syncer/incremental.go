package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storekit/searchsync/internal/catalog"
	"github.com/storekit/searchsync/internal/events"
	"github.com/storekit/searchsync/internal/transform"
)

// ApplyEvent reacts to a single entity mutation and pushes just that
// document. The event payload is never trusted as data: the fresh record is
// always re-read from the source of truth so interleaved events cannot
// resurrect stale state.
//
// Returned errors are transient (index or store unreachable) and safe to
// retry; a record or parent that is already gone is a reported skip, since
// retrying cannot change the absence.
func (s *Syncer) ApplyEvent(ctx context.Context, evt events.Event) error {
	logger := s.logger.With("eventId", evt.EventID, "kind", evt.Kind, "action", evt.Action, "id", evt.ID)

	switch evt.Kind {
	case events.SourceProduct:
		return s.syncProduct(ctx, logger, evt.ID, evt.Action == events.ActionDeleted, time.Time{})

	case events.SourceVariant:
		productID := evt.ParentID
		if productID == "" {
			var err error
			productID, err = s.store.ProductIDForVariant(ctx, evt.ID)
			if errors.Is(err, catalog.ErrNotFound) {
				logger.Info("variant has no resolvable parent, skipping")
				return nil
			}
			if err != nil {
				return err
			}
		}
		// A variant mutation does not bump the parent's updated_at, which
		// would leave the freshness drift check blind to this echo. Stamp
		// the document with the current time instead.
		return s.syncProduct(ctx, logger, productID, false, s.now())

	case events.SourceCustomer:
		return s.syncCustomer(ctx, logger, evt.ID, evt.Action == events.ActionDeleted)

	case events.SourceInventoryLevel:
		return s.syncInventoryItem(ctx, logger, evt.ID)

	default:
		return fmt.Errorf("unhandled source kind %q", evt.Kind)
	}
}

func (s *Syncer) syncProduct(ctx context.Context, logger *slog.Logger, id string, deleted bool, stamp time.Time) error {
	record, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		if deleted {
			_, err := s.writer.DeleteByID(ctx, catalog.KindProducts, id)
			return err
		}
		logger.Info("product vanished before sync, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	doc := transform.Product(*record)
	if !stamp.IsZero() {
		doc["updated_at"] = stamp.UnixMilli()
	}
	return s.upsertOne(ctx, catalog.KindProducts, doc, logger)
}

func (s *Syncer) syncCustomer(ctx context.Context, logger *slog.Logger, id string, deleted bool) error {
	record, err := s.store.GetCustomer(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		if deleted {
			_, err := s.writer.DeleteByID(ctx, catalog.KindCustomers, id)
			return err
		}
		logger.Info("customer vanished before sync, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	return s.upsertOne(ctx, catalog.KindCustomers, transform.Customer(*record), logger)
}

// syncInventoryItem refreshes every (item, level) pair document for the
// item. Pairs that turned orphaned or ineligible are deleted so the index
// converges; documents for levels that disappeared entirely are caught by
// the next full resync's prune pass.
func (s *Syncer) syncInventoryItem(ctx context.Context, logger *slog.Logger, itemID string) error {
	pairs, err := s.store.GetInventoryPairs(ctx, itemID)
	if errors.Is(err, catalog.ErrNotFound) {
		logger.Info("inventory item vanished before sync, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	var docs []transform.Document
	for _, pair := range pairs {
		doc, ok := transform.Inventory(pair)
		if !ok {
			if _, err := s.writer.DeleteByID(ctx, catalog.KindInventory, pair.DocumentID()); err != nil {
				return err
			}
			continue
		}
		docs = append(docs, doc)
	}

	eligible := make([]transform.Document, 0, len(docs))
	for _, doc := range docs {
		keep, err := s.eligible(catalog.KindInventory, doc, logger)
		if err != nil {
			return err
		}
		if keep {
			eligible = append(eligible, doc)
			continue
		}
		if _, err := s.writer.DeleteByID(ctx, catalog.KindInventory, doc.ID()); err != nil {
			return err
		}
	}

	if len(eligible) == 0 {
		return nil
	}
	_, err = s.writer.Upsert(ctx, catalog.KindInventory, eligible)
	return err
}

// upsertOne pushes a single document, or deletes it when the kind's filter
// marks it ineligible.
func (s *Syncer) upsertOne(ctx context.Context, kind catalog.Kind, doc transform.Document, logger *slog.Logger) error {
	keep, err := s.eligible(kind, doc, logger)
	if err != nil {
		return err
	}
	if !keep {
		_, err := s.writer.DeleteByID(ctx, kind, doc.ID())
		return err
	}

	_, err = s.writer.Upsert(ctx, kind, []transform.Document{doc})
	return err
}

// eligible evaluates the kind's filter, failing open on evaluation errors.
func (s *Syncer) eligible(kind catalog.Kind, doc transform.Document, logger *slog.Logger) (bool, error) {
	f := s.filters[kind]
	if f == nil {
		return true, nil
	}

	matched, err := f.Matches(doc)
	if err != nil {
		logger.Warn("filter evaluation failed, keeping document", "id", doc.ID(), "error", err)
		return true, nil
	}
	return matched, nil
}
