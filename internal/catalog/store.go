package catalog

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record does not exist in the catalog.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownKind is returned for entity kinds the store does not serve.
	ErrUnknownKind = errors.New("unknown entity kind")
)

// Page bounds one batch of a paginated scan. Order must be stable so that a
// full pass visits every record exactly once even while new records are
// inserted mid-run.
type Page struct {
	Take int
	Skip int
}

// Store is the read-only view of the source of truth. Implementations must
// eager-load the relations the transformers need (variants, category parent
// chains, inventory levels).
type Store interface {
	// ListProducts returns one page of products ordered by
	// (created_at desc, _id desc).
	ListProducts(ctx context.Context, page Page) ([]Product, error)

	// ListCustomers returns one page of customers ordered by
	// (created_at desc, _id desc).
	ListCustomers(ctx context.Context, page Page) ([]Customer, error)

	// ListInventory returns one page of inventory items fanned out to
	// (item, level) pairs with their variant and product resolved where
	// possible. Page bounds apply to items, not pairs; the second return is
	// the number of items fetched so callers can advance the scan even when
	// a page fans out to zero pairs.
	ListInventory(ctx context.Context, page Page) ([]InventoryPair, int, error)

	// Count returns the number of search documents the source expects for
	// the kind. For inventory this counts resolvable (item, level) pairs.
	Count(ctx context.Context, kind Kind) (int64, error)

	// MaxUpdatedAt returns the most recent updated_at for the kind in epoch
	// milliseconds, or 0 when the kind has no records.
	MaxUpdatedAt(ctx context.Context, kind Kind) (int64, error)

	// GetProduct fetches one product with relations. Returns ErrNotFound
	// when absent.
	GetProduct(ctx context.Context, id string) (*Product, error)

	// GetCustomer fetches one customer. Returns ErrNotFound when absent.
	GetCustomer(ctx context.Context, id string) (*Customer, error)

	// GetInventoryPairs fetches the resolved pairs for one inventory item.
	// Returns ErrNotFound when the item is absent.
	GetInventoryPairs(ctx context.Context, itemID string) ([]InventoryPair, error)

	// ProductIDForVariant resolves the parent product of a variant. Returns
	// ErrNotFound when the variant is absent.
	ProductIDForVariant(ctx context.Context, variantID string) (string, error)

	// Close releases the store's connections.
	Close(ctx context.Context) error
}
