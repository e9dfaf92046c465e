// Package memory provides an in-memory catalog.Store used by tests and local
// development. Pagination and ordering semantics match the Mongo backend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/storekit/searchsync/internal/catalog"
)

// Store is an in-memory, mutable catalog. Mutations exist so tests can stage
// source-of-truth states; the sync service itself only uses the read side.
type Store struct {
	mu        sync.RWMutex
	products  map[string]catalog.Product
	customers map[string]catalog.Customer
	items     map[string]catalog.InventoryItem
}

// NewStore creates an empty in-memory catalog.
func NewStore() *Store {
	return &Store{
		products:  make(map[string]catalog.Product),
		customers: make(map[string]catalog.Customer),
		items:     make(map[string]catalog.InventoryItem),
	}
}

// PutProduct stages a product.
func (s *Store) PutProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// DeleteProduct removes a product.
func (s *Store) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

// PutCustomer stages a customer.
func (s *Store) PutCustomer(c catalog.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

// DeleteCustomer removes a customer.
func (s *Store) DeleteCustomer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.customers, id)
}

// PutInventoryItem stages an inventory item.
func (s *Store) PutInventoryItem(i catalog.InventoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[i.ID] = i
}

// DeleteInventoryItem removes an inventory item.
func (s *Store) DeleteInventoryItem(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// newestFirst orders by (created_at desc, id desc), the stable scan order.
func newestFirst(createdA int64, idA string, createdB int64, idB string) bool {
	if createdA != createdB {
		return createdA > createdB
	}
	return idA > idB
}

func pageBounds(total int, page catalog.Page) (int, int) {
	lo := page.Skip
	if lo > total {
		lo = total
	}
	hi := lo + page.Take
	if page.Take <= 0 || hi > total {
		hi = total
	}
	return lo, hi
}

// ListProducts returns one page of products, newest first.
func (s *Store) ListProducts(_ context.Context, page catalog.Page) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		return newestFirst(all[i].CreatedAt.UnixMilli(), all[i].ID, all[j].CreatedAt.UnixMilli(), all[j].ID)
	})

	lo, hi := pageBounds(len(all), page)
	return all[lo:hi], nil
}

// ListCustomers returns one page of customers, newest first.
func (s *Store) ListCustomers(_ context.Context, page catalog.Page) ([]catalog.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]catalog.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		return newestFirst(all[i].CreatedAt.UnixMilli(), all[i].ID, all[j].CreatedAt.UnixMilli(), all[j].ID)
	})

	lo, hi := pageBounds(len(all), page)
	return all[lo:hi], nil
}

// ListInventory returns one page of items fanned out to resolved pairs.
func (s *Store) ListInventory(_ context.Context, page catalog.Page) ([]catalog.InventoryPair, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]catalog.InventoryItem, 0, len(s.items))
	for _, i := range s.items {
		all = append(all, i)
	}
	sort.Slice(all, func(i, j int) bool {
		return newestFirst(all[i].CreatedAt.UnixMilli(), all[i].ID, all[j].CreatedAt.UnixMilli(), all[j].ID)
	})

	lo, hi := pageBounds(len(all), page)

	var pairs []catalog.InventoryPair
	for _, item := range all[lo:hi] {
		pairs = append(pairs, s.pairsLocked(item)...)
	}
	return pairs, hi - lo, nil
}

// pairsLocked fans an item out to its (item, level) pairs with the variant
// and product resolved. Caller holds the read lock.
func (s *Store) pairsLocked(item catalog.InventoryItem) []catalog.InventoryPair {
	variant, product := s.resolveLocked(item.VariantID)

	pairs := make([]catalog.InventoryPair, 0, len(item.Levels))
	for _, level := range item.Levels {
		pairs = append(pairs, catalog.InventoryPair{
			Item:    item,
			Level:   level,
			Variant: variant,
			Product: product,
		})
	}
	return pairs
}

func (s *Store) resolveLocked(variantID string) (*catalog.Variant, *catalog.Product) {
	for _, p := range s.products {
		for i := range p.Variants {
			if p.Variants[i].ID == variantID {
				v := p.Variants[i]
				prod := p
				return &v, &prod
			}
		}
	}
	return nil, nil
}

// Count returns the expected document count for the kind.
func (s *Store) Count(_ context.Context, kind catalog.Kind) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch kind {
	case catalog.KindProducts:
		return int64(len(s.products)), nil
	case catalog.KindCustomers:
		return int64(len(s.customers)), nil
	case catalog.KindInventory:
		var n int64
		for _, item := range s.items {
			if v, p := s.resolveLocked(item.VariantID); v != nil && p != nil {
				n += int64(len(item.Levels))
			}
		}
		return n, nil
	default:
		return 0, catalog.ErrUnknownKind
	}
}

// MaxUpdatedAt returns the freshest updated_at for the kind in epoch ms.
func (s *Store) MaxUpdatedAt(_ context.Context, kind catalog.Kind) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max int64
	bump := func(ms int64) {
		if ms > max {
			max = ms
		}
	}

	switch kind {
	case catalog.KindProducts:
		for _, p := range s.products {
			bump(p.UpdatedAt.UnixMilli())
		}
	case catalog.KindCustomers:
		for _, c := range s.customers {
			bump(c.UpdatedAt.UnixMilli())
		}
	case catalog.KindInventory:
		for _, i := range s.items {
			bump(i.UpdatedAt.UnixMilli())
		}
	default:
		return 0, catalog.ErrUnknownKind
	}

	return max, nil
}

// GetProduct fetches one product.
func (s *Store) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

// GetCustomer fetches one customer.
func (s *Store) GetCustomer(_ context.Context, id string) (*catalog.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &c, nil
}

// GetInventoryPairs fetches the resolved pairs for one item.
func (s *Store) GetInventoryPairs(_ context.Context, itemID string) ([]catalog.InventoryPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return s.pairsLocked(item), nil
}

// ProductIDForVariant resolves a variant's parent product id.
func (s *Store) ProductIDForVariant(_ context.Context, variantID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, product := s.resolveLocked(variantID)
	if product == nil {
		return "", catalog.ErrNotFound
	}
	return product.ID, nil
}

// Close is a no-op.
func (s *Store) Close(context.Context) error {
	return nil
}
