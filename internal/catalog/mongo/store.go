// Package mongo implements the read-only catalog.Store on MongoDB, the
// relational source of truth populated by the commerce module.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/storekit/searchsync/internal/catalog"
)

// Config holds the catalog store configuration.
type Config struct {
	// URI is the MongoDB connection string.
	URI string `yaml:"uri"`

	// Database is the commerce database name.
	Database string `yaml:"database"`
}

// DefaultConfig returns the default catalog store configuration.
func DefaultConfig() Config {
	return Config{
		URI:      "mongodb://localhost:27017",
		Database: "commerce",
	}
}

const (
	productsCollection  = "products"
	customersCollection = "customers"
	inventoryCollection = "inventory_items"
)

// Store reads commerce records from MongoDB. It never writes.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	products  *mongo.Collection
	customers *mongo.Collection
	inventory *mongo.Collection
}

// NewStore connects to the commerce database and verifies the connection.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to catalog store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping catalog store: %w", err)
	}

	db := client.Database(cfg.Database)
	return &Store{
		client:    client,
		db:        db,
		products:  db.Collection(productsCollection),
		customers: db.Collection(customersCollection),
		inventory: db.Collection(inventoryCollection),
	}, nil
}

// scanOrder is the stable pagination order: newest first, id as tiebreak, so
// a full pass visits every pre-existing record exactly once even while new
// records are inserted mid-run.
var scanOrder = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

func pageOptions(page catalog.Page) *options.FindOptions {
	opts := options.Find().SetSort(scanOrder).SetSkip(int64(page.Skip))
	if page.Take > 0 {
		opts = opts.SetLimit(int64(page.Take))
	}
	return opts
}

func (s *Store) collection(kind catalog.Kind) (*mongo.Collection, error) {
	switch kind {
	case catalog.KindProducts:
		return s.products, nil
	case catalog.KindCustomers:
		return s.customers, nil
	case catalog.KindInventory:
		return s.inventory, nil
	default:
		return nil, catalog.ErrUnknownKind
	}
}

// ListProducts returns one page of products with embedded relations.
func (s *Store) ListProducts(ctx context.Context, page catalog.Page) ([]catalog.Product, error) {
	cursor, err := s.products.Find(ctx, bson.M{}, pageOptions(page))
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	var out []catalog.Product
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return out, nil
}

// ListCustomers returns one page of customers.
func (s *Store) ListCustomers(ctx context.Context, page catalog.Page) ([]catalog.Customer, error) {
	cursor, err := s.customers.Find(ctx, bson.M{}, pageOptions(page))
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}

	var out []catalog.Customer
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode customers: %w", err)
	}
	return out, nil
}

// ListInventory returns one page of inventory items fanned out to resolved
// (item, level) pairs. Variants are resolved with a single $in query for the
// whole page, not one lookup per item.
func (s *Store) ListInventory(ctx context.Context, page catalog.Page) ([]catalog.InventoryPair, int, error) {
	cursor, err := s.inventory.Find(ctx, bson.M{}, pageOptions(page))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list inventory items: %w", err)
	}

	var items []catalog.InventoryItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("failed to decode inventory items: %w", err)
	}
	if len(items) == 0 {
		return nil, 0, nil
	}

	variantIDs := make([]string, 0, len(items))
	for _, item := range items {
		if item.VariantID != "" {
			variantIDs = append(variantIDs, item.VariantID)
		}
	}

	byVariant, err := s.productsByVariant(ctx, variantIDs)
	if err != nil {
		return nil, 0, err
	}

	var pairs []catalog.InventoryPair
	for _, item := range items {
		variant, product := byVariant.resolve(item.VariantID)
		for _, level := range item.Levels {
			pairs = append(pairs, catalog.InventoryPair{
				Item:    item,
				Level:   level,
				Variant: variant,
				Product: product,
			})
		}
	}
	return pairs, len(items), nil
}

// variantIndex maps variant ids to their owning products.
type variantIndex map[string]*catalog.Product

func (idx variantIndex) resolve(variantID string) (*catalog.Variant, *catalog.Product) {
	product, ok := idx[variantID]
	if !ok {
		return nil, nil
	}
	for i := range product.Variants {
		if product.Variants[i].ID == variantID {
			return &product.Variants[i], product
		}
	}
	return nil, nil
}

func (s *Store) productsByVariant(ctx context.Context, variantIDs []string) (variantIndex, error) {
	idx := make(variantIndex)
	if len(variantIDs) == 0 {
		return idx, nil
	}

	cursor, err := s.products.Find(ctx, bson.M{"variants._id": bson.M{"$in": variantIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve variants: %w", err)
	}

	var products []catalog.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode variant parents: %w", err)
	}

	for i := range products {
		for _, v := range products[i].Variants {
			idx[v.ID] = &products[i]
		}
	}
	return idx, nil
}

// Count returns the expected document count for the kind. Inventory counts
// resolvable (item, level) pairs so it is comparable to the index count.
func (s *Store) Count(ctx context.Context, kind catalog.Kind) (int64, error) {
	if kind == catalog.KindInventory {
		return s.countInventoryPairs(ctx)
	}

	coll, err := s.collection(kind)
	if err != nil {
		return 0, err
	}

	n, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return n, nil
}

func (s *Store) countInventoryPairs(ctx context.Context) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         productsCollection,
			"localField":   "variant_id",
			"foreignField": "variants._id",
			"as":           "product",
		}}},
		{{Key: "$match", Value: bson.M{"product": bson.M{"$ne": bson.A{}}}}},
		{{Key: "$unwind", Value: "$levels"}},
		{{Key: "$count", Value: "pairs"}},
	}

	cursor, err := s.inventory.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to count inventory pairs: %w", err)
	}

	var rows []struct {
		Pairs int64 `bson:"pairs"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("failed to decode inventory pair count: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Pairs, nil
}

// MaxUpdatedAt returns the freshest updated_at for the kind in epoch
// milliseconds, or 0 when the kind has no records.
func (s *Store) MaxUpdatedAt(ctx context.Context, kind catalog.Kind) (int64, error) {
	coll, err := s.collection(kind)
	if err != nil {
		return 0, err
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetProjection(bson.M{"updated_at": 1})

	var row struct {
		UpdatedAt primitive.DateTime `bson:"updated_at"`
	}
	err = coll.FindOne(ctx, bson.M{}, opts).Decode(&row)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to fetch max updated_at for %s: %w", kind, err)
	}
	return int64(row.UpdatedAt), nil
}

// GetProduct fetches one product with embedded relations.
func (s *Store) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	var p catalog.Product
	err := s.products.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch product %s: %w", id, err)
	}
	return &p, nil
}

// GetCustomer fetches one customer.
func (s *Store) GetCustomer(ctx context.Context, id string) (*catalog.Customer, error) {
	var c catalog.Customer
	err := s.customers.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch customer %s: %w", id, err)
	}
	return &c, nil
}

// GetInventoryPairs fetches the resolved pairs for one inventory item.
func (s *Store) GetInventoryPairs(ctx context.Context, itemID string) ([]catalog.InventoryPair, error) {
	var item catalog.InventoryItem
	err := s.inventory.FindOne(ctx, bson.M{"_id": itemID}).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch inventory item %s: %w", itemID, err)
	}

	byVariant, err := s.productsByVariant(ctx, []string{item.VariantID})
	if err != nil {
		return nil, err
	}

	variant, product := byVariant.resolve(item.VariantID)
	pairs := make([]catalog.InventoryPair, 0, len(item.Levels))
	for _, level := range item.Levels {
		pairs = append(pairs, catalog.InventoryPair{
			Item:    item,
			Level:   level,
			Variant: variant,
			Product: product,
		})
	}
	return pairs, nil
}

// ProductIDForVariant resolves the parent product of a variant.
func (s *Store) ProductIDForVariant(ctx context.Context, variantID string) (string, error) {
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})

	var row struct {
		ID string `bson:"_id"`
	}
	err := s.products.FindOne(ctx, bson.M{"variants._id": variantID}, opts).Decode(&row)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", catalog.ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve variant %s: %w", variantID, err)
	}
	return row.ID, nil
}

// Close disconnects from the catalog store.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
