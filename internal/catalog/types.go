// Package catalog defines the source-of-truth record types and the read-only
// store contract the sync service consumes. The commerce module owns these
// records; this service never writes to the catalog store.
package catalog

import "time"

// Kind identifies one synchronized entity type. It doubles as the search
// index name for that type.
type Kind string

const (
	KindProducts  Kind = "products"
	KindCustomers Kind = "customers"
	KindInventory Kind = "inventory"
)

// Kinds lists every synchronized entity type.
func Kinds() []Kind {
	return []Kind{KindProducts, KindCustomers, KindInventory}
}

// IsValid checks if the kind is a known entity type.
func (k Kind) IsValid() bool {
	switch k {
	case KindProducts, KindCustomers, KindInventory:
		return true
	default:
		return false
	}
}

// Category is a product category node. Parent chains are eager-loaded by the
// store so handle ancestry can be flattened without extra reads.
type Category struct {
	ID     string    `bson:"_id"`
	Handle string    `bson:"handle"`
	Parent *Category `bson:"parent,omitempty"`
}

// Variant is a purchasable variation of a product.
type Variant struct {
	ID        string `bson:"_id"`
	ProductID string `bson:"product_id"`
	SKU       string `bson:"sku"`
}

// Product is the authoritative product record with its denormalized
// relations eager-loaded.
type Product struct {
	ID          string         `bson:"_id"`
	Title       string         `bson:"title"`
	Handle      string         `bson:"handle"`
	Description string         `bson:"description"`
	Thumbnail   string         `bson:"thumbnail"`
	Status      string         `bson:"status"`
	Variants    []Variant      `bson:"variants"`
	Categories  []Category     `bson:"categories"`
	Metadata    map[string]any `bson:"metadata"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

// CustomerGroup is a named grouping of customers.
type CustomerGroup struct {
	ID   string `bson:"_id"`
	Name string `bson:"name"`
}

// Customer is the authoritative customer record.
type Customer struct {
	ID           string          `bson:"_id"`
	Email        string          `bson:"email"`
	FirstName    string          `bson:"first_name"`
	LastName     string          `bson:"last_name"`
	CompanyName  string          `bson:"company_name"`
	Phone        string          `bson:"phone"`
	HasAccount   bool            `bson:"has_account"`
	PriceLevel   string          `bson:"price_level"`
	CustomerType string          `bson:"customer_type"`
	ListID       string          `bson:"list_id"`
	Groups       []CustomerGroup `bson:"groups"`
	Metadata     map[string]any  `bson:"metadata"`
	CreatedAt    time.Time       `bson:"created_at"`
	UpdatedAt    time.Time       `bson:"updated_at"`
}

// InventoryLevel is the stock position of an item at one location.
type InventoryLevel struct {
	LocationID string `bson:"location_id"`
	Stocked    int64  `bson:"stocked_quantity"`
	Reserved   int64  `bson:"reserved_quantity"`
}

// InventoryItem is the authoritative inventory record for one SKU.
type InventoryItem struct {
	ID        string           `bson:"_id"`
	SKU       string           `bson:"sku"`
	VariantID string           `bson:"variant_id"`
	Levels    []InventoryLevel `bson:"levels"`
	CreatedAt time.Time        `bson:"created_at"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

// InventoryPair joins one inventory item location level to the variant and
// product it tracks. One search document is produced per pair, not per item:
// a SKU stocked at multiple locations fans out. Variant or Product being nil
// marks an orphan, which the transformer must drop.
type InventoryPair struct {
	Item    InventoryItem
	Level   InventoryLevel
	Variant *Variant
	Product *Product
}

// Orphaned reports whether the pair cannot be tied back to a live product.
func (p InventoryPair) Orphaned() bool {
	return p.Variant == nil || p.Product == nil
}

// DocumentID is the search document primary key for this pair.
func (p InventoryPair) DocumentID() string {
	return p.Item.ID + ":" + p.Level.LocationID
}
