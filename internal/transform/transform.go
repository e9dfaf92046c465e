// Package transform maps source-of-truth records to flat search documents.
// Every function here is pure: no I/O, no clock reads, no mutation of the
// input record.
//
// Two contracts hold for every document type:
//   - every field is a primitive or a flat array, never a nested object
//   - created_at and updated_at are epoch milliseconds, never time.Time or
//     ISO strings, so the index can sort on them
package transform

import (
	"time"

	"github.com/storekit/searchsync/internal/catalog"
)

// Document is a flat, JSON-serializable search document keyed by "id".
type Document map[string]any

// ID returns the document primary key, or "" when unset.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// maxCategoryDepth bounds how far up the category parent chain handles are
// collected.
const maxCategoryDepth = 3

// reserved lists document fields that metadata keys may not overwrite.
var reserved = map[string]struct{}{
	"id":         {},
	"title":      {},
	"handle":     {},
	"status":     {},
	"created_at": {},
	"updated_at": {},
}

// EpochMillis converts a timestamp to epoch milliseconds. Zero times map to 0
// rather than a negative epoch offset.
func EpochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Product maps a product record to its search document.
func Product(p catalog.Product) Document {
	doc := Document{
		"id":               p.ID,
		"title":            p.Title,
		"handle":           p.Handle,
		"description":      p.Description,
		"thumbnail":        p.Thumbnail,
		"status":           p.Status,
		"variant_sku":      variantSKUs(p.Variants),
		"category_handles": categoryHandles(p.Categories),
		"created_at":       EpochMillis(p.CreatedAt),
		"updated_at":       EpochMillis(p.UpdatedAt),
	}
	for k, v := range p.Metadata {
		if _, taken := reserved[k]; taken {
			continue
		}
		if sv, ok := scalar(v); ok {
			doc[k] = sv
		}
	}
	return doc
}

// variantSKUs flattens variant SKUs, dropping empty strings.
func variantSKUs(variants []catalog.Variant) []string {
	skus := make([]string, 0, len(variants))
	for _, v := range variants {
		if v.SKU == "" {
			continue
		}
		skus = append(skus, v.SKU)
	}
	return skus
}

// categoryHandles flattens the union of category handles including ancestors
// up to maxCategoryDepth levels above each assigned category.
func categoryHandles(categories []catalog.Category) []string {
	seen := make(map[string]struct{})
	handles := make([]string, 0, len(categories))
	for i := range categories {
		node := &categories[i]
		for depth := 0; node != nil && depth <= maxCategoryDepth; depth++ {
			if node.Handle != "" {
				if _, dup := seen[node.Handle]; !dup {
					seen[node.Handle] = struct{}{}
					handles = append(handles, node.Handle)
				}
			}
			node = node.Parent
		}
	}
	return handles
}

// scalar reports whether v is an indexable primitive and normalizes the
// numeric types JSON decoding produces.
func scalar(v any) (any, bool) {
	switch sv := v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return sv, true
	default:
		return nil, false
	}
}

// Customer maps a customer record to its search document. The company name
// falls back from the dedicated field to the metadata field to empty.
func Customer(c catalog.Customer) Document {
	company := c.CompanyName
	if company == "" {
		if meta, ok := c.Metadata["company_name"].(string); ok {
			company = meta
		}
	}

	groups := make([]string, 0, len(c.Groups))
	for _, g := range c.Groups {
		groups = append(groups, g.Name)
	}

	return Document{
		"id":            c.ID,
		"email":         c.Email,
		"first_name":    c.FirstName,
		"last_name":     c.LastName,
		"company_name":  company,
		"phone":         c.Phone,
		"has_account":   c.HasAccount,
		"price_level":   c.PriceLevel,
		"customer_type": c.CustomerType,
		"list_id":       c.ListID,
		"groups":        groups,
		"created_at":    EpochMillis(c.CreatedAt),
		"updated_at":    EpochMillis(c.UpdatedAt),
	}
}

// Inventory maps one (item, level) pair to its search document. Orphaned
// pairs produce no document: an item that cannot be tied to a live variant
// and product must never reach the index, even transiently.
func Inventory(pair catalog.InventoryPair) (Document, bool) {
	if pair.Orphaned() {
		return nil, false
	}

	sku := pair.Variant.SKU
	if sku == "" {
		sku = pair.Item.SKU
	}

	return Document{
		"id":            pair.DocumentID(),
		"item_id":       pair.Item.ID,
		"sku":           sku,
		"variant_id":    pair.Variant.ID,
		"product_id":    pair.Product.ID,
		"product_title": pair.Product.Title,
		"location_id":   pair.Level.LocationID,
		"stocked":       pair.Level.Stocked,
		"reserved":      pair.Level.Reserved,
		"available":     pair.Level.Stocked - pair.Level.Reserved,
		"created_at":    EpochMillis(pair.Item.CreatedAt),
		"updated_at":    EpochMillis(pair.Item.UpdatedAt),
	}, true
}
