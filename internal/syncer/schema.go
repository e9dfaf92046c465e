package syncer

import (
	"github.com/storekit/searchsync/internal/catalog"
	"github.com/storekit/searchsync/internal/searchindex"
)

// schemas declares the per-kind attribute sets the index needs. Reapplied on
// every full resync; the index treats an unchanged schema as a no-op.
var schemas = map[catalog.Kind]searchindex.Schema{
	catalog.KindProducts: {
		Filterable: []string{"status", "category_handles", "variant_sku"},
		Sortable:   []string{"title", "created_at", "updated_at"},
		Searchable: []string{"title", "handle", "description", "variant_sku"},
	},
	catalog.KindCustomers: {
		Filterable: []string{"has_account", "price_level", "customer_type", "groups", "list_id"},
		Sortable:   []string{"last_name", "created_at", "updated_at"},
		Searchable: []string{"email", "first_name", "last_name", "company_name", "phone"},
	},
	catalog.KindInventory: {
		Filterable: []string{"location_id", "product_id", "variant_id"},
		Sortable:   []string{"available", "stocked", "created_at", "updated_at"},
		Searchable: []string{"sku", "product_title"},
	},
}

// SchemaFor returns the declared schema for the kind.
func SchemaFor(kind catalog.Kind) searchindex.Schema {
	return schemas[kind]
}
