// Package catalog defines the paged product source the generator reads from.
package catalog

import (
	"context"

	"github.com/kosarica/feed-service/internal/types"
)

// Filter restricts the product collection for one feed
type Filter struct {
	StoreID           int64
	IncludeTypes      []string
	ExcludeDisabled   bool
	ExcludeOutOfStock bool
	ExcludeNotVisible bool
}

// FilterFor builds the collection filter of a feed
func FilterFor(feed *types.Feed) Filter {
	return Filter{
		StoreID:           feed.StoreID,
		IncludeTypes:      feed.Filters.IncludeTypes,
		ExcludeDisabled:   feed.Filters.ExcludeDisabled,
		ExcludeOutOfStock: feed.Filters.ExcludeOutOfStock,
		ExcludeNotVisible: feed.Filters.ExcludeNotVisible,
	}
}

// Matches reports whether a product passes the filter
func (f Filter) Matches(p *types.Product) bool {
	if f.StoreID != 0 && p.StoreID != 0 && p.StoreID != f.StoreID {
		return false
	}
	if len(f.IncludeTypes) > 0 {
		found := false
		for _, t := range f.IncludeTypes {
			if t == p.TypeID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ExcludeDisabled && !p.Enabled() {
		return false
	}
	if f.ExcludeOutOfStock && !p.InStock() {
		return false
	}
	if f.ExcludeNotVisible && p.Visibility == types.VisibilityNotVisible {
		return false
	}
	return true
}

// Source is a paged, filtered, counted product collection with the lookups
// the mapper needs. Pages are 1-based and ordered by product id.
type Source interface {
	Count(ctx context.Context, filter Filter) (int, error)
	Page(ctx context.Context, filter Filter, page, size int) ([]types.Product, error)
	// LoadParentLinks maps child product ids to their configurable parent
	LoadParentLinks(ctx context.Context, childIDs []int64) (map[int64]int64, error)
	LoadProducts(ctx context.Context, ids []int64) ([]types.Product, error)
	LoadCategories(ctx context.Context, storeID int64) ([]types.Category, error)
	LoadStockItem(ctx context.Context, productID int64) (*types.StockItem, error)
}
