package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/kosarica/feed-service/internal/types"
)

// MemorySource is an in-memory Source used for local workspaces and tests
type MemorySource struct {
	mu         sync.RWMutex
	products   []types.Product
	byID       map[int64]int
	categories map[int64][]types.Category
}

// NewMemorySource creates a source over products and per-store categories.
// Categories stored under store id 0 are shared by every store.
func NewMemorySource(products []types.Product, categories map[int64][]types.Category) *MemorySource {
	sorted := make([]types.Product, len(products))
	copy(sorted, products)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[int64]int, len(sorted))
	for i, p := range sorted {
		byID[p.ID] = i
	}
	if categories == nil {
		categories = make(map[int64][]types.Category)
	}
	return &MemorySource{products: sorted, byID: byID, categories: categories}
}

func (m *MemorySource) filtered(filter Filter) []types.Product {
	var out []types.Product
	for i := range m.products {
		if filter.Matches(&m.products[i]) {
			out = append(out, m.products[i])
		}
	}
	return out
}

// Count returns the number of products passing the filter
func (m *MemorySource) Count(ctx context.Context, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.filtered(filter)), nil
}

// Page returns one page of filtered products
func (m *MemorySource) Page(ctx context.Context, filter Filter, page, size int) ([]types.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || size < 1 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.filtered(filter)
	start := (page - 1) * size
	if start >= len(all) {
		return nil, nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

// LoadParentLinks returns child→parent ids for children that have a parent
func (m *MemorySource) LoadParentLinks(ctx context.Context, childIDs []int64) (map[int64]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	links := make(map[int64]int64)
	for _, id := range childIDs {
		if i, ok := m.byID[id]; ok && m.products[i].ParentID != nil {
			links[id] = *m.products[i].ParentID
		}
	}
	return links, nil
}

// LoadProducts returns the products with the given ids, ignoring unknown ids
func (m *MemorySource) LoadProducts(ctx context.Context, ids []int64) ([]types.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Product, 0, len(ids))
	for _, id := range ids {
		if i, ok := m.byID[id]; ok {
			out = append(out, m.products[i])
		}
	}
	return out, nil
}

// LoadCategories returns the category tree of a store
func (m *MemorySource) LoadCategories(ctx context.Context, storeID int64) ([]types.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if cats, ok := m.categories[storeID]; ok {
		return cats, nil
	}
	return m.categories[0], nil
}

// LoadStockItem returns the stock snapshot of a product
func (m *MemorySource) LoadStockItem(ctx context.Context, productID int64) (*types.StockItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byID[productID]
	if !ok {
		return nil, types.ErrNotFound
	}
	if m.products[i].Stock == nil {
		return nil, nil
	}
	s := *m.products[i].Stock
	return &s, nil
}
