// Package mapper turns catalog products into platform feed rows.
//
// A Mapper is built once per generation run. It compiles the feed's attribute
// mappings, loads category and taxonomy mappings once, and caches parent
// product data page by page so mapping a product never issues per-product
// queries for data that can be loaded in bulk.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kosarica/feed-service/internal/catalog"
	"github.com/kosarica/feed-service/internal/conditions"
	"github.com/kosarica/feed-service/internal/platforms"
	"github.com/kosarica/feed-service/internal/rules"
	"github.com/kosarica/feed-service/internal/transformers"
	"github.com/kosarica/feed-service/internal/types"
)

// Repository provides the mapping data stored outside the feed
type Repository interface {
	CategoryMappings(ctx context.Context, platform string) ([]types.CategoryMapping, error)
	TaxonomyMappings(ctx context.Context, platform string) ([]types.TaxonomyMapping, error)
	// DynamicRule returns types.ErrNotFound for unknown codes
	DynamicRule(ctx context.Context, code string) (*types.DynamicRule, error)
}

// Deps are the collaborators of a Mapper
type Deps struct {
	Catalog      catalog.Source
	Repository   Repository
	Categories   *CategoryCache
	Transformers *transformers.Registry
	Now          func() time.Time
}

// Mapper maps products of one feed
type Mapper struct {
	feed    *types.Feed
	adapter platforms.Adapter
	deps    Deps
	today   time.Time

	mappings  []*compiledMapping
	jsonNodes []*compiledNode
	xmlNodes  []*compiledNode

	categories       *CategorySet
	categoryMappings map[int64]types.CategoryMapping
	taxonomy         map[int64]types.TaxonomyMapping
	rules            map[string]*types.DynamicRule

	// child id → parent id; 0 marks a product known to have no parent
	parentLinks map[int64]int64
	parentData  map[int64]map[string]any
}

// New builds a mapper for feed. Unsupported source types, invalid parent
// modes and invalid rules fail here, before any product is processed.
func New(ctx context.Context, feed *types.Feed, adapter platforms.Adapter, deps Deps) (*Mapper, error) {
	if feed == nil {
		return nil, fmt.Errorf("feed is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("platform adapter is required")
	}
	if deps.Catalog == nil || deps.Repository == nil {
		return nil, fmt.Errorf("catalog and mapping repository are required")
	}
	if deps.Categories == nil {
		deps.Categories = NewCategoryCache()
	}
	if deps.Transformers == nil {
		deps.Transformers = transformers.Default
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	m := &Mapper{
		feed:             feed,
		adapter:          adapter,
		deps:             deps,
		today:            deps.Now(),
		categoryMappings: make(map[int64]types.CategoryMapping),
		taxonomy:         make(map[int64]types.TaxonomyMapping),
		rules:            make(map[string]*types.DynamicRule),
		parentLinks:      make(map[int64]int64),
		parentData:       make(map[int64]map[string]any),
	}

	for _, am := range mergeMappings(feed.Mappings, adapter.DefaultMappings()) {
		cm, err := compileMapping(am)
		if err != nil {
			return nil, err
		}
		m.mappings = append(m.mappings, cm)
	}

	var err error
	if m.jsonNodes, err = compileStructure(feed.JSON.Structure); err != nil {
		return nil, err
	}
	if m.xmlNodes, err = compileStructure(feed.XML.Structure); err != nil {
		return nil, err
	}

	if m.categories, err = deps.Categories.ForStore(ctx, feed.StoreID, deps.Catalog.LoadCategories); err != nil {
		return nil, err
	}

	if adapter.SupportsCategoryMapping() {
		cms, err := deps.Repository.CategoryMappings(ctx, feed.Platform)
		if err != nil {
			return nil, fmt.Errorf("failed to load category mappings: %w", err)
		}
		for _, cm := range cms {
			if _, exists := m.categoryMappings[cm.CategoryID]; !exists {
				m.categoryMappings[cm.CategoryID] = cm
			}
		}
	}

	if usesTaxonomy(m.mappings, append(m.jsonNodes, m.xmlNodes...)) {
		tms, err := deps.Repository.TaxonomyMappings(ctx, feed.Platform)
		if err != nil {
			return nil, fmt.Errorf("failed to load taxonomy mappings: %w", err)
		}
		for _, tm := range tms {
			if _, exists := m.taxonomy[tm.CategoryID]; !exists {
				m.taxonomy[tm.CategoryID] = tm
			}
		}
	}

	codes := make(map[string]bool)
	collectRuleCodes(m.mappings, append(m.jsonNodes, m.xmlNodes...), codes)
	for code := range codes {
		rule, err := deps.Repository.DynamicRule(ctx, code)
		if errors.Is(err, types.ErrNotFound) {
			m.rules[code] = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load rule %s: %w", code, err)
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		m.rules[code] = rule
	}

	return m, nil
}

// Feed returns the mapper's feed
func (m *Mapper) Feed() *types.Feed { return m.feed }

// Adapter returns the mapper's platform adapter
func (m *Mapper) Adapter() platforms.Adapter { return m.adapter }

// PreloadParentMappings bulk-loads parent links and parent data for a page.
// The previous page's parent data is released.
func (m *Mapper) PreloadParentMappings(ctx context.Context, productIDs []int64) error {
	m.parentLinks = make(map[int64]int64, len(productIDs))
	previous := m.parentData
	m.parentData = make(map[int64]map[string]any)

	if len(productIDs) == 0 {
		return nil
	}

	links, err := m.deps.Catalog.LoadParentLinks(ctx, productIDs)
	if err != nil {
		return fmt.Errorf("failed to load parent links: %w", err)
	}

	var missing []int64
	seen := make(map[int64]bool)
	for _, id := range productIDs {
		parentID, ok := links[id]
		if !ok {
			m.parentLinks[id] = 0
			continue
		}
		m.parentLinks[id] = parentID
		if seen[parentID] {
			continue
		}
		seen[parentID] = true
		if data, ok := previous[parentID]; ok {
			m.parentData[parentID] = data
			continue
		}
		missing = append(missing, parentID)
	}

	if len(missing) == 0 {
		return nil
	}
	parents, err := m.deps.Catalog.LoadProducts(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to load parent products: %w", err)
	}
	for i := range parents {
		m.parentData[parents[i].ID] = extractBase(&parents[i], m.feed, m.categories, m.today)
	}
	return nil
}

// parentOf returns the parent's raw data, loading it on demand when the
// product was not part of a preloaded page
func (m *Mapper) parentOf(ctx context.Context, p *types.Product) (map[string]any, error) {
	parentID, known := m.parentLinks[p.ID]
	if !known {
		if p.ParentID != nil {
			parentID = *p.ParentID
		} else {
			links, err := m.deps.Catalog.LoadParentLinks(ctx, []int64{p.ID})
			if err != nil {
				return nil, fmt.Errorf("failed to load parent link: %w", err)
			}
			parentID = links[p.ID]
		}
		m.parentLinks[p.ID] = parentID
	}
	if parentID == 0 {
		return nil, nil
	}

	if data, ok := m.parentData[parentID]; ok {
		return data, nil
	}
	parents, err := m.deps.Catalog.LoadProducts(ctx, []int64{parentID})
	if err != nil {
		return nil, fmt.Errorf("failed to load parent product %d: %w", parentID, err)
	}
	if len(parents) == 0 {
		m.parentData[parentID] = nil
		return nil, nil
	}
	data := extractBase(&parents[0], m.feed, m.categories, m.today)
	m.parentData[parentID] = data
	return data, nil
}

// productData is the per-product evaluation context
type productData struct {
	product *types.Product
	raw     map[string]any
	parent  map[string]any
	lookup  conditions.Lookup
}

// ExtractRaw returns the product's raw data as used by mappings and conditions
func (m *Mapper) ExtractRaw(ctx context.Context, p *types.Product) (map[string]any, error) {
	data, err := m.productData(ctx, p)
	if err != nil {
		return nil, err
	}
	return data.raw, nil
}

func (m *Mapper) productData(ctx context.Context, p *types.Product) (*productData, error) {
	parent, err := m.parentOf(ctx, p)
	if err != nil {
		return nil, err
	}
	raw := extractRaw(p, m.feed, m.categories, parent, m.today)
	data := &productData{product: p, raw: raw, parent: parent}

	stockLoaded := p.Stock != nil
	data.lookup = func(key string) (any, bool) {
		if !stockLoaded && (key == "qty" || key == "is_in_stock" || key == "availability") {
			stockLoaded = true
			if stock, err := m.deps.Catalog.LoadStockItem(ctx, p.ID); err == nil && stock != nil {
				setStock(raw, stock)
			}
		}
		v, ok := raw[key]
		return v, ok
	}
	return data, nil
}

// MatchesConditions evaluates feed-level conditions against the product's raw data
func (m *Mapper) MatchesConditions(ctx context.Context, p *types.Product, conds []types.Condition) (bool, error) {
	if len(conds) == 0 {
		return true, nil
	}
	data, err := m.productData(ctx, p)
	if err != nil {
		return false, err
	}
	return conditions.Match(conds, data.lookup), nil
}

// MapProduct maps one product to a flat output row
func (m *Mapper) MapProduct(ctx context.Context, p *types.Product) (*types.Record, error) {
	data, err := m.productData(ctx, p)
	if err != nil {
		return nil, err
	}

	out := types.NewRecord()
	for _, cm := range m.mappings {
		if !conditions.Match(cm.conditions, data.lookup) {
			continue
		}
		v, err := m.evaluate(cm, data)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", cm.attribute, err)
		}
		out.Set(cm.attribute, v)
	}

	if m.adapter.SupportsCategoryMapping() {
		key := m.adapter.CategoryKey()
		if existing, ok := out.Get(key); !ok || types.IsEmpty(existing) {
			if best, ok := m.bestCategoryMapping(data); ok {
				out.Set(key, best.Value())
			}
		}
	}

	return m.adapter.TransformProductData(out), nil
}

// evaluate resolves and transforms one mapping
func (m *Mapper) evaluate(cm *compiledMapping, data *productData) (any, error) {
	v, err := m.resolve(cm.source, data)
	if err != nil {
		return nil, err
	}
	return m.transform(cm, v, data), nil
}

// transform applies the mapping's transformers, or price auto-formatting when it has none
func (m *Mapper) transform(cm *compiledMapping, v any, data *productData) any {
	if len(cm.steps) > 0 {
		return m.deps.Transformers.Pipeline(v, cm.steps, transformers.Row(data.lookup))
	}
	if cm.autoPrice {
		if amount, ok := types.ToFloat(v); ok {
			return transformers.FormatPrice(amount, m.feed.PriceFormat)
		}
	}
	return v
}

func (m *Mapper) resolve(src source, data *productData) (any, error) {
	switch s := src.(type) {
	case attributeSource:
		return m.resolveAttribute(s, data), nil
	case staticSource:
		return s.value, nil
	case ruleSource:
		v, _ := rules.Evaluate(m.rules[s.code], data.lookup)
		return v, nil
	case combinedSource:
		return m.deps.Transformers.Apply(nil, "combine_fields", transformers.Options{"template": s.template}, transformers.Row(data.lookup)), nil
	case taxonomySource:
		tm, ok := m.bestTaxonomy(data)
		if !ok {
			return nil, nil
		}
		if s.useID && tm.PlatformCategoryID != "" {
			return tm.PlatformCategoryID, nil
		}
		if tm.PlatformCategoryPath != "" {
			return tm.PlatformCategoryPath, nil
		}
		return tm.PlatformCategoryID, nil
	}
	return nil, fmt.Errorf("%w: %T", types.ErrUnsupportedSource, src)
}

func (m *Mapper) resolveAttribute(s attributeSource, data *productData) any {
	child, _ := data.lookup(s.name)

	switch s.parent {
	case types.ParentIfEmpty:
		if types.IsEmpty(child) && data.parent != nil {
			return data.parent[s.name]
		}
		return child
	case types.ParentAlways:
		if data.parent != nil {
			return data.parent[s.name]
		}
		return child
	}
	return child
}

func categoryIDs(raw map[string]any) []int64 {
	ids, _ := raw["category_ids"].([]int64)
	return ids
}

// bestTaxonomy picks the mapping of the deepest category; ties keep the first
func (m *Mapper) bestTaxonomy(data *productData) (types.TaxonomyMapping, bool) {
	var best types.TaxonomyMapping
	found := false
	for _, id := range categoryIDs(data.raw) {
		tm, ok := m.taxonomy[id]
		if !ok {
			continue
		}
		if !found || tm.Depth > best.Depth {
			best, found = tm, true
		}
	}
	return best, found
}

// bestCategoryMapping picks the category mapping of the deepest category; ties keep the first
func (m *Mapper) bestCategoryMapping(data *productData) (types.CategoryMapping, bool) {
	var best types.CategoryMapping
	bestDepth := -1
	for _, id := range categoryIDs(data.raw) {
		cm, ok := m.categoryMappings[id]
		if !ok {
			continue
		}
		if d := m.categories.Depth(id); d > bestDepth {
			best, bestDepth = cm, d
		}
	}
	return best, bestDepth >= 0
}
