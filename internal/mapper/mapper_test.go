package mapper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/feed-service/internal/catalog"
	"github.com/kosarica/feed-service/internal/platforms"
	"github.com/kosarica/feed-service/internal/types"
)

var today = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

type stubRepo struct {
	categoryMappings []types.CategoryMapping
	taxonomy         []types.TaxonomyMapping
	rules            map[string]*types.DynamicRule
}

func (r *stubRepo) CategoryMappings(_ context.Context, platform string) ([]types.CategoryMapping, error) {
	var out []types.CategoryMapping
	for _, m := range r.categoryMappings {
		if m.Platform == platform {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stubRepo) TaxonomyMappings(_ context.Context, platform string) ([]types.TaxonomyMapping, error) {
	var out []types.TaxonomyMapping
	for _, m := range r.taxonomy {
		if m.Platform == platform {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stubRepo) DynamicRule(_ context.Context, code string) (*types.DynamicRule, error) {
	if rule, ok := r.rules[code]; ok {
		return rule, nil
	}
	return nil, types.ErrNotFound
}

// countingSource records how often the lookup methods are hit
type countingSource struct {
	*catalog.MemorySource
	parentLinkCalls int
	productCalls    int
	stockCalls      int
	categoryCalls   int
}

func (s *countingSource) LoadParentLinks(ctx context.Context, ids []int64) (map[int64]int64, error) {
	s.parentLinkCalls++
	return s.MemorySource.LoadParentLinks(ctx, ids)
}

func (s *countingSource) LoadProducts(ctx context.Context, ids []int64) ([]types.Product, error) {
	s.productCalls++
	return s.MemorySource.LoadProducts(ctx, ids)
}

func (s *countingSource) LoadStockItem(ctx context.Context, id int64) (*types.StockItem, error) {
	s.stockCalls++
	return s.MemorySource.LoadStockItem(ctx, id)
}

func (s *countingSource) LoadCategories(ctx context.Context, storeID int64) ([]types.Category, error) {
	s.categoryCalls++
	return s.MemorySource.LoadCategories(ctx, storeID)
}

var testCategories = []types.Category{
	{ID: 1, Name: "Root", Path: "1", Level: 1},
	{ID: 2, ParentID: 1, Name: "Apparel", Path: "1/2", Level: 2},
	{ID: 3, ParentID: 2, Name: "Shirts", Path: "1/2/3", Level: 3},
	{ID: 4, ParentID: 3, Name: "Polo", Path: "1/2/3/4", Level: 4},
	{ID: 5, ParentID: 2, Name: "Pants", Path: "1/2/5", Level: 3},
	{ID: 6, ParentID: 2, Name: "Shoes", Path: "1/2/6", Level: 3},
}

func newSource(products ...types.Product) *countingSource {
	return &countingSource{MemorySource: catalog.NewMemorySource(products, map[int64][]types.Category{1: testCategories})}
}

func newMapper(t *testing.T, feed *types.Feed, src catalog.Source, repo *stubRepo) *Mapper {
	t.Helper()
	if repo == nil {
		repo = &stubRepo{}
	}
	adapter, err := platforms.GetAdapter(feed.Platform)
	require.NoError(t, err)
	m, err := New(context.Background(), feed, adapter, Deps{
		Catalog:    src,
		Repository: repo,
		Categories: NewCategoryCache(),
		Now:        func() time.Time { return today },
	})
	require.NoError(t, err)
	return m
}

func customFeed(mappings ...types.AttributeMapping) *types.Feed {
	return &types.Feed{ID: 1, Platform: platforms.PlatformCustom, Format: types.FormatJSON, StoreID: 1, Mappings: mappings}
}

func get(t *testing.T, r *types.Record, key string) any {
	t.Helper()
	v, ok := r.Get(key)
	require.True(t, ok, "missing key %s", key)
	return v
}

func TestMapProduct_TaxonomyDeepestWins(t *testing.T) {
	repo := &stubRepo{taxonomy: []types.TaxonomyMapping{
		{CategoryMapping: types.CategoryMapping{Platform: "custom", CategoryID: 2, PlatformCategoryID: "166", PlatformCategoryPath: "Apparel & Accessories"}, Depth: 2},
		{CategoryMapping: types.CategoryMapping{Platform: "custom", CategoryID: 4, PlatformCategoryID: "212", PlatformCategoryPath: "Apparel & Accessories > Clothing > Shirts & Tops"}, Depth: 4},
		{CategoryMapping: types.CategoryMapping{Platform: "custom", CategoryID: 5, PlatformCategoryPath: "Pants"}, Depth: 3},
		{CategoryMapping: types.CategoryMapping{Platform: "custom", CategoryID: 6, PlatformCategoryPath: "Shoes"}, Depth: 3},
	}}
	feed := customFeed(
		types.AttributeMapping{FeedAttribute: "taxonomy_path", Source: types.SourceTaxonomy},
		types.AttributeMapping{FeedAttribute: "taxonomy_id", Source: types.SourceTaxonomy, Value: "id"},
	)
	src := newSource(
		types.Product{ID: 1, SKU: "A", CategoryIDs: []int64{2, 4}},
		types.Product{ID: 2, SKU: "B", CategoryIDs: []int64{4, 2}},
		types.Product{ID: 3, SKU: "C", CategoryIDs: []int64{6, 5}},
		types.Product{ID: 4, SKU: "D"},
	)
	m := newMapper(t, feed, src, repo)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		products, _ := src.LoadProducts(ctx, []int64{id})
		out, err := m.MapProduct(ctx, &products[0])
		require.NoError(t, err)
		assert.Equal(t, "Apparel & Accessories > Clothing > Shirts & Tops", get(t, out, "taxonomy_path"))
		assert.Equal(t, "212", get(t, out, "taxonomy_id"))
	}

	products, _ := src.LoadProducts(ctx, []int64{3, 4})
	tie, err := m.MapProduct(ctx, &products[0])
	require.NoError(t, err)
	assert.Equal(t, "Shoes", get(t, tie, "taxonomy_path"), "equal depth keeps the first category")

	none, err := m.MapProduct(ctx, &products[1])
	require.NoError(t, err)
	assert.Nil(t, get(t, none, "taxonomy_path"))
}

func TestMapProduct_PlatformCategoryAppended(t *testing.T) {
	repo := &stubRepo{categoryMappings: []types.CategoryMapping{
		{Platform: "google", CategoryID: 2, PlatformCategoryID: "166"},
		{Platform: "google", CategoryID: 3, PlatformCategoryID: "212"},
		{Platform: "bing", CategoryID: 3, PlatformCategoryPath: "Clothing"},
	}}
	product := types.Product{ID: 1, SKU: "A", Name: "Shirt", Price: 10, CategoryIDs: []int64{3, 2}}

	google := newMapper(t, &types.Feed{ID: 1, Platform: "google", Format: types.FormatXML, StoreID: 1}, newSource(product), repo)
	out, err := google.MapProduct(context.Background(), &product)
	require.NoError(t, err)
	assert.Equal(t, "212", get(t, out, platforms.KeyGoogleCategory))
	assert.Equal(t, "Apparel > Shirts", get(t, out, "product_type"))

	bing := newMapper(t, &types.Feed{ID: 2, Platform: "bing", Format: types.FormatXML, StoreID: 1}, newSource(product), repo)
	out, err = bing.MapProduct(context.Background(), &product)
	require.NoError(t, err)
	assert.Equal(t, "Clothing", get(t, out, platforms.KeyCategory))
	assert.False(t, out.Has(platforms.KeyGoogleCategory))
}

func TestMapProduct_PriceAutoFormat(t *testing.T) {
	feed := customFeed(
		types.AttributeMapping{FeedAttribute: "price", Source: types.SourceAttribute, Value: "price", SortOrder: 1},
		types.AttributeMapping{FeedAttribute: "rounded", Source: types.SourceAttribute, Value: "price", Chain: "round", SortOrder: 2},
		types.AttributeMapping{FeedAttribute: "eur", Source: types.SourceAttribute, Value: "price", Chain: "format_price:currency=EUR", SortOrder: 3},
		types.AttributeMapping{FeedAttribute: "literal", Source: types.SourceStatic, Value: "price", SortOrder: 4},
		types.AttributeMapping{FeedAttribute: "weight", Source: types.SourceAttribute, Value: "weight", SortOrder: 5},
	)
	feed.PriceFormat = types.PriceFormat{
		Decimals: types.IntPtr(2), DecimalPoint: ".", ThousandsSep: ",", Currency: "USD", CurrencySuffix: types.BoolPtr(true),
	}
	product := types.Product{ID: 1, SKU: "A", Price: 19.999, Weight: 1.5}
	m := newMapper(t, feed, newSource(product), nil)

	out, err := m.MapProduct(context.Background(), &product)
	require.NoError(t, err)

	assert.Equal(t, []string{"price", "rounded", "eur", "literal", "weight"}, out.Keys())
	assert.Equal(t, "20.00 USD", get(t, out, "price"))
	assert.Equal(t, 20.0, get(t, out, "rounded"), "explicit transformers replace auto formatting")
	assert.Equal(t, "20.00 EUR", get(t, out, "eur"))
	assert.Equal(t, "price", get(t, out, "literal"))
	assert.Equal(t, 1.5, get(t, out, "weight"))
}

func TestMapProduct_ConditionsOmitAttribute(t *testing.T) {
	feed := customFeed(
		types.AttributeMapping{FeedAttribute: "always", Source: types.SourceStatic, Value: "x"},
		types.AttributeMapping{
			FeedAttribute: "only_cheap", Source: types.SourceStatic, Value: "cheap",
			Conditions: []types.Condition{{Attribute: "price", Operator: "lt", Value: 5}},
		},
	)
	product := types.Product{ID: 1, SKU: "A", Price: 10}
	m := newMapper(t, feed, newSource(product), nil)

	out, err := m.MapProduct(context.Background(), &product)
	require.NoError(t, err)
	assert.Equal(t, "x", get(t, out, "always"))
	assert.False(t, out.Has("only_cheap"), "failed conditions omit the attribute")
}

func TestMapProduct_ParentModes(t *testing.T) {
	parent := types.Product{ID: 10, SKU: "P", TypeID: "configurable", Name: "Parent Name", Brand: "ParentBrand", Description: "Parent description"}
	child := types.Product{ID: 11, SKU: "C", TypeID: "simple", Name: "Child Name", ParentID: types.Int64Ptr(10), Description: "Child description"}

	feed := customFeed(
		types.AttributeMapping{FeedAttribute: "child_only", Source: types.SourceAttribute, Value: "name", SortOrder: 1},
		types.AttributeMapping{FeedAttribute: "brand", Source: types.SourceAttribute, Value: "brand", UseParent: types.ParentIfEmpty, SortOrder: 2},
		types.AttributeMapping{FeedAttribute: "name_if_empty", Source: types.SourceAttribute, Value: "name", UseParent: types.ParentIfEmpty, SortOrder: 3},
		types.AttributeMapping{FeedAttribute: "name_always", Source: types.SourceAttribute, Value: "name", UseParent: types.ParentAlways, SortOrder: 4},
		types.AttributeMapping{FeedAttribute: "parent_sku", Source: types.SourceAttribute, Value: "parent_sku", SortOrder: 5},
	)
	src := newSource(parent, child)
	m := newMapper(t, feed, src, nil)

	out, err := m.MapProduct(context.Background(), &child)
	require.NoError(t, err)
	assert.Equal(t, "Child Name", get(t, out, "child_only"))
	assert.Equal(t, "ParentBrand", get(t, out, "brand"))
	assert.Equal(t, "Child Name", get(t, out, "name_if_empty"))
	assert.Equal(t, "Parent Name", get(t, out, "name_always"), "parent wins even when the child has a value")
	assert.Equal(t, "P", get(t, out, "parent_sku"))

	feed = customFeed(types.AttributeMapping{FeedAttribute: "description", Source: types.SourceAttribute, Value: "description", UseParent: types.ParentAlways})
	bare := types.Product{ID: 20, SKU: "BP", TypeID: "configurable"}
	withDesc := types.Product{ID: 21, SKU: "BC", TypeID: "simple", ParentID: types.Int64Ptr(20), Description: "Child description"}
	out, err = newMapper(t, feed, newSource(bare, withDesc), nil).MapProduct(context.Background(), &withDesc)
	require.NoError(t, err)
	assert.Empty(t, get(t, out, "description"), "an empty parent value still wins")

	out, err = m.MapProduct(context.Background(), &parent)
	require.NoError(t, err)
	assert.Equal(t, "Parent Name", get(t, out, "name_always"), "products without a parent use their own value")
}

func TestPreloadParentMappings_AvoidsPerProductQueries(t *testing.T) {
	parent := types.Product{ID: 10, SKU: "P", Name: "Parent"}
	var children []types.Product
	for i := int64(11); i <= 13; i++ {
		children = append(children, types.Product{ID: i, SKU: "C", Name: "", ParentID: types.Int64Ptr(10)})
	}
	src := newSource(append(children, parent)...)
	feed := customFeed(types.AttributeMapping{FeedAttribute: "title", Source: types.SourceAttribute, Value: "name", UseParent: types.ParentIfEmpty})
	m := newMapper(t, feed, src, nil)
	ctx := context.Background()

	require.NoError(t, m.PreloadParentMappings(ctx, []int64{11, 12, 13}))
	assert.Equal(t, 1, src.parentLinkCalls)
	assert.Equal(t, 1, src.productCalls)

	for i := range children {
		out, err := m.MapProduct(ctx, &children[i])
		require.NoError(t, err)
		assert.Equal(t, "Parent", get(t, out, "title"))
	}
	assert.Equal(t, 1, src.parentLinkCalls, "no per-product link queries")
	assert.Equal(t, 1, src.productCalls, "no per-product parent loads")
}

func TestMapProduct_RuleAndCombinedSources(t *testing.T) {
	repo := &stubRepo{rules: map[string]*types.DynamicRule{
		"stock_label": {Code: "stock_label", Cases: []types.RuleCase{
			{Conditions: []types.Condition{{Attribute: "qty", Operator: "gt", Value: 0}}, OutputType: types.OutputStatic, OutputValue: "ships today"},
			{IsDefault: true, OutputType: types.OutputStatic, OutputValue: "backorder"},
		}},
	}}
	feed := customFeed(
		types.AttributeMapping{FeedAttribute: "shipping_label", Source: types.SourceRule, Value: "stock_label", SortOrder: 1},
		types.AttributeMapping{FeedAttribute: "missing_rule", Source: types.SourceRule, Value: "nope", SortOrder: 2},
		types.AttributeMapping{FeedAttribute: "title", Source: types.SourceCombined, Value: "{{brand}} {{name}} ({{sku}})", SortOrder: 3},
	)
	inStock := types.Product{ID: 1, SKU: "A-1", Name: "Widget", Brand: "Acme"}
	soldOut := types.Product{ID: 2, SKU: "B-2", Name: "Gadget"}
	src := catalog.NewMemorySource([]types.Product{
		{ID: 1, SKU: "A-1", Stock: &types.StockItem{Qty: 5, IsInStock: true}},
		{ID: 2, SKU: "B-2", Stock: &types.StockItem{Qty: 0}},
	}, nil)
	counting := &countingSource{MemorySource: src}
	m := newMapper(t, feed, counting, repo)
	ctx := context.Background()

	out, err := m.MapProduct(ctx, &inStock)
	require.NoError(t, err)
	assert.Equal(t, "ships today", get(t, out, "shipping_label"))
	assert.Nil(t, get(t, out, "missing_rule"))
	assert.Equal(t, "Acme Widget (A-1)", get(t, out, "title"))
	assert.Equal(t, 1, counting.stockCalls, "stock is loaded lazily for rule lookups")

	out, err = m.MapProduct(ctx, &soldOut)
	require.NoError(t, err)
	assert.Equal(t, "backorder", get(t, out, "shipping_label"))
	assert.Equal(t, "Gadget (B-2)", get(t, out, "title"))
}

func TestMapProduct_Idempotent(t *testing.T) {
	parent := types.Product{ID: 10, SKU: "P", Name: "Parent", Brand: "Acme"}
	child := types.Product{ID: 11, SKU: "C", Name: "Child", Price: 12.5, ParentID: types.Int64Ptr(10), CategoryIDs: []int64{4}, Stock: &types.StockItem{Qty: 1, IsInStock: true}}
	repo := &stubRepo{categoryMappings: []types.CategoryMapping{{Platform: "google", CategoryID: 4, PlatformCategoryID: "212"}}}
	feed := &types.Feed{ID: 1, Platform: "google", Format: types.FormatXML, StoreID: 1, BaseURL: "https://shop.test", PriceFormat: types.PriceFormat{Currency: "EUR"}}
	m := newMapper(t, feed, newSource(parent, child), repo)
	ctx := context.Background()

	first, err := m.MapProduct(ctx, &child)
	require.NoError(t, err)
	second, err := m.MapProduct(ctx, &child)
	require.NoError(t, err)

	assert.Equal(t, first.Keys(), second.Keys())
	assert.Equal(t, first.Map(), second.Map())
}

func TestNew_RejectsUnsupportedConfiguration(t *testing.T) {
	src := newSource()
	adapter := platforms.NewCustomAdapter()
	deps := Deps{Catalog: src, Repository: &stubRepo{}}

	_, err := New(context.Background(), customFeed(types.AttributeMapping{FeedAttribute: "x", Source: "lookup"}), adapter, deps)
	assert.ErrorIs(t, err, types.ErrUnsupportedSource)

	_, err = New(context.Background(), customFeed(types.AttributeMapping{FeedAttribute: "x", Source: types.SourceAttribute, Value: "name", UseParent: "sometimes"}), adapter, deps)
	assert.Error(t, err)

	badRule := &stubRepo{rules: map[string]*types.DynamicRule{"r": {Code: "r", Cases: []types.RuleCase{
		{IsDefault: true, OutputType: types.OutputStatic},
		{IsDefault: true, OutputType: types.OutputStatic},
	}}}}
	_, err = New(context.Background(), customFeed(types.AttributeMapping{FeedAttribute: "x", Source: types.SourceRule, Value: "r"}), adapter, Deps{Catalog: src, Repository: badRule})
	assert.Error(t, err)
}

func TestNew_BackfillsPlatformDefaults(t *testing.T) {
	feed := &types.Feed{ID: 1, Platform: "google", Format: types.FormatXML, StoreID: 1, Mappings: []types.AttributeMapping{
		{FeedAttribute: "title", Source: types.SourceStatic, Value: "Fixed title"},
	}}
	product := types.Product{ID: 1, SKU: "A", Name: "Catalog name", Price: 5}
	m := newMapper(t, feed, newSource(product), nil)

	out, err := m.MapProduct(context.Background(), &product)
	require.NoError(t, err)
	assert.Equal(t, "title", out.Keys()[0], "explicit mappings come first")
	assert.Equal(t, "Fixed title", get(t, out, "title"))
	assert.Equal(t, "A", get(t, out, "id"))
	assert.Equal(t, "new", get(t, out, "condition"))
}

func TestValidSpecialPrice(t *testing.T) {
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)
	startOfToday := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		product types.Product
		want    *float64
	}{
		{"no special price", types.Product{}, nil},
		{"zero special price", types.Product{SpecialPrice: types.Float64Ptr(0)}, nil},
		{"open window", types.Product{SpecialPrice: types.Float64Ptr(8)}, types.Float64Ptr(8)},
		{"started yesterday", types.Product{SpecialPrice: types.Float64Ptr(8), SpecialFrom: &yesterday}, types.Float64Ptr(8)},
		{"starts today", types.Product{SpecialPrice: types.Float64Ptr(8), SpecialFrom: &startOfToday}, types.Float64Ptr(8)},
		{"starts tomorrow", types.Product{SpecialPrice: types.Float64Ptr(8), SpecialFrom: &tomorrow}, nil},
		{"ends today", types.Product{SpecialPrice: types.Float64Ptr(8), SpecialTo: &startOfToday}, types.Float64Ptr(8)},
		{"ended yesterday", types.Product{SpecialPrice: types.Float64Ptr(8), SpecialTo: &yesterday}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidSpecialPrice(&tt.product, today))
		})
	}
}

func TestCategoryCache_InvalidatesOnStoreChange(t *testing.T) {
	loader := func(_ context.Context, storeID int64) ([]types.Category, error) {
		if storeID == 1 {
			return []types.Category{{ID: 1, Name: "Store one"}}, nil
		}
		return []types.Category{{ID: 2, Name: "Store two"}}, nil
	}
	cache := NewCategoryCache()
	ctx := context.Background()

	one, err := cache.ForStore(ctx, 1, loader)
	require.NoError(t, err)
	_, err = cache.ForStore(ctx, 1, loader)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Loads(), "same store is served from cache")

	two, err := cache.ForStore(ctx, 2, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Loads())
	_, leaked := two.Get(1)
	assert.False(t, leaked, "store one categories are not visible for store two")

	_, ok := one.Get(1)
	assert.True(t, ok, "snapshots handed out earlier stay intact")

	storeID, cached := cache.StoreID()
	assert.True(t, cached)
	assert.Equal(t, int64(2), storeID)

	cache.Invalidate()
	_, cached = cache.StoreID()
	assert.False(t, cached)
}

func TestExtractRaw(t *testing.T) {
	product := types.Product{
		ID: 1, SKU: "A", Name: "Shirt", URLKey: "shirt.html", Image: "/a.jpg", Gallery: []string{"/a.jpg", "/b.jpg"},
		Price: 20, SpecialPrice: types.Float64Ptr(15), CategoryIDs: []int64{4},
		Attributes: map[string]any{"color": "blue", "sku": "ignored"},
		Stock:      &types.StockItem{Qty: 3, IsInStock: true},
	}
	feed := customFeed()
	feed.BaseURL = "https://shop.test/"
	feed.MediaURL = "https://cdn.test/media"
	m := newMapper(t, feed, newSource(product), nil)

	raw, err := m.ExtractRaw(context.Background(), &product)
	require.NoError(t, err)

	assert.Equal(t, "A", raw["sku"], "base fields win over free-form attributes")
	assert.Equal(t, "blue", raw["color"])
	assert.Equal(t, "https://shop.test/shirt.html", raw["url"])
	assert.Equal(t, "https://cdn.test/media/a.jpg", raw["image_link"])
	assert.Equal(t, []string{"https://cdn.test/media/b.jpg"}, raw["additional_image_link"])
	assert.Equal(t, 15.0, raw["valid_special_price"])
	assert.Equal(t, 15.0, raw["final_price"])
	assert.Equal(t, "in stock", raw["availability"])
	assert.Equal(t, "Polo", raw["category"])
	assert.Equal(t, "Apparel > Shirts > Polo", raw["category_path"])
	assert.Contains(t, raw, "_feed")
}

func TestMatchesConditions(t *testing.T) {
	src := newSource(
		types.Product{ID: 1, SKU: "CHEAP", Price: 5, Brand: "Acme"},
		types.Product{ID: 2, SKU: "PRICEY", Price: 50, Brand: "Acme"},
	)
	m := newMapper(t, customFeed(), src, nil)
	ctx := context.Background()
	products, _ := src.LoadProducts(ctx, []int64{1, 2})

	conds := []types.Condition{
		{Attribute: "price", Operator: "gte", Value: 10},
		{Attribute: "brand", Operator: "eq", Value: "Acme"},
	}
	ok, err := m.MatchesConditions(ctx, &products[0], conds)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.MatchesConditions(ctx, &products[1], conds)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.MatchesConditions(ctx, &products[0], nil)
	require.NoError(t, err)
	assert.True(t, ok, "no conditions always match")
}
