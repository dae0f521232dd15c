package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/feed-service/internal/catalog"
	"github.com/kosarica/feed-service/internal/logstore"
	"github.com/kosarica/feed-service/internal/notify"
	"github.com/kosarica/feed-service/internal/platforms"
	"github.com/kosarica/feed-service/internal/storage"
	"github.com/kosarica/feed-service/internal/types"
)

var now = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

type emptyRepo struct{}

func (emptyRepo) CategoryMappings(context.Context, string) ([]types.CategoryMapping, error) {
	return nil, nil
}

func (emptyRepo) TaxonomyMappings(context.Context, string) ([]types.TaxonomyMapping, error) {
	return nil, nil
}

func (emptyRepo) DynamicRule(context.Context, string) (*types.DynamicRule, error) {
	return nil, types.ErrNotFound
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Kind
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

// countingStore counts checkpoints
type countingStore struct {
	*logstore.MemoryStore
	mu          sync.Mutex
	checkpoints int
}

func (s *countingStore) Checkpoint(ctx context.Context, log *types.GenerationLog) error {
	s.mu.Lock()
	s.checkpoints++
	s.mu.Unlock()
	return s.MemoryStore.Checkpoint(ctx, log)
}

type fixture struct {
	gen      *Generator
	logs     *countingStore
	storage  *storage.LocalStorage
	notifier *recordingNotifier
}

func newFixture(t *testing.T, src catalog.Source, cfg Config) *fixture {
	t.Helper()
	out, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "feeds"))
	require.NoError(t, err)
	f := &fixture{
		logs:     &countingStore{MemoryStore: logstore.NewMemoryStore()},
		storage:  out,
		notifier: &recordingNotifier{},
	}
	f.gen, err = New(Deps{
		Catalog:   src,
		Logs:      f.logs,
		Mappings:  emptyRepo{},
		Output:    out,
		Notifier:  f.notifier,
		Platforms: platforms.NewDefaultRegistry(),
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	}, cfg)
	require.NoError(t, err)
	return f
}

func (f *fixture) read(t *testing.T, key string) string {
	t.Helper()
	b, err := f.storage.Get(context.Background(), key)
	require.NoError(t, err)
	return string(b)
}

func (f *fixture) tempFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(f.storage.BasePath(), ".tmp"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func memorySource(products ...types.Product) *catalog.MemorySource {
	return catalog.NewMemorySource(products, nil)
}

func jsonFeed() *types.Feed {
	return &types.Feed{
		ID:       1,
		Code:     "custom-json",
		Platform: platforms.PlatformCustom,
		Format:   types.FormatJSON,
		StoreID:  1,
		Mappings: []types.AttributeMapping{
			{FeedAttribute: "sku", Source: types.SourceAttribute, Value: "sku"},
			{FeedAttribute: "title", Source: types.SourceAttribute, Value: "name"},
			{FeedAttribute: "price", Source: types.SourceAttribute, Value: "price"},
		},
	}
}

func googleFeed() *types.Feed {
	return &types.Feed{
		ID:       2,
		Code:     "google-hr",
		Platform: platforms.PlatformGoogle,
		Format:   types.FormatXML,
		StoreID:  1,
		BaseURL:  "https://shop.example",
		MediaURL: "https://cdn.example/media",
		PriceFormat: types.PriceFormat{
			Currency: "EUR",
		},
	}
}

func googleProduct(id int64, description string) types.Product {
	return types.Product{
		ID:          id,
		SKU:         fmt.Sprintf("SKU-%d", id),
		TypeID:      "simple",
		Status:      types.ProductStatusEnabled,
		Name:        fmt.Sprintf("Product %d", id),
		Description: description,
		URLKey:      fmt.Sprintf("product-%d", id),
		Image:       fmt.Sprintf("/p/%d.jpg", id),
		Price:       19.999,
		Stock:       &types.StockItem{Qty: 5, IsInStock: true},
		StoreID:     1,
	}
}

func decodeArray(t *testing.T, content string) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(content), &rows))
	return rows
}

func TestGenerate_ExcludesDisabledProducts(t *testing.T) {
	src := memorySource(
		types.Product{ID: 1, SKU: "A", Name: "Alpha", Price: 10, Status: types.ProductStatusEnabled, StoreID: 1},
		types.Product{ID: 2, SKU: "B", Name: "Beta", Price: 0, Status: types.ProductStatusDisabled, StoreID: 1},
		types.Product{ID: 3, SKU: "C", Name: "Gamma", Price: 12, Status: types.ProductStatusEnabled, StoreID: 1},
	)
	f := newFixture(t, src, Config{})
	feed := jsonFeed()
	feed.Filters = types.FilterSettings{ExcludeDisabled: true, ExcludeOutOfStock: false}

	log, err := f.gen.Generate(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, types.GenerationCompleted, log.Status, log.Message)
	assert.Equal(t, 2, log.TotalProducts)
	assert.Equal(t, 2, log.ProductCount)
	assert.Equal(t, 0, log.ErrorCount)
	assert.Equal(t, "feed_1.json", log.FilePath)
	require.NotNil(t, log.CompletedAt)

	rows := decodeArray(t, f.read(t, "feed_1.json"))
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0]["sku"])
	assert.Equal(t, "C", rows[1]["sku"])
	assert.Empty(t, f.tempFiles(t))

	stored, err := f.logs.Get(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GenerationCompleted, stored.Status)
	assert.Equal(t, int64(len(f.read(t, "feed_1.json"))), stored.FileSize)
}

func TestGenerate_FeedConditionsFilterProducts(t *testing.T) {
	src := memorySource(
		types.Product{ID: 1, SKU: "CHEAP", Price: 5, StoreID: 1},
		types.Product{ID: 2, SKU: "PRICEY", Price: 50, StoreID: 1},
	)
	f := newFixture(t, src, Config{})
	feed := jsonFeed()
	feed.Filters.Conditions = []types.Condition{{Attribute: "price", Operator: "gte", Value: 10}}

	log, err := f.gen.Generate(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, types.GenerationCompleted, log.Status)
	assert.Equal(t, 2, log.ProcessedCount)
	assert.Equal(t, 1, log.ProductCount)

	rows := decodeArray(t, f.read(t, "feed_1.json"))
	require.Len(t, rows, 1)
	assert.Equal(t, "PRICEY", rows[0]["sku"])
}

func TestGenerate_GoogleXMLRecordsProductErrors(t *testing.T) {
	src := memorySource(
		googleProduct(1, "First"),
		googleProduct(2, ""),
		googleProduct(3, "Third"),
	)
	f := newFixture(t, src, Config{})

	log, err := f.gen.Generate(context.Background(), googleFeed())
	require.NoError(t, err)
	assert.Equal(t, types.GenerationCompleted, log.Status, log.Message)
	assert.Equal(t, 3, log.ProcessedCount)
	assert.Equal(t, 2, log.ProductCount)
	assert.Equal(t, 1, log.ErrorCount)
	require.Len(t, log.Errors, 1)
	assert.Equal(t, "SKU-2", log.Errors[0].SKU)
	assert.Contains(t, log.Errors[0].Message, "Missing required field: description")
	assert.Equal(t, "Generated 2 of 3 products (1 errors)", log.Message)

	content := f.read(t, "feed_2.xml")
	assert.Contains(t, content, `xmlns:g="http://base.google.com/ns/1.0"`)
	assert.Contains(t, content, "<g:id>SKU-1</g:id>")
	assert.Contains(t, content, "<g:price>20.00 EUR</g:price>")
	assert.Contains(t, content, "<g:link>https://shop.example/product-1</g:link>")
	assert.NotContains(t, content, "SKU-2")
	assert.Empty(t, f.notifier.kinds(), "per-product errors do not notify")
}

func TestGenerate_BreakerAbortsRun(t *testing.T) {
	var products []types.Product
	for i := int64(1); i <= 20; i++ {
		products = append(products, googleProduct(i, ""))
	}
	f := newFixture(t, memorySource(products...), Config{MaxErrorRatePercent: 50, MinProcessed: 5})

	log, err := f.gen.Generate(context.Background(), googleFeed())
	require.NoError(t, err)
	assert.Equal(t, types.GenerationFailed, log.Status)
	assert.Contains(t, log.Message, "error threshold exceeded")
	assert.Equal(t, 5, log.ProcessedCount, "aborts as soon as enough products were seen")
	assert.Equal(t, 5, log.ErrorCount)
	assert.Len(t, log.Errors, 5)
	assert.Equal(t, []notify.Kind{notify.ThresholdExceeded}, f.notifier.kinds())

	exists, err := f.storage.Exists(context.Background(), "feed_2.xml")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, f.tempFiles(t))

	stored, err := f.logs.Get(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GenerationFailed, stored.Status)
	assert.Len(t, stored.Errors, 5)
}

func TestGenerate_FeedOverridesBreakerThreshold(t *testing.T) {
	var products []types.Product
	for i := int64(1); i <= 12; i++ {
		products = append(products, googleProduct(i, ""))
	}
	f := newFixture(t, memorySource(products...), Config{MaxErrorRatePercent: 50, MinProcessed: 5})
	feed := googleFeed()
	feed.MaxErrorRatePercent = types.Float64Ptr(0)

	log, err := f.gen.Generate(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, types.GenerationCompleted, log.Status, "a zero threshold disables the breaker")
	assert.Equal(t, 12, log.ErrorCount)
	assert.Equal(t, 0, log.ProductCount)
}

// blockingSource holds Count until released
type blockingSource struct {
	*catalog.MemorySource
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSource) Count(ctx context.Context, filter catalog.Filter) (int, error) {
	close(s.entered)
	<-s.release
	return s.MemorySource.Count(ctx, filter)
}

func TestGenerate_SecondCallReturnsRunningLog(t *testing.T) {
	src := &blockingSource{
		MemorySource: memorySource(types.Product{ID: 1, SKU: "A", StoreID: 1}),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	f := newFixture(t, src, Config{})
	feed := jsonFeed()

	type result struct {
		log *types.GenerationLog
		err error
	}
	done := make(chan result, 1)
	go func() {
		log, err := f.gen.Generate(context.Background(), feed)
		done <- result{log, err}
	}()
	<-src.entered

	second, err := f.gen.Generate(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, types.GenerationRunning, second.Status)

	running, err := f.gen.IsGenerating(context.Background(), feed.ID)
	require.NoError(t, err)
	assert.True(t, running)

	close(src.release)
	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, second.ID, first.log.ID)
	assert.Equal(t, types.GenerationCompleted, first.log.Status)

	logs, err := f.logs.ListByFeed(context.Background(), feed.ID, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

// failingSource fails or panics when paging
type failingSource struct {
	*catalog.MemorySource
	panic bool
}

func (s *failingSource) Page(ctx context.Context, filter catalog.Filter, page, size int) ([]types.Product, error) {
	if s.panic {
		panic("catalog exploded")
	}
	return nil, fmt.Errorf("connection reset by peer")
}

func TestGenerate_FailureKeepsPreviousOutput(t *testing.T) {
	products := []types.Product{{ID: 1, SKU: "A", Price: 1, StoreID: 1}}
	ok := newFixture(t, memorySource(products...), Config{})
	feed := jsonFeed()

	log, err := ok.gen.Generate(context.Background(), feed)
	require.NoError(t, err)
	require.Equal(t, types.GenerationCompleted, log.Status)
	before := ok.read(t, "feed_1.json")

	for _, panics := range []bool{false, true} {
		t.Run(fmt.Sprintf("panic=%v", panics), func(t *testing.T) {
			ok.gen.deps.Catalog = &failingSource{MemorySource: memorySource(products...), panic: panics}
			ok.notifier.events = nil

			log, err := ok.gen.Generate(context.Background(), feed)
			require.NoError(t, err)
			assert.Equal(t, types.GenerationFailed, log.Status)
			if panics {
				assert.Contains(t, log.Message, "panic during generation: catalog exploded")
			} else {
				assert.Contains(t, log.Message, "connection reset by peer")
			}
			assert.Equal(t, before, ok.read(t, "feed_1.json"), "published file is untouched")
			assert.Empty(t, ok.tempFiles(t))
			assert.Equal(t, []notify.Kind{notify.GenerationFailed}, ok.notifier.kinds())

			running, err := ok.gen.IsGenerating(context.Background(), feed.ID)
			require.NoError(t, err)
			assert.False(t, running, "lock released after failure")
		})
	}
}

func TestGenerate_ValidationFailureIsNotPublished(t *testing.T) {
	f := newFixture(t, memorySource(types.Product{ID: 1, SKU: "A", StoreID: 1}), Config{})
	feed := &types.Feed{
		ID:       5,
		Platform: platforms.PlatformCustom,
		Format:   types.FormatXML,
		StoreID:  1,
		Mappings: []types.AttributeMapping{{FeedAttribute: "sku", Source: types.SourceAttribute, Value: "sku"}},
		XML: types.XMLSettings{
			Mode:         types.XMLModeTemplate,
			ItemTemplate: "<item><sku>{{sku}}</sku>",
		},
	}

	log, err := f.gen.Generate(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, types.GenerationFailed, log.Status)
	assert.Contains(t, log.Message, "output validation failed")
	assert.Equal(t, 1, log.ProductCount, "all products were written before validation")

	exists, err := f.storage.Exists(context.Background(), "feed_5.xml")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, f.tempFiles(t))
}

func TestGenerate_SetupErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.Feed)
		message string
	}{
		{"unknown platform", func(f *types.Feed) { f.Platform = "myspace" }, "unknown platform"},
		{"unsupported format", func(f *types.Feed) { f.Format = "parquet" }, "unsupported feed format"},
		{"bad source type", func(f *types.Feed) {
			f.Mappings = append(f.Mappings, types.AttributeMapping{FeedAttribute: "x", Source: "sql"})
		}, "unsupported source type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, memorySource(types.Product{ID: 1, SKU: "A", StoreID: 1}), Config{})
			feed := jsonFeed()
			tt.mutate(feed)

			log, err := f.gen.Generate(context.Background(), feed)
			require.NoError(t, err)
			assert.Equal(t, types.GenerationFailed, log.Status)
			assert.Contains(t, log.Message, tt.message)
			assert.Equal(t, 0, log.ProcessedCount)
		})
	}
}

func TestGenerate_CompressedOutput(t *testing.T) {
	f := newFixture(t, memorySource(types.Product{ID: 1, SKU: "A", StoreID: 1}), Config{})
	feed := jsonFeed()
	feed.Format = types.FormatJSONL
	feed.Compress = true
	feed.OutputDir = "exports"

	log, err := f.gen.Generate(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, types.GenerationCompleted, log.Status, log.Message)
	assert.Equal(t, "exports/feed_1.jsonl.gz", log.FilePath)

	info, err := f.storage.GetInfo(context.Background(), log.FilePath)
	require.NoError(t, err)
	assert.True(t, info.Compressed)
	assert.Equal(t, info.Size, log.FileSize)
}

func structureFeed(format types.FileFormat) *types.Feed {
	nodes := []types.StructureNode{
		{Name: "title", Source: types.SourceAttribute, Value: "name", CDATA: true},
		{Name: "price", Source: types.SourceAttribute, Value: "price"},
		{Name: "mpn", Source: types.SourceAttribute, Value: "mpn", Optional: true},
		{Name: "brand_info", Children: []types.StructureNode{
			{Name: "brand", Source: types.SourceAttribute, Value: "brand", Chain: "uppercase"},
		}},
		{Name: "images", Kind: types.NodeArray, ItemName: "image", Source: types.SourceAttribute, Value: "additional_image_link"},
	}
	return &types.Feed{
		ID:          3,
		Code:        "structured",
		Platform:    platforms.PlatformCustom,
		Format:      format,
		StoreID:     1,
		MediaURL:    "https://cdn.example",
		PriceFormat: types.PriceFormat{Currency: "USD"},
		XML:         types.XMLSettings{Mode: types.XMLModeStructure, Structure: nodes},
		JSON:        types.JSONSettings{Structure: nodes},
	}
}

func structureProduct() types.Product {
	return types.Product{
		ID: 1, SKU: "A", Name: "a <b>", Brand: "acme", Price: 20, StoreID: 1,
		Image: "/a.jpg", Gallery: []string{"/a.jpg", "/b.jpg"},
	}
}

func TestGenerate_XMLStructure(t *testing.T) {
	f := newFixture(t, memorySource(structureProduct()), Config{})

	log, err := f.gen.Generate(context.Background(), structureFeed(types.FormatXML))
	require.NoError(t, err)
	assert.Equal(t, types.GenerationCompleted, log.Status, log.Message)
	assert.Equal(t, 1, log.ProductCount)

	content := f.read(t, log.FilePath)
	assert.Contains(t, content, "<products>")
	assert.Contains(t, content, "<title><![CDATA[a <b>]]></title>")
	assert.Contains(t, content, "<price>20.00 USD</price>")
	assert.Contains(t, content, "<brand>ACME</brand>")
	assert.Contains(t, content, "<image>https://cdn.example/b.jpg</image>")
	assert.NotContains(t, content, "<mpn>", "empty optional leaves are omitted")
}

func TestGenerate_JSONStructure(t *testing.T) {
	f := newFixture(t, memorySource(structureProduct()), Config{})

	log, err := f.gen.Generate(context.Background(), structureFeed(types.FormatJSON))
	require.NoError(t, err)
	assert.Equal(t, types.GenerationCompleted, log.Status, log.Message)

	rows := decodeArray(t, f.read(t, log.FilePath))
	require.Len(t, rows, 1)
	assert.Equal(t, "a <b>", rows[0]["title"])
	assert.Equal(t, "20.00 USD", rows[0]["price"])
	assert.Equal(t, map[string]any{"brand": "ACME"}, rows[0]["brand_info"])
	assert.Equal(t, []any{"https://cdn.example/b.jpg"}, rows[0]["images"])
	assert.NotContains(t, rows[0], "mpn")
}

func TestGenerate_PagesAndCheckpoints(t *testing.T) {
	var products []types.Product
	for i := int64(1); i <= 250; i++ {
		products = append(products, types.Product{ID: i, SKU: fmt.Sprintf("S%03d", i), StoreID: 1})
	}
	f := newFixture(t, memorySource(products...), Config{BatchSize: 40, CheckpointEvery: 100, GCEveryPages: 2})
	feed := jsonFeed()
	feed.Format = types.FormatJSONL

	log, err := f.gen.Generate(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, types.GenerationCompleted, log.Status, log.Message)
	assert.Equal(t, 250, log.ProductCount)

	lines := strings.Split(strings.TrimSpace(f.read(t, "feed_1.jsonl")), "\n")
	require.Len(t, lines, 250)
	assert.Contains(t, lines[249], `"sku":"S250"`)
	// one after counting, then at 100 and 200 processed
	assert.Equal(t, 3, f.logs.checkpoints)
}

func TestGeneratePreview(t *testing.T) {
	var products []types.Product
	for i := int64(1); i <= 5; i++ {
		products = append(products, types.Product{ID: i, SKU: fmt.Sprintf("P%d", i), Name: "Item", StoreID: 1})
	}
	f := newFixture(t, memorySource(products...), Config{PreviewLimit: 3})
	ctx := context.Background()

	out, err := f.gen.GeneratePreview(ctx, jsonFeed(), 2)
	require.NoError(t, err)
	rows := decodeArray(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, "P1", rows[0]["sku"])

	out, err = f.gen.GeneratePreview(ctx, jsonFeed(), 0)
	require.NoError(t, err)
	assert.Len(t, decodeArray(t, out), 3, "defaults to the configured preview limit")

	xlsx := jsonFeed()
	xlsx.Format = types.FormatXLSX
	out, err = f.gen.GeneratePreview(ctx, xlsx, 1)
	require.NoError(t, err)
	assert.Equal(t, "sku,title,price\nP1,Item,0.00\n", out)

	logs, err := f.logs.ListByFeed(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, logs, "preview never writes a log")
	keys, err := f.storage.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, f.tempFiles(t))
}

func TestIsGenerating_ResetsStuckRun(t *testing.T) {
	f := newFixture(t, memorySource(), Config{StuckTimeout: 30 * time.Minute})
	ctx := context.Background()

	stuck, _, err := f.logs.AcquireRunning(ctx, logstore.NewLog(1, now.Add(-45*time.Minute)))
	require.NoError(t, err)
	fresh, _, err := f.logs.AcquireRunning(ctx, logstore.NewLog(2, now.Add(-5*time.Minute)))
	require.NoError(t, err)

	running, err := f.gen.IsGenerating(ctx, 1)
	require.NoError(t, err)
	assert.False(t, running)

	healed, err := f.logs.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GenerationFailed, healed.Status)
	assert.Contains(t, healed.Message, "timed out")
	assert.Equal(t, []notify.Kind{notify.GenerationTimedOut}, f.notifier.kinds())

	running, err = f.gen.IsGenerating(ctx, 2)
	require.NoError(t, err)
	assert.True(t, running)
	_, err = f.logs.Get(ctx, fresh.ID)
	require.NoError(t, err)

	running, err = f.gen.IsGenerating(ctx, 3)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestReapStuck(t *testing.T) {
	f := newFixture(t, memorySource(), Config{StuckTimeout: 10 * time.Minute})
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		_, _, err := f.logs.AcquireRunning(ctx, logstore.NewLog(id, now.Add(-time.Duration(id)*6*time.Minute)))
		require.NoError(t, err)
	}

	reaped, err := f.gen.ReapStuck(ctx)
	require.NoError(t, err)
	require.Len(t, reaped, 2)

	running, err := f.logs.ListRunning(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, int64(1), running[0].FeedID)
}

func TestGetGenerationStatus(t *testing.T) {
	f := newFixture(t, memorySource(types.Product{ID: 1, SKU: "A", StoreID: 1}), Config{})
	ctx := context.Background()

	status, err := f.gen.GetGenerationStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status.Status)

	log, err := f.gen.Generate(ctx, jsonFeed())
	require.NoError(t, err)

	status, err = f.gen.GetGenerationStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, log.ID, status.LogID)
	assert.Equal(t, string(types.GenerationCompleted), status.Status)
	assert.Equal(t, float64(100), status.Progress)
	assert.Equal(t, 1, status.ProductCount)
	assert.Equal(t, "feed_1.json", status.FilePath)
}

func TestErrorBreaker(t *testing.T) {
	tests := []struct {
		name      string
		max       float64
		min       int
		failed    int
		processed int
		trips     bool
	}{
		{"below minimum", 50, 10, 9, 9, false},
		{"over threshold", 50, 10, 6, 10, true},
		{"exactly at threshold", 50, 10, 5, 10, false},
		{"disabled", 0, 0, 10, 10, false},
		{"no minimum", 10, 0, 1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errorBreaker{maxPercent: tt.max, minProcessed: tt.min}.check(tt.failed, tt.processed)
			if tt.trips {
				assert.ErrorIs(t, err, ErrThresholdExceeded)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
