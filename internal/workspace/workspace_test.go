package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/feed-service/internal/catalog"
	"github.com/kosarica/feed-service/internal/feeds"
	"github.com/kosarica/feed-service/internal/types"
)

const sample = `
feeds:
  - code: google-hr
    name: Google Croatia
    platform: google
    format: xml
    store_id: 1
    base_url: https://shop.example
    compress: true
    schedule:
      enabled: true
      interval: 6h
    price_format:
      currency: EUR
    mappings:
      - feed_attribute: shipping
        source_type: rule
        source_value: shipping
    destination:
      type: https
      url: https://merchant.example/upload
      token: s3cret
  - id: 7
    code: csv-export
    platform: custom
    format: csv
    is_active: false
    csv:
      delimiter: ";"
rules:
  - code: shipping
    cases:
      - conditions:
          - {attribute: price, operator: gte, value: 50}
        output_type: static
        output_value: "0.00 EUR"
      - is_default: true
        output_type: static
        output_value: "4.99 EUR"
categories:
  0:
    - {id: 1, name: Root, path: "1", level: 1}
    - {id: 2, parent_id: 1, name: Shoes, path: "1/2"}
category_mappings:
  - {platform: google, category_id: 2, platform_category_id: "187"}
  - {platform: facebook, category_id: 2, platform_category_id: "fb-shoes"}
products:
  - {id: 2, sku: B, status: 1, price: 80, store_id: 1, category_ids: [2]}
  - {id: 1, sku: A, status: 1, price: 10, store_id: 1}
`

func TestParse(t *testing.T) {
	ws, err := Parse([]byte(sample))
	require.NoError(t, err)
	ctx := context.Background()

	require.Len(t, ws.Feeds, 2)
	google := ws.Feeds[0]
	assert.Equal(t, int64(1), google.ID, "feeds without an id get their position")
	assert.True(t, google.IsActive, "feeds are active unless disabled")
	assert.Equal(t, 6*time.Hour, google.Schedule.Interval)
	assert.Equal(t, "EUR", google.PriceFormat.Currency)
	assert.Equal(t, "feed_1.xml.gz", google.OutputKey())
	require.NotNil(t, google.Destination)
	assert.Equal(t, "s3cret", google.Destination.Token)

	csv := ws.Feeds[1]
	assert.Equal(t, int64(7), csv.ID)
	assert.False(t, csv.IsActive)
	assert.Equal(t, ';', csv.CSV.DelimiterRune())

	active, err := ws.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	byRef, err := feeds.Resolve(ctx, ws, "7")
	require.NoError(t, err)
	assert.Equal(t, "csv-export", byRef.Code)
	byRef, err = feeds.Resolve(ctx, ws, "google-hr")
	require.NoError(t, err)
	assert.Equal(t, int64(1), byRef.ID)
	_, err = feeds.Resolve(ctx, ws, "nope")
	assert.ErrorIs(t, err, types.ErrNotFound)

	rule, err := ws.DynamicRule(ctx, "shipping")
	require.NoError(t, err)
	assert.Len(t, rule.Cases, 2)
	_, err = ws.DynamicRule(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.Len(t, ws.MappingList, 2)
	googleMappings, err := ws.CategoryMappings(ctx, "google")
	require.NoError(t, err)
	require.Len(t, googleMappings, 1)
	assert.Equal(t, "187", googleMappings[0].PlatformCategoryID)
	none, err := ws.CategoryMappings(ctx, "bing")
	require.NoError(t, err)
	assert.Empty(t, none)

	taxonomy, err := ws.TaxonomyMappings(ctx, "google")
	require.NoError(t, err)
	require.Len(t, taxonomy, 1)
	assert.Equal(t, 2, taxonomy[0].Depth, "depth falls back to the path when level is unset")

	n, err := ws.Catalog().Count(ctx, catalog.FilterFor(google))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	page, err := ws.Catalog().Page(ctx, catalog.FilterFor(google), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "A", page[0].SKU, "catalog pages are ordered by id")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		message string
	}{
		{"bad yaml", "feeds: [", "invalid workspace yaml"},
		{"unknown platform", "feeds:\n  - {code: x, platform: myspace, format: xml}", "unknown platform: myspace"},
		{"missing code", "feeds:\n  - {platform: google, format: xml}", "code is required"},
		{"duplicate code", "feeds:\n  - {code: x, platform: google, format: xml}\n  - {code: x, platform: google, format: csv}", "duplicate code"},
		{"bad format", "feeds:\n  - {code: x, platform: google, format: pdf}", "unsupported feed format"},
		{"bad source", "feeds:\n  - code: x\n    platform: custom\n    format: csv\n    mappings:\n      - {feed_attribute: a, source_type: sql}", "unsupported source type"},
		{"two defaults", "rules:\n  - code: r\n    cases:\n      - {is_default: true, output_type: static}\n      - {is_default: true, output_type: static}", "default cases"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	ws, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, ws.Feeds, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Example(t *testing.T) {
	ws, err := Load(filepath.Join("..", "..", "config", "workspace.example.yaml"))
	require.NoError(t, err)
	require.Len(t, ws.Feeds, 2)

	google, err := ws.GetByCode(context.Background(), "google-hr")
	require.NoError(t, err)
	assert.True(t, google.IsActive)
	assert.Equal(t, 6*time.Hour, google.Schedule.Interval)
	require.NotNil(t, google.Destination)
	assert.Equal(t, "http", google.Destination.Type)

	rule, err := ws.DynamicRule(context.Background(), "stock_status")
	require.NoError(t, err)
	assert.Len(t, rule.Cases, 2)
}
