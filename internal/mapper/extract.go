package mapper

import (
	"strings"
	"time"

	"github.com/kosarica/feed-service/internal/transformers"
	"github.com/kosarica/feed-service/internal/types"
)

// ParentPrefix prefixes parent-product fields copied into a child's raw data
const ParentPrefix = "parent_"

// priceFields are raw keys auto-formatted as prices when a mapping has no transformers
var priceFields = map[string]bool{
	"price":               true,
	"special_price":       true,
	"valid_special_price": true,
	"final_price":         true,
	"regular_price":       true,
	"sale_price":          true,
	"cost":                true,
	"msrp":                true,
	"min_price":           true,
	"max_price":           true,
}

// IsPriceField reports whether a raw attribute name holds a price
func IsPriceField(name string) bool {
	return priceFields[strings.TrimPrefix(name, ParentPrefix)]
}

// ValidSpecialPrice returns the special price when it is positive and today
// falls inside its optional from/to window, else nil
func ValidSpecialPrice(p *types.Product, today time.Time) *float64 {
	if p.SpecialPrice == nil || *p.SpecialPrice <= 0 {
		return nil
	}
	day := truncateDay(today)
	if p.SpecialFrom != nil && truncateDay(*p.SpecialFrom).After(day) {
		return nil
	}
	if p.SpecialTo != nil && truncateDay(*p.SpecialTo).Before(day) {
		return nil
	}
	v := *p.SpecialPrice
	return &v
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// extractBase builds the product's own raw fields without parent data
func extractBase(p *types.Product, feed *types.Feed, cats *CategorySet, today time.Time) map[string]any {
	raw := make(map[string]any, 40+len(p.Attributes))

	// free-form attributes first so base fields win on collisions
	for k, v := range p.Attributes {
		raw[k] = v
	}

	raw["id"] = p.ID
	raw["entity_id"] = p.ID
	raw["sku"] = p.SKU
	raw["name"] = p.Name
	raw["type_id"] = p.TypeID
	raw["status"] = p.Status
	raw["visibility"] = p.Visibility
	raw["description"] = p.Description
	raw["short_description"] = p.ShortDescription
	raw["url_key"] = p.URLKey
	raw["url"] = productURL(feed.BaseURL, p.URLKey)
	raw["price"] = p.Price
	raw["weight"] = p.Weight
	raw["brand"] = firstNonEmpty(p.Brand, p.Manufacturer)
	raw["manufacturer"] = p.Manufacturer
	raw["gtin"] = p.GTIN
	raw["ean"] = p.GTIN
	raw["mpn"] = p.MPN
	raw["store_id"] = p.StoreID
	raw["currency"] = feed.PriceFormat.Currency
	raw["created_at"] = p.CreatedAt
	raw["updated_at"] = p.UpdatedAt

	if p.SpecialPrice != nil {
		raw["special_price"] = *p.SpecialPrice
	} else {
		raw["special_price"] = nil
	}
	raw["special_from_date"] = timeOrNil(p.SpecialFrom)
	raw["special_to_date"] = timeOrNil(p.SpecialTo)

	final := p.Price
	if special := ValidSpecialPrice(p, today); special != nil {
		raw["valid_special_price"] = *special
		if *special < final {
			final = *special
		}
	} else {
		raw["valid_special_price"] = nil
	}
	raw["final_price"] = final

	raw["image"] = p.Image
	raw["image_link"] = mediaURL(feed.MediaURL, p.Image)
	additional := make([]string, 0, len(p.Gallery))
	for _, img := range p.Gallery {
		if img == "" || img == p.Image {
			continue
		}
		additional = append(additional, mediaURL(feed.MediaURL, img))
	}
	raw["additional_image_link"] = additional

	if p.Stock != nil {
		setStock(raw, p.Stock)
	}

	raw["category_ids"] = p.CategoryIDs
	raw["category_names"] = cats.Names(p.CategoryIDs)
	if deepest, ok := cats.Deepest(p.CategoryIDs); ok {
		raw["category"] = deepest.Name
		raw["category_path"] = cats.PathNames(deepest.ID)
	} else {
		raw["category"] = ""
		raw["category_path"] = ""
	}

	return raw
}

func setStock(raw map[string]any, s *types.StockItem) {
	raw["qty"] = s.Qty
	raw["is_in_stock"] = s.IsInStock
	if s.IsInStock {
		raw["availability"] = "in stock"
	} else {
		raw["availability"] = "out of stock"
	}
}

// extractRaw builds the full raw data: base fields, parent fields and feed settings
func extractRaw(p *types.Product, feed *types.Feed, cats *CategorySet, parent map[string]any, today time.Time) map[string]any {
	raw := extractBase(p, feed, cats, today)

	if parent != nil {
		for k, v := range parent {
			raw[ParentPrefix+k] = v
		}
		// configurable children usually carry no categories of their own
		if len(p.CategoryIDs) == 0 {
			for _, k := range []string{"category_ids", "category_names", "category", "category_path"} {
				raw[k] = parent[k]
			}
		}
	}

	raw[transformers.FeedSettingsKey] = transformers.PriceFormatMap(feed.PriceFormat)
	return raw
}

func productURL(base, urlKey string) string {
	if urlKey == "" {
		return ""
	}
	if strings.Contains(urlKey, "://") || base == "" {
		return urlKey
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(urlKey, "/")
}

func mediaURL(base, path string) string {
	if path == "" {
		return ""
	}
	if strings.Contains(path, "://") || base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
