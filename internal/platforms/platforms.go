package platforms

import "github.com/kosarica/feed-service/internal/types"

// Platform codes
const (
	PlatformGoogle               = "google"
	PlatformGoogleLocalInventory = "google_local_inventory"
	PlatformFacebook             = "facebook"
	PlatformBing                 = "bing"
	PlatformPinterest            = "pinterest"
	PlatformIdealo               = "idealo"
	PlatformTrovaprezzi          = "trovaprezzi"
	PlatformOpenAI               = "openai"
	PlatformCustom               = "custom"
)

// Category keys
const (
	KeyGoogleCategory = "google_product_category"
	KeyCategory       = "category"
)

var googleAvailability = &Availability{InStock: "in stock", OutOfStock: "out of stock", Preorder: "preorder"}

const googleNamespace = "http://base.google.com/ns/1.0"

func shoppingMappings(descriptionLimit int) []types.AttributeMapping {
	return []types.AttributeMapping{
		attr("id", "sku", 10, ""),
		parentAttr("title", "name", 20, "strip_tags"),
		parentAttr("description", "description", 30, "strip_tags|truncate:length="+itoa(descriptionLimit)),
		attr("link", "url", 40, ""),
		parentAttr("image_link", "image_link", 50, ""),
		attr("additional_image_link", "additional_image_link", 55, ""),
		attr("availability", "availability", 60, ""),
		attr("price", "price", 70, ""),
		attr("sale_price", "valid_special_price", 75, ""),
		parentAttr("brand", "brand", 80, ""),
		attr("gtin", "gtin", 90, ""),
		attr("mpn", "mpn", 95, ""),
		static("condition", "new", 100),
		attr("item_group_id", "parent_sku", 110, ""),
		attr("product_type", "category_path", 120, ""),
	}
}

// NewGoogleAdapter creates the Google Merchant Center adapter
func NewGoogleAdapter() Adapter {
	return NewBaseAdapter(Config{
		Code:           PlatformGoogle,
		Name:           "Google Shopping",
		Formats:        []types.FileFormat{types.FormatXML, types.FormatCSV, types.FormatJSONL},
		RequiredFields: []string{"id", "title", "description", "link", "image_link", "availability", "price"},
		MaxLengths:     map[string]int{"id": 50, "title": 150, "description": 5000},
		Mappings:       shoppingMappings(5000),
		CategoryKey:    KeyGoogleCategory,
		Availability:   googleAvailability,
		Defaults:       map[string]string{"condition": "new"},
		PriceFields:    []string{"price"},
		URLFields:      []string{"link", "image_link"},
		GTINField:      "gtin",
		DropEmpty:      true,
		Namespaces:     map[string]string{"g": googleNamespace},
		FieldPrefix:    "g:",
	})
}

// NewGoogleLocalInventoryAdapter creates the Google local inventory adapter
func NewGoogleLocalInventoryAdapter() Adapter {
	return NewBaseAdapter(Config{
		Code:           PlatformGoogleLocalInventory,
		Name:           "Google Local Inventory",
		Formats:        []types.FileFormat{types.FormatXML, types.FormatCSV, types.FormatJSONL},
		RequiredFields: []string{"store_code", "id", "quantity", "price", "availability"},
		Mappings: []types.AttributeMapping{
			static("store_code", "", 10),
			attr("id", "sku", 20, ""),
			attr("quantity", "qty", 30, "round"),
			attr("price", "price", 40, ""),
			attr("sale_price", "valid_special_price", 45, ""),
			attr("availability", "availability", 50, ""),
		},
		Availability: googleAvailability,
		PriceFields:  []string{"price"},
		DropEmpty:    true,
		Namespaces:   map[string]string{"g": googleNamespace},
		FieldPrefix:  "g:",
	})
}

// NewFacebookAdapter creates the Meta catalog adapter
func NewFacebookAdapter() Adapter {
	return NewBaseAdapter(Config{
		Code:           PlatformFacebook,
		Name:           "Facebook Catalog",
		Formats:        []types.FileFormat{types.FormatXML, types.FormatCSV, types.FormatJSON},
		RequiredFields: []string{"id", "title", "description", "availability", "condition", "price", "link", "image_link", "brand"},
		MaxLengths:     map[string]int{"id": 100, "title": 200, "description": 9999},
		Mappings:       shoppingMappings(9999),
		CategoryKey:    KeyGoogleCategory,
		Availability:   &Availability{InStock: "in stock", OutOfStock: "out of stock", Preorder: "available for order"},
		Defaults:       map[string]string{"condition": "new"},
		PriceFields:    []string{"price"},
		URLFields:      []string{"link", "image_link"},
		DropEmpty:      true,
		Namespaces:     map[string]string{"g": googleNamespace},
		FieldPrefix:    "g:",
	})
}

// NewBingAdapter creates the Microsoft Merchant Center adapter
func NewBingAdapter() Adapter {
	return NewBaseAdapter(Config{
		Code:           PlatformBing,
		Name:           "Microsoft Shopping",
		Formats:        []types.FileFormat{types.FormatXML, types.FormatCSV},
		RequiredFields: []string{"id", "title", "link", "price", "description", "image_link", "availability"},
		MaxLengths:     map[string]int{"id": 40, "title": 150, "description": 10000},
		Mappings:       shoppingMappings(10000),
		CategoryKey:    KeyCategory,
		Availability:   googleAvailability,
		Defaults:       map[string]string{"condition": "new"},
		PriceFields:    []string{"price"},
		URLFields:      []string{"link", "image_link"},
		GTINField:      "gtin",
		DropEmpty:      true,
	})
}

// NewPinterestAdapter creates the Pinterest catalog adapter
func NewPinterestAdapter() Adapter {
	return NewBaseAdapter(Config{
		Code:           PlatformPinterest,
		Name:           "Pinterest Catalog",
		Formats:        []types.FileFormat{types.FormatXML, types.FormatCSV},
		RequiredFields: []string{"id", "title", "description", "link", "image_link", "price", "availability"},
		MaxLengths:     map[string]int{"id": 127, "title": 500, "description": 10000},
		Mappings:       shoppingMappings(10000),
		CategoryKey:    KeyCategory,
		Availability:   googleAvailability,
		Defaults:       map[string]string{"condition": "new"},
		PriceFields:    []string{"price"},
		URLFields:      []string{"link", "image_link"},
		DropEmpty:      true,
	})
}

// NewIdealoAdapter creates the idealo price comparison adapter
func NewIdealoAdapter() Adapter {
	return NewBaseAdapter(Config{
		Code:           PlatformIdealo,
		Name:           "idealo",
		Formats:        []types.FileFormat{types.FormatCSV, types.FormatXML, types.FormatJSON},
		RequiredFields: []string{"sku", "title", "price", "url", "delivery_time"},
		MaxLengths:     map[string]int{"title": 255},
		Mappings: []types.AttributeMapping{
			attr("sku", "sku", 10, ""),
			parentAttr("brand", "brand", 20, ""),
			parentAttr("title", "name", 30, "strip_tags"),
			attr("price", "final_price", 40, "number_format:decimals=2"),
			attr("url", "url", 50, ""),
			attr("image_urls", "image_link", 60, ""),
			parentAttr("description", "description", 70, "strip_tags|strip_newlines|truncate:length=1000"),
			attr("eans", "gtin", 80, ""),
			static("delivery_time", "1-3 days", 90),
			attr("category_path", "category_path", 100, ""),
		},
		CategoryKey: KeyCategory,
		PriceFields: []string{"price"},
		URLFields:   []string{"url"},
	})
}

// NewTrovaprezziAdapter creates the Trovaprezzi adapter
func NewTrovaprezziAdapter() Adapter {
	return NewBaseAdapter(Config{
		Code:           PlatformTrovaprezzi,
		Name:           "Trovaprezzi",
		Formats:        []types.FileFormat{types.FormatXML, types.FormatCSV},
		RequiredFields: []string{"Name", "Price", "Code", "Link", "Categories"},
		Mappings: []types.AttributeMapping{
			parentAttr("Name", "name", 10, "strip_tags"),
			parentAttr("Brand", "brand", 20, ""),
			parentAttr("Description", "short_description", 30, "strip_tags|truncate:length=255"),
			attr("OriginalPrice", "price", 40, "number_format:decimals=2"),
			attr("Price", "final_price", 50, "number_format:decimals=2"),
			attr("Code", "sku", 60, ""),
			attr("Link", "url", 70, ""),
			attr("Stock", "qty", 80, "round"),
			attr("Categories", "category_path", 90, ""),
			attr("Image", "image_link", 100, ""),
			attr("EanCode", "gtin", 110, ""),
		},
		CategoryKey: KeyCategory,
		PriceFields: []string{"Price"},
		URLFields:   []string{"Link"},
		GTINField:   "EanCode",
	})
}

// NewOpenAIAdapter creates the ChatGPT product feed adapter
func NewOpenAIAdapter() Adapter {
	return NewBaseAdapter(Config{
		Code:    PlatformOpenAI,
		Name:    "OpenAI Product Feed",
		Formats: []types.FileFormat{types.FormatJSONL, types.FormatJSON, types.FormatCSV, types.FormatXML},
		RequiredFields: []string{
			"id", "title", "description", "link", "image_link", "price",
			"availability", "enable_search", "enable_checkout",
		},
		MaxLengths: map[string]int{"id": 100, "title": 150, "description": 5000},
		Mappings: []types.AttributeMapping{
			attr("id", "sku", 10, ""),
			parentAttr("title", "name", 20, "strip_tags"),
			parentAttr("description", "description", 30, "strip_tags|truncate:length=5000"),
			attr("link", "url", 40, ""),
			parentAttr("image_link", "image_link", 50, ""),
			attr("price", "price", 60, ""),
			attr("sale_price", "valid_special_price", 65, ""),
			attr("availability", "availability", 70, ""),
			attr("inventory_quantity", "qty", 80, "round"),
			parentAttr("brand", "brand", 90, ""),
			attr("gtin", "gtin", 100, ""),
			attr("mpn", "mpn", 110, ""),
			attr("product_category", "category_path", 120, ""),
			static("enable_search", "true", 130),
			static("enable_checkout", "false", 140),
		},
		Availability: &Availability{InStock: "in_stock", OutOfStock: "out_of_stock", Preorder: "preorder"},
		PriceFields:  []string{"price"},
		URLFields:    []string{"link", "image_link"},
		GTINField:    "gtin",
		DropEmpty:    true,
	})
}

// NewCustomAdapter creates the pass-through adapter for hand-built feeds
func NewCustomAdapter() Adapter {
	return NewBaseAdapter(Config{
		Code: PlatformCustom,
		Name: "Custom",
	})
}

func itoa(n int) string {
	return types.ToString(n)
}
