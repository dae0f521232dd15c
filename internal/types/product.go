package types

import "time"

// Product status and visibility values as stored in the catalog
const (
	ProductStatusEnabled  = 1
	ProductStatusDisabled = 2

	VisibilityNotVisible = 1
)

// Product is one catalog row with the associations the mapper needs
type Product struct {
	ID               int64          `json:"id" yaml:"id"`
	SKU              string         `json:"sku" yaml:"sku"`
	TypeID           string         `json:"typeId" yaml:"type_id"`
	Status           int            `json:"status" yaml:"status"`
	Visibility       int            `json:"visibility" yaml:"visibility"`
	Name             string         `json:"name" yaml:"name"`
	Description      string         `json:"description,omitempty" yaml:"description"`
	ShortDescription string         `json:"shortDescription,omitempty" yaml:"short_description"`
	URLKey           string         `json:"urlKey,omitempty" yaml:"url_key"`
	Price            float64        `json:"price" yaml:"price"`
	SpecialPrice     *float64       `json:"specialPrice,omitempty" yaml:"special_price"`
	SpecialFrom      *time.Time     `json:"specialFrom,omitempty" yaml:"special_from"`
	SpecialTo        *time.Time     `json:"specialTo,omitempty" yaml:"special_to"`
	Weight           float64        `json:"weight,omitempty" yaml:"weight"`
	Brand            string         `json:"brand,omitempty" yaml:"brand"`
	Manufacturer     string         `json:"manufacturer,omitempty" yaml:"manufacturer"`
	GTIN             string         `json:"gtin,omitempty" yaml:"gtin"`
	MPN              string         `json:"mpn,omitempty" yaml:"mpn"`
	Image            string         `json:"image,omitempty" yaml:"image"`
	Gallery          []string       `json:"gallery,omitempty" yaml:"gallery"`
	CategoryIDs      []int64        `json:"categoryIds,omitempty" yaml:"category_ids"`
	Attributes       map[string]any `json:"attributes,omitempty" yaml:"attributes"`
	Stock            *StockItem     `json:"stock,omitempty" yaml:"stock"`
	ParentID         *int64         `json:"parentId,omitempty" yaml:"parent_id"`
	StoreID          int64          `json:"storeId" yaml:"store_id"`
	CreatedAt        time.Time      `json:"createdAt" yaml:"created_at"`
	UpdatedAt        time.Time      `json:"updatedAt" yaml:"updated_at"`
}

// StockItem is the stock snapshot of a product
type StockItem struct {
	Qty       float64 `json:"qty" yaml:"qty"`
	IsInStock bool    `json:"isInStock" yaml:"is_in_stock"`
}

// Enabled reports whether the product is enabled in the catalog
func (p *Product) Enabled() bool {
	return p.Status == ProductStatusEnabled
}

// InStock reports the stock flag; products without a stock item count as in stock
func (p *Product) InStock() bool {
	return p.Stock == nil || p.Stock.IsInStock
}
