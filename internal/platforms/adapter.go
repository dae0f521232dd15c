// Package platforms holds the per-marketplace adapters: default attribute
// mappings, category support and final validation/transformation of a
// mapped product row.
package platforms

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kosarica/feed-service/internal/types"
)

// Adapter defines the contract for all platform adapters
type Adapter interface {
	Code() string
	Name() string
	DefaultMappings() []types.AttributeMapping
	SupportsCategoryMapping() bool
	// CategoryKey is the output key the mapped platform category is stored under
	CategoryKey() string
	ValidateProductData(row *types.Record) []string
	TransformProductData(row *types.Record) *types.Record
	SupportedFormats() []types.FileFormat
}

// XMLNamespacer is implemented by adapters whose XML output uses a namespace
type XMLNamespacer interface {
	XMLNamespaces() map[string]string
	XMLFieldPrefix() string
}

// Availability holds a platform's availability vocabulary
type Availability struct {
	InStock    string
	OutOfStock string
	Preorder   string
}

// Config contains configuration for a base platform adapter
type Config struct {
	Code            string
	Name            string
	Formats         []types.FileFormat
	RequiredFields  []string
	MaxLengths      map[string]int
	Mappings        []types.AttributeMapping
	CategoryKey     string // empty when the platform has no category taxonomy
	AvailabilityKey string
	Availability    *Availability
	Defaults        map[string]string
	PriceFields     []string
	URLFields       []string
	GTINField       string
	DropEmpty       bool
	Namespaces      map[string]string
	FieldPrefix     string
}

// BaseAdapter provides the common implementation for all platform adapters
type BaseAdapter struct {
	cfg Config
}

// NewBaseAdapter creates a base adapter from cfg
func NewBaseAdapter(cfg Config) *BaseAdapter {
	if cfg.AvailabilityKey == "" {
		cfg.AvailabilityKey = "availability"
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []types.FileFormat{types.FormatXML, types.FormatCSV, types.FormatJSON, types.FormatJSONL, types.FormatXLSX}
	}
	return &BaseAdapter{cfg: cfg}
}

// Code returns the platform code
func (a *BaseAdapter) Code() string { return a.cfg.Code }

// Name returns the platform display name
func (a *BaseAdapter) Name() string { return a.cfg.Name }

// DefaultMappings returns a copy of the platform's default mappings
func (a *BaseAdapter) DefaultMappings() []types.AttributeMapping {
	out := make([]types.AttributeMapping, len(a.cfg.Mappings))
	copy(out, a.cfg.Mappings)
	return out
}

// SupportsCategoryMapping reports whether the platform has a category taxonomy
func (a *BaseAdapter) SupportsCategoryMapping() bool { return a.cfg.CategoryKey != "" }

// CategoryKey returns the output key for the mapped platform category
func (a *BaseAdapter) CategoryKey() string { return a.cfg.CategoryKey }

// SupportedFormats returns the formats the platform accepts
func (a *BaseAdapter) SupportedFormats() []types.FileFormat {
	out := make([]types.FileFormat, len(a.cfg.Formats))
	copy(out, a.cfg.Formats)
	return out
}

// XMLNamespaces returns namespace declarations for the XML root
func (a *BaseAdapter) XMLNamespaces() map[string]string { return a.cfg.Namespaces }

// XMLFieldPrefix returns the element prefix for product fields
func (a *BaseAdapter) XMLFieldPrefix() string { return a.cfg.FieldPrefix }

// ValidateProductData checks required fields, prices, URLs and GTIN
func (a *BaseAdapter) ValidateProductData(row *types.Record) []string {
	var errs []string

	for _, field := range a.cfg.RequiredFields {
		v, _ := row.Get(field)
		if types.IsEmpty(v) {
			errs = append(errs, fmt.Sprintf("Missing required field: %s", field))
		}
	}

	for _, field := range a.cfg.PriceFields {
		v, ok := row.Get(field)
		if !ok || types.IsEmpty(v) {
			continue
		}
		if !hasPositiveAmount(types.ToString(v)) {
			errs = append(errs, fmt.Sprintf("%s must be positive", field))
		}
	}

	for _, field := range a.cfg.URLFields {
		v, ok := row.Get(field)
		if !ok || types.IsEmpty(v) {
			continue
		}
		s := types.ToString(v)
		if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
			errs = append(errs, fmt.Sprintf("%s must be an absolute URL", field))
		}
	}

	if a.cfg.GTINField != "" {
		if v, ok := row.Get(a.cfg.GTINField); ok && !types.IsEmpty(v) {
			if !isValidGTIN(types.ToString(v)) {
				errs = append(errs, fmt.Sprintf("Invalid GTIN format: %s", types.ToString(v)))
			}
		}
	}

	return errs
}

// TransformProductData applies defaults, normalizes availability and enforces length limits
func (a *BaseAdapter) TransformProductData(row *types.Record) *types.Record {
	for key, value := range a.cfg.Defaults {
		if v, ok := row.Get(key); !ok || types.IsEmpty(v) {
			row.Set(key, value)
		}
	}

	if a.cfg.Availability != nil {
		if v, ok := row.Get(a.cfg.AvailabilityKey); ok {
			row.Set(a.cfg.AvailabilityKey, a.normalizeAvailability(v))
		}
	}

	for key, limit := range a.cfg.MaxLengths {
		v, ok := row.Get(key)
		if !ok {
			continue
		}
		if s, isString := v.(string); isString && utf8.RuneCountInString(s) > limit {
			row.Set(key, string([]rune(s)[:limit]))
		}
	}

	if a.cfg.DropEmpty {
		required := make(map[string]bool, len(a.cfg.RequiredFields))
		for _, f := range a.cfg.RequiredFields {
			required[f] = true
		}
		for _, key := range row.Keys() {
			v, _ := row.Get(key)
			if !required[key] && types.IsEmpty(v) {
				row.Delete(key)
			}
		}
	}

	return row
}

func (a *BaseAdapter) normalizeAvailability(v any) any {
	vocab := a.cfg.Availability
	switch strings.ToLower(strings.TrimSpace(types.ToString(v))) {
	case "1", "true", "yes", "in stock", "in_stock", "instock", "available":
		return vocab.InStock
	case "0", "false", "no", "out of stock", "out_of_stock", "outofstock", "unavailable":
		return vocab.OutOfStock
	case "preorder", "pre-order", "pre_order", "backorder":
		if vocab.Preorder != "" {
			return vocab.Preorder
		}
		return vocab.OutOfStock
	}
	return v
}

var digits = regexp.MustCompile(`[0-9]`)

// hasPositiveAmount reports whether a raw or formatted price contains a non-zero digit
func hasPositiveAmount(s string) bool {
	if strings.HasPrefix(strings.TrimSpace(s), "-") {
		return false
	}
	for _, d := range digits.FindAllString(s, -1) {
		if d != "0" {
			return true
		}
	}
	return false
}

// isValidGTIN checks GTIN-8/12/13/14 length and digits
func isValidGTIN(gtin string) bool {
	if len(gtin) < 8 || len(gtin) > 14 {
		return false
	}
	for _, c := range gtin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// attr builds an attribute-sourced default mapping
func attr(feedAttribute, source string, order int, chain string) types.AttributeMapping {
	return types.AttributeMapping{
		FeedAttribute: feedAttribute,
		Source:        types.SourceAttribute,
		Value:         source,
		Chain:         chain,
		SortOrder:     order,
	}
}

// parentAttr builds an attribute mapping that falls back to the parent product
func parentAttr(feedAttribute, source string, order int, chain string) types.AttributeMapping {
	m := attr(feedAttribute, source, order, chain)
	m.UseParent = types.ParentIfEmpty
	return m
}

// static builds a static default mapping
func static(feedAttribute, value string, order int) types.AttributeMapping {
	return types.AttributeMapping{
		FeedAttribute: feedAttribute,
		Source:        types.SourceStatic,
		Value:         value,
		SortOrder:     order,
	}
}
