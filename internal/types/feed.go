package types

import (
	"fmt"
	"path/filepath"
	"time"
)

// FileFormat represents supported feed output formats
type FileFormat string

const (
	FormatXML   FileFormat = "xml"
	FormatCSV   FileFormat = "csv"
	FormatJSON  FileFormat = "json"
	FormatJSONL FileFormat = "jsonl"
	FormatXLSX  FileFormat = "xlsx"
)

// Valid reports whether the format is one the writers support
func (f FileFormat) Valid() bool {
	switch f {
	case FormatXML, FormatCSV, FormatJSON, FormatJSONL, FormatXLSX:
		return true
	}
	return false
}

// XMLMode selects how XML feeds are rendered
type XMLMode string

const (
	XMLModeWriter    XMLMode = "writer"
	XMLModeTemplate  XMLMode = "template"
	XMLModeStructure XMLMode = "structure"
)

// Feed is a configured export job producing one output file for one platform.
// A Feed is read-only for the duration of a generation run.
type Feed struct {
	ID        int64      `json:"id" yaml:"id"`
	Code      string     `json:"code" yaml:"code"`
	Name      string     `json:"name" yaml:"name"`
	Platform  string     `json:"platform" yaml:"platform"`
	Format    FileFormat `json:"format" yaml:"format"`
	StoreID   int64      `json:"storeId" yaml:"store_id"`
	BatchSize int        `json:"batchSize,omitempty" yaml:"batch_size"`
	IsActive  bool       `json:"isActive" yaml:"is_active"`

	// Output path components, relative to the storage root
	Filename  string `json:"filename,omitempty" yaml:"filename"`
	OutputDir string `json:"outputDir,omitempty" yaml:"output_dir"`
	Compress  bool   `json:"compress,omitempty" yaml:"compress"`

	BaseURL  string `json:"baseUrl,omitempty" yaml:"base_url"`
	MediaURL string `json:"mediaUrl,omitempty" yaml:"media_url"`

	Filters     FilterSettings     `json:"filters" yaml:"filters"`
	PriceFormat PriceFormat        `json:"priceFormat" yaml:"price_format"`
	CSV         CSVSettings        `json:"csv" yaml:"csv"`
	XML         XMLSettings        `json:"xml" yaml:"xml"`
	JSON        JSONSettings       `json:"json" yaml:"json"`
	Mappings    []AttributeMapping `json:"mappings,omitempty" yaml:"mappings"`

	Schedule    Schedule     `json:"schedule" yaml:"schedule"`
	Destination *Destination `json:"destination,omitempty" yaml:"destination"`

	// MaxErrorRatePercent overrides the service-wide breaker threshold when set
	MaxErrorRatePercent *float64 `json:"maxErrorRatePercent,omitempty" yaml:"max_error_rate_percent"`
}

// FilterSettings restricts which catalog products enter the feed
type FilterSettings struct {
	IncludeTypes      []string    `json:"includeTypes,omitempty" yaml:"include_types"`
	ExcludeDisabled   bool        `json:"excludeDisabled" yaml:"exclude_disabled"`
	ExcludeOutOfStock bool        `json:"excludeOutOfStock" yaml:"exclude_out_of_stock"`
	ExcludeNotVisible bool        `json:"excludeNotVisible" yaml:"exclude_not_visible"`
	Conditions        []Condition `json:"conditions,omitempty" yaml:"conditions"`
}

// PriceFormat controls how prices are rendered
type PriceFormat struct {
	Decimals       *int   `json:"decimals,omitempty" yaml:"decimals"`
	DecimalPoint   string `json:"decimalPoint,omitempty" yaml:"decimal_point"`
	ThousandsSep   string `json:"thousandsSep,omitempty" yaml:"thousands_sep"`
	Currency       string `json:"currency,omitempty" yaml:"currency"`
	CurrencySuffix *bool  `json:"currencySuffix,omitempty" yaml:"currency_suffix"`
}

// DecimalsOrDefault returns the configured number of decimals (2 when unset)
func (p PriceFormat) DecimalsOrDefault() int {
	if p.Decimals == nil || *p.Decimals < 0 {
		return 2
	}
	return *p.Decimals
}

// PointOrDefault returns the configured decimal point ("." when unset)
func (p PriceFormat) PointOrDefault() string {
	if p.DecimalPoint == "" {
		return "."
	}
	return p.DecimalPoint
}

// SuffixOrDefault reports whether the currency goes after the amount (true when unset)
func (p PriceFormat) SuffixOrDefault() bool {
	if p.CurrencySuffix == nil {
		return true
	}
	return *p.CurrencySuffix
}

// CSVSettings holds CSV output options
type CSVSettings struct {
	Delimiter     string   `json:"delimiter,omitempty" yaml:"delimiter"`
	Enclosure     string   `json:"enclosure,omitempty" yaml:"enclosure"`
	IncludeHeader *bool    `json:"includeHeader,omitempty" yaml:"include_header"`
	Columns       []string `json:"columns,omitempty" yaml:"columns"`
	Encoding      string   `json:"encoding,omitempty" yaml:"encoding"`
}

// DelimiterRune returns the field delimiter (',' when unset)
func (c CSVSettings) DelimiterRune() rune {
	if c.Delimiter == `\t` || c.Delimiter == "tab" {
		return '\t'
	}
	for _, r := range c.Delimiter {
		return r
	}
	return ','
}

// EnclosureRune returns the enclosure character ('"' when unset)
func (c CSVSettings) EnclosureRune() rune {
	for _, r := range c.Enclosure {
		return r
	}
	return '"'
}

// HeaderEnabled reports whether a header row is written (true when unset)
func (c CSVSettings) HeaderEnabled() bool {
	if c.IncludeHeader == nil {
		return true
	}
	return *c.IncludeHeader
}

// XMLSettings holds XML output options
type XMLSettings struct {
	Mode         XMLMode         `json:"mode,omitempty" yaml:"mode"`
	RootElement  string          `json:"rootElement,omitempty" yaml:"root_element"`
	ItemElement  string          `json:"itemElement,omitempty" yaml:"item_element"`
	Header       string          `json:"header,omitempty" yaml:"header"`
	ItemTemplate string          `json:"itemTemplate,omitempty" yaml:"item_template"`
	Footer       string          `json:"footer,omitempty" yaml:"footer"`
	Structure    []StructureNode `json:"structure,omitempty" yaml:"structure"`
}

// Root returns the root element name
func (x XMLSettings) Root() string {
	if x.RootElement == "" {
		return "products"
	}
	return x.RootElement
}

// Item returns the per-product element name
func (x XMLSettings) Item() string {
	if x.ItemElement == "" {
		return "product"
	}
	return x.ItemElement
}

// JSONSettings holds JSON / JSONL output options
type JSONSettings struct {
	RootKey   string          `json:"rootKey,omitempty" yaml:"root_key"`
	Pretty    bool            `json:"pretty,omitempty" yaml:"pretty"`
	Structure []StructureNode `json:"structure,omitempty" yaml:"structure"`
}

// Schedule controls how often the scheduler regenerates a feed
type Schedule struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval,omitempty" yaml:"interval"`
}

// Destination is an upload target for a published feed file
type Destination struct {
	ID     int64  `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Type   string `json:"type" yaml:"type"` // 'http' only
	URL    string `json:"url" yaml:"url"`
	Method string `json:"method,omitempty" yaml:"method"`
	Token  string `json:"-" yaml:"token"`
}

// Extension returns the file extension for the feed format
func (f *Feed) Extension() string {
	if f.Format == "" {
		return string(FormatXML)
	}
	return string(f.Format)
}

// OutputKey returns the storage key of the published feed file
func (f *Feed) OutputKey() string {
	name := f.Filename
	if name == "" {
		name = fmt.Sprintf("feed_%d.%s", f.ID, f.Extension())
	}
	if f.Compress {
		name += ".gz"
	}
	if f.OutputDir == "" {
		return name
	}
	return filepath.ToSlash(filepath.Join(f.OutputDir, name))
}

// TempName returns the name of the per-feed temporary file
func (f *Feed) TempName() string {
	return fmt.Sprintf("feed_%d.tmp", f.ID)
}

// Validate checks the feed configuration before a run starts
func (f *Feed) Validate() error {
	if f.ID <= 0 {
		return fmt.Errorf("feed id must be positive")
	}
	if f.Platform == "" {
		return fmt.Errorf("feed %d: platform is required", f.ID)
	}
	if !f.Format.Valid() {
		return fmt.Errorf("feed %d: %w: %q", f.ID, ErrUnsupportedFormat, f.Format)
	}
	for i := range f.Mappings {
		if err := f.Mappings[i].Validate(); err != nil {
			return fmt.Errorf("feed %d: mapping %q: %w", f.ID, f.Mappings[i].FeedAttribute, err)
		}
	}
	for _, nodes := range [][]StructureNode{f.XML.Structure, f.JSON.Structure} {
		for i := range nodes {
			if err := nodes[i].Validate(); err != nil {
				return fmt.Errorf("feed %d: structure: %w", f.ID, err)
			}
		}
	}
	switch f.XML.Mode {
	case "", XMLModeWriter, XMLModeTemplate, XMLModeStructure:
	default:
		return fmt.Errorf("feed %d: unknown xml mode %q", f.ID, f.XML.Mode)
	}
	return nil
}
