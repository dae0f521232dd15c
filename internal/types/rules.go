package types

import "fmt"

// OutputType selects how a rule case produces its value
type OutputType string

const (
	OutputStatic    OutputType = "static"
	OutputAttribute OutputType = "attribute"
	OutputCombined  OutputType = "combined"
)

// CombinedPosition places the static part of a combined output
type CombinedPosition string

const (
	PositionPrefix CombinedPosition = "prefix"
	PositionSuffix CombinedPosition = "suffix"
)

// RuleCase is one (conditions, output) pair of a dynamic rule
type RuleCase struct {
	Conditions       []Condition      `json:"conditions,omitempty" yaml:"conditions"`
	OutputType       OutputType       `json:"outputType" yaml:"output_type"`
	OutputValue      string           `json:"outputValue,omitempty" yaml:"output_value"`
	OutputAttribute  string           `json:"outputAttribute,omitempty" yaml:"output_attribute"`
	CombinedPosition CombinedPosition `json:"combinedPosition,omitempty" yaml:"combined_position"`
	IsDefault        bool             `json:"isDefault,omitempty" yaml:"is_default"`
}

// DynamicRule is an ordered list of cases evaluated first-match-wins
type DynamicRule struct {
	ID    int64      `json:"id,omitempty" yaml:"id"`
	Code  string     `json:"code" yaml:"code"`
	Name  string     `json:"name,omitempty" yaml:"name"`
	Cases []RuleCase `json:"cases" yaml:"cases"`
}

// Validate enforces at most one default case and known output types
func (r *DynamicRule) Validate() error {
	if r.Code == "" {
		return fmt.Errorf("rule code is required")
	}
	defaults := 0
	for i, c := range r.Cases {
		if c.IsDefault {
			defaults++
		}
		switch c.OutputType {
		case OutputStatic, OutputAttribute:
		case OutputCombined:
			switch c.CombinedPosition {
			case "", PositionPrefix, PositionSuffix:
			default:
				return fmt.Errorf("rule %s case %d: unknown combined position %q", r.Code, i, c.CombinedPosition)
			}
		default:
			return fmt.Errorf("rule %s case %d: unknown output type %q", r.Code, i, c.OutputType)
		}
	}
	if defaults > 1 {
		return fmt.Errorf("rule %s: %d default cases, at most one allowed", r.Code, defaults)
	}
	return nil
}

// Category is a node of the catalog category tree
type Category struct {
	ID       int64  `json:"id" yaml:"id"`
	ParentID int64  `json:"parentId" yaml:"parent_id"`
	Name     string `json:"name" yaml:"name"`
	Path     string `json:"path,omitempty" yaml:"path"` // e.g. "1/2/7"
	Level    int    `json:"level" yaml:"level"`
}

// CategoryMapping maps a catalog category to a platform category
type CategoryMapping struct {
	Platform             string `json:"platform" yaml:"platform"`
	CategoryID           int64  `json:"categoryId" yaml:"category_id"`
	PlatformCategoryID   string `json:"platformCategoryId,omitempty" yaml:"platform_category_id"`
	PlatformCategoryPath string `json:"platformCategoryPath,omitempty" yaml:"platform_category_path"`
}

// Value returns the platform category id, falling back to its path
func (m CategoryMapping) Value() string {
	if m.PlatformCategoryID != "" {
		return m.PlatformCategoryID
	}
	return m.PlatformCategoryPath
}

// TaxonomyMapping is a category mapping joined with the category's depth
type TaxonomyMapping struct {
	CategoryMapping
	Depth int `json:"depth"`
}
