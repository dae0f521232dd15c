package types

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned for feed formats no writer handles
	ErrUnsupportedFormat = errors.New("unsupported feed format")
	// ErrUnsupportedSource is returned for unknown attribute source types
	ErrUnsupportedSource = errors.New("unsupported source type")
	// ErrNotFound is returned by repositories when a record does not exist
	ErrNotFound = errors.New("not found")
)

// SourceType is the kind of input an attribute mapping draws from
type SourceType string

const (
	SourceAttribute SourceType = "attribute"
	SourceStatic    SourceType = "static"
	SourceRule      SourceType = "rule"
	SourceCombined  SourceType = "combined"
	SourceTaxonomy  SourceType = "taxonomy"
)

// Validate rejects source types outside the closed set
func (s SourceType) Validate() error {
	switch s {
	case SourceAttribute, SourceStatic, SourceRule, SourceCombined, SourceTaxonomy:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedSource, s)
}

// ParentMode controls parent-product fallback for attribute sources
type ParentMode string

const (
	ParentNever   ParentMode = ""
	ParentIfEmpty ParentMode = "if_empty"
	ParentAlways  ParentMode = "always"
)

// Validate rejects unknown parent modes
func (p ParentMode) Validate() error {
	switch p {
	case ParentNever, ParentIfEmpty, ParentAlways:
		return nil
	}
	return fmt.Errorf("unknown parent mode %q", p)
}

// TransformerSpec is one step of a transformer pipeline
type TransformerSpec struct {
	Code    string            `json:"code" yaml:"code"`
	Options map[string]string `json:"options,omitempty" yaml:"options"`
}

// Condition is a single predicate over raw product data
type Condition struct {
	Attribute string `json:"attribute" yaml:"attribute"`
	Operator  string `json:"operator" yaml:"operator"`
	Value     any    `json:"value,omitempty" yaml:"value"`
}

// AttributeMapping produces one output attribute from one source
type AttributeMapping struct {
	FeedAttribute string            `json:"feedAttribute" yaml:"feed_attribute"`
	Source        SourceType        `json:"sourceType" yaml:"source_type"`
	Value         string            `json:"sourceValue" yaml:"source_value"`
	UseParent     ParentMode        `json:"useParent,omitempty" yaml:"use_parent"`
	Transformers  []TransformerSpec `json:"transformers,omitempty" yaml:"transformers"`
	Chain         string            `json:"chain,omitempty" yaml:"chain"`
	Conditions    []Condition       `json:"conditions,omitempty" yaml:"conditions"`
	SortOrder     int               `json:"sortOrder" yaml:"sort_order"`
}

// Validate checks the mapping's closed enums
func (m *AttributeMapping) Validate() error {
	if m.FeedAttribute == "" {
		return fmt.Errorf("feed attribute is required")
	}
	if err := m.Source.Validate(); err != nil {
		return err
	}
	return m.UseParent.Validate()
}

// NodeKind is the kind of a structure node
type NodeKind string

const (
	NodeObject NodeKind = "object"
	NodeArray  NodeKind = "array"
	NodeLeaf   NodeKind = "leaf"
)

// StructureNode describes one node of a nested JSON/XML output structure.
// Leaf nodes resolve a value the same way an AttributeMapping does.
type StructureNode struct {
	Name         string            `json:"name" yaml:"name"`
	Kind         NodeKind          `json:"kind,omitempty" yaml:"kind"`
	Children     []StructureNode   `json:"children,omitempty" yaml:"children"`
	ItemName     string            `json:"itemName,omitempty" yaml:"item_name"`
	Source       SourceType        `json:"sourceType,omitempty" yaml:"source_type"`
	Value        string            `json:"sourceValue,omitempty" yaml:"source_value"`
	UseParent    ParentMode        `json:"useParent,omitempty" yaml:"use_parent"`
	Transformers []TransformerSpec `json:"transformers,omitempty" yaml:"transformers"`
	Chain        string            `json:"chain,omitempty" yaml:"chain"`
	Conditions   []Condition       `json:"conditions,omitempty" yaml:"conditions"`
	CDATA        bool              `json:"cdata,omitempty" yaml:"cdata"`
	Optional     bool              `json:"optional,omitempty" yaml:"optional"`
}

// EffectiveKind returns the node kind, defaulting to leaf
func (n *StructureNode) EffectiveKind() NodeKind {
	if n.Kind == "" {
		if len(n.Children) > 0 {
			return NodeObject
		}
		return NodeLeaf
	}
	return n.Kind
}

// Validate checks the node and its children
func (n *StructureNode) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("structure node name is required")
	}
	switch n.EffectiveKind() {
	case NodeLeaf:
		if err := n.Source.Validate(); err != nil {
			return fmt.Errorf("%s: %w", n.Name, err)
		}
		if err := n.UseParent.Validate(); err != nil {
			return fmt.Errorf("%s: %w", n.Name, err)
		}
	case NodeObject, NodeArray:
		if n.Kind == NodeArray && n.Source != "" {
			if err := n.Source.Validate(); err != nil {
				return fmt.Errorf("%s: %w", n.Name, err)
			}
		}
		for i := range n.Children {
			if err := n.Children[i].Validate(); err != nil {
				return fmt.Errorf("%s.%w", n.Name, err)
			}
		}
	default:
		return fmt.Errorf("%s: unknown node kind %q", n.Name, n.Kind)
	}
	return nil
}

// Mapping returns the leaf's value resolution as an AttributeMapping
func (n *StructureNode) Mapping() AttributeMapping {
	return AttributeMapping{
		FeedAttribute: n.Name,
		Source:        n.Source,
		Value:         n.Value,
		UseParent:     n.UseParent,
		Transformers:  n.Transformers,
		Chain:         n.Chain,
		Conditions:    n.Conditions,
	}
}
