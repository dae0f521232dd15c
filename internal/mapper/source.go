package mapper

import (
	"fmt"
	"sort"

	"github.com/kosarica/feed-service/internal/transformers"
	"github.com/kosarica/feed-service/internal/types"
)

// source is the compiled form of a mapping's source; the concrete types
// below are the only implementations
type source interface {
	sourceType() types.SourceType
}

type attributeSource struct {
	name   string
	parent types.ParentMode
}

type staticSource struct {
	value string
}

type ruleSource struct {
	code string
}

type combinedSource struct {
	template string
}

type taxonomySource struct {
	useID bool
}

func (attributeSource) sourceType() types.SourceType { return types.SourceAttribute }
func (staticSource) sourceType() types.SourceType    { return types.SourceStatic }
func (ruleSource) sourceType() types.SourceType      { return types.SourceRule }
func (combinedSource) sourceType() types.SourceType  { return types.SourceCombined }
func (taxonomySource) sourceType() types.SourceType  { return types.SourceTaxonomy }

// compiledMapping is an attribute mapping ready for per-product evaluation
type compiledMapping struct {
	attribute  string
	source     source
	steps      []types.TransformerSpec
	conditions []types.Condition
	autoPrice  bool
}

func compileSource(m types.AttributeMapping) (source, error) {
	if err := m.UseParent.Validate(); err != nil {
		return nil, err
	}
	switch m.Source {
	case types.SourceAttribute:
		if m.Value == "" {
			return nil, fmt.Errorf("attribute source needs an attribute name")
		}
		return attributeSource{name: m.Value, parent: m.UseParent}, nil
	case types.SourceStatic:
		return staticSource{value: m.Value}, nil
	case types.SourceRule:
		if m.Value == "" {
			return nil, fmt.Errorf("rule source needs a rule code")
		}
		return ruleSource{code: m.Value}, nil
	case types.SourceCombined:
		return combinedSource{template: m.Value}, nil
	case types.SourceTaxonomy:
		return taxonomySource{useID: m.Value == "id"}, nil
	}
	return nil, m.Source.Validate()
}

func compileMapping(m types.AttributeMapping) (*compiledMapping, error) {
	src, err := compileSource(m)
	if err != nil {
		return nil, fmt.Errorf("mapping %q: %w", m.FeedAttribute, err)
	}
	steps := transformers.Steps(m.Transformers, m.Chain)

	// explicit transformers replace price auto-formatting entirely
	autoPrice := false
	if as, ok := src.(attributeSource); ok && len(steps) == 0 {
		autoPrice = IsPriceField(as.name)
	}

	return &compiledMapping{
		attribute:  m.FeedAttribute,
		source:     src,
		steps:      steps,
		conditions: m.Conditions,
		autoPrice:  autoPrice,
	}, nil
}

// mergeMappings orders the feed's mappings by sort order and backfills
// platform defaults for attributes the feed did not map
func mergeMappings(feedMappings, defaults []types.AttributeMapping) []types.AttributeMapping {
	explicit := make([]types.AttributeMapping, len(feedMappings))
	copy(explicit, feedMappings)
	sort.SliceStable(explicit, func(i, j int) bool { return explicit[i].SortOrder < explicit[j].SortOrder })

	mapped := make(map[string]bool, len(explicit))
	for _, m := range explicit {
		mapped[m.FeedAttribute] = true
	}

	backfill := make([]types.AttributeMapping, 0, len(defaults))
	for _, m := range defaults {
		if !mapped[m.FeedAttribute] {
			backfill = append(backfill, m)
		}
	}
	sort.SliceStable(backfill, func(i, j int) bool { return backfill[i].SortOrder < backfill[j].SortOrder })

	return append(explicit, backfill...)
}

// compiledNode is a structure node with its leaf mapping compiled
type compiledNode struct {
	node     *types.StructureNode
	kind     types.NodeKind
	mapping  *compiledMapping
	children []*compiledNode
}

func compileStructure(nodes []types.StructureNode) ([]*compiledNode, error) {
	out := make([]*compiledNode, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		cn := &compiledNode{node: n, kind: n.EffectiveKind()}

		hasSource := cn.kind == types.NodeLeaf || (cn.kind == types.NodeArray && n.Source != "")
		if hasSource {
			m, err := compileMapping(n.Mapping())
			if err != nil {
				return nil, fmt.Errorf("structure node %s: %w", n.Name, err)
			}
			cn.mapping = m
		}

		children, err := compileStructure(n.Children)
		if err != nil {
			return nil, err
		}
		cn.children = children
		out = append(out, cn)
	}
	return out, nil
}

func collectRuleCodes(mappings []*compiledMapping, nodes []*compiledNode, into map[string]bool) {
	for _, m := range mappings {
		if rs, ok := m.source.(ruleSource); ok {
			into[rs.code] = true
		}
	}
	for _, n := range nodes {
		if n.mapping != nil {
			collectRuleCodes([]*compiledMapping{n.mapping}, nil, into)
		}
		collectRuleCodes(nil, n.children, into)
	}
}

func usesTaxonomy(mappings []*compiledMapping, nodes []*compiledNode) bool {
	for _, m := range mappings {
		if _, ok := m.source.(taxonomySource); ok {
			return true
		}
	}
	for _, n := range nodes {
		if n.mapping != nil {
			if _, ok := n.mapping.source.(taxonomySource); ok {
				return true
			}
		}
		if usesTaxonomy(nil, n.children) {
			return true
		}
	}
	return false
}
