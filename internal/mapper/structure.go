package mapper

import (
	"context"
	"fmt"

	"github.com/kosarica/feed-service/internal/conditions"
	"github.com/kosarica/feed-service/internal/types"
)

// HasJSONStructure reports whether the feed defines a nested JSON structure
func (m *Mapper) HasJSONStructure() bool { return len(m.jsonNodes) > 0 }

// HasXMLStructure reports whether the feed defines a nested XML structure
func (m *Mapper) HasXMLStructure() bool { return len(m.xmlNodes) > 0 }

// MapProductToJSONStructure renders the feed's JSON structure for one product
func (m *Mapper) MapProductToJSONStructure(ctx context.Context, p *types.Product) (*types.Record, error) {
	data, err := m.productData(ctx, p)
	if err != nil {
		return nil, err
	}
	out := types.NewRecord()
	if err := m.jsonChildren(m.jsonNodes, data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mapper) jsonChildren(nodes []*compiledNode, data *productData, out *types.Record) error {
	for _, n := range nodes {
		v, include, err := m.jsonNode(n, data)
		if err != nil {
			return err
		}
		if include {
			out.Set(n.node.Name, v)
		}
	}
	return nil
}

func (m *Mapper) jsonNode(n *compiledNode, data *productData) (any, bool, error) {
	if !conditions.Match(n.node.Conditions, data.lookup) {
		return nil, false, nil
	}

	switch n.kind {
	case types.NodeLeaf:
		v, err := m.evaluate(n.mapping, data)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", n.node.Name, err)
		}
		if n.node.Optional && types.IsEmpty(v) {
			return nil, false, nil
		}
		return v, true, nil

	case types.NodeObject:
		child := types.NewRecord()
		if err := m.jsonChildren(n.children, data, child); err != nil {
			return nil, false, err
		}
		if n.node.Optional && child.Len() == 0 {
			return nil, false, nil
		}
		return child, true, nil

	case types.NodeArray:
		items, err := m.arrayItems(n, data)
		if err != nil {
			return nil, false, err
		}
		if items == nil {
			items = []any{}
			for _, c := range n.children {
				v, include, err := m.jsonNode(c, data)
				if err != nil {
					return nil, false, err
				}
				if include {
					items = append(items, v)
				}
			}
		}
		if n.node.Optional && len(items) == 0 {
			return nil, false, nil
		}
		return items, true, nil
	}
	return nil, false, fmt.Errorf("%s: unknown node kind %q", n.node.Name, n.kind)
}

// arrayItems expands a sourced array node into transformed items; nil when
// the node has no source of its own
func (m *Mapper) arrayItems(n *compiledNode, data *productData) ([]any, error) {
	if n.mapping == nil {
		return nil, nil
	}
	v, err := m.resolve(n.mapping.source, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.node.Name, err)
	}
	items := []any{}
	for _, item := range listOf(v) {
		item = m.transform(n.mapping, item, data)
		if !types.IsEmpty(item) {
			items = append(items, item)
		}
	}
	return items, nil
}

func listOf(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out
	}
	if types.IsEmpty(v) {
		return nil
	}
	return []any{v}
}

// MapProductToXMLStructure renders the feed's XML structure for one product
// as an element named after the feed's item element
func (m *Mapper) MapProductToXMLStructure(ctx context.Context, p *types.Product) (*types.Element, error) {
	data, err := m.productData(ctx, p)
	if err != nil {
		return nil, err
	}
	root := &types.Element{Name: m.feed.XML.Item()}
	children, err := m.xmlChildren(m.xmlNodes, data)
	if err != nil {
		return nil, err
	}
	root.Children = children
	return root, nil
}

func (m *Mapper) xmlChildren(nodes []*compiledNode, data *productData) ([]*types.Element, error) {
	var out []*types.Element
	for _, n := range nodes {
		els, err := m.xmlNode(n, data)
		if err != nil {
			return nil, err
		}
		out = append(out, els...)
	}
	return out, nil
}

func (m *Mapper) xmlNode(n *compiledNode, data *productData) ([]*types.Element, error) {
	if !conditions.Match(n.node.Conditions, data.lookup) {
		return nil, nil
	}

	switch n.kind {
	case types.NodeLeaf:
		v, err := m.evaluate(n.mapping, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.node.Name, err)
		}
		if n.node.Optional && types.IsEmpty(v) {
			return nil, nil
		}
		return []*types.Element{{Name: n.node.Name, Text: types.ToString(v), CDATA: n.node.CDATA}}, nil

	case types.NodeObject:
		children, err := m.xmlChildren(n.children, data)
		if err != nil {
			return nil, err
		}
		if n.node.Optional && len(children) == 0 {
			return nil, nil
		}
		return []*types.Element{{Name: n.node.Name, Children: children}}, nil

	case types.NodeArray:
		items, err := m.arrayItems(n, data)
		if err != nil {
			return nil, err
		}
		var elements []*types.Element
		if items != nil {
			itemName := n.node.ItemName
			if itemName == "" {
				itemName = n.node.Name
			}
			for _, item := range items {
				elements = append(elements, &types.Element{Name: itemName, Text: types.ToString(item), CDATA: n.node.CDATA})
			}
		} else {
			if elements, err = m.xmlChildren(n.children, data); err != nil {
				return nil, err
			}
		}
		if n.node.Optional && len(elements) == 0 {
			return nil, nil
		}
		// without an item name the items repeat the node name in place
		if n.node.ItemName == "" && items != nil {
			return elements, nil
		}
		return []*types.Element{{Name: n.node.Name, Children: elements}}, nil
	}
	return nil, fmt.Errorf("%s: unknown node kind %q", n.node.Name, n.kind)
}
