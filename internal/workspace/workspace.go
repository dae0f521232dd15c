// Package workspace loads a YAML file holding feeds, rules, category mappings
// and optionally a product catalog, for running generation without a database.
package workspace

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kosarica/feed-service/internal/catalog"
	"github.com/kosarica/feed-service/internal/feeds"
	"github.com/kosarica/feed-service/internal/mapper"
	"github.com/kosarica/feed-service/internal/platforms"
	"github.com/kosarica/feed-service/internal/types"
)

// Workspace is the decoded workspace file
type Workspace struct {
	Feeds       []*types.Feed              `json:"feeds" yaml:"feeds"`
	Rules       []types.DynamicRule        `json:"rules,omitempty" yaml:"rules"`
	Categories  map[int64][]types.Category `json:"categories,omitempty" yaml:"categories" jsonschema:"description=Category trees keyed by store id; store 0 is shared"`
	MappingList []types.CategoryMapping    `json:"categoryMappings,omitempty" yaml:"category_mappings"`
	Products    []types.Product            `json:"products,omitempty" yaml:"products"`

	catalog *catalog.MemorySource
}

var (
	_ feeds.Repository  = (*Workspace)(nil)
	_ mapper.Repository = (*Workspace)(nil)
)

// Load reads and validates the workspace at path
func Load(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace: %w", err)
	}
	ws, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ws, nil
}

// feedEntry decodes a feed with is_active defaulting to true
type feedEntry struct {
	types.Feed
}

func (e *feedEntry) UnmarshalYAML(node *yaml.Node) error {
	type plain types.Feed
	e.Feed.IsActive = true
	return node.Decode((*plain)(&e.Feed))
}

// Parse decodes and validates a workspace document. Feeds without an id get
// their 1-based position.
func Parse(data []byte) (*Workspace, error) {
	var raw struct {
		Feeds            []feedEntry                `yaml:"feeds"`
		Rules            []types.DynamicRule        `yaml:"rules"`
		Categories       map[int64][]types.Category `yaml:"categories"`
		CategoryMappings []types.CategoryMapping    `yaml:"category_mappings"`
		Products         []types.Product            `yaml:"products"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid workspace yaml: %w", err)
	}

	ws := &Workspace{
		Rules:       raw.Rules,
		Categories:  raw.Categories,
		MappingList: raw.CategoryMappings,
		Products:    raw.Products,
	}
	for i := range raw.Feeds {
		f := raw.Feeds[i].Feed
		if f.ID == 0 {
			f.ID = int64(i + 1)
		}
		ws.Feeds = append(ws.Feeds, &f)
	}
	if err := ws.Validate(); err != nil {
		return nil, err
	}
	ws.catalog = catalog.NewMemorySource(ws.Products, ws.Categories)
	return ws, nil
}

// Validate checks feeds, platforms and rules
func (w *Workspace) Validate() error {
	var problems []string
	ids := make(map[int64]bool)
	codes := make(map[string]bool)
	for _, f := range w.Feeds {
		if f.Code == "" {
			problems = append(problems, fmt.Sprintf("feed %d: code is required", f.ID))
		}
		if ids[f.ID] {
			problems = append(problems, fmt.Sprintf("feed %d: duplicate id", f.ID))
		}
		if codes[f.Code] {
			problems = append(problems, fmt.Sprintf("feed %s: duplicate code", f.Code))
		}
		ids[f.ID], codes[f.Code] = true, true

		if err := f.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
		if f.Platform != "" && !platforms.DefaultRegistry.IsRegistered(f.Platform) {
			problems = append(problems, fmt.Sprintf("feed %s: %v: %s", f.Code, platforms.ErrUnknownPlatform, f.Platform))
		}
	}

	rules := make(map[string]bool)
	for i := range w.Rules {
		if err := w.Rules[i].Validate(); err != nil {
			problems = append(problems, err.Error())
		}
		if rules[w.Rules[i].Code] {
			problems = append(problems, fmt.Sprintf("rule %s: duplicate code", w.Rules[i].Code))
		}
		rules[w.Rules[i].Code] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid workspace:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// Catalog returns the workspace's in-memory product catalog
func (w *Workspace) Catalog() *catalog.MemorySource {
	if w.catalog == nil {
		w.catalog = catalog.NewMemorySource(w.Products, w.Categories)
	}
	return w.catalog
}

// List returns feeds ordered by id
func (w *Workspace) List(ctx context.Context, activeOnly bool) ([]*types.Feed, error) {
	out := make([]*types.Feed, 0, len(w.Feeds))
	for _, f := range w.Feeds {
		if activeOnly && !f.IsActive {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns a feed by id
func (w *Workspace) Get(ctx context.Context, id int64) (*types.Feed, error) {
	for _, f := range w.Feeds {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: feed %d", types.ErrNotFound, id)
}

// GetByCode returns a feed by code
func (w *Workspace) GetByCode(ctx context.Context, code string) (*types.Feed, error) {
	for _, f := range w.Feeds {
		if f.Code == code {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: feed %s", types.ErrNotFound, code)
}

// CategoryMappings returns the platform's category mappings
func (w *Workspace) CategoryMappings(ctx context.Context, platform string) ([]types.CategoryMapping, error) {
	var out []types.CategoryMapping
	for _, m := range w.MappingList {
		if m.Platform == platform {
			out = append(out, m)
		}
	}
	return out, nil
}

// TaxonomyMappings returns the platform's mappings with category depth
func (w *Workspace) TaxonomyMappings(ctx context.Context, platform string) ([]types.TaxonomyMapping, error) {
	depth := w.categoryDepths()
	var out []types.TaxonomyMapping
	for _, m := range w.MappingList {
		if m.Platform == platform {
			out = append(out, types.TaxonomyMapping{CategoryMapping: m, Depth: depth[m.CategoryID]})
		}
	}
	return out, nil
}

// categoryDepths returns the deepest level seen per category id
func (w *Workspace) categoryDepths() map[int64]int {
	depth := make(map[int64]int)
	for _, cats := range w.Categories {
		for _, c := range cats {
			level := c.Level
			if level == 0 && c.Path != "" {
				level = strings.Count(c.Path, "/") + 1
			}
			if level > depth[c.ID] {
				depth[c.ID] = level
			}
		}
	}
	return depth
}

// DynamicRule returns a rule by code
func (w *Workspace) DynamicRule(ctx context.Context, code string) (*types.DynamicRule, error) {
	for i := range w.Rules {
		if w.Rules[i].Code == code {
			r := w.Rules[i]
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: rule %s", types.ErrNotFound, code)
}
