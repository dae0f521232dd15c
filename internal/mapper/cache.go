package mapper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kosarica/feed-service/internal/types"
)

// CategoryLoader loads the category tree of a store
type CategoryLoader func(ctx context.Context, storeID int64) ([]types.Category, error)

// CategoryCache holds the category tree of one store at a time. It is shared
// between mapper instances and cleared whenever a different store id is
// requested, so categories never leak across stores.
type CategoryCache struct {
	mu      sync.Mutex
	current *CategorySet
	loads   int
}

// NewCategoryCache creates an empty cache
func NewCategoryCache() *CategoryCache {
	return &CategoryCache{}
}

// ForStore returns the store's categories, loading them when the cache holds
// another store or nothing at all
func (c *CategoryCache) ForStore(ctx context.Context, storeID int64, load CategoryLoader) (*CategorySet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.StoreID == storeID {
		return c.current, nil
	}

	// store changed: drop the previous tree before loading the new one
	c.current = nil

	cats, err := load(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories for store %d: %w", storeID, err)
	}
	c.loads++
	c.current = newCategorySet(storeID, cats)
	return c.current, nil
}

// Invalidate clears the cache
func (c *CategoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

// StoreID returns the store currently cached and whether anything is cached
func (c *CategoryCache) StoreID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0, false
	}
	return c.current.StoreID, true
}

// Loads returns how many times categories were loaded
func (c *CategoryCache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

// CategorySet is an immutable snapshot of one store's categories
type CategorySet struct {
	StoreID int64
	byID    map[int64]types.Category
}

func newCategorySet(storeID int64, cats []types.Category) *CategorySet {
	byID := make(map[int64]types.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}
	return &CategorySet{StoreID: storeID, byID: byID}
}

// Get returns a category by id
func (s *CategorySet) Get(id int64) (types.Category, bool) {
	if s == nil {
		return types.Category{}, false
	}
	c, ok := s.byID[id]
	return c, ok
}

// Depth returns the category's level, derived from its path when no level is stored
func (s *CategorySet) Depth(id int64) int {
	c, ok := s.Get(id)
	if !ok {
		return 0
	}
	if c.Level > 0 {
		return c.Level
	}
	if c.Path != "" {
		return len(strings.Split(c.Path, "/"))
	}
	return 0
}

// Names returns the names of the given categories, skipping unknown ids
func (s *CategorySet) Names(ids []int64) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.Get(id); ok && c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names
}

// Deepest returns the deepest known category among ids; ties keep the first
func (s *CategorySet) Deepest(ids []int64) (types.Category, bool) {
	var best types.Category
	bestDepth := -1
	for _, id := range ids {
		c, ok := s.Get(id)
		if !ok {
			continue
		}
		if d := s.Depth(id); d > bestDepth {
			best, bestDepth = c, d
		}
	}
	return best, bestDepth >= 0
}

// PathNames returns the names along a category's path joined with " > ".
// The store root (level 1) is left out.
func (s *CategorySet) PathNames(id int64) string {
	c, ok := s.Get(id)
	if !ok {
		return ""
	}
	if c.Path == "" {
		return c.Name
	}

	var names []string
	for _, part := range strings.Split(c.Path, "/") {
		pid, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		pc, ok := s.Get(pid)
		if !ok || pc.Level == 1 {
			continue
		}
		names = append(names, pc.Name)
	}
	return strings.Join(names, " > ")
}
