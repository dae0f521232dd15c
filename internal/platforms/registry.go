package platforms

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownPlatform is returned for codes without a registered adapter
var ErrUnknownPlatform = errors.New("unknown platform")

// Factory builds an adapter instance
type Factory func() Adapter

// Registry manages platform adapter registration and lazy instantiation.
// Each code is built at most once; later lookups return the cached instance.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Adapter
}

// NewRegistry creates an empty platform registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Adapter),
	}
}

// NewDefaultRegistry creates a registry with every built-in platform
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	builtin := map[string]Factory{
		PlatformGoogle:               NewGoogleAdapter,
		PlatformGoogleLocalInventory: NewGoogleLocalInventoryAdapter,
		PlatformFacebook:             NewFacebookAdapter,
		PlatformBing:                 NewBingAdapter,
		PlatformPinterest:            NewPinterestAdapter,
		PlatformIdealo:               NewIdealoAdapter,
		PlatformTrovaprezzi:          NewTrovaprezziAdapter,
		PlatformOpenAI:               NewOpenAIAdapter,
		PlatformCustom:               NewCustomAdapter,
	}
	for code, factory := range builtin {
		r.factories[code] = factory
	}
	return r
}

// DefaultRegistry is the global registry instance
var DefaultRegistry = NewDefaultRegistry()

// Register adds an adapter under code. The candidate must be an Adapter or a
// constructor returning one; anything else is rejected here rather than
// failing later when a feed asks for it.
func (r *Registry) Register(code string, candidate any) error {
	if code == "" {
		return fmt.Errorf("platform code is required")
	}

	var factory Factory
	switch c := candidate.(type) {
	case nil:
		return fmt.Errorf("platform %s: adapter is nil", code)
	case Factory:
		factory = c
	case func() Adapter:
		factory = c
	case Adapter:
		factory = func() Adapter { return c }
	default:
		return fmt.Errorf("platform %s: %T does not implement platforms.Adapter", code, candidate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[code]; exists {
		return fmt.Errorf("platform %s is already registered", code)
	}
	r.factories[code] = factory
	return nil
}

// GetOrInit returns the adapter for code, building it on first use
func (r *Registry) GetOrInit(code string) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.instances[code]; ok {
		return adapter, nil
	}

	factory, ok := r.factories[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, code)
	}

	adapter := factory()
	if adapter == nil {
		return nil, fmt.Errorf("platform %s: factory returned nil", code)
	}
	r.instances[code] = adapter
	return adapter, nil
}

// List returns all registered platform codes, sorted
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	codes := make([]string, 0, len(r.factories))
	for code := range r.factories {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// IsRegistered checks if a platform is registered
func (r *Registry) IsRegistered(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[code]
	return ok
}

// Unregister removes a platform and its cached instance
func (r *Registry) Unregister(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, code)
	delete(r.instances, code)
}

// GetAdapter is a convenience function to get an adapter from the default registry
func GetAdapter(code string) (Adapter, error) {
	return DefaultRegistry.GetOrInit(code)
}

// RegisterAdapter is a convenience function to register an adapter in the default registry
func RegisterAdapter(code string, candidate any) error {
	return DefaultRegistry.Register(code, candidate)
}
