// Package transformers provides named value transformations and a pipeline
// executor. Transformers are pure functions of (value, options, row).
package transformers

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kosarica/feed-service/internal/types"
)

// ErrAlreadyRegistered is returned when a code is registered twice
var ErrAlreadyRegistered = errors.New("transformer already registered")

// Row gives transformers read access to the product's raw data
type Row func(key string) (any, bool)

// EmptyRow is a Row with no data
func EmptyRow(string) (any, bool) { return nil, false }

// Options are the string options of one transformer step
type Options map[string]string

// String returns the option or def when missing
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		return v
	}
	return def
}

// Int returns the option parsed as int or def
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the option parsed as bool or def
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off", "":
			return false
		}
	}
	return def
}

// Func is a named transformation
type Func func(value any, opts Options, row Row) any

// Registry maps transformer codes to functions
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// NewDefaultRegistry creates a registry holding the built-in transformers
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for code, fn := range builtins() {
		r.funcs[code] = fn
	}
	return r
}

// Register adds a transformer
func (r *Registry) Register(code string, fn Func) error {
	if code == "" {
		return fmt.Errorf("transformer code is required")
	}
	if fn == nil {
		return fmt.Errorf("transformer %s: function is nil", code)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[code]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, code)
	}
	r.funcs[code] = fn
	return nil
}

// Get returns the transformer for code
func (r *Registry) Get(code string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[code]
	return fn, ok
}

// Has reports whether code is registered
func (r *Registry) Has(code string) bool {
	_, ok := r.Get(code)
	return ok
}

// Codes returns all registered codes, sorted
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.funcs))
	for code := range r.funcs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Apply runs one transformer. Unknown codes return the value unchanged.
func (r *Registry) Apply(value any, code string, opts Options, row Row) any {
	fn, ok := r.Get(code)
	if !ok {
		return value
	}
	if row == nil {
		row = EmptyRow
	}
	if opts == nil {
		opts = Options{}
	}
	return fn(value, opts, row)
}

// Pipeline applies the steps in order
func (r *Registry) Pipeline(value any, steps []types.TransformerSpec, row Row) any {
	for _, step := range steps {
		value = r.Apply(value, step.Code, Options(step.Options), row)
	}
	return value
}

// Default is the process-wide registry with the built-in transformers
var Default = NewDefaultRegistry()

// Register adds a transformer to the default registry
func Register(code string, fn Func) error {
	return Default.Register(code, fn)
}

// Apply runs one transformer from the default registry
func Apply(value any, code string, opts Options, row Row) any {
	return Default.Apply(value, code, opts, row)
}

// Pipeline applies steps using the default registry
func Pipeline(value any, steps []types.TransformerSpec, row Row) any {
	return Default.Pipeline(value, steps, row)
}
