package hostfuncs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/ids"
)

// Registration is one registered host function.
type Registration struct {
	Func Func
	Name string
	ID   uint64
}

// Registry maps callback ids and names to host functions. It holds a strong
// reference to each function until Unregister or Close.
//
// Lookups never hold the lock while the function runs.
type Registry struct {
	byID       map[uint64]*Registration
	byName     map[string]*Registration
	middleware []Middleware
	mu         sync.RWMutex
	closed     bool
}

// RegistryOption is a functional option for configuring a Registry.
type RegistryOption func(*Registry)

// WithMiddleware adds middleware to the registry.
// Middleware executes in FIFO order (first added wraps outermost).
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(r *Registry) {
		r.middleware = append(r.middleware, mw...)
	}
}

// NewRegistry creates an empty Registry.
//
// Example usage:
//
//	registry := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware(), LoggingMiddleware(logger)),
//	)
//	id, err := registry.Register("add", add)
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byID:   make(map[uint64]*Registration),
		byName: make(map[string]*Registration),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds fn under name and returns its callback id. It fails when
// the registry is closed, the name is empty or already taken.
func (r *Registry) Register(name string, fn Func) (uint64, error) {
	if name == "" {
		return 0, fmt.Errorf("handler name cannot be empty")
	}
	if fn == nil {
		return 0, fmt.Errorf("handler %q is nil", name)
	}

	wrapped := fn
	// Apply middleware in reverse order so first middleware wraps outermost
	for i := len(r.middleware) - 1; i >= 0; i-- {
		wrapped = r.middleware[i](name, wrapped)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, errors.ErrDisposed
	}
	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("duplicate handler name: %q", name)
	}

	reg := &Registration{ID: ids.Callback.Next(), Name: name, Func: wrapped}
	r.byID[reg.ID] = reg
	r.byName[name] = reg
	return reg.ID, nil
}

// Unregister removes the function with the given id. Unknown ids are ignored.
func (r *Registry) Unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if cur, ok := r.byName[reg.Name]; ok && cur.ID == id {
		delete(r.byName, reg.Name)
	}
}

// LookupByID returns the registration with the given callback id.
func (r *Registry) LookupByID(id uint64) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[id]
	return reg, ok
}

// LookupByName returns the registration with the given name.
func (r *Registry) LookupByName(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	return reg, ok
}

// Names returns a sorted list of all registered names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Close drops every registration. Later Register calls fail with ErrDisposed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	clear(r.byID)
	clear(r.byName)
}

// RegisterBundle registers every function of b. On failure the functions
// registered so far are removed again.
func (r *Registry) RegisterBundle(b Bundle) (map[string]uint64, error) {
	funcs := b.Functions()
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]uint64, len(names))
	for _, name := range names {
		id, err := r.Register(name, funcs[name])
		if err != nil {
			for _, done := range out {
				r.Unregister(done)
			}
			return nil, err
		}
		out[name] = id
	}
	return out, nil
}
