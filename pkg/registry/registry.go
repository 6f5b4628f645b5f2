package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jdziat/confinity/pkg/core"
	"github.com/jdziat/confinity/pkg/internal/handler"
	"github.com/jdziat/confinity/pkg/security"
)

// Target is a resolved target descriptor.
type Target = handler.Handler

type entry struct {
	factory any
	once    sync.Once
	target  *Target
	err     error
}

// Registry maps target names to factories. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a target under name. factory is a zero-argument constructor
// or a prototype value; its shape is validated on first Resolve so that a
// broken target only fails the invocations that ask for it.
func (r *Registry) Register(name string, factory any) error {
	if err := security.ValidateTargetName(name); err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("register %q: %w", name, core.ErrDuplicateTarget)
	}
	r.entries[name] = &entry{factory: factory}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, factory any) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Resolve returns the target registered under name.
//
// It fails with core.ErrTypeNotFound for unknown names,
// core.ErrNotConstructible when the factory cannot build instances without
// arguments, and core.ErrDispatchMethodNotFound when instances lack a
// usable Invoke method.
func (r *Registry) Resolve(name string) (*Target, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, core.Wrap(core.ErrTypeNotFound, name, nil)
	}

	e.once.Do(func() {
		e.target, e.err = handler.NewHandler(name, e.factory)
	})
	return e.target, e.err
}

// Names returns the registered target names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate resolves every registered target and returns the first failure.
// Child binaries can call it from tests to catch broken registrations early.
func (r *Registry) Validate() error {
	for _, name := range r.Names() {
		if _, err := r.Resolve(name); err != nil {
			return err
		}
	}
	return nil
}

var defaultRegistry = New()

// Default returns the process-wide registry used by the package-level
// Register and by the child entry point when no registry is supplied.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a target to the default registry.
func Register(name string, factory any) error {
	return defaultRegistry.Register(name, factory)
}

// MustRegister adds a target to the default registry and panics on error.
func MustRegister(name string, factory any) {
	defaultRegistry.MustRegister(name, factory)
}
