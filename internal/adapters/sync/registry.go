// Package sync provides the registry that pairs each entity kind with its
// local store and remote client.
package sync

import (
	"fmt"
	"sync"

	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// Binding is the local store and remote client registered for one kind.
type Binding = ports.Binding

// Compile-time check that Registry implements KindRegistryPort.
var _ ports.KindRegistryPort = (*Registry)(nil)

// Registry manages the registration and lookup of kind bindings.
type Registry struct {
	mu       sync.RWMutex
	bindings map[entity.Kind]Binding
	order    []entity.Kind // maintains registration order
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bindings: make(map[entity.Kind]Binding),
		order:    make([]entity.Kind, 0),
	}
}

// Register binds a store and a remote client to their kind.
// Both must serve the same kind. Registering a kind again replaces it.
func (r *Registry) Register(store ports.EntityStorePort, remote ports.RemoteClientPort) error {
	if store == nil {
		return fmt.Errorf("store cannot be nil")
	}
	if remote == nil {
		return fmt.Errorf("remote client cannot be nil")
	}

	kind := store.Kind()
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", errors.ErrUnknownKind, kind)
	}
	if remote.Kind() != kind {
		return fmt.Errorf("store serves %s but remote client serves %s", kind, remote.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check if already registered
	if _, exists := r.bindings[kind]; !exists {
		r.order = append(r.order, kind)
	}

	r.bindings[kind] = Binding{Store: store, Remote: remote}
	return nil
}

// Get retrieves the binding for kind.
func (r *Registry) Get(kind entity.Kind) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[kind]
	return b, ok
}

// GetRequired retrieves the binding for kind, returning an error wrapping
// ErrKindNotRegistered if none exists.
func (r *Registry) GetRequired(kind entity.Kind) (Binding, error) {
	b, ok := r.Get(kind)
	if !ok {
		return Binding{}, fmt.Errorf("%w: %s", errors.ErrKindNotRegistered, kind)
	}
	return b, nil
}

// Kinds returns all registered kinds in registration order.
func (r *Registry) Kinds() []entity.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]entity.Kind, len(r.order))
	copy(result, r.order)
	return result
}

// Resolve validates a requested kind set. An empty request means every
// registered kind. Duplicates are removed; order follows the request.
func (r *Registry) Resolve(kinds []entity.Kind) ([]entity.Kind, error) {
	if len(kinds) == 0 {
		return r.Kinds(), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[entity.Kind]bool, len(kinds))
	result := make([]entity.Kind, 0, len(kinds))
	for _, k := range kinds {
		if _, ok := r.bindings[k]; !ok {
			return nil, fmt.Errorf("%w: %s", errors.ErrKindNotRegistered, k)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		result = append(result, k)
	}
	return result, nil
}

// Stores returns the stores of all registered kinds in registration order.
func (r *Registry) Stores() []ports.EntityStorePort {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ports.EntityStorePort, 0, len(r.order))
	for _, k := range r.order {
		result = append(result, r.bindings[k].Store)
	}
	return result
}

// Remove removes a kind from the registry.
// Returns true if the kind was found and removed.
func (r *Registry) Remove(kind entity.Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bindings[kind]; !exists {
		return false
	}

	delete(r.bindings, kind)

	// Remove from order slice
	for i, k := range r.order {
		if k == kind {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return true
}

// Count returns the number of registered kinds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
