package snapshot

import (
	"errors"
	"fmt"
	"sync"
)

// Registry resolves polymorphic origin type names to entity types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*EntityType
}

// NewRegistry creates a registry holding the given entity types.
func NewRegistry(entityTypes ...*EntityType) (*Registry, error) {
	registry := &Registry{types: make(map[string]*EntityType)}

	for _, entityType := range entityTypes {
		if err := registry.Register(entityType); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// Register adds an entity type; registering the same name twice replaces the earlier type.
func (r *Registry) Register(entityType *EntityType) error {
	if err := entityType.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.types[entityType.Name] = entityType

	return nil
}

// Lookup returns the entity type registered under the name.
func (r *Registry) Lookup(name string) (*EntityType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entityType, ok := r.types[name]
	if !ok {
		return nil, errors.Join(ErrUnknownOriginType, fmt.Errorf("origin type %q", name))
	}

	return entityType, nil
}

// BindLoader sets the loader on every registered entity type that has none yet.
func (r *Registry) BindLoader(loader EntityLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entityType := range r.types {
		if entityType.Loader == nil {
			entityType.Loader = loader
		}
	}
}
