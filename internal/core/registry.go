package core

import (
	"fmt"
	"sort"

	"wellcore/pkg/domain"
)

// Registry resolves entity kinds to transaction-bound repository adapters.
// It is populated once during process wiring and read-only afterwards.
type Registry struct {
	factories map[EntityType]RepositoryFactory
}

// NewRegistry constructs an empty repository registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[EntityType]RepositoryFactory)}
}

// NewRegistryForStore builds a registry holding every factory the store
// exposes. This is the standard wiring path.
func NewRegistryForStore(store Store) (*Registry, error) {
	reg := NewRegistry()
	for kind, factory := range store.Factories() {
		if err := reg.Register(kind, factory); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Register associates an entity kind with its repository factory. Duplicate
// registrations are wiring bugs and rejected.
func (r *Registry) Register(kind EntityType, factory RepositoryFactory) error {
	if factory == nil {
		return fmt.Errorf("nil repository factory for entity type %q", kind)
	}
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("repository already registered for entity type %q", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Resolve returns a repository for kind bound to tx. A missing registration
// surfaces as RepositoryNotFoundError without touching the backend.
func (r *Registry) Resolve(kind EntityType, tx Tx) (Repository, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, domain.RepositoryNotFoundError{Kind: kind}
	}
	return factory(tx)
}

// Kinds returns the registered entity kinds in stable order.
func (r *Registry) Kinds() []EntityType {
	out := make([]EntityType, 0, len(r.factories))
	for kind := range r.factories {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
