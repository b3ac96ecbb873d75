package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownScope is returned when an admin operation names an unregistered scope.
var ErrUnknownScope = errors.New("unknown cache scope")

// Namespace is the admin view of a single view cache.
type Namespace interface {
	Scope() string
	Class() TTLClass
	EvictKey(ctx context.Context, discriminator string) error
	EvictAll(ctx context.Context) (int, error)
	Rotate(ctx context.Context) error
	Stats(ctx context.Context) (int, error)
}

// Registry resolves admin operations to the namespace they target.
type Registry struct {
	namespaces map[string]Namespace
}

// NewRegistry indexes namespaces by scope.
func NewRegistry(namespaces ...Namespace) *Registry {
	r := &Registry{namespaces: make(map[string]Namespace, len(namespaces))}
	for _, ns := range namespaces {
		r.namespaces[ns.Scope()] = ns
	}
	return r
}

// Scopes returns the registered scopes in sorted order.
func (r *Registry) Scopes() []string {
	scopes := make([]string, 0, len(r.namespaces))
	for scope := range r.namespaces {
		scopes = append(scopes, scope)
	}
	slices.Sort(scopes)
	return scopes
}

// Namespace returns the namespace registered under scope.
func (r *Registry) Namespace(scope string) (Namespace, error) {
	ns, ok := r.namespaces[scope]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
	return ns, nil
}

// Evict removes one entry, identified by its discriminator, from scope.
func (r *Registry) Evict(ctx context.Context, scope, discriminator string) error {
	ns, err := r.Namespace(scope)
	if err != nil {
		return err
	}
	return ns.EvictKey(ctx, discriminator)
}

// EvictAll removes every entry of scope and returns the number of deleted keys.
func (r *Registry) EvictAll(ctx context.Context, scope string) (int, error) {
	ns, err := r.Namespace(scope)
	if err != nil {
		return 0, err
	}
	return ns.EvictAll(ctx)
}

// Stats returns the number of keys stored under scope.
func (r *Registry) Stats(ctx context.Context, scope string) (int, error) {
	ns, err := r.Namespace(scope)
	if err != nil {
		return 0, err
	}
	return ns.Stats(ctx)
}

// StatsAll returns key counts for every scope. Scopes that fail to count are
// reported through the joined error and omitted from the map.
func (r *Registry) StatsAll(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(r.namespaces))

	var errs []error
	for _, scope := range r.Scopes() {
		count, err := r.namespaces[scope].Stats(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		counts[scope] = count
	}

	return counts, errors.Join(errs...)
}
