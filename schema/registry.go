package schema

import (
	"context"
	"sync"
)

// Registry memoizes table metadata by entity type for the lifetime of the
// process. Construction runs under a lock so concurrent first access yields
// a single winner and relationship registration never duplicates. Clear
// exists for test isolation.
type Registry struct {
	mu     sync.Mutex
	tables map[string]*Table
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Table returns the memoized table for the definition's entity type,
// building it through the introspector on first access.
func (r *Registry) Table(ctx context.Context, def Definition, in Introspector) (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[def.EntityType]; ok {
		return t, nil
	}
	t, err := Build(ctx, def, in)
	if err != nil {
		return nil, err
	}
	r.tables[def.EntityType] = t
	return t, nil
}

// Lookup returns an already-built table without triggering construction.
func (r *Registry) Lookup(entityType string) (*Table, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[entityType]
	return t, ok
}

// Clear drops all memoized tables.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = make(map[string]*Table)
}
