package tenant

import (
	"strings"
	"sync"
)

// Resolver maps inbound routing keys to tenant ids using a precomputed index.
type Resolver struct {
	source Source

	mu    sync.RWMutex
	index map[string]string
	sole  string
}

// NewResolver builds a resolver and its index from src.
func NewResolver(src Source) *Resolver {
	r := &Resolver{source: src}
	r.Refresh()
	return r
}

// Refresh rebuilds the routing index from the current tenant configuration.
func (r *Resolver) Refresh() {
	index := make(map[string]string)
	var sole string

	tenants := r.source.AllTenants()
	for _, cfg := range tenants {
		if key := cfg.RoutingKey(); key != "" {
			index[key] = cfg.ID
		}
	}
	if len(tenants) == 1 {
		sole = tenants[0].ID
	}

	r.mu.Lock()
	r.index = index
	r.sole = sole
	r.mu.Unlock()
}

// Resolve returns the tenant bound to routingKey. When the key is unknown
// and exactly one tenant is configured, that tenant is returned.
func (r *Resolver) Resolve(routingKey string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key := strings.TrimSpace(routingKey); key != "" {
		if id, ok := r.index[key]; ok {
			return id, true
		}
	}
	if r.sole != "" {
		return r.sole, true
	}
	return "", false
}
