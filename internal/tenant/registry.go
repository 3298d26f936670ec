package tenant

import (
	"errors"
	"strings"
	"sync"
)

// ErrTenantNotFound is returned when no configuration exists for a tenant id.
var ErrTenantNotFound = errors.New("tenant: configuration not found")

// Source exposes tenant configuration to the conversation engine.
type Source interface {
	AllTenants() []Config
	ConfigFor(tenantID string) (Config, error)
}

// Registry is an in-memory Source whose contents can be swapped on reload.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	tenants map[string]Config
}

// NewRegistry builds a registry from the given tenants.
func NewRegistry(cfgs []Config) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(cfgs); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps the registry contents atomically.
func (r *Registry) Replace(cfgs []Config) error {
	if err := checkUnique(cfgs); err != nil {
		return err
	}
	order := make([]string, 0, len(cfgs))
	tenants := make(map[string]Config, len(cfgs))
	for _, cfg := range cfgs {
		id := strings.TrimSpace(cfg.ID)
		if id == "" {
			return errors.New("tenant: tenant id required")
		}
		order = append(order, id)
		tenants[id] = cfg
	}

	r.mu.Lock()
	r.order = order
	r.tenants = tenants
	r.mu.Unlock()
	return nil
}

// AllTenants returns every configured tenant in declaration order.
func (r *Registry) AllTenants() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tenants[id])
	}
	return out
}

// ConfigFor implements Source.
func (r *Registry) ConfigFor(tenantID string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.tenants[tenantID]
	if !ok {
		return Config{}, ErrTenantNotFound
	}
	return cfg, nil
}
