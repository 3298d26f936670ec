package tenant

import "context"

// Reloader re-reads tenant configuration and rebuilds the routing index.
type Reloader struct {
	source   Loader
	registry *Registry
	resolver *Resolver
}

// NewReloader wires a reloader for the given loader.
func NewReloader(source Loader, registry *Registry, resolver *Resolver) *Reloader {
	return &Reloader{source: source, registry: registry, resolver: resolver}
}

// Reload swaps in the freshly fetched tenants. On error the previous
// configuration stays active.
func (r *Reloader) Reload(ctx context.Context) ([]Config, error) {
	cfgs, err := r.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.registry.Replace(cfgs); err != nil {
		return nil, err
	}
	if r.resolver != nil {
		r.resolver.Refresh()
	}
	return cfgs, nil
}
