package provider

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/artpar/rackmarket/internal/core/apierr"
	"github.com/artpar/rackmarket/internal/core/catalog"
)

// CredentialSet maps provider name to the credential used for that
// provider's calls during one request.
type CredentialSet map[string]Credential

// Registry holds the configured provider adapters, selected once by
// name at the call boundary. Adding a provider means registering one
// more adapter, not touching call sites.
type Registry struct {
	adapters map[string]Catalog
	order    []string
	logger   *slog.Logger
}

// NewRegistry creates a registry over the given adapters. Registration
// order is preserved for deterministic aggregation output.
func NewRegistry(logger *slog.Logger, adapters ...Catalog) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		adapters: make(map[string]Catalog, len(adapters)),
		logger:   logger.With("component", "registry"),
	}
	for _, a := range adapters {
		if _, dup := r.adapters[a.Name()]; dup {
			continue
		}
		r.adapters[a.Name()] = a
		r.order = append(r.order, a.Name())
	}
	return r
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (Catalog, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, apierr.Validationf("unknown provider %q", name)
	}
	return a, nil
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// AggregateOfferings fans out one fetch per provider, joins the results
// and concatenates them in registration order. A provider whose fetch
// fails contributes an empty set rather than failing the aggregate; the
// failure is logged and otherwise swallowed at this boundary.
func (r *Registry) AggregateOfferings(ctx context.Context, creds CredentialSet) []catalog.Offering {
	results := make([][]catalog.Offering, len(r.order))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range r.order {
		adapter := r.adapters[name]
		g.Go(func() error {
			offerings, err := adapter.FetchOfferings(gctx, creds[adapter.Name()])
			if err != nil {
				r.logger.Warn("catalog fetch failed, contributing empty set",
					"provider", adapter.Name(), "error", err)
				return nil
			}
			results[i] = offerings
			return nil
		})
	}
	// Fetch goroutines never return errors; Wait only joins them.
	_ = g.Wait()

	return catalog.Aggregate(results...)
}

// AggregateStorageOptions collects add-on storage catalogs from every
// provider that has one, keyed by provider name. Failures degrade to an
// absent entry.
func (r *Registry) AggregateStorageOptions(ctx context.Context, creds CredentialSet) map[string][]catalog.StorageOption {
	out := make(map[string][]catalog.StorageOption)
	for _, name := range r.order {
		sc, ok := r.adapters[name].(StorageCatalog)
		if !ok {
			continue
		}
		options, err := sc.FetchStorageOptions(ctx, creds[name])
		if err != nil {
			r.logger.Warn("storage options fetch failed", "provider", name, "error", err)
			continue
		}
		out[name] = options
	}
	return out
}
