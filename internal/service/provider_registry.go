package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

// CatalogProvider is an upstream catalog feed. Implementations return
// records that already passed their normalization boundary: every product
// and variation carries a non-empty provider product code.
type CatalogProvider interface {
	Code() string
	ListBrands(ctx context.Context) ([]models.UpstreamBrand, error)
	ListBrandProducts(ctx context.Context, brandKey string) ([]models.UpstreamProduct, error)
	ListVariations(ctx context.Context, brandKey string) ([]models.UpstreamVariation, error)
}

// ProviderRegistry holds the catalog providers available to sync runs.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]CatalogProvider
}

// NewProviderRegistry registers the given providers by their code.
func NewProviderRegistry(providers ...CatalogProvider) *ProviderRegistry {
	r := &ProviderRegistry{providers: make(map[string]CatalogProvider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *ProviderRegistry) Register(p CatalogProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Code()] = p
}

// Get returns the provider registered under code.
func (r *ProviderRegistry) Get(code string) (CatalogProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[code]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", code, utils.ErrUnknownProvider)
	}
	return p, nil
}

// Codes lists registered provider codes in sorted order.
func (r *ProviderRegistry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.providers))
	for c := range r.providers {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
