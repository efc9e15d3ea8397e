package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/pkg/digiflazz"
)

// ProviderDigiflazz is the provider code of the Digiflazz price list.
const ProviderDigiflazz = "digiflazz"

// pricelistTTL is how long one fetched price list serves per-brand calls.
const pricelistTTL = 10 * time.Minute

type digiflazzAPI interface {
	GetPricelist(ctx context.Context, productType string) (*digiflazz.PricelistResponse, error)
}

// DigiflazzProvider exposes the Digiflazz prepaid price list as a catalog
// feed. Brands are the distinct brand names of the list and there is no
// variations feed.
type DigiflazzProvider struct {
	client digiflazzAPI

	mu        sync.Mutex
	byBrand   map[string][]models.UpstreamProduct
	fetchedAt time.Time
	now       func() time.Time
}

// NewDigiflazzProvider wraps a Digiflazz client.
func NewDigiflazzProvider(client digiflazzAPI) *DigiflazzProvider {
	return &DigiflazzProvider{client: client, now: time.Now}
}

// Code returns the provider code.
func (p *DigiflazzProvider) Code() string { return ProviderDigiflazz }

// ListBrands fetches a fresh price list and returns its brands in first
// appearance order.
func (p *DigiflazzProvider) ListBrands(ctx context.Context) ([]models.UpstreamBrand, error) {
	resp, err := p.client.GetPricelist(ctx, "prepaid")
	if err != nil {
		return nil, err
	}

	byBrand := make(map[string][]models.UpstreamProduct)
	var brands []models.UpstreamBrand
	for _, item := range resp.Data {
		brand := strings.TrimSpace(item.Brand)
		code := strings.TrimSpace(item.BuyerSkuCode)
		if brand == "" || code == "" || !item.BuyerProductStatus || !item.SellerProductStatus || item.Price < 0 {
			continue
		}
		if _, ok := byBrand[brand]; !ok {
			brands = append(brands, models.UpstreamBrand{Key: brand, Name: brand})
		}
		byBrand[brand] = append(byBrand[brand], models.UpstreamProduct{
			ProviderProductCode: code,
			Name:                strings.TrimSpace(item.ProductName),
			Cost:                int64(item.Price),
		})
	}

	p.mu.Lock()
	p.byBrand = byBrand
	p.fetchedAt = p.now()
	p.mu.Unlock()
	return brands, nil
}

// ListBrandProducts returns the price-list rows of brandKey, refetching the
// list when the cached copy is stale.
func (p *DigiflazzProvider) ListBrandProducts(ctx context.Context, brandKey string) ([]models.UpstreamProduct, error) {
	p.mu.Lock()
	stale := p.byBrand == nil || p.now().Sub(p.fetchedAt) > pricelistTTL
	p.mu.Unlock()
	if stale {
		if _, err := p.ListBrands(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.UpstreamProduct(nil), p.byBrand[brandKey]...), nil
}

// ListVariations returns nothing; Digiflazz has no variations feed.
func (p *DigiflazzProvider) ListVariations(context.Context, string) ([]models.UpstreamVariation, error) {
	return nil, nil
}
