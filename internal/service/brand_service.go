package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_catalog/internal/config"
	"github.com/GTDGit/gtd_catalog/internal/metrics"
	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

// purgeSampleSize bounds the codes echoed back by a purge.
const purgeSampleSize = 20

// BrandService provides admin operations on canonical brands.
type BrandService struct {
	brands   BrandStore
	products ProductStore
	cfg      config.CatalogConfig
	metrics  *metrics.CatalogMetrics
}

// NewBrandService creates a new BrandService.
func NewBrandService(brands BrandStore, products ProductStore, cfg config.CatalogConfig) *BrandService {
	return &BrandService{brands: brands, products: products, cfg: cfg}
}

// SetMetrics records purge metrics on m.
func (s *BrandService) SetMetrics(m *metrics.CatalogMetrics) { s.metrics = m }

// List returns brands with pagination.
func (s *BrandService) List(ctx context.Context, search string, activeOnly bool, page, limit int) ([]models.Brand, int, error) {
	return s.brands.ListPaged(ctx, strings.TrimSpace(search), activeOnly, page, limit)
}

// Get returns a brand with the products it owns.
func (s *BrandService) Get(ctx context.Context, code string) (*models.BrandWithProducts, error) {
	b, err := s.brands.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	products, err := s.products.ListByBrand(ctx, b.Code)
	if err != nil {
		return nil, fmt.Errorf("list products of %s: %w", b.Code, err)
	}
	if products == nil {
		products = []models.Product{}
	}
	return &models.BrandWithProducts{Brand: b, Products: products}, nil
}

// Create adds a canonical brand by hand. The code is normalized to a slug.
func (s *BrandService) Create(ctx context.Context, in models.BrandInput) (*models.Brand, error) {
	code := utils.Slugify(in.Code)
	if code == "" {
		return nil, utils.ErrBrandCodeRequired
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, utils.ErrBrandNameRequired
	}

	b := &models.Brand{
		Code:         code,
		Name:         name,
		Icon:         s.cfg.PlaceholderIcon,
		Aliases:      pq.StringArray{},
		ProviderRefs: models.ProviderRefs{},
		IsActive:     true,
	}
	b.AddAlias(code)
	b.AddAlias(utils.Slugify(name))
	applyBrandInput(b, in)

	if err := s.brands.Create(ctx, b); err != nil {
		return nil, err
	}
	log.Info().Str("code", b.Code).Msg("Brand created by admin")
	return b, nil
}

// Update changes display metadata, aliases, markup and home placement.
// Provider refs and merge state are never touched here.
func (s *BrandService) Update(ctx context.Context, code string, in models.BrandInput) (*models.Brand, error) {
	b, err := s.brands.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		b.Name = name
	}
	applyBrandInput(b, in)

	if err := s.brands.Save(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Purge permanently removes inactive brands; with MergedOnly only those
// absorbed by a merge. Brands that still own products are retained and
// listed instead. A dry run only reports the matches.
func (s *BrandService) Purge(ctx context.Context, opts models.PurgeOptions) (*models.PurgeResult, error) {
	inactive, err := s.brands.ListInactiveCodes(ctx, opts.MergedOnly)
	if err != nil {
		return nil, fmt.Errorf("list inactive brands: %w", err)
	}

	codes := make([]string, 0, len(inactive))
	retained := []string{}
	for _, code := range inactive {
		products, err := s.products.ListByBrand(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("list products of %s: %w", code, err)
		}
		if len(products) > 0 {
			retained = append(retained, code)
			continue
		}
		codes = append(codes, code)
	}

	res := &models.PurgeResult{
		OK:       true,
		Dry:      opts.DryRun,
		Matched:  len(codes),
		Sample:   codes[:min(len(codes), purgeSampleSize)],
		Retained: retained,
	}
	if len(retained) > 0 {
		log.Warn().
			Strs("brands", retained).
			Msg("Inactive brands still own products, not purging them")
	}
	if opts.DryRun || len(codes) == 0 {
		return res, nil
	}

	deleted, err := s.brands.DeleteInactive(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("delete inactive brands: %w", err)
	}
	res.Deleted = deleted
	s.metrics.BrandsPurged(deleted)

	log.Info().
		Bool("merged_only", opts.MergedOnly).
		Int("matched", res.Matched).
		Int("retained", len(retained)).
		Int("deleted", deleted).
		Msg("Inactive brands purged")
	return res, nil
}

func applyBrandInput(b *models.Brand, in models.BrandInput) {
	if in.Icon != nil {
		b.Icon = strings.TrimSpace(*in.Icon)
	}
	if in.Developer != nil {
		b.Developer = strings.TrimSpace(*in.Developer)
	}
	if in.Publisher != nil {
		b.Publisher = strings.TrimSpace(*in.Publisher)
	}
	for _, a := range in.Aliases {
		b.AddAlias(utils.Slugify(a))
	}
	if in.DefaultMarkupPercent != nil {
		v := *in.DefaultMarkupPercent
		b.DefaultMarkupPercent = &v
	}
	if in.Featured != nil {
		b.Featured = *in.Featured
	}
	if in.FeaturedOrder != nil {
		b.FeaturedOrder = in.FeaturedOrder
	}
	if in.NewRelease != nil {
		b.NewRelease = *in.NewRelease
	}
	if in.NewReleaseOrder != nil {
		b.NewReleaseOrder = in.NewReleaseOrder
	}
	if in.Voucher != nil {
		b.Voucher = *in.Voucher
	}
	if in.VoucherOrder != nil {
		b.VoucherOrder = in.VoucherOrder
	}
	if in.PulsaTagihan != nil {
		b.PulsaTagihan = *in.PulsaTagihan
	}
	if in.PulsaTagihanOrder != nil {
		b.PulsaTagihanOrder = in.PulsaTagihanOrder
	}
	if in.Entertainment != nil {
		b.Entertainment = *in.Entertainment
	}
	if in.EntertainmentOrder != nil {
		b.EntertainmentOrder = in.EntertainmentOrder
	}
}
