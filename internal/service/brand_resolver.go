package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

// ResolveOutcome tells whether resolving a provider brand wrote anything.
type ResolveOutcome int

const (
	// ResolveMatched found a brand that already carried the provider ref.
	ResolveMatched ResolveOutcome = iota
	// ResolveUpdated attached the provider ref to an existing brand.
	ResolveUpdated
	// ResolveCreated created a new canonical brand.
	ResolveCreated
)

// maxSlugSuffix bounds the -2, -3, ... search for a free brand code.
const maxSlugSuffix = 100

// BrandResolver maps a provider's raw brand identity onto one canonical brand.
type BrandResolver struct {
	brands          BrandStore
	placeholderIcon string
}

// NewBrandResolver creates a resolver. New brands get placeholderIcon.
func NewBrandResolver(brands BrandStore, placeholderIcon string) *BrandResolver {
	return &BrandResolver{brands: brands, placeholderIcon: placeholderIcon}
}

// Resolve returns the canonical brand for (provider, rawCode). Lookup order:
// provider reference, then alias or normalized name or code against slugs
// of rawName and rawCode, then creation. At most one brand is written.
func (r *BrandResolver) Resolve(ctx context.Context, provider, rawCode, rawName string, defaultMarkup float64) (*models.Brand, ResolveOutcome, error) {
	rawCode = strings.TrimSpace(rawCode)
	if rawCode == "" {
		return nil, ResolveMatched, utils.ErrBrandRefRequired
	}

	b, err := r.brands.FindActiveByProviderRef(ctx, provider, rawCode)
	if err != nil {
		return nil, ResolveMatched, fmt.Errorf("find brand by provider ref: %w", err)
	}
	if b != nil {
		return b, ResolveMatched, nil
	}

	slugs := candidateSlugs(rawName, rawCode)
	if len(slugs) == 0 {
		return nil, ResolveMatched, utils.ErrBrandRefRequired
	}

	for _, slug := range slugs {
		b, err := r.matchSlug(ctx, slug)
		if err != nil {
			return nil, ResolveMatched, err
		}
		if b == nil {
			continue
		}
		if b.ProviderRefs == nil {
			b.ProviderRefs = models.ProviderRefs{}
		}
		b.ProviderRefs.Add(provider, rawCode)
		for _, s := range slugs {
			b.AddAlias(s)
		}
		if err := r.brands.Save(ctx, b); err != nil {
			return nil, ResolveMatched, fmt.Errorf("attach provider ref to %s: %w", b.Code, err)
		}
		log.Info().
			Str("provider", provider).
			Str("raw_code", rawCode).
			Str("canonical", b.Code).
			Msg("Provider ref attached to existing brand")
		return b, ResolveUpdated, nil
	}

	b, err = r.create(ctx, provider, rawCode, rawName, slugs, defaultMarkup)
	if err != nil {
		return nil, ResolveMatched, err
	}
	log.Info().
		Str("provider", provider).
		Str("raw_code", rawCode).
		Str("canonical", b.Code).
		Msg("Canonical brand created")
	return b, ResolveCreated, nil
}

// matchSlug finds an active brand by alias, code or normalized name. A slug
// naming a merged-away brand resolves to its survivor.
func (r *BrandResolver) matchSlug(ctx context.Context, slug string) (*models.Brand, error) {
	b, err := r.brands.FindActiveBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("find brand by slug %q: %w", slug, err)
	}
	if b != nil {
		return b, nil
	}

	seen := map[string]bool{}
	code := slug
	for !seen[code] {
		seen[code] = true
		old, err := r.brands.GetByCode(ctx, code)
		if errors.Is(err, utils.ErrBrandNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get brand %q: %w", code, err)
		}
		if old.IsActive {
			return old, nil
		}
		if old.MergedInto == nil || *old.MergedInto == "" {
			return nil, nil
		}
		code = *old.MergedInto
	}
	return nil, nil
}

func (r *BrandResolver) create(ctx context.Context, provider, rawCode, rawName string, slugs []string, defaultMarkup float64) (*models.Brand, error) {
	name := strings.TrimSpace(rawName)
	if name == "" {
		name = rawCode
	}
	markup := defaultMarkup

	base := slugs[0]
	for n := 1; n <= maxSlugSuffix; n++ {
		code := base
		if n > 1 {
			code = fmt.Sprintf("%s-%d", base, n)
		}
		if _, err := r.brands.GetByCode(ctx, code); err == nil {
			continue
		} else if !errors.Is(err, utils.ErrBrandNotFound) {
			return nil, fmt.Errorf("check brand code %q: %w", code, err)
		}

		b := &models.Brand{
			Code:                 code,
			Name:                 name,
			Icon:                 r.placeholderIcon,
			Aliases:              pq.StringArray{},
			ProviderRefs:         models.ProviderRefs{},
			DefaultMarkupPercent: &markup,
			IsActive:             true,
		}
		for _, s := range slugs {
			b.AddAlias(s)
		}
		b.ProviderRefs.Add(provider, rawCode)

		err := r.brands.Create(ctx, b)
		if errors.Is(err, utils.ErrBrandExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create brand %q: %w", code, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("no free brand code for %q: %w", base, utils.ErrBrandExists)
}

// candidateSlugs returns the distinct non-empty slugs of rawName then rawCode.
func candidateSlugs(rawName, rawCode string) []string {
	var out []string
	for _, s := range []string{utils.Slugify(rawName), utils.Slugify(rawCode)} {
		if s == "" {
			continue
		}
		dup := false
		for _, o := range out {
			if o == s {
				dup = true
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}
