package service

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/pkg/vcgamers"
)

// ProviderVCGamers is the provider code of the VCGamers feed.
const ProviderVCGamers = "vcgamers"

// vcgamersAPI is the subset of *vcgamers.Client the adapter calls.
type vcgamersAPI interface {
	ListBrands(ctx context.Context) ([]vcgamers.Brand, error)
	ListBrandProducts(ctx context.Context, brandKey string) ([]vcgamers.Product, error)
	ListVariations(ctx context.Context, brandKey string) ([]vcgamers.Variation, error)
}

// VCGamersProvider wraps the VCGamers client and normalizes its payloads.
type VCGamersProvider struct {
	client vcgamersAPI
}

// NewVCGamersProvider creates a VCGamers catalog provider.
func NewVCGamersProvider(client vcgamersAPI) *VCGamersProvider {
	return &VCGamersProvider{client: client}
}

// Code returns the provider code.
func (p *VCGamersProvider) Code() string { return ProviderVCGamers }

// ListBrands returns brands with a usable key; others are dropped.
func (p *VCGamersProvider) ListBrands(ctx context.Context) ([]models.UpstreamBrand, error) {
	raw, err := p.client.ListBrands(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.UpstreamBrand, 0, len(raw))
	dropped := 0
	for _, b := range raw {
		key := strings.TrimSpace(b.Key)
		if key == "" {
			key = strings.TrimSpace(b.Code)
		}
		if key == "" {
			dropped++
			continue
		}
		out = append(out, models.UpstreamBrand{Key: key, Name: strings.TrimSpace(b.Name)})
	}
	logDropped("brands", "", dropped)
	return out, nil
}

// ListBrandProducts returns normalized products of brandKey.
func (p *VCGamersProvider) ListBrandProducts(ctx context.Context, brandKey string) ([]models.UpstreamProduct, error) {
	raw, err := p.client.ListBrandProducts(ctx, brandKey)
	if err != nil {
		return nil, err
	}
	out := make([]models.UpstreamProduct, 0, len(raw))
	dropped := 0
	for _, item := range raw {
		code := firstNonEmpty(item.Code, item.SKU)
		cost, ok := parseAmount(item.Price)
		if code == "" || !ok {
			dropped++
			continue
		}
		out = append(out, models.UpstreamProduct{
			ProviderProductCode: code,
			Name:                strings.TrimSpace(item.Name),
			Cost:                cost,
			Image:               firstNonEmpty(item.Image, item.ImageURL),
		})
	}
	logDropped("products", brandKey, dropped)
	return out, nil
}

// ListVariations returns normalized variations of brandKey.
func (p *VCGamersProvider) ListVariations(ctx context.Context, brandKey string) ([]models.UpstreamVariation, error) {
	raw, err := p.client.ListVariations(ctx, brandKey)
	if err != nil {
		return nil, err
	}
	out := make([]models.UpstreamVariation, 0, len(raw))
	dropped := 0
	for _, item := range raw {
		code := firstNonEmpty(item.Code, item.SKU)
		cost, ok := parseAmount(item.Price)
		if code == "" || !ok {
			dropped++
			continue
		}
		out = append(out, models.UpstreamVariation{
			ProviderProductCode: code,
			Name:                strings.TrimSpace(item.Name),
			Cost:                cost,
			Meta: models.ProductMeta{
				SLA:             parseText(item.SLA),
				IsNew:           parseFlag(item.IsNew),
				VariationActive: parseFlag(item.Active),
			},
		})
	}
	logDropped("variations", brandKey, dropped)
	return out, nil
}

func logDropped(kind, brandKey string, n int) {
	if n == 0 {
		return
	}
	log.Debug().Str("kind", kind).Str("brand_key", brandKey).Int("dropped", n).Msg("[VCGAMERS] malformed entries dropped")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// maxAmount is the largest integer a float64 holds exactly.
const maxAmount = 1 << 53

// parseAmount reads a price given as a JSON number or numeric string.
// Missing prices read as 0; anything else unparsable, negative or above
// maxAmount is rejected.
func parseAmount(raw json.RawMessage) (int64, bool) {
	if isNull(raw) {
		return 0, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, true
		}
		raw = json.RawMessage(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if f < 0 || f > maxAmount || math.IsNaN(f) {
		return 0, false
	}
	return int64(math.Round(f)), true
}

// parseFlag reads bool, 0/1 or "true"/"false"/"1"/"0"/"yes"/"no".
func parseFlag(raw json.RawMessage) *bool {
	if isNull(raw) {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		v := n != 0
		return &v
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "y":
			v := true
			return &v
		case "0", "false", "no", "n":
			v := false
			return &v
		}
	}
	return nil
}

// parseText reads a string or number as text.
func parseText(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return nil
		}
		return &s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		s := n.String()
		return &s
	}
	return nil
}
