package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ProviderRefs maps a provider name to the raw brand codes that provider uses
// for the same canonical brand. Codes are stored lowercased.
type ProviderRefs map[string][]string

// Value implements driver.Valuer so the map is stored as JSONB.
func (r ProviderRefs) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for JSONB columns.
func (r *ProviderRefs) Scan(src any) error {
	if src == nil {
		*r = ProviderRefs{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("provider_refs: unsupported scan type")
	}
	out := ProviderRefs{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*r = out
	return nil
}

// Has reports whether provider lists rawCode (case-insensitive).
func (r ProviderRefs) Has(provider, rawCode string) bool {
	needle := strings.ToLower(rawCode)
	for _, c := range r[provider] {
		if strings.ToLower(c) == needle {
			return true
		}
	}
	return false
}

// Add performs a set union of rawCode into provider's list. It reports
// whether the map changed.
func (r ProviderRefs) Add(provider, rawCode string) bool {
	code := strings.ToLower(strings.TrimSpace(rawCode))
	if code == "" || r.Has(provider, code) {
		return false
	}
	r[provider] = append(r[provider], code)
	return true
}

// Clone returns a deep copy.
func (r ProviderRefs) Clone() ProviderRefs {
	out := make(ProviderRefs, len(r))
	for k, v := range r {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Providers returns the provider names in sorted order.
func (r ProviderRefs) Providers() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Brand is the canonical, internally owned representation of a game or
// service family.
type Brand struct {
	Code                 string         `db:"code" json:"code"`
	Name                 string         `db:"name" json:"name"`
	Icon                 string         `db:"icon" json:"icon"`
	Developer            string         `db:"developer" json:"developer"`
	Publisher            string         `db:"publisher" json:"publisher"`
	Aliases              pq.StringArray `db:"aliases" json:"aliases"`
	ProviderRefs         ProviderRefs   `db:"provider_refs" json:"providerRefs"`
	DefaultMarkupPercent *float64       `db:"default_markup_percent" json:"defaultMarkupPercent,omitempty"`

	// Home placement
	Featured           bool `db:"featured" json:"featured"`
	FeaturedOrder      *int `db:"featured_order" json:"featuredOrder,omitempty"`
	NewRelease         bool `db:"new_release" json:"newRelease"`
	NewReleaseOrder    *int `db:"new_release_order" json:"newReleaseOrder,omitempty"`
	Voucher            bool `db:"voucher" json:"voucher"`
	VoucherOrder       *int `db:"voucher_order" json:"voucherOrder,omitempty"`
	PulsaTagihan       bool `db:"pulsa_tagihan" json:"pulsaTagihan"`
	PulsaTagihanOrder  *int `db:"pulsa_tagihan_order" json:"pulsaTagihanOrder,omitempty"`
	Entertainment      bool `db:"entertainment" json:"entertainment"`
	EntertainmentOrder *int `db:"entertainment_order" json:"entertainmentOrder,omitempty"`

	IsActive   bool      `db:"is_active" json:"isActive"`
	MergedInto *string   `db:"merged_into" json:"mergedInto,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// HasAnyFlag reports whether any home-placement flag is set.
func (b *Brand) HasAnyFlag() bool {
	return b.Featured || b.NewRelease || b.Voucher || b.PulsaTagihan || b.Entertainment
}

// HasAlias reports whether alias is already listed.
func (b *Brand) HasAlias(alias string) bool {
	for _, a := range b.Aliases {
		if a == alias {
			return true
		}
	}
	return false
}

// AddAlias appends alias when it is non-empty and not yet present.
func (b *Brand) AddAlias(alias string) bool {
	if alias == "" || b.HasAlias(alias) {
		return false
	}
	b.Aliases = append(b.Aliases, alias)
	return true
}

// Clone returns a deep copy of the brand.
func (b *Brand) Clone() *Brand {
	out := *b
	out.Aliases = append(pq.StringArray(nil), b.Aliases...)
	out.ProviderRefs = b.ProviderRefs.Clone()
	if b.MergedInto != nil {
		m := *b.MergedInto
		out.MergedInto = &m
	}
	return &out
}

// BrandInput is the admin payload used to create or update brand metadata.
type BrandInput struct {
	Code                 string   `json:"code"`
	Name                 string   `json:"name"`
	Icon                 *string  `json:"icon"`
	Developer            *string  `json:"developer"`
	Publisher            *string  `json:"publisher"`
	Aliases              []string `json:"aliases"`
	DefaultMarkupPercent *float64 `json:"defaultMarkupPercent"`
	Featured             *bool    `json:"featured"`
	FeaturedOrder        *int     `json:"featuredOrder"`
	NewRelease           *bool    `json:"newRelease"`
	NewReleaseOrder      *int     `json:"newReleaseOrder"`
	Voucher              *bool    `json:"voucher"`
	VoucherOrder         *int     `json:"voucherOrder"`
	PulsaTagihan         *bool    `json:"pulsaTagihan"`
	PulsaTagihanOrder    *int     `json:"pulsaTagihanOrder"`
	Entertainment        *bool    `json:"entertainment"`
	EntertainmentOrder   *int     `json:"entertainmentOrder"`
}

// BrandWithProducts is the admin detail view of a brand.
type BrandWithProducts struct {
	Brand    *Brand    `json:"brand"`
	Products []Product `json:"products"`
}
