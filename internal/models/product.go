package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// PurchaseMode names the buyer input schema required to purchase a product.
type PurchaseMode string

const (
	PurchaseModeUserID     PurchaseMode = "user_id"
	PurchaseModeUserIDZone PurchaseMode = "user_id_zone"
	PurchaseModeNone       PurchaseMode = "none"
)

// PurchaseField describes one input a buyer must supply at checkout.
type PurchaseField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// PurchaseFields is stored as a JSONB array.
type PurchaseFields []PurchaseField

// Value implements driver.Valuer.
func (f PurchaseFields) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner.
func (f *PurchaseFields) Scan(src any) error {
	if src == nil {
		*f = PurchaseFields{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("purchase_fields: unsupported scan type")
	}
	return json.Unmarshal(raw, f)
}

// ProductMeta holds optional annotations taken from the variations feed.
type ProductMeta struct {
	SLA             *string `db:"meta_sla" json:"sla,omitempty"`
	IsNew           *bool   `db:"meta_is_new" json:"isNew,omitempty"`
	VariationActive *bool   `db:"meta_variation_active" json:"variationActive,omitempty"`
}

// Empty reports whether no annotation is set.
func (m ProductMeta) Empty() bool {
	return m.SLA == nil && m.IsNew == nil && m.VariationActive == nil
}

// Product is one sellable SKU owned by exactly one canonical brand.
type Product struct {
	Code           string         `db:"code" json:"code"`
	Name           string         `db:"name" json:"name"`
	Cost           int64          `db:"cost" json:"cost"`
	Price          int64          `db:"price" json:"price"`
	CustomPrice    bool           `db:"custom_price" json:"customPrice"`
	Provider       string         `db:"provider" json:"provider"`
	ProviderCode   string         `db:"provider_code" json:"providerCode"`
	BrandKey       string         `db:"brand_key" json:"brandKey"`
	GameCode       string         `db:"game_code" json:"gameCode"`
	Category       string         `db:"category" json:"category"`
	Icon           string         `db:"icon" json:"icon"`
	Hash           string         `db:"hash" json:"hash"`
	IsActive       bool           `db:"is_active" json:"isActive"`
	PurchaseMode   PurchaseMode   `db:"purchase_mode" json:"purchaseMode"`
	PurchaseFields PurchaseFields `db:"purchase_fields" json:"purchaseFields"`
	ProductMeta    `json:"meta"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// UpstreamProduct is a provider product after the normalization boundary.
// Entries without a ProviderProductCode never reach business logic.
type UpstreamProduct struct {
	ProviderProductCode string
	Name                string
	Cost                int64
	Image               string
}

// UpstreamVariation is a variation feed entry after normalization.
type UpstreamVariation struct {
	ProviderProductCode string
	Name                string
	Cost                int64
	Meta                ProductMeta
}

// UpstreamBrand is a provider brand after normalization.
type UpstreamBrand struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}
