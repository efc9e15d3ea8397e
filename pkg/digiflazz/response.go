package digiflazz

import (
	"bytes"
	"encoding/json"
)

// PricelistResponse represents the pricelist payload. On failure Digiflazz
// returns an object instead of an array in data.
type PricelistResponse struct {
	Data    []PricelistItem
	Message string
	RC      string
}

// UnmarshalJSON accepts both {"data":[...]} and {"data":{"message":..,"rc":..}}.
func (r *PricelistResponse) UnmarshalJSON(b []byte) error {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wrapper); err != nil {
		return err
	}
	raw := bytes.TrimSpace(wrapper.Data)
	if len(raw) > 0 && raw[0] == '{' {
		var e struct {
			Message string `json:"message"`
			RC      string `json:"rc"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		r.Message, r.RC = e.Message, e.RC
		return nil
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return json.Unmarshal(raw, &r.Data)
}

// PricelistItem represents a single item in the Digiflazz pricelist.
type PricelistItem struct {
	ProductName         string `json:"product_name"`
	Category            string `json:"category"`
	Brand               string `json:"brand"`
	Type                string `json:"type,omitempty"` // Only for prepaid
	SellerName          string `json:"seller_name"`
	Price               int    `json:"price,omitempty"` // Only for prepaid
	BuyerSkuCode        string `json:"buyer_sku_code"`
	BuyerProductStatus  bool   `json:"buyer_product_status"`
	SellerProductStatus bool   `json:"seller_product_status"`
	UnlimitedStock      bool   `json:"unlimited_stock,omitempty"` // Only for prepaid
	Stock               int    `json:"stock,omitempty"`           // Only for prepaid
	Desc                string `json:"desc"`
}
