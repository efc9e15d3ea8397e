package vcgamers

import (
	"encoding/json"
	"fmt"
)

// APIError is returned for non-200 responses and unsuccessful envelopes.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vcgamers: status %d: %s", e.StatusCode, e.Message)
}

type envelope interface {
	ok() bool
	message() string
}

// listResponse is the common list envelope. Success is a pointer because
// some endpoints omit it.
type listResponse[T any] struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Data    []T    `json:"data"`
}

func (r *listResponse[T]) ok() bool        { return r.Success == nil || *r.Success }
func (r *listResponse[T]) message() string { return r.Message }

// Brand is one raw brand entry. Older payloads carry the key in Code.
type Brand struct {
	Key  string `json:"key"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Product is one raw product entry. Price may be a number or a numeric string.
type Product struct {
	Code     string          `json:"code"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    json.RawMessage `json:"price"`
	Image    string          `json:"image"`
	ImageURL string          `json:"image_url"`
}

// Variation is one raw variation entry. Flags arrive as bools, numbers or
// strings depending on the brand.
type Variation struct {
	Code   string          `json:"code"`
	SKU    string          `json:"sku"`
	Name   string          `json:"name"`
	Price  json.RawMessage `json:"price"`
	SLA    json.RawMessage `json:"sla"`
	IsNew  json.RawMessage `json:"is_new"`
	Active json.RawMessage `json:"is_active"`
}
