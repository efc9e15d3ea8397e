package digiflazz

// PricelistRequest represents a price-list request.
type PricelistRequest struct {
	Cmd      string `json:"cmd"` // "prepaid" or "pasca"
	Username string `json:"username"`
	Sign     string `json:"sign"`
}
