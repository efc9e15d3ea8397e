package service

import (
	"strings"

	"github.com/GTDGit/gtd_catalog/internal/models"
)

// PurchaseRule assigns a purchase schema to brands whose code matches.
type PurchaseRule struct {
	Name   string
	Match  func(brandCode string) bool
	Mode   models.PurchaseMode
	Fields models.PurchaseFields
}

// PurchaseRules is an ordered rule table; the first match wins.
type PurchaseRules struct {
	rules    []PurchaseRule
	fallback PurchaseRule
}

var (
	userIDField = models.PurchaseField{Key: "userId", Label: "User ID", Required: true}
	zoneIDField = models.PurchaseField{Key: "zoneId", Label: "Zone ID", Required: true}
)

// codeContains matches brand codes containing any of the fragments.
func codeContains(fragments ...string) func(string) bool {
	return func(code string) bool {
		code = strings.ToLower(code)
		for _, f := range fragments {
			if strings.Contains(code, f) {
				return true
			}
		}
		return false
	}
}

// codeEquals matches brand codes exactly.
func codeEquals(codes ...string) func(string) bool {
	return func(code string) bool {
		code = strings.ToLower(code)
		for _, c := range codes {
			if code == c {
				return true
			}
		}
		return false
	}
}

func anyOf(preds ...func(string) bool) func(string) bool {
	return func(code string) bool {
		for _, p := range preds {
			if p(code) {
				return true
			}
		}
		return false
	}
}

// DefaultPurchaseRules returns the built-in table: two ids for MOBA style
// brands, nothing for vouchers and gift cards, a single user id otherwise.
func DefaultPurchaseRules() *PurchaseRules {
	return NewPurchaseRules([]PurchaseRule{
		{
			Name:   "user-id-zone",
			Match:  anyOf(codeEquals("ml", "mlbb"), codeContains("mobile-legends", "magic-chess")),
			Mode:   models.PurchaseModeUserIDZone,
			Fields: models.PurchaseFields{userIDField, zoneIDField},
		},
		{
			Name:   "voucher",
			Match:  codeContains("voucher", "gift-card", "giftcard", "steam-wallet", "google-play", "itunes"),
			Mode:   models.PurchaseModeNone,
			Fields: models.PurchaseFields{},
		},
	})
}

// NewPurchaseRules builds a rule table ahead of the single-user-id fallback.
func NewPurchaseRules(rules []PurchaseRule) *PurchaseRules {
	return &PurchaseRules{
		rules: rules,
		fallback: PurchaseRule{
			Name:   "user-id",
			Mode:   models.PurchaseModeUserID,
			Fields: models.PurchaseFields{userIDField},
		},
	}
}

// Resolve returns the purchase schema for brandCode. The returned fields are
// a copy and safe to mutate.
func (r *PurchaseRules) Resolve(brandCode string) (models.PurchaseMode, models.PurchaseFields) {
	rule := r.fallback
	for _, candidate := range r.rules {
		if candidate.Match != nil && candidate.Match(brandCode) {
			rule = candidate
			break
		}
	}
	return rule.Mode, append(models.PurchaseFields{}, rule.Fields...)
}
