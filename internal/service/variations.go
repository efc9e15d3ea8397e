package service

import "github.com/GTDGit/gtd_catalog/internal/models"

// mergedProduct is one product entry after folding variation data in.
type mergedProduct struct {
	ProviderProductCode string
	Name                string
	Cost                int64
	Image               string
	Meta                models.ProductMeta
}

// mergeVariations folds variations into the primary product list by provider
// product code. A variation fills name or cost only where the primary entry
// is empty or non-positive, and always contributes its meta. Codes known only
// to the variation feed are appended after the primary list in feed order.
// The primary list is authoritative for images. Duplicate codes keep their
// first occurrence.
func mergeVariations(products []models.UpstreamProduct, variations []models.UpstreamVariation) []mergedProduct {
	out := make([]mergedProduct, 0, len(products)+len(variations))
	index := make(map[string]int, len(products)+len(variations))

	for _, p := range products {
		if p.ProviderProductCode == "" {
			continue
		}
		if _, dup := index[p.ProviderProductCode]; dup {
			continue
		}
		index[p.ProviderProductCode] = len(out)
		out = append(out, mergedProduct{
			ProviderProductCode: p.ProviderProductCode,
			Name:                p.Name,
			Cost:                p.Cost,
			Image:               p.Image,
		})
	}

	for _, v := range variations {
		if v.ProviderProductCode == "" {
			continue
		}
		i, ok := index[v.ProviderProductCode]
		if !ok {
			index[v.ProviderProductCode] = len(out)
			out = append(out, mergedProduct{
				ProviderProductCode: v.ProviderProductCode,
				Name:                v.Name,
				Cost:                v.Cost,
				Meta:                v.Meta,
			})
			continue
		}
		m := &out[i]
		if m.Name == "" {
			m.Name = v.Name
		}
		if m.Cost <= 0 && v.Cost > 0 {
			m.Cost = v.Cost
		}
		if v.Meta.SLA != nil {
			m.Meta.SLA = v.Meta.SLA
		}
		if v.Meta.IsNew != nil {
			m.Meta.IsNew = v.Meta.IsNew
		}
		if v.Meta.VariationActive != nil {
			m.Meta.VariationActive = v.Meta.VariationActive
		}
	}
	return out
}
