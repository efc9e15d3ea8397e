package service

import "math"

// SellPrice applies markupPercent to cost, rounding up to whole Rupiah.
// Negative markups count as zero so the price never drops below cost.
func SellPrice(cost int64, markupPercent float64) int64 {
	if cost <= 0 {
		return 0
	}
	if markupPercent < 0 || math.IsNaN(markupPercent) {
		markupPercent = 0
	}
	// Percent math in basis points keeps 10% of 1000 at exactly 1100.
	bp := math.Round(markupPercent * 100)
	if float64(cost)*(10000+bp) >= 1<<62 {
		// Out of exact integer range: round up in floating point and clamp.
		f := math.Ceil(float64(cost) * (10000 + bp) / 10000)
		if f >= math.MaxInt64 {
			return math.MaxInt64
		}
		return max(int64(f), cost)
	}
	price := (cost*(10000+int64(bp)) + 9999) / 10000
	if price < cost {
		return cost
	}
	return price
}
