package inventory

import "github.com/shopspring/decimal"

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// lineTotal returns round2(qty × cost) computed in decimal space.
func lineTotal(qty, cost float64) float64 {
	f, _ := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(cost)).Round(2).Float64()
	return f
}

// ratio2 returns round2(num / den), or zero when den is zero.
func ratio2(num, den decimal.Decimal) float64 {
	if den.IsZero() {
		return 0
	}
	f, _ := num.DivRound(den, 8).Round(2).Float64()
	return f
}
