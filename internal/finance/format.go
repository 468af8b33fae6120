package finance

import "github.com/shopspring/decimal"

// Missing stands in for a value the backend did not give.
const Missing = "—"

func Money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + " €"
}

func MoneyPtr(v *float64) string {
	if v == nil {
		return Missing
	}
	return Money(*v)
}

// Percent formats a ratio, 0.6 being "60.0%".
func Percent(ratio float64) string {
	return decimal.NewFromFloat(ratio).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

// Pct formats a value that already is a percentage.
func Pct(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1) + "%"
}

// UnitCost formats per-unit costs and prices, which need four decimals.
func UnitCost(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}

func UnitCostPtr(v *float64) string {
	if v == nil {
		return Missing
	}
	return UnitCost(*v)
}
