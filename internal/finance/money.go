package finance

import "github.com/shopspring/decimal"

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// Add returns a+b without binary float drift.
func Add(a, b float64) float64 { return dec(a).Add(dec(b)).InexactFloat64() }

// Sub returns a-b without binary float drift.
func Sub(a, b float64) float64 { return dec(a).Sub(dec(b)).InexactFloat64() }

// Less reports a < b.
func Less(a, b float64) bool { return dec(a).LessThan(dec(b)) }

// ClampZero floors v at 0.
func ClampZero(v float64) float64 {
	if dec(v).IsNegative() {
		return 0
	}
	return v
}

// FloorDiv returns floor(v / n).
func FloorDiv(v float64, n int) float64 {
	return dec(v).Div(decimal.NewFromInt(int64(n))).Floor().InexactFloat64()
}

// Sum adds f(item) over items.
func Sum[T any](items []T, f func(T) float64) float64 {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(dec(f(it)))
	}
	return total.InexactFloat64()
}
