package domain

import "github.com/shopspring/decimal"

// Round2 rounds a currency amount half away from zero to two decimal places.
func Round2(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// Money wraps decimal arithmetic for currency amounts held as float64 at the edges.
type Money struct {
	d decimal.Decimal
}

// NewMoney converts a float amount into Money.
func NewMoney(amount float64) Money {
	return Money{d: decimal.NewFromFloat(amount)}
}

// ZeroMoney returns an empty amount.
func ZeroMoney() Money {
	return Money{d: decimal.Zero}
}

func (m Money) Add(other Money) Money { return Money{d: m.d.Add(other.d)} }
func (m Money) Sub(other Money) Money { return Money{d: m.d.Sub(other.d)} }

// MulInt multiplies by an integer quantity.
func (m Money) MulInt(n int) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(int64(n)))}
}

// Percent returns value percent of m.
func (m Money) Percent(value float64) Money {
	return Money{d: m.d.Mul(decimal.NewFromFloat(value)).Div(decimal.NewFromInt(100))}
}

// Clamp bounds m to [lo, hi].
func (m Money) Clamp(lo, hi Money) Money {
	if m.d.LessThan(lo.d) {
		return lo
	}
	if m.d.GreaterThan(hi.d) {
		return hi
	}
	return m
}

// Min returns the smaller amount.
func (m Money) Min(other Money) Money {
	if other.d.LessThan(m.d) {
		return other
	}
	return m
}

// NonNegative floors m at zero.
func (m Money) NonNegative() Money {
	if m.d.IsNegative() {
		return ZeroMoney()
	}
	return m
}

func (m Money) IsPositive() bool             { return m.d.IsPositive() }
func (m Money) LessThan(other Money) bool    { return m.d.LessThan(other.d) }
func (m Money) GreaterThan(other Money) bool { return m.d.GreaterThan(other.d) }
func (m Money) Abs() Money                   { return Money{d: m.d.Abs()} }
func (m Money) Round() Money                 { return Money{d: m.d.Round(2)} }
func (m Money) Float64() float64             { return m.d.Round(2).InexactFloat64() }
func (m Money) Equal(other Money) bool       { return m.d.Equal(other.d) }
func (m Money) String() string               { return m.d.StringFixed(2) }
