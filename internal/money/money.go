package money

import (
	"github.com/shopspring/decimal"
)

// Scale is the number of minor-unit decimals every amount is rounded to.
const Scale = 2

var hundred = decimal.NewFromInt(100)

// Round applies the single rounding rule used for fees, returns and penalties:
// half-up to two decimals. Amounts in this system are never negative, so
// shopspring's half-away-from-zero rounding is half-up here.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Percent returns amount * rate / 100 rounded.
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate).Div(hundred))
}

// Clamp bounds d to [floor, ceiling]. A zero ceiling means unbounded.
func Clamp(d, floor, ceiling decimal.Decimal) decimal.Decimal {
	if d.LessThan(floor) {
		return floor
	}
	if ceiling.IsPositive() && d.GreaterThan(ceiling) {
		return ceiling
	}
	return d
}

// ToMinor converts a major-unit amount to integer minor units.
func ToMinor(d decimal.Decimal) int64 {
	return Round(d).Mul(hundred).IntPart()
}

// FromMinor converts integer minor units to a major-unit amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -Scale)
}

// Positive reports whether d is strictly greater than zero and has no more
// precision than the currency allows.
func Positive(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(Round(d))
}
