package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Round2 rounds half away from zero to two places.
// Totals are rounded at every intermediate step, not only at the end,
// so callers must apply it stage by stage.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundWeight rounds a weight in kilograms to grams.
func RoundWeight(d decimal.Decimal) decimal.Decimal {
	return d.Round(3)
}

// ToBase converts an amount in a foreign currency into base currency.
// rate is units of the foreign currency per one unit of base currency.
func ToBase(amount, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid exchange rate %s", rate)
	}
	return Round2(amount.Div(rate)), nil
}

// MustDecimal parses s or panics. Intended for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ParseDecimal parses a stored decimal column; empty strings are zero.
func ParseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
