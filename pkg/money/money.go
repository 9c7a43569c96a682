// Package money holds the cent-precision helpers used for every monetary
// amount in the accumulator.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits every amount is kept at.
const Places = 2

// Zero is the zero amount.
var Zero = decimal.Zero

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Parse reads a decimal string and rejects values with more than two
// fractional digits or a negative sign.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if err := Validate(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// Validate checks an amount is non-negative and has at most two decimals.
func Validate(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("amount %s is negative", d.String())
	}
	if !d.Equal(d.Round(Places)) {
		return fmt.Errorf("amount %s has more than %d fractional digits", d.String(), Places)
	}
	return nil
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Remaining returns ceiling-used, floored at zero.
func Remaining(ceiling, used decimal.Decimal) decimal.Decimal {
	return Max(ceiling.Sub(used), decimal.Zero)
}

// Ratio returns used/ceiling clamped to [0,1] at four decimals; a zero ceiling yields 1.
func Ratio(used, ceiling decimal.Decimal) decimal.Decimal {
	if !ceiling.IsPositive() {
		return decimal.NewFromInt(1)
	}
	r := used.DivRound(ceiling, 4)
	return Min(Max(r, decimal.Zero), decimal.NewFromInt(1))
}
