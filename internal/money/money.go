// Package money converts between decimal amount strings and integer minor
// units. Balances and prices are always stored as minor units.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MinorDigits is the number of fractional digits in one major unit.
const MinorDigits = 2

var ErrInvalidAmount = errors.New("invalid decimal amount")

var scale = decimal.New(1, MinorDigits)

// Parse converts a decimal string such as "12.50" into minor units (1250).
// Amounts with more fractional digits than MinorDigits are rejected.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	minor := d.Mul(scale)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, MinorDigits)
	}
	if minor.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, s)
	}
	return minor.IntPart(), nil
}

// Format renders minor units as a fixed two-decimal string.
func Format(minor int64) string {
	return decimal.New(minor, -MinorDigits).StringFixed(MinorDigits)
}
