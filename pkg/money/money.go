// Package money converts between minor-unit integers (kopecks) used in
// storage and the decimal major-unit values used on the wire.
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

// MinorPerMajor is the number of minor units in one major unit.
const MinorPerMajor = 100

var (
	ErrNegative  = errors.New("amount must not be negative")
	ErrPrecision = errors.New("amount has more than two decimal places")
)

// FromMajor converts a major-unit decimal (e.g. 10.50) to minor units.
func FromMajor(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, ErrNegative
	}
	minor := d.Shift(2)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrPrecision
	}
	return minor.IntPart(), nil
}

// ToMajor converts minor units to a major-unit decimal.
func ToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Format renders minor units as a fixed two-decimal string ("10.00"), the
// format payment gateways expect.
func Format(minor int64) string {
	return ToMajor(minor).StringFixed(2)
}

// Parse reads a gateway amount string such as "10.00".
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return FromMajor(d)
}

// ApplyDiscount takes percent off the price and rounds half-up to whole
// major units. 10.00 at 15% → 8.50 → 9.00.
func ApplyDiscount(minor int64, percent int64) int64 {
	d := ToMajor(minor).Mul(decimal.NewFromInt(100 - percent)).Div(decimal.NewFromInt(100))
	return d.Round(0).Shift(2).IntPart()
}

// Percent returns percent of the amount rounded half-up to the minor unit.
// 9.00 at 25% → 2.25.
func Percent(minor int64, percent int64) int64 {
	d := ToMajor(minor).Mul(decimal.NewFromInt(percent)).Div(decimal.NewFromInt(100))
	return d.Round(2).Shift(2).IntPart()
}
