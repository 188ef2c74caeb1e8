package payment

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("amount must be a positive number")

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit cost ("10", "10.5", "9.99") to cents,
// rounding half away from zero. Non-positive results are rejected.
func ToMinorUnits(cost decimal.Decimal) (int64, error) {
	cents := cost.Mul(hundred).Round(0)
	if !cents.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// ParseCost parses a textual cost and converts it to minor units.
func ParseCost(raw string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return ToMinorUnits(d)
}

// FromMinorUnits renders cents as a major-unit decimal.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
