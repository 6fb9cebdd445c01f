// Package money converts between decimal amounts and integer minor units and
// renders amounts for display. Every function takes the currency explicitly.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for amounts that cannot be parsed.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrPrecision is returned when an amount has more decimals than the currency allows.
	ErrPrecision = errors.New("amount exceeds currency precision")
)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Round rounds amount to minorUnits decimal places, half away from zero.
func Round(amount decimal.Decimal, minorUnits int32) decimal.Decimal {
	return amount.Round(minorUnits)
}

// ToMinor converts a decimal amount into minor units of c. Amounts with more
// precision than the currency supports are rejected rather than rounded.
func ToMinor(amount decimal.Decimal, c Currency) (int64, error) {
	shifted := amount.Shift(c.MinorUnits)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s allows %d decimals, got %s", ErrPrecision, c.Code, c.MinorUnits, amount.String())
	}
	if shifted.GreaterThan(maxMinor) || shifted.LessThan(minMinor) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, amount.String())
	}
	return shifted.IntPart(), nil
}

// FromMinor converts minor units of c back into a decimal amount.
func FromMinor(minor int64, c Currency) decimal.Decimal {
	return decimal.New(minor, -c.MinorUnits)
}

// LineTotal multiplies a quantity by a unit price in minor units and rounds the
// product to whole minor units. Products outside the int64 range are rejected.
func LineTotal(quantity decimal.Decimal, unitPriceMinor int64) (int64, error) {
	product := quantity.Mul(decimal.NewFromInt(unitPriceMinor)).Round(0)
	if product.GreaterThan(maxMinor) || product.LessThan(minMinor) {
		return 0, fmt.Errorf("%w: %s x %d out of range", ErrInvalidAmount, quantity.String(), unitPriceMinor)
	}
	return product.IntPart(), nil
}

// Sum adds minor-unit amounts and fails instead of wrapping past int64.
func Sum(amounts ...int64) (int64, error) {
	var total int64
	for _, a := range amounts {
		if (a > 0 && total > math.MaxInt64-a) || (a < 0 && total < math.MinInt64-a) {
			return 0, fmt.Errorf("%w: sum out of range", ErrInvalidAmount)
		}
		total += a
	}
	return total, nil
}

// Decimal renders minor units as a plain decimal string with exactly the
// currency's number of decimals ("1000.00", "1000" for JPY).
func Decimal(minor int64, c Currency) string {
	return FromMinor(minor, c).StringFixed(c.MinorUnits)
}

// Format renders minor units with the currency symbol and thousands separators.
func Format(minor int64, c Currency) string {
	sign := ""
	if minor < 0 {
		sign = "-"
	}
	plain := FromMinor(minor, c).Abs().StringFixed(c.MinorUnits)
	intPart, frac, hasFrac := strings.Cut(plain, ".")

	var b strings.Builder
	b.WriteString(sign)
	b.WriteString(c.Symbol)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
