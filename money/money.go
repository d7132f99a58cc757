// Package money holds the fixed-precision monetary arithmetic shared by the
// rules: increment quantization, variance thresholds, and lenient decimal
// parsing for evidence metadata. Monetary values are always
// shopspring/decimal; floats never enter a comparison.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Quantize rounds value to the given increment using banker's rounding
// (round half to even). A zero increment leaves the value untouched, so
// unconfigured rules compare exact decimals.
//
// The increment is a decimal step such as 0.01 (cents) or 0.05; quantization
// divides by the increment, rounds to an integer, and multiplies back.
func Quantize(value decimal.Decimal, increment decimal.Decimal) decimal.Decimal {
	if increment.IsZero() {
		return value
	}
	return value.Div(increment).RoundBank(0).Mul(increment)
}

// QuantizeNull applies Quantize to a null decimal, preserving invalidity.
func QuantizeNull(value decimal.NullDecimal, increment decimal.Decimal) decimal.NullDecimal {
	if !value.Valid {
		return value
	}
	return decimal.NewNullDecimal(Quantize(value.Decimal, increment))
}

// ParseIncrement parses an increment string such as "0.01". An empty string
// yields zero (no quantization). A non-positive or malformed increment is an
// error; rules surface it as an invalid configuration.
func ParseIncrement(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Decimal{}, nil
	}
	inc, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount increment %q: %w", s, err)
	}
	if inc.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("amount increment %q must be positive", s)
	}
	return inc, nil
}

// AllowedVariance computes the tolerance for a near-zero balance:
// max(floor, |revenue| * pct). A missing revenue total contributes zero.
func AllowedVariance(floor, pctOfRevenue decimal.Decimal, revenueTotal decimal.NullDecimal) decimal.Decimal {
	revenueComponent := decimal.Zero
	if revenueTotal.Valid {
		revenueComponent = revenueTotal.Decimal.Abs().Mul(pctOfRevenue).Abs()
	}
	if floor.GreaterThanOrEqual(revenueComponent) {
		return floor
	}
	return revenueComponent
}

// ParseAny parses a decimal out of a free-form meta value: native decimals,
// JSON numbers, or strings with thousands separators ("1,234.50"). Returns an
// invalid null decimal when the value is absent or unparseable.
func ParseAny(value any) decimal.NullDecimal {
	switch v := value.(type) {
	case nil:
		return decimal.NullDecimal{}
	case decimal.Decimal:
		return decimal.NewNullDecimal(v)
	case decimal.NullDecimal:
		return v
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(v))
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(v))
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if s == "" {
			return decimal.NullDecimal{}
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	}
	return decimal.NullDecimal{}
}
