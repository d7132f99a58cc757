package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func TestQuantizeBankersRounding(t *testing.T) {
	tests := []struct {
		value     string
		increment string
		expected  string
	}{
		{"2.005", "0.01", "2.00"},  // half to even, down
		{"2.015", "0.01", "2.02"},  // half to even, up
		{"2.0049", "0.01", "2.00"}, // below half
		{"2.0051", "0.01", "2.01"}, // above half
		{"-2.005", "0.01", "-2.00"},
		{"1.23", "0.05", "1.25"},
		{"1.22", "0.05", "1.20"},
		{"123.4", "1", "123"},
		{"5.00", "0", "5.00"}, // zero increment leaves the value exact
	}
	for _, tt := range tests {
		t.Run(tt.value+"@"+tt.increment, func(t *testing.T) {
			got := Quantize(d(t, tt.value), d(t, tt.increment))
			require.True(t, d(t, tt.expected).Equal(got),
				"Quantize(%s, %s) = %s, want %s", tt.value, tt.increment, got, tt.expected)
		})
	}
}

func TestQuantizeNullPreservesInvalid(t *testing.T) {
	inc := d(t, "0.01")
	require.False(t, QuantizeNull(decimal.NullDecimal{}, inc).Valid)
	q := QuantizeNull(decimal.NewNullDecimal(d(t, "1.005")), inc)
	require.True(t, q.Valid)
	require.True(t, d(t, "1.00").Equal(q.Decimal))
}

func TestParseIncrement(t *testing.T) {
	inc, err := ParseIncrement("0.01")
	require.NoError(t, err)
	require.True(t, d(t, "0.01").Equal(inc))

	inc, err = ParseIncrement("")
	require.NoError(t, err)
	require.True(t, inc.IsZero())

	inc, err = ParseIncrement("   ")
	require.NoError(t, err)
	require.True(t, inc.IsZero())

	_, err = ParseIncrement("zero-point-one")
	require.Error(t, err)

	_, err = ParseIncrement("-0.01")
	require.Error(t, err)

	_, err = ParseIncrement("0")
	require.Error(t, err)
}

func TestAllowedVariance(t *testing.T) {
	revenue := decimal.NewNullDecimal(d(t, "100000.00"))
	tests := []struct {
		name     string
		floor    string
		pct      string
		revenue  decimal.NullDecimal
		expected string
	}{
		{"pct wins", "0", "0.001", revenue, "100"},
		{"floor wins", "250", "0.001", revenue, "250"},
		{"missing revenue leaves floor", "50", "0.001", decimal.NullDecimal{}, "50"},
		{"negative revenue uses absolute", "0", "0.001", decimal.NewNullDecimal(d(t, "-100000.00")), "100"},
		{"nothing configured", "0", "0", revenue, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AllowedVariance(d(t, tt.floor), d(t, tt.pct), tt.revenue)
			require.True(t, d(t, tt.expected).Equal(got), "got %s, want %s", got, tt.expected)
		})
	}
}

func TestParseAny(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected string
		valid    bool
	}{
		{"string", "12.34", "12.34", true},
		{"string with commas", "1,234.50", "1234.50", true},
		{"negative string", "-7.25", "-7.25", true},
		{"int", 42, "42", true},
		{"float", 1.5, "1.5", true},
		{"decimal", decimal.RequireFromString("9.99"), "9.99", true},
		{"empty string", "   ", "", false},
		{"nil", nil, "", false},
		{"garbage", "a lot", "", false},
		{"bool", true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAny(tt.value)
			require.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				require.True(t, d(t, tt.expected).Equal(got.Decimal), "got %s, want %s", got.Decimal, tt.expected)
			}
		})
	}
}
