package hyperliquid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testPrivateKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a741b52d7c5d5095e2f"

func TestFormatPriceForDecimals(t *testing.T) {
	tests := []struct {
		name       string
		px         float64
		szDecimals int
		expected   string
	}{
		// 6-2=4 decimals, then 5 sig figs on the fractional result.
		{"decimals_then_sigfigs", 12345.678, 2, "12346"},
		{"fractional_five_sigfigs", 1234.5678, 2, "1234.6"},
		{"integer_unconstrained", 123456, 0, "123456"},
		{"large_integer_not_sigfig_rounded", 1234567, 5, "1234567"},
		{"sub_one_price", 0.123456789, 0, "0.12346"},
		{"max_decimals_zero", 27.4, 6, "27"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatPriceForDecimals(tt.px, tt.szDecimals, 5))
		})
	}
}

func TestTrimTrailingZeros(t *testing.T) {
	assert.Equal(t, "1.5", trimTrailingZeros("1.5000"))
	assert.Equal(t, "12", trimTrailingZeros("12.000"))
	assert.Equal(t, "12000", trimTrailingZeros("12000"))
	assert.Equal(t, "0", trimTrailingZeros("0.000"))
}

func TestIsFinite(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected bool
	}{
		{"finite", 100.5, true},
		{"zero", 0.0, true},
		{"negative", -100.5, true},
		{"nan", math.NaN(), false},
		{"positive_inf", math.Inf(1), false},
		{"negative_inf", math.Inf(-1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isFinite(tt.value))
		})
	}
}
