package hyperliquid

import (
	"math"
	"strconv"
	"strings"
)

// maxPriceDecimalsBase bounds limit-price decimal places: a coin with
// szDecimals s accepts at most 6-s decimals.
const maxPriceDecimalsBase = 6

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// formatPriceForDecimals renders a price obeying the venue tick contract for
// a coin with the given szDecimals: at most 6-szDecimals decimal places, and
// at most sigs significant figures when the result is fractional. Integer
// prices pass unconstrained.
func formatPriceForDecimals(px float64, szDecimals, sigs int) string {
	maxDecimals := maxPriceDecimalsBase - szDecimals
	if maxDecimals < 0 {
		maxDecimals = 0
	}
	pow := math.Pow(10, float64(maxDecimals))
	rounded := math.Round(px*pow) / pow
	if rounded == math.Trunc(rounded) {
		return strconv.FormatFloat(rounded, 'f', 0, 64)
	}
	sig, err := strconv.ParseFloat(strconv.FormatFloat(rounded, 'g', sigs, 64), 64)
	if err != nil {
		sig = rounded
	}
	// Significant-figure rounding can reintroduce decimals beyond the cap.
	sig = math.Round(sig*pow) / pow
	return trimTrailingZeros(strconv.FormatFloat(sig, 'f', maxDecimals, 64))
}

func trimTrailingZeros(value string) string {
	if !strings.Contains(value, ".") {
		return value
	}
	value = strings.TrimRight(value, "0")
	value = strings.TrimRight(value, ".")
	if value == "" {
		return "0"
	}
	return value
}
