package memory

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultGrams is used when a quantity carries no usable number.
const DefaultGrams = 100.0

// number matches "1,000" style thousands groups before plain decimals ("1,5" or "12.5").
const number = `(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:[.,]\d+)?)`

var (
	// A number followed by a weight/volume unit. Alternatives are ordered longest first so
	// "grams" is not cut short at "g", and the trailing \b keeps "200 grilled" from matching.
	unitQuantity = regexp.MustCompile(number + `\s*(milliliters?|millilitres?|mililitros?|gramas?|grams?|grs?|mls?|g)\b`)

	// A bare leading number, read as a unit count ("2 eggs").
	leadingNumber = regexp.MustCompile(`^\s*` + number)

	thousands = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
)

// ExtractGrams reads a weight in grams (or millilitres, treated as grams) from a free-text
// quantity. It never fails: without a unit it returns a leading count, and without any
// number it returns DefaultGrams. The result is always positive.
func ExtractGrams(quantity string) float64 {
	q := strings.ToLower(quantity)

	if m := unitQuantity.FindStringSubmatch(q); m != nil {
		if v := parseDecimal(m[1]); v > 0 {
			return v
		}
	}

	if m := leadingNumber.FindStringSubmatch(q); m != nil {
		if v := parseDecimal(m[1]); v > 0 {
			return v
		}
	}

	return DefaultGrams
}

// parseDecimal reads a comma followed by exactly three digits as a thousands separator
// and any other comma as a decimal point.
func parseDecimal(s string) float64 {
	if thousands.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
