package coordinator

import (
	"strconv"
	"strings"
	"unicode"
)

// NormalizeName lower-cases name, turns every non letter/digit/underscore
// into a space, collapses whitespace and trims.
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	space := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// NormalizeKey derives the dedup key for a product analysis: name|price.
func NormalizeKey(name string, price float64) string {
	return NormalizeName(name) + "|" + strconv.FormatFloat(price, 'f', 2, 64)
}
