package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText folds user supplied text so equivalent inputs compare equal.
// Compatibility forms are composed, letters are lowercased and whitespace
// runs collapse to a single space. Diacritics are kept.
func NormalizeText(s string) string {
	s = CompressAllWhitespace(s)
	if s == "" {
		return ""
	}

	// Chains hold state and cannot be shared between goroutines
	transformer := transform.Chain(
		norm.NFKC,
		runes.Map(unicode.ToLower),
	)

	result, _, err := transform.String(transformer, s)
	if err != nil {
		return strings.ToLower(s)
	}

	return result
}

// CompressAllWhitespace replaces all whitespace sequences (including newlines) with a single space.
func CompressAllWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
