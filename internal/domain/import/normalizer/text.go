// Package normalizer provides text normalization used to compare column names
// regardless of case, surrounding whitespace or Spanish accents.
package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFKD and drops the combining marks left behind,
// so "Región" and "REGION" both end up as "region".
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize trims, lower-cases and de-accents s.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}

	// transform.String only fails on malformed transformer chains; fall back to
	// the lower-cased input in that case.
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeAll normalizes every entry of names, preserving order.
func NormalizeAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Normalize(n)
	}
	return out
}
