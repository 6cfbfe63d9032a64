package parser

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CoerceAmount converts a raw amount cell to a decimal. Commas are read as
// decimal separators; when several dots remain, all but the last are
// thousands separators, so "1.200,50" becomes 1200.50. Only plain decimal
// notation is accepted: exponents such as "1e9" and anything else that is not
// a signed run of digits with an optional fraction report ok=false.
func CoerceAmount(raw string) (amount decimal.Decimal, ok bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if s == "" {
		return decimal.Zero, false
	}

	if strings.Count(s, ".") > 1 {
		last := strings.LastIndex(s, ".")
		s = strings.ReplaceAll(s[:last], ".", "") + s[last:]
	}

	if !isPlainDecimal(s) {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func isPlainDecimal(s string) bool {
	if s != "" && (s[0] == '-' || s[0] == '+') {
		s = s[1:]
	}
	digits := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
		default:
			return false
		}
	}
	return digits > 0
}
