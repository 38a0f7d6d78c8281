package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

// decimalRegex accepts plain and exponent notation. It rejects NaN and Inf;
// exponent forms are range-checked separately.
var decimalRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// thousandsRegex is the only shape in which commas are accepted: groups of
// three digits after the first, before any decimal point. "1,25" and "1,2,3"
// do not match.
var thousandsRegex = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)

// NormalizeDecimal cleans a money or weight value into plain decimal text.
//
// Accepted input:
//   - surrounding whitespace
//   - currency symbols ($, €, £) and well-formed thousands separators
//   - accounting negatives such as "(123.45)"
//
// The second result is false when the value is empty or not a finite number.
// Exponent forms must fit a float64.
func NormalizeDecimal(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "").Replace(s)
	s = strings.TrimSpace(s)

	if strings.Contains(s, ",") {
		if !thousandsRegex.MatchString(s) {
			return "", false
		}
		s = strings.ReplaceAll(s, ",", "")
	}

	if negative {
		s = "-" + s
	}
	if !decimalRegex.MatchString(s) {
		return "", false
	}
	if strings.ContainsAny(s, "eE") {
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return "", false
		}
	}
	return s, true
}
