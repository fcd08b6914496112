package matrix

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/volatiletech/null/v8"
)

var validityRe = regexp.MustCompile(`^(?:every\s+)?(\d{1,3})\s*(years?|yrs?|y|months?|mths?|mos?|m)?\.?$`)

var neverExpires = map[string]bool{
	"never":           true,
	"n/a":             true,
	"na":              true,
	"none":            true,
	"not required":    true,
	"no expiry":       true,
	"does not expire": true,
	"lifetime":        true,
	"one off":         true,
	"once":            true,
}

// ParseValidity reads the validity period a matrix states for a course:
// "1 year", "3 years", "6 months", "24" (months) or a never-expires phrase, which
// yields a null period. ok is false when raw cannot be read as a period.
func ParseValidity(raw string) (months null.Int, ok bool) {
	s := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if s == "" {
		return null.Int{}, false
	}
	if neverExpires[strings.TrimSuffix(s, ".")] {
		return null.Int{}, true
	}

	m := validityRe.FindStringSubmatch(s)
	if m == nil {
		return null.Int{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return null.Int{}, false
	}
	if strings.HasPrefix(m[2], "y") {
		n *= 12
	}
	return null.IntFrom(n), true
}
