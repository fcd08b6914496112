package identity

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	// trailing "(Provider)" or "[Provider]" tag
	providerSuffixRe = regexp.MustCompile(`\s*[(\[][^()\[\]]*[)\]]\s*$`)
)

// Normalize is the comparison form of a name: NFKC, whitespace (line breaks
// included) trimmed and collapsed to single spaces, then Unicode case-folded.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	// cases.Caser is stateful, a fresh one per call keeps Normalize goroutine safe
	return cases.Fold().String(s)
}

// StripProviderSuffix removes one trailing parenthetical/bracketed vendor tag
// ("Fire Safety (Redcrier)" => "Fire Safety") and normalizes the result.
func StripProviderSuffix(s string) string {
	n := Normalize(s)
	return strings.TrimSpace(providerSuffixRe.ReplaceAllString(n, ""))
}

// FirstToken returns the first whitespace-delimited token of the normalized name.
func FirstToken(s string) string {
	n := Normalize(s)
	if i := strings.IndexByte(n, ' '); i >= 0 {
		return n[:i]
	}
	return n
}
