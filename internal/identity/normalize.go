// Package identity builds the account-customer identity spine.
//
// Resolution runs three deterministic passes (exact name match, token-set
// fuzzy match with greedy assignment, email-domain signal) over the accounts
// and customers not yet linked. Fuzzy matches below the auto-confirm
// threshold land in a review queue; the operator's confirm/reject decisions
// are kept in an append-only log and replayed on every resolve, which makes
// undo and reset trivial.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// corporateSuffixes is the closed set of trailing tokens dropped during name
// normalization.
var corporateSuffixes = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "gmbh": true, "plc": true,
	"pty": true, "co": true, "corp": true, "sa": true, "bv": true,
}

// Normalize canonicalizes a company name for matching: lower-case, strip
// diacritics, collapse whitespace, drop one trailing corporate suffix, then
// strip remaining non-alphanumerics.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = stripDiacritics(n)
	n = collapseWhitespace(n)

	tokens := strings.Fields(n)
	if len(tokens) > 1 {
		last := strings.Trim(tokens[len(tokens)-1], ".,")
		if corporateSuffixes[last] {
			tokens = tokens[:len(tokens)-1]
		}
	}
	n = strings.Join(tokens, " ")

	var b strings.Builder
	for _, r := range n {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return collapseWhitespace(b.String())
}

// Tokens splits a normalized name into its whitespace-delimited tokens.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
