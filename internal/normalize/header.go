package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	// deaccent decomposes characters and strips combining marks so that
	// "Prénom" and "Prenom" standardize to the same header.
	deaccent = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// StandardizeHeader converts an arbitrary header to snake_case: combining
// marks removed, non-word/non-space characters stripped, whitespace runs
// collapsed to single underscores, lowercased.
//
// Idempotent: standardizing an already-standardized header returns it
// unchanged.
func StandardizeHeader(h string) string {
	h = strings.TrimSpace(h)
	if out, _, err := transform.String(deaccent, h); err == nil {
		h = out
	}
	h = nonWordRe.ReplaceAllString(h, "")
	h = whitespaceRe.ReplaceAllString(h, "_")
	return strings.ToLower(h)
}
