package section

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// deaccent strips combining marks so "Résumé" slugs the same as "Resume".
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug normalizes a section title into a stable identifier: diacritics
// stripped, lowercased, non-alphanumerics removed, spaces collapsed to
// underscores. The slug is a pure function of the title; two titles that
// normalize identically collide (see Store.Extract, which reports them).
func Slug(title string) string {
	if s, _, err := transform.String(deaccent, title); err == nil {
		title = s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), "_")
}
