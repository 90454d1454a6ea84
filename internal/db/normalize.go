package db

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizeSearchText lowercases, strips diacritics, and collapses
// whitespace so "Café au Lait" and "cafe au lait" index identically. The
// result is stored in items.search_text and matched with LIKE.
func normalizeSearchText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	folded = strings.ToLower(folded)
	return strings.Join(strings.Fields(folded), " ")
}
