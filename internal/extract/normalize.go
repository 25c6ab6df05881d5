package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics, turns hyphens and apostrophes into
// spaces, and collapses whitespace. "Saint-Émilion" and "saint emilion"
// fold to the same key.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		switch r {
		case '-', '\'', '’', '_':
			return ' '
		}
		return unicode.ToLower(r)
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// SameCity reports whether two city names are equal after folding.
func SameCity(a, b string) bool {
	return a != "" && Fold(a) == Fold(b)
}

// CanonicalPropertyType maps French and English property words to
// house, apartment, land, or building. Unknown words are returned folded.
func CanonicalPropertyType(s string) string {
	f := Fold(s)
	for _, kw := range propertyKeywords {
		if strings.Contains(f, kw.word) {
			return kw.kind
		}
	}
	return f
}

var propertyKeywords = []struct{ word, kind string }{
	{"appartement", "apartment"},
	{"apartment", "apartment"},
	{"studio", "apartment"},
	{"duplex", "apartment"},
	{"loft", "apartment"},
	{"maison", "house"},
	{"villa", "house"},
	{"pavillon", "house"},
	{"longere", "house"},
	{"mas ", "house"},
	{"house", "house"},
	{"immeuble", "building"},
	{"building", "building"},
	{"terrain", "land"},
	{"land", "land"},
}
