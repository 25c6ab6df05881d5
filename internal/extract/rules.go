package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// cityPattern is capitalized words joined by hyphens, spaces, or lowercase
// connectors ("Saint-Jean-de-Luz", "Aix en Provence").
const cityPattern = `[A-ZÀ-Ý][\p{L}'’]+(?:[ -](?:(?:sur|sous|en|le|la|les|de|du|d'|l')[ -]?)?[A-ZÀ-Ý][\p{L}'’]+)*`

var (
	postalCityRe = regexp.MustCompile(`\b((?:0[1-9]|[1-8]\d|9[0-5]|97)\d{3})\s+(` + cityPattern + `)`)
	postalRe     = regexp.MustCompile(`\b((?:0[1-9]|[1-8]\d|9[0-5]|97)\d{3})\b`)
	cityAtRe     = regexp.MustCompile(`(?:^|\s)(?:à|a|sur|near|in)\s+(` + cityPattern + `)`)
	surfaceRe    = regexp.MustCompile(`(?i)(\d{1,4}(?:[.,]\d{1,2})?)\s*(?:m²|m2|mètres? carrés|metres? carres|sqm)`)
	priceRe      = regexp.MustCompile(`(?i)(\d{1,3}(?:[\s.\x{00A0}\x{202F}]\d{3})+|\d+(?:[.,]\d+)?)\s*(k€|k ?euros?|€|euros?|eur\b)`)
	addressRe    = regexp.MustCompile(`(?i)\b\d{1,4}(?:\s?(?:bis|ter))?,?\s+(?:rue|avenue|av\.|boulevard|bd|chemin|allée|allee|impasse|place|route|quai|cours|lotissement|lieu[- ]dit)\s+[^\n,.;()]{2,60}`)
)

// ParseRules extracts what local patterns can find in text and the listing
// URL. It never fails; missing fields stay empty.
func ParseRules(text, listingURL string) model.Descriptor {
	var d model.Descriptor
	sources := []string{text}
	if slug := urlWords(listingURL); slug != "" {
		sources = append(sources, slug)
	}

	for _, src := range sources {
		if d.PostalCode == "" {
			if m := postalCityRe.FindStringSubmatch(src); m != nil {
				d.PostalCode = m[1]
				d.City = cleanCity(m[2])
			} else if m := postalRe.FindStringSubmatch(src); m != nil {
				d.PostalCode = m[1]
			}
		}
		if d.City == "" {
			if m := cityAtRe.FindStringSubmatch(src); m != nil {
				d.City = cleanCity(m[1])
			}
		}
		if d.PropertyType == "" {
			if kind := detectPropertyType(src); kind != "" {
				d.PropertyType = kind
			}
		}
	}

	if m := surfaceRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok && v > 0 {
			d.SurfaceRange = &model.Range{Min: v, Max: v}
		}
	}
	if m := priceRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok && v > 0 {
			if strings.HasPrefix(strings.ToLower(m[2]), "k") {
				v *= 1000
			}
			d.PriceRange = &model.Range{Min: v, Max: v}
		}
	}
	d.Addresses = findAddresses(text)
	return d
}

func detectPropertyType(s string) string {
	f := " " + Fold(s) + " "
	for _, kw := range propertyKeywords {
		if strings.Contains(f, " "+strings.TrimSpace(kw.word)+" ") ||
			strings.Contains(f, " "+strings.TrimSpace(kw.word)+"s ") {
			return kw.kind
		}
	}
	return ""
}

func findAddresses(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range addressRe.FindAllString(text, -1) {
		addr := strings.TrimSpace(m)
		key := Fold(addr)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr)
	}
	return out
}

// urlWords turns a listing URL path into space-separated words.
func urlWords(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	path, err := url.PathUnescape(u.Path)
	if err != nil {
		path = u.Path
	}
	return strings.Join(strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '-' || r == '_' || r == '.'
	}), " ")
}

func cleanCity(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, " -'’")
	return s
}

// parseNumber reads "250 000", "250.000", "1,5" and "95".
func parseNumber(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, s)
	// a dot followed by exactly three digits is a thousands separator
	if i := strings.LastIndex(s, "."); i >= 0 && len(s)-i-1 == 3 {
		s = strings.ReplaceAll(s, ".", "")
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
