package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldName lowercases s and strips diacritics ("Jiří" -> "jiri").
func FoldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// FilterPersons keeps persons whose name or number contains q, ignoring
// case and diacritics. An empty query keeps everything. Order is preserved.
func FilterPersons(persons []Person, q string) []Person {
	q = FoldName(q)
	if q == "" {
		return persons
	}
	out := make([]Person, 0, len(persons))
	for _, p := range persons {
		if strings.Contains(FoldName(p.Name), q) || strings.Contains(p.Number, q) {
			out = append(out, p)
		}
	}
	return out
}
