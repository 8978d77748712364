package engine

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// removeDiacritics strips combining marks: "Šárka" becomes "Sarka".
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// normalizeAlias folds an alias for search: lowercase, no diacritics,
// separators collapsed to single spaces.
func normalizeAlias(alias string) string {
	alias = strings.ToLower(removeDiacritics(alias))
	alias = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(alias)
	return strings.Join(strings.Fields(alias), " ")
}

// aliasMatches reports whether every word of query occurs in alias.
func aliasMatches(alias, query string) bool {
	alias = normalizeAlias(alias)
	for _, word := range strings.Fields(normalizeAlias(query)) {
		if !strings.Contains(alias, word) {
			return false
		}
	}
	return true
}
