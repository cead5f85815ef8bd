package geocode

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold strips diacritics so "Peña Dr" and "Pena Dr" hash alike.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeComponent lowercases, trims, folds diacritics, and collapses
// interior whitespace in one address component.
func normalizeComponent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if folded, _, err := transform.String(asciiFold, s); err == nil {
		s = folded
	}
	return strings.Join(strings.Fields(s), " ")
}

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(addr AddressInput) string {
	normalized := fmt.Sprintf("%s|%s|%s|%s",
		normalizeComponent(addr.Street),
		normalizeComponent(addr.City),
		normalizeComponent(addr.State),
		strings.TrimSpace(addr.ZipCode),
	)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}
