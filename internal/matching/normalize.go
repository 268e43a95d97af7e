// Package matching compares a declared company against a business registry
// record. Everything here is pure: no I/O, no clock except the one passed in.
package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	minNameContainment    = 5
	minAddressContainment = 10
	minAddressRatio       = 0.8
)

// Normalize lowercases s, strips diacritics and drops every character that
// is not an ASCII letter or digit.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidSiret reports whether s is exactly 14 ASCII digits.
func IsValidSiret(s string) bool {
	if len(s) != 14 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeVat uppercases country and number, strips whitespace, hyphens and
// periods, and removes a leading country prefix from the number.
func NormalizeVat(country, number string) (string, string) {
	strip := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch r {
			case ' ', '\t', '\n', '\r', '-', '.':
				return -1
			}
			return r
		}, strings.ToUpper(s))
	}
	country, number = strip(country), strip(number)
	if len(country) == 2 && strings.HasPrefix(number, country) {
		number = number[2:]
	}
	return country, number
}

// IsValidCountryCode reports whether s is exactly two ASCII capital letters.
func IsValidCountryCode(s string) bool {
	return len(s) == 2 && s[0] >= 'A' && s[0] <= 'Z' && s[1] >= 'A' && s[1] <= 'Z'
}

// NamesMatch compares a declared name with the registry name. An empty
// declared name has nothing to compare and matches. Containment is accepted
// only when the shorter normalized name has at least five characters.
func NamesMatch(declared, registry string) bool {
	if strings.TrimSpace(declared) == "" {
		return true
	}
	a, b := Normalize(declared), Normalize(registry)
	if a == "" || b == "" {
		return a == b
	}
	if a == b {
		return true
	}
	shorter, longer := ordered(a, b)
	return len(shorter) >= minNameContainment && strings.Contains(longer, shorter)
}

// AddressesMatch compares two street addresses. Containment is accepted only
// when both normalized strings have at least ten characters and the length
// ratio is at least 0.8.
func AddressesMatch(declared, registry string) bool {
	a, b := Normalize(declared), Normalize(registry)
	if a == b {
		return true
	}
	if len(a) < minAddressContainment || len(b) < minAddressContainment {
		return false
	}
	shorter, longer := ordered(a, b)
	if !strings.Contains(longer, shorter) {
		return false
	}
	return float64(len(shorter))/float64(len(longer)) >= minAddressRatio
}

// CitiesMatch requires exact equality of normalized city names.
func CitiesMatch(declared, registry string) bool {
	return Normalize(declared) == Normalize(registry)
}

// PostalCodesMatch requires exact equality after trimming.
func PostalCodesMatch(declared, registry string) bool {
	return strings.TrimSpace(declared) == strings.TrimSpace(registry)
}

func ordered(a, b string) (shorter, longer string) {
	if len(a) <= len(b) {
		return a, b
	}
	return b, a
}
