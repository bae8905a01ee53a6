package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Console input limits. Free text is truncated to these; codes are validated
// against them instead.
const (
	MaxCodeLength   = 64
	MaxBrandLength  = 128
	MaxSearchLength = 200
)

// SanitizeString trims the input, drops control characters and cuts it to
// maxLen runes, never bytes.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if strings.IndexFunc(trimmed, unicode.IsControl) >= 0 {
		trimmed = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, trimmed)
	}
	if maxLen > 0 && utf8.RuneCountInString(trimmed) > maxLen {
		trimmed = strings.TrimSpace(string([]rune(trimmed)[:maxLen]))
	}
	return trimmed
}

// SanitizeSearch is SanitizeString for free-text filters: inner whitespace
// runs collapse to one space so "Bosch  GSR" and "Bosch GSR" filter alike.
func SanitizeSearch(input string, maxLen int) string {
	return SanitizeString(strings.Join(strings.Fields(input), " "), maxLen)
}
