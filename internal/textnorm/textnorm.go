// Package textnorm cleans caption text before it is stored.
package textnorm

import (
	"strings"
)

const (
	titleMaxRunes = 54
	titleEllipsis = "..."
)

// symbolRanges are the emoji, pictograph, symbol and dingbat blocks
// removed by StripSymbols.
var symbolRanges = []struct{ lo, hi rune }{
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F300, 0x1F5FF}, // misc symbols and pictographs
	{0x1F680, 0x1F6FF}, // transport and map
	{0x2600, 0x26FF},   // misc symbols
	{0x2700, 0x27BF},   // dingbats
}

// StripSymbols removes emoji-like code points and leaves all other text,
// including non-Latin scripts, untouched.
func StripSymbols(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isSymbol(r rune) bool {
	for _, sr := range symbolRanges {
		if r >= sr.lo && r <= sr.hi {
			return true
		}
	}
	return false
}

// Title derives a record title from normalized text. Text longer than 54
// characters is cut and suffixed with "...". Blank text yields fallback.
func Title(text, fallback string) string {
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	count := 0
	for i := range text {
		if count == titleMaxRunes {
			return text[:i] + titleEllipsis
		}
		count++
	}
	return text
}
