// Package naming derives archive-safe output file names from spreadsheet rows.
package naming

import (
	"strings"
	"unicode"
)

// isAlnum reports whether r is a letter or a number in any script.
func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Sanitize turns arbitrary text into a filename fragment.
//
// The text is cut to maxLen runes first (maxLen <= 0 disables the cut), spaces
// become underscores, surrounding whitespace is trimmed and every rune that is
// not a letter, a number, '.', '_' or '-' is dropped.
func Sanitize(text string, maxLen int) string {
	if text == "" {
		return ""
	}

	if maxLen > 0 {
		text = truncateRunes(text, maxLen)
	}
	text = strings.ReplaceAll(text, " ", "_")
	text = strings.TrimSpace(text)

	return strings.Map(func(r rune) rune {
		if isAlnum(r) || r == '.' || r == '_' || r == '-' {
			return r
		}
		return -1
	}, text)
}

// FirstNAlnum keeps only letters and numbers and returns the first n of them.
func FirstNAlnum(text string, n int) string {
	if text == "" || n <= 0 {
		return ""
	}

	var b strings.Builder
	count := 0
	for _, r := range text {
		if !isAlnum(r) {
			continue
		}
		b.WriteRune(r)
		count++
		if count == n {
			break
		}
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
