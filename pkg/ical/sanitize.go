package ical

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	DefaultCalendarName = "Exams"
	maxNameRunes        = 100
)

// SanitizeName keeps letters, digits, spaces and hyphens, collapses runs of
// whitespace and caps the length. Applying it twice yields the same string.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	cleaned := strings.Join(strings.Fields(b.String()), " ")
	if runes := []rune(cleaned); len(runes) > maxNameRunes {
		cleaned = strings.TrimSpace(string(runes[:maxNameRunes]))
	}
	if cleaned == "" {
		return DefaultCalendarName
	}
	return cleaned
}

// FileName returns a download-safe file name for the calendar.
func FileName(name string) string {
	base := strings.ReplaceAll(SanitizeName(name), " ", "-")
	return base + ".ics"
}

// ContentDisposition renders a Content-Disposition value for fileName. Names
// outside ASCII get a transliterated filename plus an RFC 5987 filename*.
func ContentDisposition(disposition, fileName string) string {
	fallback := asciiFileName(fileName)
	if fallback == fileName {
		return fmt.Sprintf(`%s; filename="%s"`, disposition, fileName)
	}
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`, disposition, fallback, encodeExtValue(fileName))
}

func asciiFileName(name string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
		case r == '"' || r == '\\':
			b.WriteRune('_')
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
