package content

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
)

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// NormalizeLanguage reduces a language tag such as "en-US" or "ru_RU" to its base
// language subtag. Returns "" when the tag cannot be parsed.
func NormalizeLanguage(tag string) string {
	tag = strings.TrimSpace(strings.ReplaceAll(tag, "_", "-"))
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	base, conf := t.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

// CleanOptional trims an optional string and maps blank values to nil.
func CleanOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
