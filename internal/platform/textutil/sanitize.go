package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips all markup from free text, collapses surrounding whitespace, and truncates
// the result to maxRunes runes when maxRunes is positive. Entities escaped by the policy are
// decoded again so stored notes read as plain text.
func SanitizeText(value string, maxRunes int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	cleaned := html.UnescapeString(strictPolicy.Sanitize(trimmed))
	cleaned = strings.TrimSpace(cleaned)
	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return cleaned
}

// SanitizeAny walks decoded JSON values and sanitises every string it finds. Maps and slices are
// copied; other scalar types are returned unchanged.
func SanitizeAny(value any, maxRunes int) any {
	switch v := value.(type) {
	case string:
		return SanitizeText(v, maxRunes)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			key = SanitizeText(key, maxRunes)
			if key == "" {
				continue
			}
			out[key] = SanitizeAny(item, maxRunes)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = SanitizeAny(item, maxRunes)
		}
		return out
	default:
		return value
	}
}
