package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"
)

// DefaultNoteLimit bounds free-text notes stored on orders.
const DefaultNoteLimit = 500

var strictPolicy = bluemonday.StrictPolicy()

// PlainText strips markup from user supplied text, collapses whitespace and truncates the
// result to limit runes. A non-positive limit uses DefaultNoteLimit.
func PlainText(value string, limit int) string {
	if limit <= 0 {
		limit = DefaultNoteLimit
	}
	cleaned := html.UnescapeString(strictPolicy.Sanitize(value))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if utf8.RuneCountInString(cleaned) <= limit {
		return cleaned
	}
	runes := []rune(cleaned)
	return strings.TrimSpace(string(runes[:limit]))
}

// PlainMetadata applies PlainText to every value of a notification data map and drops
// entries whose key is blank. An empty result is nil so it is omitted from stored documents.
func PlainMetadata(values map[string]string, limit int) map[string]string {
	out := lo.MapEntries(values, func(k, v string) (string, string) {
		return strings.TrimSpace(k), PlainText(v, limit)
	})
	delete(out, "")
	if len(out) == 0 {
		return nil
	}
	return out
}
