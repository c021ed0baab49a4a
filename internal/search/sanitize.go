package search

import (
	"regexp"
	"strings"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags from a snippet, keeping the text between
// them. Server-side highlighters wrap matches in tags the caller never
// asked for; the envelope carries plain text only.
func StripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	return htmlTag.ReplaceAllString(s, "")
}
