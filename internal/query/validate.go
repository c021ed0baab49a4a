package query

import (
	"regexp"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/errors"
)

// dangerousPatterns are stripped from query text before any downstream
// use. Case-insensitive.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*/?\s*script[^>]*>`),
	regexp.MustCompile(`(?i)\bjavascript\s*:`),
	regexp.MustCompile(`(?i)\b(drop|truncate)\s+table\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
	regexp.MustCompile(`(?i)\binsert\s+into\b`),
	regexp.MustCompile(`(?i)\bunion\s+select\b`),
	regexp.MustCompile(`\{\{|\}\}`),
	regexp.MustCompile(`\$\{`),
	regexp.MustCompile(`;\s*--`),
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Sanitize removes dangerous substrings and collapses whitespace.
// The second return reports whether anything was removed.
func Sanitize(text string) (string, bool) {
	sanitized := text
	for _, pattern := range dangerousPatterns {
		sanitized = pattern.ReplaceAllString(sanitized, " ")
	}
	changed := sanitized != text
	sanitized = strings.TrimSpace(whitespaceRun.ReplaceAllString(sanitized, " "))
	return sanitized, changed
}

// ValidateText enforces the query text rules: non-empty after trim, at
// most MaxQueryChars characters and MaxQueryWords words.
func ValidateText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return errors.Validation("query", "query must not be empty")
	}
	if len(trimmed) > MaxQueryChars {
		return errors.Validation("query", "query exceeds 1000 characters")
	}
	if len(strings.Fields(trimmed)) > MaxQueryWords {
		return errors.Validation("query", "query exceeds 100 words")
	}
	return nil
}

// ClampResults forces max_results into [MinResults, MaxResults],
// substituting the default for zero.
func ClampResults(n int) int {
	if n == 0 {
		return DefaultResults
	}
	if n < MinResults {
		return MinResults
	}
	if n > MaxResults {
		return MaxResults
	}
	return n
}

// ClampSkip forces skip into [0, MaxSkip].
func ClampSkip(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxSkip {
		return MaxSkip
	}
	return n
}
