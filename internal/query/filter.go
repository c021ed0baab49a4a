package query

import (
	"fmt"
	"strings"
)

// exactTermFields are the index fields an exact term is matched against.
const exactTermFields = "content,function_name,class_name,signature"

// BuildFilter composes the filter expression from repository, language,
// and exact terms. Values are escaped by doubling embedded single quotes;
// raw user text never reaches the filter unescaped.
func BuildFilter(repository, language string, exactTerms []string) string {
	var parts []string

	if repository != "" {
		parts = append(parts, fmt.Sprintf("repository eq '%s'", escapeFilterValue(repository)))
	}
	if language != "" {
		parts = append(parts, fmt.Sprintf("language eq '%s'", escapeFilterValue(language)))
	}
	for _, term := range exactTerms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(
			"search.ismatch('%s', '%s', 'simple', 'all')",
			escapeFilterValue(term), exactTermFields))
	}

	return strings.Join(parts, " and ")
}

// escapeFilterValue doubles single quotes per the filter DSL's string
// literal rules.
func escapeFilterValue(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
