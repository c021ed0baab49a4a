package query

import "regexp"

var (
	quotedPhrase = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	numericTerm  = regexp.MustCompile(`\b\d[\d._]*\b`)
	callPattern  = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
)

// ExtractExactTerms pulls exact-match candidates out of query text:
// quoted phrases, numeric literals, and name( call patterns. Terms are
// deduped preserving first-seen order.
func ExtractExactTerms(text string) []string {
	var terms []string

	for _, m := range quotedPhrase.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			terms = append(terms, m[1])
		} else if m[2] != "" {
			terms = append(terms, m[2])
		}
	}
	terms = append(terms, numericTerm.FindAllString(text, -1)...)
	for _, m := range callPattern.FindAllStringSubmatch(text, -1) {
		terms = append(terms, m[1])
	}

	return dedupe(terms)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
