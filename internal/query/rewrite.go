package query

import (
	"regexp"
	"strings"
)

// codeSynonyms maps natural-language terms to code vocabulary. The
// rewriter substitutes at most one synonym set per variant; vocabulary
// mismatch between queries and identifiers is the main recall gap.
var codeSynonyms = map[string][]string{
	"function":  {"func", "method", "def"},
	"method":    {"func", "function"},
	"class":     {"type", "struct"},
	"error":     {"err", "exception", "failure"},
	"delete":    {"remove", "drop"},
	"create":    {"new", "make", "init"},
	"fetch":     {"get", "load", "retrieve"},
	"config":    {"configuration", "settings", "options"},
	"auth":      {"authentication", "authorization", "login"},
	"test":      {"spec", "check", "assert"},
	"parse":     {"decode", "unmarshal", "deserialize"},
	"serialize": {"encode", "marshal"},
	"database":  {"db", "storage", "store"},
	"request":   {"req", "call"},
	"response":  {"resp", "reply", "result"},
}

var (
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	importPath    = regexp.MustCompile(`\b[\w-]+(?:/[\w.-]+)+\b`)
)

// Rewriter generates query variants for recall.
type Rewriter struct {
	maxVariants int
}

// RewriterOption configures the rewriter.
type RewriterOption func(*Rewriter)

// WithMaxVariants caps variant output including the original.
func WithMaxVariants(n int) RewriterOption {
	return func(r *Rewriter) {
		if n >= 1 {
			r.maxVariants = n
		}
	}
}

// NewRewriter creates a rewriter with the default variant cap.
func NewRewriter(opts ...RewriterOption) *Rewriter {
	r := &Rewriter{maxVariants: MaxVariants}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite returns the original query plus up to maxVariants-1 rewrites:
// identifier splits (camelCase, snake_case), synonym substitutions, and
// import-path tail expansion. Duplicates are dropped.
func (r *Rewriter) Rewrite(text string) []string {
	variants := []string{text}
	seen := map[string]struct{}{text: {}}

	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || len(variants) >= r.maxVariants {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
	}

	add(splitIdentifiers(text))
	for _, v := range synonymVariants(text) {
		add(v)
	}
	add(expandImportPaths(text))

	return variants
}

// splitIdentifiers breaks camelCase and snake_case tokens into words.
func splitIdentifiers(text string) string {
	split := camelBoundary.ReplaceAllString(text, "$1 $2")
	split = strings.ReplaceAll(split, "_", " ")
	split = strings.Join(strings.Fields(split), " ")
	if strings.EqualFold(split, text) {
		return ""
	}
	return strings.ToLower(split)
}

// synonymVariants substitutes one synonym set per variant, first match
// per word.
func synonymVariants(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	var out []string
	for i, word := range words {
		syns, ok := codeSynonyms[word]
		if !ok {
			continue
		}
		for _, syn := range syns {
			replaced := make([]string, len(words))
			copy(replaced, words)
			replaced[i] = syn
			out = append(out, strings.Join(replaced, " "))
		}
		break
	}
	return out
}

// expandImportPaths appends the final segment of path-like tokens so
// "github.com/acme/widget" also matches bare "widget".
func expandImportPaths(text string) string {
	paths := importPath.FindAllString(text, -1)
	if len(paths) == 0 {
		return ""
	}
	var tails []string
	for _, p := range paths {
		segs := strings.Split(p, "/")
		tail := segs[len(segs)-1]
		if tail != "" && !strings.Contains(text, " "+tail+" ") {
			tails = append(tails, tail)
		}
	}
	if len(tails) == 0 {
		return ""
	}
	return text + " " + strings.Join(tails, " ")
}
