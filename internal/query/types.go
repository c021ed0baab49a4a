// Package query turns raw search text into a shaped query: validated,
// sanitized, intent-classified, rewritten for recall, and paired with a
// safe filter expression.
package query

// Request limits. Oversized numeric params are clamped, oversized text is
// rejected.
const (
	MaxQueryChars = 1000
	MaxQueryWords = 100

	MinResults     = 1
	MaxResults     = 30
	DefaultResults = 10

	MaxSkip = 10_000

	// MaxVariants bounds rewriting output including the original.
	MaxVariants = 4
)

// Intent is the user's task class. It selects ranking field weights and
// rewriting strategy.
type Intent string

const (
	IntentImplement  Intent = "implement"
	IntentDebug      Intent = "debug"
	IntentUnderstand Intent = "understand"
	IntentRefactor   Intent = "refactor"
	IntentTest       Intent = "test"
	IntentDocument   Intent = "document"
)

// KnownIntents lists all valid intents.
var KnownIntents = []Intent{
	IntentImplement, IntentDebug, IntentUnderstand,
	IntentRefactor, IntentTest, IntentDocument,
}

// ValidIntent reports whether s names a known intent.
func ValidIntent(s string) bool {
	for _, i := range KnownIntents {
		if string(i) == s {
			return true
		}
	}
	return false
}

// Request is the raw search input before shaping.
type Request struct {
	Text       string
	Intent     string // optional; overrides classification
	Language   string
	Repository string
	ExactTerms []string
	MaxResults int
	Skip       int
}

// ShapedQuery is the validated, enriched form consumed by the retriever.
type ShapedQuery struct {
	// Original is the raw input text.
	Original string
	// Normalized is the sanitized, whitespace-collapsed text.
	Normalized string
	// Intent is the supplied or classified intent.
	Intent Intent
	// IntentProvided is true when the caller supplied the intent.
	IntentProvided bool
	// Variants are rewritten queries, original first, at most MaxVariants.
	Variants []string
	// ExactTerms are extracted plus caller-supplied terms, deduped in order.
	ExactTerms []string
	// Filter is the composed filter expression, "" when unfiltered.
	Filter string
	// Language and Repository echo the validated filter inputs.
	Language   string
	Repository string
	// MaxResults and Skip are clamped to their ranges.
	MaxResults int
	Skip       int
	// Sanitized is true when dangerous substrings were removed.
	Sanitized bool
}
