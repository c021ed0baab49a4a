package query

import (
	"regexp"
	"strings"
)

// Intent keyword tables. A query scores one point per matched keyword;
// highest score wins, ties resolved by table order below.
var intentKeywords = map[Intent][]string{
	IntentDebug: {
		"bug", "debug", "error", "exception", "crash", "panic", "fix",
		"broken", "fails", "failure", "stack trace", "traceback", "npe",
		"nil pointer", "segfault", "why does", "not working",
	},
	IntentTest: {
		"test", "tests", "testing", "unit test", "integration test",
		"mock", "stub", "fixture", "assert", "coverage", "e2e",
	},
	IntentRefactor: {
		"refactor", "rename", "restructure", "extract", "simplify",
		"clean up", "cleanup", "deduplicate", "move", "split up",
		"technical debt", "optimize",
	},
	IntentDocument: {
		"document", "documentation", "docs", "docstring", "comment",
		"readme", "changelog", "describe", "annotate",
	},
	IntentUnderstand: {
		"understand", "explain", "how does", "what is", "what does",
		"where is", "why is", "walk through", "overview", "architecture",
		"flow", "meaning",
	},
	IntentImplement: {
		"implement", "add", "create", "build", "write", "new feature",
		"support for", "example", "how to", "generate", "make",
	},
}

// intentOrder fixes tie-breaking: more specific intents first.
var intentOrder = []Intent{
	IntentDebug, IntentTest, IntentRefactor,
	IntentDocument, IntentUnderstand, IntentImplement,
}

var errorCodeToken = regexp.MustCompile(`(?i)\b(ERR_\w+|E\d{4,5}|\w+Exception|\w+Error)\b`)

// Classifier maps query text to an intent using keyword rules.
type Classifier struct{}

// NewClassifier creates a rule-based intent classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the best-matching intent for the query text.
// Unmatched queries default to understand.
func (c *Classifier) Classify(text string) Intent {
	lowered := strings.ToLower(text)

	scores := make(map[Intent]int, len(intentOrder))
	for intent, keywords := range intentKeywords {
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				scores[intent]++
			}
		}
	}
	// Error-code looking tokens are a strong debug signal.
	if errorCodeToken.MatchString(text) {
		scores[IntentDebug] += 2
	}

	best := IntentUnderstand
	bestScore := 0
	for _, intent := range intentOrder {
		if scores[intent] > bestScore {
			best = intent
			bestScore = scores[intent]
		}
	}
	return best
}
