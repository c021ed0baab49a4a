package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/errors"
)

func TestValidateText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"valid", "find auth middleware", false},
		{"empty", "", true},
		{"whitespace only", "   \t\n ", true},
		{"too long", strings.Repeat("a", 1001), true},
		{"too many words", strings.Repeat("word ", 101), true},
		{"at char limit", strings.Repeat("a", 1000), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateText(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.KindValidation, errors.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeDangerousPatterns(t *testing.T) {
	tests := []struct {
		input   string
		removed string
	}{
		{`search <script>alert(1)</script> handler`, "script"},
		{`javascript:void(0) redirect`, "javascript:"},
		{`users; DROP TABLE accounts`, "DROP TABLE"},
		{`DELETE FROM sessions where`, "DELETE FROM"},
		{`a UNION SELECT password`, "UNION SELECT"},
		{`render {{user.name}} template`, "{{"},
		{`interpolate ${secret} here`, "${"},
	}
	for _, tt := range tests {
		sanitized, changed := Sanitize(tt.input)
		assert.True(t, changed, "input %q", tt.input)
		assert.NotContains(t, strings.ToLower(sanitized), strings.ToLower(tt.removed))
	}

	clean, changed := Sanitize("plain   query  text")
	assert.False(t, changed)
	assert.Equal(t, "plain query text", clean)
}

func TestClampResults(t *testing.T) {
	assert.Equal(t, DefaultResults, ClampResults(0))
	assert.Equal(t, MinResults, ClampResults(-5))
	assert.Equal(t, MaxResults, ClampResults(500))
	assert.Equal(t, 15, ClampResults(15))

	assert.Equal(t, 0, ClampSkip(-1))
	assert.Equal(t, MaxSkip, ClampSkip(99999))
	assert.Equal(t, 30, ClampSkip(30))
}

func TestExtractExactTerms(t *testing.T) {
	terms := ExtractExactTerms(`find "rate limiter" calling NewClient( with code 429 and "rate limiter"`)

	assert.Equal(t, []string{"rate limiter", "429", "NewClient"}, terms)
}

func TestExtractExactTermsEmpty(t *testing.T) {
	assert.Empty(t, ExtractExactTerms("plain text query"))
}

func TestClassifyIntent(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		text string
		want Intent
	}{
		{"fix nil pointer panic in handler", IntentDebug},
		{"ERR_CONNECTION_RESET on startup", IntentDebug},
		{"write unit tests for the parser", IntentTest},
		{"refactor the config loader to remove duplication", IntentRefactor},
		{"add docstring to the cache package", IntentDocument},
		{"how does the retry loop work", IntentUnderstand},
		{"implement pagination for search results", IntentImplement},
		{"completely unrelated gibberish", IntentUnderstand},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.text), "text %q", tt.text)
	}
}

func TestRewriteVariants(t *testing.T) {
	r := NewRewriter()

	variants := r.Rewrite("parseConfig function")
	require.NotEmpty(t, variants)
	assert.Equal(t, "parseConfig function", variants[0])
	assert.LessOrEqual(t, len(variants), MaxVariants)
	assert.Contains(t, variants, "parse config function")

	// Synonym substitution appears in some variant.
	joined := strings.Join(variants, " | ")
	assert.True(t, strings.Contains(joined, "func") || strings.Contains(joined, "method"))
}

func TestRewriteImportPath(t *testing.T) {
	r := NewRewriter(WithMaxVariants(4))
	variants := r.Rewrite("usage of github.com/acme/widget")

	joined := strings.Join(variants, " | ")
	assert.Contains(t, joined, "widget")
}

func TestRewriteDeduplicates(t *testing.T) {
	r := NewRewriter()
	variants := r.Rewrite("config")

	seen := map[string]bool{}
	for _, v := range variants {
		assert.False(t, seen[v], "duplicate variant %q", v)
		seen[v] = true
	}
}

func TestBuildFilterEscaping(t *testing.T) {
	filter := BuildFilter("", "", []string{"foo') or 1 eq 1"})

	assert.Contains(t, filter, "foo'') or 1 eq 1")
	assert.NotContains(t, filter, "'foo')")
}

func TestBuildFilterComposition(t *testing.T) {
	filter := BuildFilter("acme/api", "go", []string{"NewClient"})

	assert.Contains(t, filter, "repository eq 'acme/api'")
	assert.Contains(t, filter, "language eq 'go'")
	assert.Contains(t, filter, "search.ismatch('NewClient'")
	assert.Equal(t, 2, strings.Count(filter, " and "))

	assert.Empty(t, BuildFilter("", "", nil))
}

func TestShapeEndToEnd(t *testing.T) {
	s := NewShaper()

	shaped, err := s.Shape(Request{
		Text:       `implement "magic link" login NewSession(`,
		Language:   "go",
		Repository: "acme's repo",
		MaxResults: 100,
		Skip:       -3,
	})
	require.NoError(t, err)

	assert.Equal(t, IntentImplement, shaped.Intent)
	assert.False(t, shaped.IntentProvided)
	assert.Equal(t, MaxResults, shaped.MaxResults)
	assert.Equal(t, 0, shaped.Skip)
	assert.Contains(t, shaped.ExactTerms, "magic link")
	assert.Contains(t, shaped.ExactTerms, "NewSession")
	assert.Contains(t, shaped.Filter, "repository eq 'acme''s repo'")
	assert.NotEmpty(t, shaped.Variants)
}

func TestShapeIntentOverride(t *testing.T) {
	s := NewShaper()

	shaped, err := s.Shape(Request{Text: "fix broken test", Intent: "document"})
	require.NoError(t, err)
	assert.Equal(t, IntentDocument, shaped.Intent)
	assert.True(t, shaped.IntentProvided)

	_, err = s.Shape(Request{Text: "anything", Intent: "bogus"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestShapeRejectsEmptyAfterSanitize(t *testing.T) {
	s := NewShaper()
	_, err := s.Shape(Request{Text: "{{ }}"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}
