package query

import (
	"github.com/Aman-CERP/amanrag/internal/errors"
)

// Shaper runs the full shaping pipeline: validate, sanitize, extract
// exact terms, classify intent, rewrite, and compose the filter.
type Shaper struct {
	classifier *Classifier
	rewriter   *Rewriter
}

// NewShaper creates a shaper with default classifier and rewriter.
func NewShaper(opts ...RewriterOption) *Shaper {
	return &Shaper{
		classifier: NewClassifier(),
		rewriter:   NewRewriter(opts...),
	}
}

// Shape validates and enriches a raw request.
func (s *Shaper) Shape(req Request) (*ShapedQuery, error) {
	if err := ValidateText(req.Text); err != nil {
		return nil, err
	}
	if req.Intent != "" && !ValidIntent(req.Intent) {
		return nil, errors.Validation("intent", "unknown intent: "+req.Intent)
	}

	normalized, sanitized := Sanitize(req.Text)
	if normalized == "" {
		return nil, errors.Validation("query", "query is empty after sanitization")
	}

	exactTerms := ExtractExactTerms(normalized)
	exactTerms = dedupe(append(exactTerms, req.ExactTerms...))

	intent := Intent(req.Intent)
	provided := req.Intent != ""
	if !provided {
		intent = s.classifier.Classify(normalized)
	}

	return &ShapedQuery{
		Original:       req.Text,
		Normalized:     normalized,
		Intent:         intent,
		IntentProvided: provided,
		Variants:       s.rewriter.Rewrite(normalized),
		ExactTerms:     exactTerms,
		Filter:         BuildFilter(req.Repository, req.Language, exactTerms),
		Language:       req.Language,
		Repository:     req.Repository,
		MaxResults:     ClampResults(req.MaxResults),
		Skip:           ClampSkip(req.Skip),
		Sanitized:      sanitized,
	}, nil
}
