package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/feedback"
	"github.com/Aman-CERP/amanrag/internal/query"
	"github.com/Aman-CERP/amanrag/internal/rank"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// maxGenerationExamples caps how many retrieved chunks ground a prompt.
const maxGenerationExamples = 5

// GenerateCodeParams is the input of generate_code.
type GenerateCodeParams struct {
	Description string `json:"description"`
	Language    string `json:"language,omitempty"`
	Repository  string `json:"repository,omitempty"`
	MaxExamples int    `json:"max_examples,omitempty"`
}

// GenerationExample is one retrieved grounding chunk.
type GenerationExample struct {
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	Signature string  `json:"signature,omitempty"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
}

// GenerateCode retrieves grounding examples for a description and
// assembles a generation prompt around them. The model call itself is the
// caller's responsibility; this tool provides the retrieval-augmented
// context.
func (s *Service) GenerateCode(ctx context.Context, params *GenerateCodeParams) (any, error) {
	if strings.TrimSpace(params.Description) == "" {
		return nil, errors.Validation("description", "a description of the code to generate is required")
	}
	maxExamples := params.MaxExamples
	if maxExamples <= 0 || maxExamples > maxGenerationExamples {
		maxExamples = maxGenerationExamples
	}

	shaped, err := s.deps.Shaper.Shape(query.Request{
		Text:       params.Description,
		Intent:     string(query.IntentImplement),
		Language:   params.Language,
		Repository: params.Repository,
		MaxResults: maxExamples,
	})
	if err != nil {
		return nil, err
	}
	result, err := s.deps.Retriever.Search(ctx, shaped, search.Options{})
	if err != nil {
		return nil, err
	}
	ranked := s.deps.Ranker.Rank(cloneItems(result.Items), rank.Context{
		Intent:     shaped.Intent,
		Repository: params.Repository,
	})

	examples := make([]GenerationExample, 0, maxExamples)
	for _, item := range ranked {
		if len(examples) == maxExamples {
			break
		}
		examples = append(examples, GenerationExample{
			FilePath:  item.FilePath,
			StartLine: item.StartLine,
			Signature: item.Signature,
			Content:   item.Content,
			Relevance: item.Relevance,
		})
	}

	return map[string]any{
		"description": params.Description,
		"language":    params.Language,
		"examples":    examples,
		"prompt":      buildGenerationPrompt(params.Description, params.Language, examples),
	}, nil
}

// buildGenerationPrompt renders the grounding examples into a prompt the
// caller can hand to a code model verbatim.
func buildGenerationPrompt(description, language string, examples []GenerationExample) string {
	var b strings.Builder
	b.WriteString("Write code for the following task")
	if language != "" {
		b.WriteString(" in " + language)
	}
	b.WriteString(":\n\n")
	b.WriteString(description)
	if len(examples) > 0 {
		b.WriteString("\n\nFollow the conventions of these examples from the codebase:\n")
		for i, ex := range examples {
			fmt.Fprintf(&b, "\n--- example %d: %s:%d ---\n%s\n", i+1, ex.FilePath, ex.StartLine, ex.Content)
		}
	}
	return b.String()
}

// AnalyzeContextParams is the input of analyze_context.
type AnalyzeContextParams struct {
	FilePath   string `json:"file_path"`
	Content    string `json:"content"`
	Repository string `json:"repository,omitempty"`
	MaxRelated int    `json:"max_related,omitempty"`
}

// ContextSymbol is one symbol found in the analyzed file.
type ContextSymbol struct {
	Name      string `json:"name"`
	Class     string `json:"class,omitempty"`
	Signature string `json:"signature,omitempty"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// AnalyzeContext chunks a supplied file and retrieves indexed code
// related to its strongest symbols, giving an agent the neighborhood of
// the file it is editing.
func (s *Service) AnalyzeContext(ctx context.Context, params *AnalyzeContextParams) (any, error) {
	if params.FilePath == "" {
		return nil, errors.Validation("file_path", "a file path is required")
	}
	if params.Content == "" {
		return nil, errors.Validation("content", "the file content is required")
	}
	maxRelated := params.MaxRelated
	if maxRelated <= 0 || maxRelated > query.MaxResults {
		maxRelated = 5
	}

	chunker := s.deps.NewChunker()
	defer closeAnalyzer(chunker)
	chunks, err := chunker.Chunk(ctx, &chunk.FileInput{
		Repository: params.Repository,
		Path:       params.FilePath,
		Content:    []byte(params.Content),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation, "analyze file", err)
	}

	var (
		symbols []ContextSymbol
		imports []string
		terms   []string
	)
	for _, ck := range chunks {
		if ck.FunctionName != "" {
			symbols = append(symbols, ContextSymbol{
				Name:      ck.FunctionName,
				Class:     ck.ClassName,
				Signature: ck.Signature,
				StartLine: ck.StartLine,
				EndLine:   ck.EndLine,
			})
			terms = append(terms, ck.FunctionName)
		}
		if len(imports) == 0 {
			imports = ck.Imports
		}
	}

	related, err := s.relatedChunks(ctx, params, terms, imports, maxRelated)
	if err != nil {
		// Analysis of the file itself is still useful offline.
		s.logger.Warn("related-code lookup failed", "file", params.FilePath, "error", err)
	}

	return map[string]any{
		"file_path": params.FilePath,
		"language":  languageOf(chunks, params.FilePath),
		"symbols":   symbols,
		"imports":   imports,
		"related":   related,
	}, nil
}

// relatedChunks searches the index for the file's symbols, excluding the
// file itself.
func (s *Service) relatedChunks(ctx context.Context, params *AnalyzeContextParams, terms, imports []string, limit int) ([]*search.Item, error) {
	if len(terms) == 0 && len(imports) == 0 {
		return nil, nil
	}
	text := strings.Join(terms, " ")
	if text == "" {
		text = strings.Join(imports, " ")
	}

	shaped, err := s.deps.Shaper.Shape(query.Request{
		Text:       text,
		Intent:     string(query.IntentUnderstand),
		Repository: params.Repository,
		MaxResults: limit + 1, // the file itself usually matches
	})
	if err != nil {
		return nil, err
	}
	result, err := s.deps.Retriever.Search(ctx, shaped, search.Options{})
	if err != nil {
		return nil, err
	}

	ranked := s.deps.Ranker.Rank(cloneItems(result.Items), rank.Context{
		Intent:      shaped.Intent,
		Repository:  params.Repository,
		CurrentFile: params.FilePath,
		Imports:     imports,
	})
	related := make([]*search.Item, 0, limit)
	for _, item := range ranked {
		if item.FilePath == params.FilePath {
			continue
		}
		related = append(related, item.Item)
		if len(related) == limit {
			break
		}
	}
	return related, nil
}

func languageOf(chunks []*chunk.Chunk, path string) string {
	if len(chunks) > 0 && chunks[0].Language != "" {
		return chunks[0].Language
	}
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

func closeAnalyzer(c chunk.Chunker) {
	if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
}

// SubmitFeedbackParams is the input of submit_feedback.
type SubmitFeedbackParams struct {
	QueryID string `json:"query_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// SubmitFeedback records a 1..5 rating for a recent query.
func (s *Service) SubmitFeedback(ctx context.Context, params *SubmitFeedbackParams) (any, error) {
	if params.Rating < 1 || params.Rating > 5 {
		return nil, errors.Validation("rating", "must be between 1 and 5")
	}
	event := feedback.Event{
		QueryID: params.QueryID,
		Kind:    feedback.KindRating,
		Rating:  params.Rating,
	}
	if record, ok := s.recentQuery(params.QueryID); ok {
		event.Intent = record.Intent
	}
	if params.Comment != "" {
		event.Context = map[string]string{"comment": params.Comment}
	}
	return s.recordFeedback(ctx, event)
}

// TrackClickParams is the input of track_search_click.
type TrackClickParams struct {
	QueryID string `json:"query_id"`
	DocID   string `json:"doc_id"`
	Rank    int    `json:"rank,omitempty"`
}

// TrackSearchClick records that a result was opened. The matched fields
// of the clicked document are attributed from the retained query record.
func (s *Service) TrackSearchClick(ctx context.Context, params *TrackClickParams) (any, error) {
	if params.DocID == "" {
		return nil, errors.Validation("doc_id", "the clicked document id is required")
	}
	event := feedback.Event{
		QueryID: params.QueryID,
		Kind:    feedback.KindClick,
		DocID:   params.DocID,
		Rank:    params.Rank,
	}
	if record, ok := s.recentQuery(params.QueryID); ok {
		event.Intent = record.Intent
		for _, item := range record.Items {
			if item.ID == params.DocID {
				event.Fields = matchedFieldsOf(item)
				if event.Rank == 0 {
					event.Rank = item.Rank
				}
				break
			}
		}
	}
	return s.recordFeedback(ctx, event)
}

// TrackOutcomeParams is the input of track_search_outcome.
type TrackOutcomeParams struct {
	QueryID string  `json:"query_id"`
	Outcome string  `json:"outcome"`
	Score   float64 `json:"score,omitempty"`
}

// TrackSearchOutcome records whether the query led to a completed task.
func (s *Service) TrackSearchOutcome(ctx context.Context, params *TrackOutcomeParams) (any, error) {
	switch params.Outcome {
	case feedback.OutcomeSuccess, feedback.OutcomeFailure, feedback.OutcomePartial:
	default:
		return nil, errors.Validation("outcome", "must be success, failure, or partial")
	}
	event := feedback.Event{
		QueryID: params.QueryID,
		Kind:    feedback.KindOutcome,
		Outcome: params.Outcome,
		Score:   params.Score,
	}
	if record, ok := s.recentQuery(params.QueryID); ok {
		event.Intent = record.Intent
	}
	return s.recordFeedback(ctx, event)
}

// recordFeedback persists one event through the store.
func (s *Service) recordFeedback(ctx context.Context, event feedback.Event) (any, error) {
	if event.QueryID == "" {
		return nil, errors.Validation("query_id", "a query_id is required")
	}
	if s.deps.Feedback == nil {
		return nil, errors.Unavailable("feedback store is not configured")
	}
	if err := s.deps.Feedback.Record(ctx, event); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "record feedback", err)
	}
	return map[string]any{"recorded": true, "kind": event.Kind}, nil
}
