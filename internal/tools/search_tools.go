package tools

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/query"
	"github.com/Aman-CERP/amanrag/internal/rank"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// Detail levels for search responses.
const (
	DetailFull    = "full"
	DetailCompact = "compact"
	DetailUltra   = "ultra"
)

// DefaultSnippetLines bounds content in compact responses.
const DefaultSnippetLines = 10

// SearchCodeParams is the input of search_code and search_code_raw.
type SearchCodeParams struct {
	Query      string   `json:"query"`
	Intent     string   `json:"intent,omitempty"`
	Language   string   `json:"language,omitempty"`
	Repository string   `json:"repository,omitempty"`
	ExactTerms []string `json:"exact_terms,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
	Skip       int      `json:"skip,omitempty"`

	BM25Only     bool `json:"bm25_only,omitempty"`
	DisableCache bool `json:"disable_cache,omitempty"`

	DetailLevel         string `json:"detail_level,omitempty"`
	SnippetLines        int    `json:"snippet_lines,omitempty"`
	IncludeDependencies bool   `json:"include_dependencies,omitempty"`

	// Caller context for the contextual ranker.
	CurrentFile   string   `json:"current_file,omitempty"`
	WorkspaceRoot string   `json:"workspace_root,omitempty"`
	Imports       []string `json:"imports,omitempty"`
}

// SearchCodeResult is the search_code response payload.
type SearchCodeResult struct {
	QueryID           string         `json:"query_id"`
	Intent            string         `json:"intent"`
	IntentProvided    bool           `json:"intent_provided"`
	Sanitized         bool           `json:"sanitized,omitempty"`
	AppliedExactTerms bool           `json:"applied_exact_terms"`
	Items             []*search.Item `json:"items"`
	Total             int64          `json:"total"`
	Count             int            `json:"count"`
	HasMore           bool           `json:"has_more"`
	NextSkip          int            `json:"next_skip,omitempty"`
	Backend           string         `json:"backend"`
	SemanticUsed      bool           `json:"semantic_used"`
	CacheHit          bool           `json:"cache_hit"`
	Timings           search.Timings `json:"timings"`
	Answers           []string       `json:"answers,omitempty"`
}

// queryRecord is the retained state of one served query, kept for
// explain_ranking and click tracking.
type queryRecord struct {
	Intent string
	Items  []*rank.Ranked
}

// SearchCode runs the full pipeline: shape, retrieve, rank, page.
func (s *Service) SearchCode(ctx context.Context, params *SearchCodeParams) (any, error) {
	shaped, result, err := s.retrieve(ctx, params)
	if err != nil {
		return nil, err
	}

	// The ranker re-scores in place; the retriever may have served these
	// items from its cache, so rank copies.
	ranked := s.deps.Ranker.Rank(cloneItems(result.Items), rank.Context{
		Intent:        shaped.Intent,
		Repository:    params.Repository,
		CurrentFile:   params.CurrentFile,
		WorkspaceRoot: params.WorkspaceRoot,
		Imports:       params.Imports,
	})

	queryID := uuid.NewString()
	s.deps.Cache.Set(queryRecordScope+":"+queryID, &queryRecord{
		Intent: string(shaped.Intent),
		Items:  ranked,
	})

	items := make([]*search.Item, len(ranked))
	for i, r := range ranked {
		items[i] = r.Item
	}
	return s.respond(queryID, shaped, result, shapeItems(items, params)), nil
}

// SearchCodeRaw returns the fused retrieval page without contextual
// re-ranking. Intended for debugging relevance issues.
func (s *Service) SearchCodeRaw(ctx context.Context, params *SearchCodeParams) (any, error) {
	shaped, result, err := s.retrieve(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.respond(uuid.NewString(), shaped, result, shapeItems(result.Items, params)), nil
}

func (s *Service) retrieve(ctx context.Context, params *SearchCodeParams) (*query.ShapedQuery, *search.Result, error) {
	if params.DetailLevel != "" && params.DetailLevel != DetailFull &&
		params.DetailLevel != DetailCompact && params.DetailLevel != DetailUltra {
		return nil, nil, errors.Validation("detail_level", "must be full, compact, or ultra")
	}

	shaped, err := s.deps.Shaper.Shape(query.Request{
		Text:       params.Query,
		Intent:     params.Intent,
		Language:   params.Language,
		Repository: params.Repository,
		ExactTerms: params.ExactTerms,
		MaxResults: params.MaxResults,
		Skip:       params.Skip,
	})
	if err != nil {
		return nil, nil, err
	}

	result, err := s.deps.Retriever.Search(ctx, shaped, search.Options{
		DisableCache: params.DisableCache,
		BM25Only:     params.BM25Only,
	})
	if err != nil {
		return nil, nil, err
	}
	return shaped, result, nil
}

func (s *Service) respond(queryID string, shaped *query.ShapedQuery, result *search.Result, items []*search.Item) *SearchCodeResult {
	return &SearchCodeResult{
		QueryID:           queryID,
		Intent:            string(shaped.Intent),
		IntentProvided:    shaped.IntentProvided,
		Sanitized:         shaped.Sanitized,
		AppliedExactTerms: len(shaped.ExactTerms) > 0 && shaped.Filter != "",
		Items:             items,
		Total:             result.Total,
		Count:             result.Count,
		HasMore:           result.HasMore,
		NextSkip:          result.NextSkip,
		Backend:           result.Backend,
		SemanticUsed:      result.SemanticUsed,
		CacheHit:          result.CacheHit,
		Timings:           result.Timings,
		Answers:           result.Answers,
	}
}

// cloneItems makes value copies so ranking never mutates cache-resident
// items.
func cloneItems(items []*search.Item) []*search.Item {
	out := make([]*search.Item, len(items))
	for i, item := range items {
		copied := *item
		out[i] = &copied
	}
	return out
}

// shapeItems applies the requested detail level without mutating the
// cached originals.
func shapeItems(items []*search.Item, params *SearchCodeParams) []*search.Item {
	detail := params.DetailLevel
	if detail == "" || detail == DetailFull {
		return items
	}
	lines := params.SnippetLines
	if lines <= 0 {
		lines = DefaultSnippetLines
	}

	out := make([]*search.Item, len(items))
	for i, item := range items {
		copied := *item
		switch detail {
		case DetailCompact:
			copied.Content = truncateLines(copied.Content, lines)
			copied.Docstring = ""
			copied.Captions = nil
		case DetailUltra:
			copied.Content = ""
			copied.Docstring = ""
			copied.Highlights = nil
			copied.Captions = nil
		}
		if !params.IncludeDependencies {
			copied.Imports = nil
			copied.CalledFunctions = nil
		}
		out[i] = &copied
	}
	return out
}

func truncateLines(s string, n int) string {
	if s == "" || n <= 0 {
		return s
	}
	idx := 0
	for range n {
		next := strings.IndexByte(s[idx:], '\n')
		if next < 0 {
			return s
		}
		idx += next + 1
	}
	return s[:idx-1]
}

// ExplainRankingParams is the input of explain_ranking.
type ExplainRankingParams struct {
	QueryID string `json:"query_id"`
	Mode    string `json:"mode,omitempty"`
	DocID   string `json:"doc_id,omitempty"`
}

// ExplainRanking explains a recently served page by query_id.
func (s *Service) ExplainRanking(ctx context.Context, params *ExplainRankingParams) (any, error) {
	if params.QueryID == "" {
		return nil, errors.Validation("query_id", "a query_id from a recent search_code response is required")
	}
	record, ok := s.recentQuery(params.QueryID)
	if !ok {
		return nil, errors.NotFound("query " + params.QueryID + " (results expire with the cache)")
	}

	mode := params.Mode
	if mode == "" {
		mode = rank.ModeBasic
	}

	if params.DocID != "" {
		for _, item := range record.Items {
			if item.ID == params.DocID {
				return map[string]any{
					"query_id":    params.QueryID,
					"mode":        mode,
					"explanation": rank.Explain(item, mode),
				}, nil
			}
		}
		return nil, errors.NotFound("document " + params.DocID + " in query " + params.QueryID)
	}

	return map[string]any{
		"query_id":     params.QueryID,
		"mode":         mode,
		"explanations": rank.ExplainAll(record.Items, mode),
	}, nil
}

// PreviewQueryParams is the input of preview_query_processing.
type PreviewQueryParams struct {
	Query      string   `json:"query"`
	Intent     string   `json:"intent,omitempty"`
	Language   string   `json:"language,omitempty"`
	Repository string   `json:"repository,omitempty"`
	ExactTerms []string `json:"exact_terms,omitempty"`
}

// PreviewQueryProcessing runs only the shaping pipeline and reports every
// stage, so callers can see what a search would actually execute.
func (s *Service) PreviewQueryProcessing(ctx context.Context, params *PreviewQueryParams) (any, error) {
	shaped, err := s.deps.Shaper.Shape(query.Request{
		Text:       params.Query,
		Intent:     params.Intent,
		Language:   params.Language,
		Repository: params.Repository,
		ExactTerms: params.ExactTerms,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"original":        shaped.Original,
		"normalized":      shaped.Normalized,
		"sanitized":       shaped.Sanitized,
		"intent":          shaped.Intent,
		"intent_provided": shaped.IntentProvided,
		"variants":        shaped.Variants,
		"exact_terms":     shaped.ExactTerms,
		"filter":          shaped.Filter,
	}, nil
}

// recentQuery looks up a retained query record.
func (s *Service) recentQuery(queryID string) (*queryRecord, bool) {
	v, ok := s.deps.Cache.Get(queryRecordScope + ":" + queryID)
	if !ok {
		return nil, false
	}
	record, ok := v.(*queryRecord)
	return record, ok
}

// matchedFieldsOf returns the highlighted fields of a retained item,
// falling back to content. Feeds (intent, field) click aggregation.
func matchedFieldsOf(item *rank.Ranked) []string {
	if len(item.Highlights) == 0 {
		return []string{"content"}
	}
	fields := make([]string, 0, len(item.Highlights))
	for f := range item.Highlights {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
