// Package search orchestrates hybrid retrieval: BM25, vector, and
// semantic sub-queries fanned out in parallel, fused with reciprocal
// rank fusion, deduplicated, and paginated.
package search

import (
	"time"

	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains.
const DefaultRRFConstant = 60

// DefaultTimeout bounds one retrieval round trip.
const DefaultTimeout = 30 * time.Second

// Source names for fusion lists and explanations.
const (
	SourceBM25     = "bm25"
	SourceVector   = "vector"
	SourceSemantic = "semantic"
)

// Options tune one retrieval call.
type Options struct {
	// DisableCache bypasses the result cache for this call.
	DisableCache bool
	// BM25Only skips vector and semantic sub-queries.
	BM25Only bool
	// Timeout bounds the whole retrieval; DefaultTimeout when zero.
	Timeout time.Duration
}

// Item is one retrieved chunk with fusion metadata. The ranker rewrites
// Relevance; Rank is assigned after ranking.
type Item struct {
	ID              string              `json:"id"`
	Repository      string              `json:"repository,omitempty"`
	FilePath        string              `json:"file_path"`
	Language        string              `json:"language,omitempty"`
	StartLine       int                 `json:"start_line"`
	EndLine         int                 `json:"end_line"`
	FunctionName    string              `json:"function_name,omitempty"`
	ClassName       string              `json:"class_name,omitempty"`
	Content         string              `json:"content,omitempty"`
	Signature       string              `json:"signature,omitempty"`
	Docstring       string              `json:"docstring,omitempty"`
	Imports         []string            `json:"imports,omitempty"`
	CalledFunctions []string            `json:"called_functions,omitempty"`
	LastModified    time.Time           `json:"last_modified,omitzero"`
	Highlights      map[string][]string `json:"highlights,omitempty"`
	Captions        []string            `json:"captions,omitempty"`

	// Relevance is the fused score normalized to [0,1].
	Relevance float64 `json:"relevance"`
	// Rank is the 1-indexed position in the final response.
	Rank int `json:"rank"`

	// Fusion provenance, consumed by the explainer.
	BM25Score     float64  `json:"-"`
	VectorScore   float64  `json:"-"`
	RerankerScore float64  `json:"-"`
	BM25Rank      int      `json:"-"`
	VectorRank    int      `json:"-"`
	SemanticRank  int      `json:"-"`
	Sources       []string `json:"-"`
}

// Timings reports per-stage latency in milliseconds.
type Timings struct {
	BM25Ms     int64 `json:"bm25_ms"`
	VectorMs   int64 `json:"vector_ms"`
	SemanticMs int64 `json:"semantic_ms"`
	TotalMs    int64 `json:"total_ms"`
}

// Result is one retrieval response page.
type Result struct {
	Items        []*Item  `json:"items"`
	Total        int64    `json:"total"`
	Count        int      `json:"count"`
	HasMore      bool     `json:"has_more"`
	NextSkip     int      `json:"next_skip,omitempty"`
	Backend      string   `json:"backend"`
	SemanticUsed bool     `json:"semantic_used"`
	CacheHit     bool     `json:"cache_hit"`
	Timings      Timings  `json:"timings"`
	Answers      []string `json:"answers,omitempty"`
}

// itemFromHit converts a service hit to an Item, sanitizing highlight
// snippets and captions. The service score is filed under the source
// that produced the hit; the reranker score travels separately.
func itemFromHit(hit *searchsvc.SearchHit, source string) *Item {
	item := &Item{
		ID:              hit.ID,
		Repository:      hit.Repository,
		FilePath:        hit.FilePath,
		Language:        hit.Language,
		StartLine:       hit.StartLine,
		EndLine:         hit.EndLine,
		FunctionName:    hit.FunctionName,
		ClassName:       hit.ClassName,
		Content:         hit.Content,
		Signature:       hit.Signature,
		Docstring:       hit.Docstring,
		Imports:         hit.Imports,
		CalledFunctions: hit.CalledFunctions,
		LastModified:    hit.LastModified,
		RerankerScore:   hit.RerankerScore,
	}
	switch source {
	case SourceBM25:
		item.BM25Score = hit.Score
	case SourceVector:
		item.VectorScore = hit.Score
	}
	if len(hit.Highlights) > 0 {
		item.Highlights = make(map[string][]string, len(hit.Highlights))
		for field, snippets := range hit.Highlights {
			clean := make([]string, len(snippets))
			for i, s := range snippets {
				clean[i] = StripHTML(s)
			}
			item.Highlights[field] = clean
		}
	}
	for _, c := range hit.Captions {
		item.Captions = append(item.Captions, StripHTML(c.Text))
	}
	return item
}
