package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrag/internal/cache"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/query"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// CacheScope prefixes retrieval cache keys so admin mutations can
// invalidate exactly this slice of the cache.
const CacheScope = "search"

// maxFetch caps how many candidates one sub-query pulls before fusion.
// It bounds the pageable window: pages past it come back empty with
// has_more=false rather than forcing unbounded candidate fetches.
const maxFetch = 1000

// Backend is the slice of the search client the retriever depends on.
type Backend interface {
	Search(ctx context.Context, index string, req *searchsvc.SearchRequest) (*searchsvc.SearchResponse, error)
}

// Weights are per-source fusion weights.
type Weights struct {
	BM25     float64
	Vector   float64
	Semantic float64
}

// DefaultWeights favors lexical evidence slightly; vector recall is
// broader but noisier on code.
func DefaultWeights() Weights {
	return Weights{BM25: 1.0, Vector: 0.9, Semantic: 0.8}
}

// Retriever runs the hybrid retrieval pipeline.
type Retriever struct {
	backend        Backend
	embedder       embed.Provider
	cache          *cache.Cache
	fusion         *RRFFusion
	weights        Weights
	index          string
	semanticConfig string
	timeout        time.Duration
	logger         *slog.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithCache enables result memoization.
func WithCache(c *cache.Cache) RetrieverOption {
	return func(r *Retriever) { r.cache = c }
}

// WithSemanticConfiguration enables the semantic sub-query using the
// named server-side configuration.
func WithSemanticConfiguration(name string) RetrieverOption {
	return func(r *Retriever) { r.semanticConfig = name }
}

// WithWeights overrides the fusion weights.
func WithWeights(w Weights) RetrieverOption {
	return func(r *Retriever) { r.weights = w }
}

// WithRRFConstant overrides the fusion smoothing constant.
func WithRRFConstant(k int) RetrieverOption {
	return func(r *Retriever) { r.fusion = NewRRFFusion(k) }
}

// WithTimeout overrides the default per-query timeout.
func WithTimeout(d time.Duration) RetrieverOption {
	return func(r *Retriever) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRetriever creates a retriever over a backend and embedder. The
// embedder may be the disabled provider; retrieval then stays keyword-only.
func NewRetriever(backend Backend, embedder embed.Provider, index string, opts ...RetrieverOption) (*Retriever, error) {
	if backend == nil {
		return nil, fmt.Errorf("search backend is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required (use the disabled provider to opt out)")
	}
	if index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	r := &Retriever{
		backend:  backend,
		embedder: embedder,
		fusion:   NewRRFFusion(DefaultRRFConstant),
		weights:  DefaultWeights(),
		index:    index,
		timeout:  DefaultTimeout,
		logger:   slog.Default().With("component", "search"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Search runs the hybrid pipeline for a shaped query.
// BM25 failure is fatal; vector and semantic failures downgrade the
// response and set the backend marker accordingly.
func (r *Retriever) Search(ctx context.Context, shaped *query.ShapedQuery, opts Options) (*Result, error) {
	start := time.Now()

	key := r.cacheKey(shaped, opts)
	if r.cache != nil && !opts.DisableCache {
		if cached, ok := r.cache.Get(key); ok {
			result := cached.(*Result)
			copied := *result
			copied.CacheHit = true
			return &copied, nil
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetch := shaped.Skip + shaped.MaxResults*2
	if fetch > maxFetch {
		fetch = maxFetch
	}

	useVector := !opts.BM25Only && r.embedder.Available(ctx)
	useSemantic := !opts.BM25Only && r.semanticConfig != ""

	var (
		bm25Resp, vecResp, semResp *searchsvc.SearchResponse
		vecErr, semErr             error
		timings                    Timings
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.Now()
		var err error
		bm25Resp, err = r.backend.Search(gctx, r.index, r.bm25Request(shaped, fetch))
		timings.BM25Ms = time.Since(t).Milliseconds()
		if err != nil {
			return fmt.Errorf("keyword search: %w", err)
		}
		return nil
	})
	if useVector {
		g.Go(func() error {
			t := time.Now()
			req, err := r.vectorRequest(gctx, shaped, fetch)
			if err == nil {
				vecResp, err = r.backend.Search(gctx, r.index, req)
			}
			timings.VectorMs = time.Since(t).Milliseconds()
			vecErr = err
			return nil // vector failure downgrades, never aborts
		})
	}
	if useSemantic {
		g.Go(func() error {
			t := time.Now()
			semResp, semErr = r.backend.Search(gctx, r.index, r.semanticRequest(shaped, fetch))
			timings.SemanticMs = time.Since(t).Milliseconds()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if vecErr != nil {
		r.logger.Warn("vector search failed, degrading to keyword results", "error", vecErr)
	}
	if semErr != nil {
		r.logger.Warn("semantic search failed, continuing without reranker", "error", semErr)
	}

	result := r.assemble(shaped, bm25Resp, vecResp, semResp, vecErr, semErr)
	timings.TotalMs = time.Since(start).Milliseconds()
	result.Timings = timings

	if r.cache != nil && !opts.DisableCache {
		r.cache.Set(key, result)
	}
	return result, nil
}

// assemble fuses the sub-query responses into one ordered page.
func (r *Retriever) assemble(shaped *query.ShapedQuery, bm25Resp, vecResp, semResp *searchsvc.SearchResponse, vecErr, semErr error) *Result {
	items := make(map[string]*Item)
	collect := func(resp *searchsvc.SearchResponse, source string) []string {
		if resp == nil {
			return nil
		}
		ids := make([]string, 0, len(resp.Value))
		for i := range resp.Value {
			hit := &resp.Value[i]
			ids = append(ids, hit.ID)
			existing, ok := items[hit.ID]
			if !ok {
				items[hit.ID] = itemFromHit(hit, source)
				continue
			}
			// Merge scores from later sources into the first-seen item.
			switch source {
			case SourceVector:
				existing.VectorScore = hit.Score
			case SourceSemantic:
				if hit.RerankerScore > existing.RerankerScore {
					existing.RerankerScore = hit.RerankerScore
				}
				for _, c := range hit.Captions {
					existing.Captions = append(existing.Captions, StripHTML(c.Text))
				}
			}
		}
		return ids
	}

	lists := []RankedList{{Source: SourceBM25, Weight: r.weights.BM25, IDs: collect(bm25Resp, SourceBM25)}}
	if vecResp != nil {
		lists = append(lists, RankedList{Source: SourceVector, Weight: r.weights.Vector, IDs: collect(vecResp, SourceVector)})
	}
	if semResp != nil {
		lists = append(lists, RankedList{Source: SourceSemantic, Weight: r.weights.Semantic, IDs: collect(semResp, SourceSemantic)})
	}

	ordered, scores := r.fusion.Fuse(lists)
	relevance := NormalizeScores(scores)

	// De-duplicate on (file_path, start_line); fusion order already puts
	// the strongest entry first.
	type location struct {
		file string
		line int
	}
	seen := make(map[location]struct{}, len(ordered))
	deduped := make([]*Item, 0, len(ordered))
	for _, id := range ordered {
		item, ok := items[id]
		if !ok {
			continue
		}
		loc := location{file: item.FilePath, line: item.StartLine}
		if _, dup := seen[loc]; dup {
			continue
		}
		seen[loc] = struct{}{}

		fs := scores[id]
		item.Relevance = relevance[id]
		item.Sources = fs.sources
		item.BM25Rank = fs.ranks[SourceBM25]
		item.VectorRank = fs.ranks[SourceVector]
		item.SemanticRank = fs.ranks[SourceSemantic]
		deduped = append(deduped, item)
	}

	total := int64(len(deduped))
	if bm25Resp != nil && bm25Resp.Count > total {
		total = bm25Resp.Count
	}

	// window is what fusion can actually serve. has_more is computed
	// against it, not the server-side total, so a client following
	// next_skip always reaches has_more=false even when total exceeds
	// the fetched candidates.
	window := len(deduped)
	page := deduped
	if shaped.Skip < window {
		page = page[shaped.Skip:]
	} else {
		page = nil
	}
	if len(page) > shaped.MaxResults {
		page = page[:shaped.MaxResults]
	}
	for i, item := range page {
		item.Rank = i + 1
	}

	backend := "hybrid"
	if vecResp == nil || vecErr != nil {
		backend = "basic"
	}
	result := &Result{
		Items:        page,
		Total:        total,
		Count:        len(page),
		HasMore:      shaped.Skip+len(page) < window,
		Backend:      backend,
		SemanticUsed: semResp != nil && semErr == nil,
	}
	if result.HasMore {
		result.NextSkip = shaped.Skip + len(page)
	}
	if semResp != nil {
		for _, a := range semResp.Answers {
			result.Answers = append(result.Answers, StripHTML(a.Text))
		}
	}
	return result
}

// bm25Request builds the lexical sub-query.
func (r *Retriever) bm25Request(shaped *query.ShapedQuery, fetch int) *searchsvc.SearchRequest {
	return &searchsvc.SearchRequest{
		Search:           shaped.Normalized,
		Filter:           shaped.Filter,
		Top:              fetch,
		Count:            true,
		QueryType:        "simple",
		Highlight:        "content,signature",
		HighlightPreTag:  "<em>",
		HighlightPostTag: "</em>",
	}
}

// vectorRequest embeds the query and its first rewrite and issues both
// as k-NN sub-queries in one request.
func (r *Retriever) vectorRequest(ctx context.Context, shaped *query.ShapedQuery, fetch int) (*searchsvc.SearchRequest, error) {
	texts := []string{shaped.Normalized}
	for _, v := range shaped.Variants[1:] {
		texts = append(texts, v)
		break // one rewrite is enough; more adds latency, not recall
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(errors.KindDependencyUnavailable, "embed query", err)
	}

	req := &searchsvc.SearchRequest{
		Filter: shaped.Filter,
		Top:    fetch,
	}
	for _, vec := range vectors {
		req.VectorQueries = append(req.VectorQueries, searchsvc.VectorQuery{
			Kind:   "vector",
			Vector: vec,
			Fields: "content_vector",
			K:      fetch,
		})
	}
	return req, nil
}

// semanticRequest builds the server-side reranker sub-query.
func (r *Retriever) semanticRequest(shaped *query.ShapedQuery, fetch int) *searchsvc.SearchRequest {
	return &searchsvc.SearchRequest{
		Search:         shaped.Normalized,
		Filter:         shaped.Filter,
		Top:            fetch,
		QueryType:      "semantic",
		SemanticConfig: r.semanticConfig,
		Captions:       "extractive",
		Answers:        "extractive",
	}
}

// cacheKey hashes the normalized query, filter, and paging options.
func (r *Retriever) cacheKey(shaped *query.ShapedQuery, opts Options) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%d|%t",
		shaped.Normalized, shaped.Filter, shaped.MaxResults, shaped.Skip, opts.BM25Only))
	return CacheScope + ":" + hex.EncodeToString(sum[:])
}
