package search

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/cache"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/query"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// fakeBackend routes sub-queries by request shape: vector queries, the
// semantic query type, and plain keyword requests.
type fakeBackend struct {
	mu       sync.Mutex
	bm25     *searchsvc.SearchResponse
	vector   *searchsvc.SearchResponse
	semantic *searchsvc.SearchResponse

	bm25Err     error
	vectorErr   error
	semanticErr error

	calls []string
}

func (f *fakeBackend) Search(_ context.Context, _ string, req *searchsvc.SearchRequest) (*searchsvc.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case len(req.VectorQueries) > 0:
		f.calls = append(f.calls, SourceVector)
		return f.vector, f.vectorErr
	case req.QueryType == "semantic":
		f.calls = append(f.calls, SourceSemantic)
		return f.semantic, f.semanticErr
	default:
		f.calls = append(f.calls, SourceBM25)
		return f.bm25, f.bm25Err
	}
}

// fakeEmbedder is always available and returns fixed-width vectors.
type fakeEmbedder struct{ embed.DisabledProvider }

func (fakeEmbedder) Available(context.Context) bool { return true }

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func hit(id, file string, line int, score float64) searchsvc.SearchHit {
	return searchsvc.SearchHit{
		Document: searchsvc.Document{ID: id, FilePath: file, StartLine: line, EndLine: line + 10},
		Score:    score,
	}
}

func respOf(count int64, hits ...searchsvc.SearchHit) *searchsvc.SearchResponse {
	return &searchsvc.SearchResponse{Count: count, Value: hits}
}

func shapedQuery(t *testing.T, text string, max, skip int) *query.ShapedQuery {
	t.Helper()
	shaped, err := query.NewShaper().Shape(query.Request{Text: text, MaxResults: max, Skip: skip})
	require.NoError(t, err)
	return shaped
}

func TestSearchHybridFusion(t *testing.T) {
	backend := &fakeBackend{
		bm25:   respOf(3, hit("a", "a.go", 1, 5), hit("b", "b.go", 1, 4), hit("c", "c.go", 1, 3)),
		vector: respOf(0, hit("b", "b.go", 1, 0.9), hit("d", "d.go", 1, 0.8)),
	}
	r, err := NewRetriever(backend, fakeEmbedder{}, "code-chunks")
	require.NoError(t, err)

	result, err := r.Search(context.Background(), shapedQuery(t, "auth middleware", 10, 0), Options{})
	require.NoError(t, err)

	assert.Equal(t, "hybrid", result.Backend)
	assert.False(t, result.SemanticUsed)
	require.NotEmpty(t, result.Items)
	// "b" appears in both lists and must lead.
	assert.Equal(t, "b", result.Items[0].ID)
	assert.Equal(t, 1, result.Items[0].Rank)
	assert.InDelta(t, 1.0, result.Items[0].Relevance, 1e-9)
	// Ranks strictly increase, relevance never increases.
	for i := 1; i < len(result.Items); i++ {
		assert.Equal(t, i+1, result.Items[i].Rank)
		assert.LessOrEqual(t, result.Items[i].Relevance, result.Items[i-1].Relevance)
	}
}

func TestSearchVectorFailureDegrades(t *testing.T) {
	backend := &fakeBackend{
		bm25:      respOf(2, hit("a", "a.go", 1, 5), hit("b", "b.go", 1, 4)),
		vectorErr: fmt.Errorf("ann index offline"),
	}
	r, err := NewRetriever(backend, fakeEmbedder{}, "code-chunks")
	require.NoError(t, err)

	result, err := r.Search(context.Background(), shapedQuery(t, "auth middleware", 10, 0), Options{})
	require.NoError(t, err)

	assert.Equal(t, "basic", result.Backend)
	assert.Len(t, result.Items, 2)
}

func TestSearchBM25FailureIsFatal(t *testing.T) {
	backend := &fakeBackend{bm25Err: fmt.Errorf("service down")}
	r, err := NewRetriever(backend, embed.NewDisabledProvider(), "code-chunks")
	require.NoError(t, err)

	_, err = r.Search(context.Background(), shapedQuery(t, "anything", 10, 0), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyword search")
}

func TestSearchDisabledEmbedderSkipsVector(t *testing.T) {
	backend := &fakeBackend{bm25: respOf(1, hit("a", "a.go", 1, 5))}
	r, err := NewRetriever(backend, embed.NewDisabledProvider(), "code-chunks")
	require.NoError(t, err)

	result, err := r.Search(context.Background(), shapedQuery(t, "logging setup", 10, 0), Options{})
	require.NoError(t, err)

	assert.Equal(t, "basic", result.Backend)
	assert.NotContains(t, backend.calls, SourceVector)
}

func TestSearchSemanticUsed(t *testing.T) {
	semHit := hit("a", "a.go", 1, 2)
	semHit.RerankerScore = 3.2
	semHit.Captions = []searchsvc.SemanticCaption{{Text: "<em>auth</em> flow"}}

	backend := &fakeBackend{
		bm25:     respOf(1, hit("a", "a.go", 1, 5)),
		semantic: &searchsvc.SearchResponse{Value: []searchsvc.SearchHit{semHit}, Answers: []searchsvc.SemanticCaption{{Text: "<b>answer</b>"}}},
	}
	r, err := NewRetriever(backend, embed.NewDisabledProvider(), "code-chunks",
		WithSemanticConfiguration("code-semantic"))
	require.NoError(t, err)

	result, err := r.Search(context.Background(), shapedQuery(t, "how auth works", 10, 0), Options{})
	require.NoError(t, err)

	assert.True(t, result.SemanticUsed)
	assert.Equal(t, []string{"answer"}, result.Answers)
	require.NotEmpty(t, result.Items)
	assert.Contains(t, result.Items[0].Captions, "auth flow")
}

func TestSearchSemanticFailureNonFatal(t *testing.T) {
	backend := &fakeBackend{
		bm25:        respOf(1, hit("a", "a.go", 1, 5)),
		semanticErr: fmt.Errorf("tier does not support semantic"),
	}
	r, err := NewRetriever(backend, embed.NewDisabledProvider(), "code-chunks",
		WithSemanticConfiguration("code-semantic"))
	require.NoError(t, err)

	result, err := r.Search(context.Background(), shapedQuery(t, "how auth works", 10, 0), Options{})
	require.NoError(t, err)
	assert.False(t, result.SemanticUsed)
	assert.Len(t, result.Items, 1)
}

func TestSearchDeduplicatesLocations(t *testing.T) {
	backend := &fakeBackend{
		bm25: respOf(2, hit("a1", "dup.go", 10, 5), hit("a2", "dup.go", 10, 4), hit("b", "b.go", 1, 3)),
	}
	r, err := NewRetriever(backend, embed.NewDisabledProvider(), "code-chunks")
	require.NoError(t, err)

	result, err := r.Search(context.Background(), shapedQuery(t, "dup check", 10, 0), Options{})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, item := range result.Items {
		key := fmt.Sprintf("%s:%d", item.FilePath, item.StartLine)
		assert.False(t, seen[key], "duplicate location %s", key)
		seen[key] = true
	}
	assert.Len(t, result.Items, 2)
}

func TestSearchPagination(t *testing.T) {
	var hits []searchsvc.SearchHit
	for i := 0; i < 25; i++ {
		hits = append(hits, hit(fmt.Sprintf("doc%02d", i), fmt.Sprintf("f%02d.go", i), 1, float64(100-i)))
	}
	backend := &fakeBackend{bm25: respOf(25, hits...)}
	r, err := NewRetriever(backend, embed.NewDisabledProvider(), "code-chunks")
	require.NoError(t, err)

	first, err := r.Search(context.Background(), shapedQuery(t, "function", 10, 0), Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, first.Count)
	assert.Equal(t, int64(25), first.Total)
	assert.True(t, first.HasMore)
	assert.Equal(t, 10, first.NextSkip)

	second, err := r.Search(context.Background(), shapedQuery(t, "function", 10, 10), Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, second.Count)

	firstIDs := map[string]bool{}
	for _, item := range first.Items {
		firstIDs[item.ID] = true
	}
	for _, item := range second.Items {
		assert.False(t, firstIDs[item.ID], "page overlap on %s", item.ID)
	}
}

// pagedBackend serves a fixed corpus honoring the requested top, the
// way the real service pages candidates.
type pagedBackend struct {
	corpus []searchsvc.SearchHit
	total  int64
}

func (p *pagedBackend) Search(_ context.Context, _ string, req *searchsvc.SearchRequest) (*searchsvc.SearchResponse, error) {
	n := req.Top
	if n > len(p.corpus) {
		n = len(p.corpus)
	}
	return &searchsvc.SearchResponse{Count: p.total, Value: p.corpus[:n]}, nil
}

func TestSearchPaginationTerminatesDeep(t *testing.T) {
	var corpus []searchsvc.SearchHit
	for i := 0; i < 500; i++ {
		corpus = append(corpus, hit(fmt.Sprintf("doc%03d", i), fmt.Sprintf("f%03d.go", i), 1, float64(1000-i)))
	}
	backend := &pagedBackend{corpus: corpus, total: 500}
	r, err := NewRetriever(backend, embed.NewDisabledProvider(), "code-chunks")
	require.NoError(t, err)

	// Starting deep in the result set, following next_skip must reach
	// has_more=false; every intermediate page advances the cursor.
	skip, pages := 150, 0
	var last *Result
	for {
		last, err = r.Search(context.Background(), shapedQuery(t, "function", 10, skip), Options{})
		require.NoError(t, err)
		if !last.HasMore {
			break
		}
		require.Greater(t, last.NextSkip, skip, "pagination must advance")
		skip = last.NextSkip
		pages++
		require.Less(t, pages, 100, "pagination never terminated")
	}
	assert.Equal(t, 490, skip)
	assert.Equal(t, 10, last.Count)
	assert.Zero(t, last.NextSkip)
}

func TestSearchSkipBeyondWindowEnds(t *testing.T) {
	var corpus []searchsvc.SearchHit
	for i := 0; i < 1200; i++ {
		corpus = append(corpus, hit(fmt.Sprintf("doc%04d", i), fmt.Sprintf("f%04d.go", i), 1, float64(2000-i)))
	}
	backend := &pagedBackend{corpus: corpus, total: 5000}
	r, err := NewRetriever(backend, embed.NewDisabledProvider(), "code-chunks")
	require.NoError(t, err)

	result, err := r.Search(context.Background(), shapedQuery(t, "function", 10, 1500), Options{})
	require.NoError(t, err)

	// Past the candidate window the page is empty and iteration stops.
	assert.Zero(t, result.Count)
	assert.False(t, result.HasMore)
	assert.Zero(t, result.NextSkip)
}

func TestSearchVectorOnlyHitScoresBySource(t *testing.T) {
	backend := &fakeBackend{
		bm25:   respOf(1, hit("a", "a.go", 1, 5)),
		vector: respOf(0, hit("v", "v.go", 1, 0.87)),
	}
	r, err := NewRetriever(backend, fakeEmbedder{}, "code-chunks")
	require.NoError(t, err)

	result, err := r.Search(context.Background(), shapedQuery(t, "vector recall", 10, 0), Options{})
	require.NoError(t, err)

	var vectorOnly *Item
	for _, item := range result.Items {
		if item.ID == "v" {
			vectorOnly = item
		}
	}
	require.NotNil(t, vectorOnly)
	assert.InDelta(t, 0.87, vectorOnly.VectorScore, 1e-9)
	assert.Zero(t, vectorOnly.BM25Score)
}

func TestSearchCacheRoundTrip(t *testing.T) {
	backend := &fakeBackend{bm25: respOf(1, hit("a", "a.go", 1, 5))}
	c := cache.New(100, time.Minute)
	r, err := NewRetriever(backend, embed.NewDisabledProvider(), "code-chunks", WithCache(c))
	require.NoError(t, err)

	shaped := shapedQuery(t, "cached query", 10, 0)

	first, err := r.Search(context.Background(), shaped, Options{})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := r.Search(context.Background(), shaped, Options{})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Items, second.Items)

	// One backend call total: the second response came from cache.
	assert.Len(t, backend.calls, 1)

	third, err := r.Search(context.Background(), shaped, Options{DisableCache: true})
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
	assert.Len(t, backend.calls, 2)
}

func TestSearchBM25OnlyOption(t *testing.T) {
	backend := &fakeBackend{bm25: respOf(1, hit("a", "a.go", 1, 5))}
	r, err := NewRetriever(backend, fakeEmbedder{}, "code-chunks",
		WithSemanticConfiguration("code-semantic"))
	require.NoError(t, err)

	_, err = r.Search(context.Background(), shapedQuery(t, "bm25 only", 10, 0), Options{BM25Only: true})
	require.NoError(t, err)
	assert.Equal(t, []string{SourceBM25}, backend.calls)
}

func TestNewRetrieverValidation(t *testing.T) {
	_, err := NewRetriever(nil, embed.NewDisabledProvider(), "idx")
	assert.Error(t, err)

	_, err = NewRetriever(&fakeBackend{}, nil, "idx")
	assert.Error(t, err)

	_, err = NewRetriever(&fakeBackend{}, embed.NewDisabledProvider(), "")
	assert.Error(t, err)
}
