package searchsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/errors"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	retry := errors.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
	c, err := NewClient(Config{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Index:    "code-chunks",
		Timeout:  2 * time.Second,
		Retry:    &retry,
	})
	require.NoError(t, err)
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k"})
	assert.Error(t, err)

	_, err = NewClient(Config{Endpoint: "http://localhost"})
	assert.Error(t, err)
}

func TestSearchRequestShape(t *testing.T) {
	var got *http.Request
	var gotBody SearchRequest

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(SearchResponse{
			Count: 1,
			Value: []SearchHit{{Document: Document{ID: "abc"}, Score: 2.5}},
		})
	}))

	resp, err := c.Search(context.Background(), "", &SearchRequest{
		Search: "parse config",
		Top:    10,
		Count:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, "/indexes/code-chunks/docs/search", got.URL.Path)
	assert.Equal(t, "2024-07-01", got.URL.Query().Get("api-version"))
	assert.Equal(t, "test-key", got.Header.Get("api-key"))
	assert.Equal(t, "parse config", gotBody.Search)
	assert.Equal(t, 10, gotBody.Top)

	assert.Equal(t, int64(1), resp.Count)
	require.Len(t, resp.Value, 1)
	assert.Equal(t, "abc", resp.Value[0].ID)
	assert.InDelta(t, 2.5, resp.Value[0].Score, 1e-9)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   errors.Kind
	}{
		{http.StatusBadRequest, errors.KindValidation},
		{http.StatusUnauthorized, errors.KindUnauthorized},
		{http.StatusForbidden, errors.KindForbidden},
		{http.StatusNotFound, errors.KindNotFound},
		{http.StatusConflict, errors.KindConflict},
		{http.StatusTooManyRequests, errors.KindDependencyUnavailable},
		{http.StatusInternalServerError, errors.KindDependencyUnavailable},
	}
	for _, tt := range tests {
		err := statusToError(tt.status, "")
		assert.Equal(t, tt.kind, errors.KindOf(err), "status %d", tt.status)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(IndexStats{DocumentCount: 42})
	}))

	stats, err := c.GetIndexStats(context.Background(), "code-chunks")
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.DocumentCount)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := c.GetIndex(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNonIdempotentNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	err := c.RunIndexer(context.Background(), "nightly")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeleteDocumentsBatchShape(t *testing.T) {
	var gotBatch IndexBatch
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBatch))
		resp := IndexBatchResponse{Value: []IndexResult{
			{Key: "a1", Status: true, StatusCode: 200},
			{Key: "b2", Status: true, StatusCode: 200},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))

	resp, err := c.DeleteDocuments(context.Background(), "", []string{"a1", "b2"})
	require.NoError(t, err)

	require.Len(t, gotBatch.Value, 2)
	assert.Equal(t, "delete", gotBatch.Value[0].Action)
	assert.Equal(t, "a1", gotBatch.Value[0].ID)
	require.Len(t, resp.Value, 2)
	assert.True(t, resp.Value[1].Status)
}

func TestPoolReusesClients(t *testing.T) {
	pool := NewPool()
	cfg := Config{Endpoint: "http://svc.local", APIKey: "k", Index: "idx"}

	a, err := pool.Get(cfg)
	require.NoError(t, err)
	b, err := pool.Get(cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)

	cfg.Index = "other"
	c, err := pool.Get(cfg)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, pool.Len())
}
