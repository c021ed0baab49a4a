package searchsvc

import (
	"context"
	"net/http"
)

// Search executes a documents/search call against the named index.
func (c *Client) Search(ctx context.Context, index string, req *SearchRequest) (*SearchResponse, error) {
	if index == "" {
		index = c.cfg.Index
	}
	var out SearchResponse
	// A search POST carries no side effects; retried like a GET.
	if err := c.do(ctx, http.MethodPost, "/indexes/"+index+"/docs/search", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// IndexDocuments uploads a document batch. Actions like mergeOrUpload are
// idempotent, so transient failures are retried.
func (c *Client) IndexDocuments(ctx context.Context, index string, batch *IndexBatch) (*IndexBatchResponse, error) {
	if index == "" {
		index = c.cfg.Index
	}
	var out IndexBatchResponse
	if err := c.do(ctx, http.MethodPost, "/indexes/"+index+"/docs/index", batch, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadDocuments is a convenience wrapper around IndexDocuments with the
// mergeOrUpload action.
func (c *Client) UploadDocuments(ctx context.Context, index string, docs []Document) (*IndexBatchResponse, error) {
	batch := &IndexBatch{Value: make([]IndexAction, len(docs))}
	for i, d := range docs {
		batch.Value[i] = IndexAction{Action: "mergeOrUpload", Document: d}
	}
	return c.IndexDocuments(ctx, index, batch)
}

// MergeDocuments merges partial documents into existing ones.
// Used by the embedding backfill to attach vectors without rewriting content.
func (c *Client) MergeDocuments(ctx context.Context, index string, docs []Document) (*IndexBatchResponse, error) {
	batch := &IndexBatch{Value: make([]IndexAction, len(docs))}
	for i, d := range docs {
		batch.Value[i] = IndexAction{Action: "merge", Document: d}
	}
	return c.IndexDocuments(ctx, index, batch)
}

// DeleteDocuments removes documents by key.
func (c *Client) DeleteDocuments(ctx context.Context, index string, keys []string) (*IndexBatchResponse, error) {
	batch := &IndexBatch{Value: make([]IndexAction, len(keys))}
	for i, key := range keys {
		batch.Value[i] = IndexAction{Action: "delete", Document: Document{ID: key}}
	}
	return c.IndexDocuments(ctx, index, batch)
}
