package searchsvc

import (
	"context"
	"net/http"
)

// ListIndexes returns all index schemas on the service.
func (c *Client) ListIndexes(ctx context.Context) ([]IndexSchema, error) {
	var out struct {
		Value []IndexSchema `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/indexes", nil, &out, true); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// GetIndex returns one index schema by name.
func (c *Client) GetIndex(ctx context.Context, name string) (*IndexSchema, error) {
	var out IndexSchema
	if err := c.do(ctx, http.MethodGet, "/indexes/"+name, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrUpdateIndex creates the index, or updates it in place if it exists.
func (c *Client) CreateOrUpdateIndex(ctx context.Context, schema *IndexSchema) error {
	return c.do(ctx, http.MethodPut, "/indexes/"+schema.Name, schema, nil, true)
}

// DeleteIndex removes an index and all its documents.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/indexes/"+name, nil, nil, true)
}

// GetIndexStats returns document count and storage size.
func (c *Client) GetIndexStats(ctx context.Context, name string) (*IndexStats, error) {
	var out IndexStats
	if err := c.do(ctx, http.MethodGet, "/indexes/"+name+"/stats", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetServiceStats returns service-level counters and quota limits.
func (c *Client) GetServiceStats(ctx context.Context) (*ServiceStats, error) {
	var out ServiceStats
	if err := c.do(ctx, http.MethodGet, "/servicestats", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}
