package searchsvc

import (
	"context"
	"net/http"
)

// ListIndexers returns all indexers on the service.
func (c *Client) ListIndexers(ctx context.Context) ([]Indexer, error) {
	var out struct {
		Value []Indexer `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/indexers", nil, &out, true); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// GetIndexer returns one indexer by name.
func (c *Client) GetIndexer(ctx context.Context, name string) (*Indexer, error) {
	var out Indexer
	if err := c.do(ctx, http.MethodGet, "/indexers/"+name, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetIndexerStatus returns the indexer execution state.
func (c *Client) GetIndexerStatus(ctx context.Context, name string) (*IndexerStatus, error) {
	var out IndexerStatus
	if err := c.do(ctx, http.MethodGet, "/indexers/"+name+"/status", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrUpdateIndexer creates or updates an indexer definition.
func (c *Client) CreateOrUpdateIndexer(ctx context.Context, indexer *Indexer) error {
	return c.do(ctx, http.MethodPut, "/indexers/"+indexer.Name, indexer, nil, true)
}

// DeleteIndexer removes an indexer definition.
func (c *Client) DeleteIndexer(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/indexers/"+name, nil, nil, true)
}

// RunIndexer triggers an immediate indexer run.
// Not retried: re-sending could start a second overlapping run.
func (c *Client) RunIndexer(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/indexers/"+name+"/run", nil, nil, false)
}

// ResetIndexer clears indexer change-tracking state, forcing idle.
func (c *Client) ResetIndexer(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/indexers/"+name+"/reset", nil, nil, true)
}

// CreateOrUpdateDataSource creates or updates a data source definition.
func (c *Client) CreateOrUpdateDataSource(ctx context.Context, ds *DataSource) error {
	return c.do(ctx, http.MethodPut, "/datasources/"+ds.Name, ds, nil, true)
}

// GetDataSource returns one data source by name.
func (c *Client) GetDataSource(ctx context.Context, name string) (*DataSource, error) {
	var out DataSource
	if err := c.do(ctx, http.MethodGet, "/datasources/"+name, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrUpdateSkillset creates or updates a skillset definition.
func (c *Client) CreateOrUpdateSkillset(ctx context.Context, sk *Skillset) error {
	return c.do(ctx, http.MethodPut, "/skillsets/"+sk.Name, sk, nil, true)
}
