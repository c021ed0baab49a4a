package searchsvc

import "sync"

// Pool shares clients across callers so connection pools and circuit
// breaker state are reused. Keyed by (endpoint, api key, index).
type Pool struct {
	mu      sync.Mutex
	clients map[poolKey]*Client
}

type poolKey struct {
	endpoint string
	apiKey   string
	index    string
}

// NewPool creates an empty client pool.
func NewPool() *Pool {
	return &Pool{clients: make(map[poolKey]*Client)}
}

// Get returns the pooled client for cfg, creating it on first use.
func (p *Pool) Get(cfg Config) (*Client, error) {
	key := poolKey{endpoint: cfg.Endpoint, apiKey: cfg.APIKey, index: cfg.Index}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	return c, nil
}

// Len reports how many distinct clients the pool holds.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
