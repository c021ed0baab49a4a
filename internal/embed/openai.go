package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Aman-CERP/amanrag/internal/errors"
)

// availability is the provider's probe state machine:
// uninitialized → (enabled | disabled), pinned once decided.
type availability int

const (
	availUnknown availability = iota
	availEnabled
	availDisabled
)

// OpenAIConfig configures an OpenAI-compatible embeddings client.
type OpenAIConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	Retry      *errors.RetryConfig
}

// OpenAIProvider calls a /v1/embeddings-shaped endpoint.
type OpenAIProvider struct {
	client    *http.Client
	transport *http.Transport
	cfg       OpenAIConfig
	retry     errors.RetryConfig
	logger    *slog.Logger

	mu     sync.Mutex
	avail  availability
	closed bool
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates an embeddings client. The endpoint is not
// contacted here; the first Embed/Available call probes it.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embeddings endpoint is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize < MinBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	retry := errors.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}

	// No http.Client.Timeout: it would override per-request context
	// deadlines applied in embedBatch.
	return &OpenAIProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
		retry:     retry,
		logger:    slog.Default().With("component", "embed"),
	}, nil
}

// Dimensions returns the embedding width.
func (p *OpenAIProvider) Dimensions() int { return p.cfg.Dimensions }

// ModelName returns the configured model identifier.
func (p *OpenAIProvider) ModelName() string { return p.cfg.Model }

// Available probes the endpoint on first call and pins the answer.
// A disabled provider never flips back without a process restart.
func (p *OpenAIProvider) Available(ctx context.Context) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	switch p.avail {
	case availEnabled:
		p.mu.Unlock()
		return true
	case availDisabled:
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	_, err := p.embedBatch(ctx, []string{"probe"})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.avail == availUnknown {
		if err != nil {
			p.avail = availDisabled
			p.logger.Warn("embeddings unavailable, vector search disabled",
				"endpoint", p.cfg.Endpoint, "error", err)
		} else {
			p.avail = availEnabled
			p.logger.Info("embeddings available",
				"model", p.cfg.Model, "dimensions", p.cfg.Dimensions)
		}
	}
	return p.avail == availEnabled
}

// Embed generates an embedding for one text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in sub-batches of at most BatchSize, preserving
// input order. A failed sub-batch fails the whole call; partial progress
// is never returned.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(texts))
		vecs, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// embedBatch sends one embeddings request and aligns the response rows
// by their index field.
func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embeddingsRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var vecs [][]float32
	attempt := func() error {
		callCtx := ctx
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
			p.cfg.Endpoint+"/v1/embeddings", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return errors.Wrap(errors.KindTimeout, "embeddings call timed out", err)
			}
			return errors.Dependency("embeddings provider", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			msg := fmt.Sprintf("embeddings provider returned %d: %s", resp.StatusCode, data)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return errors.New(errors.KindDependencyUnavailable, msg)
			}
			return errors.New(errors.KindValidation, msg)
		}

		var body embeddingsResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if len(body.Data) != len(texts) {
			return fmt.Errorf("embeddings count mismatch: sent %d texts, got %d vectors",
				len(texts), len(body.Data))
		}

		vecs = make([][]float32, len(texts))
		for _, row := range body.Data {
			if row.Index < 0 || row.Index >= len(texts) {
				return fmt.Errorf("embeddings row index %d out of range", row.Index)
			}
			vecs[row.Index] = normalizeVector(row.Embedding)
		}
		for i, v := range vecs {
			if v == nil {
				return fmt.Errorf("embeddings response missing row %d", i)
			}
			if len(v) != p.cfg.Dimensions {
				return fmt.Errorf("embedding dimension mismatch: want %d, got %d",
					p.cfg.Dimensions, len(v))
			}
		}
		return nil
	}

	if err := errors.Retry(ctx, p.retry, attempt); err != nil {
		return nil, err
	}
	return vecs, nil
}

// Close releases idle connections. Subsequent calls report unavailable.
func (p *OpenAIProvider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.transport.CloseIdleConnections()
	return nil
}
