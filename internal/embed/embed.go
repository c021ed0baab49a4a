// Package embed generates vector embeddings through an OpenAI-compatible
// HTTP endpoint. The provider is probed lazily: the first call decides
// whether vector search is available for the life of the process.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize caps a single embeddings request (prevents memory
	// exhaustion and oversized payloads).
	MaxBatchSize = 256

	// DefaultBatchSize is the default texts-per-request batch size.
	DefaultBatchSize = 16

	// DefaultDimensions is the expected embedding width.
	DefaultDimensions = 1536

	// DefaultTimeout bounds one embeddings request.
	DefaultTimeout = 30 * time.Second

	// DefaultModel is the embedding model requested when none is configured.
	DefaultModel = "text-embedding-3-small"
)

// Provider generates vector embeddings for text.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result is
	// positionally aligned with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the provider can serve embeddings.
	// The first call probes the endpoint; the answer is then pinned.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors pass
// through unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
