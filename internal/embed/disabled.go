package embed

import (
	"context"
	"fmt"
)

// DisabledProvider is used when no embeddings endpoint is configured.
// Every call fails fast and Available always reports false, which keeps
// retrieval on its keyword-only path.
type DisabledProvider struct{}

var _ Provider = (*DisabledProvider)(nil)

// NewDisabledProvider returns the no-op provider.
func NewDisabledProvider() *DisabledProvider {
	return &DisabledProvider{}
}

func (DisabledProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings are not configured")
}

func (DisabledProvider) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("embeddings are not configured")
}

func (DisabledProvider) Dimensions() int { return 0 }

func (DisabledProvider) ModelName() string { return "disabled" }

func (DisabledProvider) Available(context.Context) bool { return false }

func (DisabledProvider) Close() error { return nil }
