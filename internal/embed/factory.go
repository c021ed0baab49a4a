package embed

import (
	"log/slog"

	"github.com/Aman-CERP/amanrag/internal/config"
)

// NewProvider builds the embeddings provider for the given configuration.
// Provider "none" or an empty endpoint selects the disabled provider rather
// than an error: vector search is optional and retrieval degrades to
// keyword-only.
func NewProvider(cfg config.EmbedConfig) (Provider, error) {
	if cfg.Provider == "none" || cfg.Endpoint == "" {
		slog.Info("no embeddings endpoint configured, vector search disabled")
		return NewDisabledProvider(), nil
	}
	return NewOpenAIProvider(OpenAIConfig{
		Endpoint:   cfg.Endpoint,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		BatchSize:  cfg.BatchSize,
		Timeout:    cfg.Timeout,
	})
}
