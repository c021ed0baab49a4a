package tools

import (
	"context"
	"time"

	"github.com/Aman-CERP/amanrag/pkg/version"
)

// NoParams marks tools that take no arguments.
type NoParams struct{}

// HealthCheck reports liveness and the state of each subsystem. Always
// succeeds while the process can serve; degraded subsystems are reported,
// not failed.
func (s *Service) HealthCheck(ctx context.Context, _ *NoParams) (any, error) {
	embedderEnabled := s.deps.Embedder.Available(ctx)

	searchState := "ok"
	if _, err := s.deps.Client.GetIndexStats(ctx, s.cfg.Search.IndexName); err != nil {
		searchState = "unreachable"
	}

	return map[string]any{
		"status":         "ok",
		"version":        version.Version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"search":         searchState,
		"embedder": map[string]any{
			"enabled":    embedderEnabled,
			"model":      s.deps.Embedder.ModelName(),
			"dimensions": s.deps.Embedder.Dimensions(),
		},
		"feedback_enabled": s.deps.Feedback != nil,
	}, nil
}

// IndexStatusParams is the input of index_status.
type IndexStatusParams struct {
	Index string `json:"index,omitempty"`
}

// IndexStatus reports size and capability information for an index.
func (s *Service) IndexStatus(ctx context.Context, params *IndexStatusParams) (any, error) {
	index := params.Index
	if index == "" {
		index = s.cfg.Search.IndexName
	}

	stats, err := s.deps.Client.GetIndexStats(ctx, index)
	if err != nil {
		return nil, err
	}
	schema, err := s.deps.Client.GetIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	vectorDims := 0
	for _, f := range schema.Fields {
		if f.Dimensions > 0 {
			vectorDims = f.Dimensions
			break
		}
	}

	return map[string]any{
		"index":             index,
		"document_count":    stats.DocumentCount,
		"storage_bytes":     stats.StorageSize,
		"fields":            len(schema.Fields),
		"vector_dimensions": vectorDims,
		"vector_search":     schema.VectorSearch != nil,
		"semantic_search":   schema.Semantic != nil,
		"scoring_profiles":  len(schema.ScoringProfiles),
	}, nil
}

// CacheStats reports cache effectiveness counters.
func (s *Service) CacheStats(ctx context.Context, _ *NoParams) (any, error) {
	return s.deps.Cache.Stats(), nil
}

// GetServiceInfo reports service-level statistics, embedder state, and
// build information. Admin only; counters expose capacity details.
func (s *Service) GetServiceInfo(ctx context.Context, _ *NoParams) (any, error) {
	info := map[string]any{
		"build": version.GetInfo(),
		"index": s.cfg.Search.IndexName,
		"embedder": map[string]any{
			"enabled":    s.deps.Embedder.Available(ctx),
			"model":      s.deps.Embedder.ModelName(),
			"dimensions": s.deps.Embedder.Dimensions(),
		},
		"cache": s.deps.Cache.Stats(),
	}
	if stats, err := s.deps.Client.GetServiceStats(ctx); err == nil {
		info["service_stats"] = stats
	} else {
		s.logger.Warn("service stats unavailable", "error", err)
	}
	if s.deps.Feedback != nil {
		info["feedback_weights"] = s.deps.Feedback.Weights()
	}
	return info, nil
}
