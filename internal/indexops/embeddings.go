package indexops

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// BackfillOptions tunes an embedding backfill run.
type BackfillOptions struct {
	Index string `json:"index,omitempty"`
	// BatchSize is how many documents to embed per provider call.
	BatchSize int `json:"batch_size,omitempty"`
	// IncludeContext prefixes the embedded text with repository and file
	// path so structurally similar code in different places separates.
	IncludeContext bool `json:"include_context,omitempty"`
	// MaxDocs bounds the run; zero means no bound.
	MaxDocs int `json:"max_docs,omitempty"`
	// Cursor resumes a previous run from its last processed id.
	Cursor string `json:"cursor,omitempty"`
	// DryRun counts candidates without writing.
	DryRun bool `json:"dry_run,omitempty"`
}

// BackfillResult reports a backfill run. Done false with a cursor means
// the run hit MaxDocs and can be resumed.
type BackfillResult struct {
	Index     string `json:"index"`
	Scanned   int    `json:"scanned"`
	Updated   int    `json:"updated"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Cursor    string `json:"cursor,omitempty"`
	Done      bool   `json:"done"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

// BackfillEmbeddings streams documents in id order, embeds those missing
// a content vector, and merges the vectors back. Progress is resumable:
// the returned cursor is the last processed id, and already-updated
// documents stay valid if a later batch fails.
func (m *Manager) BackfillEmbeddings(ctx context.Context, opts BackfillOptions) (*BackfillResult, error) {
	index := opts.Index
	if index == "" {
		index = m.client.Index()
	}
	if !m.embedder.Available(ctx) {
		return nil, errors.New(errors.KindDependencyUnavailable, "embedding provider is disabled")
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > embed.MaxBatchSize {
		batchSize = embed.DefaultBatchSize
	}

	unlock, err := m.lock(ctx, index)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &BackfillResult{Index: index, Cursor: opts.Cursor, DryRun: opts.DryRun}
	var pending []*searchsvc.Document

	flush := func() error {
		if len(pending) == 0 || opts.DryRun {
			pending = nil
			return nil
		}
		texts := make([]string, len(pending))
		for i, doc := range pending {
			texts[i] = embedText(doc, opts.IncludeContext)
		}
		vectors, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			// Documents updated by earlier batches remain valid.
			result.Failed += len(pending)
			m.logger.Warn("backfill batch failed", "index", index, "size", len(pending), "error", err)
			pending = nil
			return nil
		}
		updates := make([]searchsvc.Document, 0, len(pending))
		for i, doc := range pending {
			if i >= len(vectors) || len(vectors[i]) == 0 {
				result.Failed++
				continue
			}
			updates = append(updates, searchsvc.Document{ID: doc.ID, ContentVector: vectors[i]})
		}
		if len(updates) > 0 {
			if _, err := m.client.MergeDocuments(ctx, index, updates); err != nil {
				result.Failed += len(updates)
			} else {
				result.Updated += len(updates)
			}
		}
		pending = nil
		return nil
	}

	cursor, err := m.pageDocuments(ctx, index, "", "id,repository,file_path,content,content_vector", opts.Cursor,
		func(doc *searchsvc.Document) bool {
			result.Scanned++
			if len(doc.ContentVector) > 0 || doc.Content == "" {
				result.Skipped++
			} else {
				copied := *doc
				pending = append(pending, &copied)
				if len(pending) >= batchSize {
					_ = flush()
				}
			}
			return opts.MaxDocs == 0 || result.Scanned < opts.MaxDocs
		})
	if err != nil {
		result.Cursor = cursor
		return result, err
	}
	_ = flush()

	result.Cursor = cursor
	result.Done = opts.MaxDocs == 0 || result.Scanned < opts.MaxDocs
	m.logger.Info("backfill finished",
		"index", index, "scanned", result.Scanned, "updated", result.Updated,
		"failed", result.Failed, "done", result.Done)
	return result, nil
}

// embedText builds the text sent to the embedding provider.
func embedText(doc *searchsvc.Document, includeContext bool) string {
	if !includeContext {
		return doc.Content
	}
	return fmt.Sprintf("%s %s\n%s", doc.Repository, doc.FilePath, doc.Content)
}

// EmbeddingReport summarizes a sampling validation run.
type EmbeddingReport struct {
	Index       string  `json:"index"`
	Sampled     int     `json:"sampled"`
	WithVector  int     `json:"with_vector"`
	Coverage    float64 `json:"coverage"`
	ExpectedDim int     `json:"expected_dim"`
	BadDim      int     `json:"bad_dim"`
	OK          bool    `json:"ok"`
}

// ValidateEmbeddings samples documents and reports vector coverage and
// dimension correctness.
func (m *Manager) ValidateEmbeddings(ctx context.Context, index string, sampleSize, expectedDim int) (*EmbeddingReport, error) {
	if index == "" {
		index = m.client.Index()
	}
	if sampleSize <= 0 {
		sampleSize = 100
	}
	if expectedDim <= 0 {
		expectedDim = m.embedder.Dimensions()
	}

	report := &EmbeddingReport{Index: index, ExpectedDim: expectedDim}
	_, err := m.pageDocuments(ctx, index, "", "id,content_vector", "",
		func(doc *searchsvc.Document) bool {
			report.Sampled++
			if len(doc.ContentVector) > 0 {
				report.WithVector++
				if expectedDim > 0 && len(doc.ContentVector) != expectedDim {
					report.BadDim++
				}
			}
			return report.Sampled < sampleSize
		})
	if err != nil {
		return nil, err
	}
	if report.Sampled > 0 {
		report.Coverage = float64(report.WithVector) / float64(report.Sampled)
	}
	report.OK = report.BadDim == 0
	return report, nil
}
