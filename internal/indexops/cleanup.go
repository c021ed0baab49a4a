package indexops

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// CleanupResult reports a deletion run. DryRun runs report what would be
// deleted without writing.
type CleanupResult struct {
	Index   string `json:"index"`
	Matched int    `json:"matched"`
	Deleted int    `json:"deleted"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// CleanupOldDocuments deletes documents whose date field is older than
// daysOld. Re-running after completion matches zero documents.
func (m *Manager) CleanupOldDocuments(ctx context.Context, index, dateField string, daysOld int, dryRun bool) (*CleanupResult, error) {
	if dateField == "" {
		return nil, errors.Validation("date_field", "a date field is required")
	}
	if daysOld <= 0 {
		return nil, errors.Validation("days_old", "must be positive")
	}
	cutoff := m.now().UTC().AddDate(0, 0, -daysOld)
	filter := fmt.Sprintf("%s lt %s", dateField, cutoff.Format(time.RFC3339))
	return m.deleteByFilter(ctx, index, filter, dryRun)
}

// ClearRepositoryDocuments deletes every chunk of one repository, used
// before re-indexing a renamed or removed repo.
func (m *Manager) ClearRepositoryDocuments(ctx context.Context, index, repository string, dryRun bool) (*CleanupResult, error) {
	if repository == "" {
		return nil, errors.Validation("repository", "a repository name is required")
	}
	filter := fmt.Sprintf("repository eq '%s'", escapeFilterLiteral(repository))
	return m.deleteByFilter(ctx, index, filter, dryRun)
}

// deleteByFilter pages matching ids and deletes them in batches.
func (m *Manager) deleteByFilter(ctx context.Context, index, filter string, dryRun bool) (*CleanupResult, error) {
	if index == "" {
		index = m.client.Index()
	}
	unlock, err := m.lock(ctx, index)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &CleanupResult{Index: index, DryRun: dryRun}
	var keys []string
	_, err = m.pageDocuments(ctx, index, filter, "id", "", func(doc *searchsvc.Document) bool {
		result.Matched++
		keys = append(keys, doc.ID)
		return true
	})
	if err != nil {
		return nil, err
	}
	if dryRun || len(keys) == 0 {
		return result, nil
	}

	for start := 0; start < len(keys); start += pageSize {
		end := min(start+pageSize, len(keys))
		if _, err := m.client.DeleteDocuments(ctx, index, keys[start:end]); err != nil {
			return result, err
		}
		result.Deleted += end - start
	}
	m.logger.Info("documents deleted", "index", index, "filter", filter, "deleted", result.Deleted)
	return result, nil
}

// ConfigureSemanticSearch sets or replaces the semantic configuration of
// the live index, keeping everything else intact.
func (m *Manager) ConfigureSemanticSearch(ctx context.Context, index string, settings *searchsvc.SemanticSettings) (*searchsvc.IndexSchema, error) {
	if index == "" {
		index = m.client.Index()
	}
	if settings == nil || len(settings.Configurations) == 0 {
		return nil, errors.Validation("configurations", "at least one semantic configuration is required")
	}

	unlock, err := m.lock(ctx, index)
	if err != nil {
		return nil, err
	}
	defer unlock()

	schema, err := m.client.GetIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	schema.Semantic = settings
	schema.ETag = ""
	if err := m.client.CreateOrUpdateIndex(ctx, schema); err != nil {
		return nil, err
	}
	m.logger.Info("semantic configuration updated", "index", index,
		"configurations", len(settings.Configurations))
	return schema, nil
}

// escapeFilterLiteral doubles single quotes for OData string literals.
func escapeFilterLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
		} else {
			out = append(out, s[i])
		}
	}
	return string(out)
}
