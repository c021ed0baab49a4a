package indexops

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// EnsureResult reports what EnsureIndex did. Both flags false means the
// live index already matched.
type EnsureResult struct {
	Index   string   `json:"index"`
	Created bool     `json:"created"`
	Updated bool     `json:"updated"`
	Diffs   []string `json:"diffs,omitempty"`
}

// EnsureIndex creates the index if absent, updates it when the live
// schema differs and updateIfDifferent is set, and otherwise does
// nothing. Re-running with an unchanged schema reports created=false,
// updated=false.
func (m *Manager) EnsureIndex(ctx context.Context, schema *searchsvc.IndexSchema, updateIfDifferent bool) (*EnsureResult, error) {
	unlock, err := m.lock(ctx, schema.Name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	live, err := m.client.GetIndex(ctx, schema.Name)
	if err != nil {
		if !stderrors.Is(err, &errors.Error{Kind: errors.KindNotFound}) {
			return nil, err
		}
		if err := m.client.CreateOrUpdateIndex(ctx, schema); err != nil {
			return nil, err
		}
		m.logger.Info("index created", "index", schema.Name)
		return &EnsureResult{Index: schema.Name, Created: true}, nil
	}

	diffs := SchemaDiff(schema, live)
	if len(diffs) == 0 {
		return &EnsureResult{Index: schema.Name}, nil
	}
	if !updateIfDifferent {
		return &EnsureResult{Index: schema.Name, Diffs: diffs}, nil
	}
	if err := m.client.CreateOrUpdateIndex(ctx, schema); err != nil {
		return nil, err
	}
	m.logger.Info("index updated", "index", schema.Name, "diffs", len(diffs))
	return &EnsureResult{Index: schema.Name, Updated: true, Diffs: diffs}, nil
}

// RecreateResult reports a drop-and-create cycle.
type RecreateResult struct {
	Index      string `json:"index"`
	BackupPath string `json:"backup_path,omitempty"`
	DocsSaved  int    `json:"docs_saved"`
}

// RecreateIndex drops and recreates the index. With backup set, all
// documents are exported to a staging JSONL file first so a failed
// recreate can be recovered by re-uploading.
func (m *Manager) RecreateIndex(ctx context.Context, schema *searchsvc.IndexSchema, backup bool, backupDir string) (*RecreateResult, error) {
	unlock, err := m.lock(ctx, schema.Name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &RecreateResult{Index: schema.Name}
	if backup {
		path, saved, err := m.exportDocuments(ctx, schema.Name, backupDir)
		if err != nil && !stderrors.Is(err, &errors.Error{Kind: errors.KindNotFound}) {
			return nil, err
		}
		result.BackupPath = path
		result.DocsSaved = saved
	}

	if err := m.client.DeleteIndex(ctx, schema.Name); err != nil &&
		!stderrors.Is(err, &errors.Error{Kind: errors.KindNotFound}) {
		return nil, err
	}
	if err := m.client.CreateOrUpdateIndex(ctx, schema); err != nil {
		return nil, err
	}
	m.logger.Info("index recreated", "index", schema.Name, "docs_saved", result.DocsSaved)
	return result, nil
}

// exportDocuments streams every document to a JSONL staging file.
func (m *Manager) exportDocuments(ctx context.Context, index, dir string) (string, int, error) {
	if dir == "" {
		dir = m.lockDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, errors.Wrap(errors.KindInternal, "create backup dir", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-docs-%s.jsonl", index, m.now().UTC().Format("20060102T150405Z")))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, errors.Wrap(errors.KindInternal, "create backup file", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	saved := 0
	var encodeErr error
	_, err = m.pageDocuments(ctx, index, "", "", "", func(doc *searchsvc.Document) bool {
		line, err := json.Marshal(doc)
		if err != nil {
			encodeErr = err
			return false
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			encodeErr = err
			return false
		}
		saved++
		return true
	})
	if err != nil {
		return "", saved, err
	}
	if encodeErr != nil {
		return "", saved, errors.Wrap(errors.KindInternal, "write backup", encodeErr)
	}
	if err := w.Flush(); err != nil {
		return "", saved, errors.Wrap(errors.KindInternal, "flush backup", err)
	}
	return path, saved, nil
}

// ValidationReport summarizes a schema validation run.
type ValidationReport struct {
	Index           string   `json:"index"`
	OK              bool     `json:"ok"`
	MissingFields   []string `json:"missing_fields,omitempty"`
	Diffs           []string `json:"diffs,omitempty"`
	VectorSearch    bool     `json:"vector_search"`
	Semantic        bool     `json:"semantic"`
	ScoringProfiles []string `json:"scoring_profiles"`
	DocumentCount   int64    `json:"document_count"`
}

// ValidateIndexSchema checks the live index against the expected schema:
// required fields, vector and semantic configuration presence, scoring
// profiles. Expected may be nil to report the live shape only.
func (m *Manager) ValidateIndexSchema(ctx context.Context, index string, expected *searchsvc.IndexSchema) (*ValidationReport, error) {
	if index == "" {
		index = m.client.Index()
	}
	live, err := m.client.GetIndex(ctx, index)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{
		Index:        index,
		VectorSearch: live.VectorSearch != nil,
		Semantic:     live.Semantic != nil,
	}
	for _, p := range live.ScoringProfiles {
		report.ScoringProfiles = append(report.ScoringProfiles, p.Name)
	}
	if stats, err := m.client.GetIndexStats(ctx, index); err == nil {
		report.DocumentCount = stats.DocumentCount
	}

	if expected != nil {
		liveFields := make(map[string]bool, len(live.Fields))
		for _, f := range live.Fields {
			liveFields[f.Name] = true
		}
		for _, f := range expected.Fields {
			if !liveFields[f.Name] {
				report.MissingFields = append(report.MissingFields, f.Name)
			}
		}
		report.Diffs = SchemaDiff(expected, live)
	}
	report.OK = len(report.MissingFields) == 0 && len(report.Diffs) == 0
	return report, nil
}
