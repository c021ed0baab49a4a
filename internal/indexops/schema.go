package indexops

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// LoadSchema parses a canonical index schema from JSON.
func LoadSchema(data []byte) (*searchsvc.IndexSchema, error) {
	var schema searchsvc.IndexSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, errors.Wrap(errors.KindValidation, "parse index schema", err)
	}
	if schema.Name == "" || len(schema.Fields) == 0 {
		return nil, errors.New(errors.KindValidation, "index schema needs a name and fields")
	}
	return &schema, nil
}

// SchemaDiff lists the material differences between the expected and
// live schema. Server-added defaults (etag, analyzers the service
// attaches, cors) are ignored; only fields, vector profiles, semantic
// configurations, and scoring profile names are compared.
func SchemaDiff(expected, actual *searchsvc.IndexSchema) []string {
	var diffs []string

	actualFields := make(map[string]searchsvc.Field, len(actual.Fields))
	for _, f := range actual.Fields {
		actualFields[f.Name] = f
	}
	for _, want := range expected.Fields {
		got, ok := actualFields[want.Name]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("field %s missing", want.Name))
			continue
		}
		if got.Type != want.Type {
			diffs = append(diffs, fmt.Sprintf("field %s type %s != %s", want.Name, got.Type, want.Type))
		}
		if got.Key != want.Key {
			diffs = append(diffs, fmt.Sprintf("field %s key flag differs", want.Name))
		}
		if got.Searchable != want.Searchable || got.Filterable != want.Filterable {
			diffs = append(diffs, fmt.Sprintf("field %s search/filter flags differ", want.Name))
		}
		if want.Dimensions > 0 && got.Dimensions != want.Dimensions {
			diffs = append(diffs, fmt.Sprintf("field %s dimensions %d != %d", want.Name, got.Dimensions, want.Dimensions))
		}
	}

	if (expected.VectorSearch != nil) != (actual.VectorSearch != nil) {
		diffs = append(diffs, "vector search configuration presence differs")
	}
	if (expected.Semantic != nil) != (actual.Semantic != nil) {
		diffs = append(diffs, "semantic configuration presence differs")
	}

	expectedProfiles := make(map[string]bool, len(expected.ScoringProfiles))
	for _, p := range expected.ScoringProfiles {
		expectedProfiles[p.Name] = true
	}
	for _, p := range actual.ScoringProfiles {
		delete(expectedProfiles, p.Name)
	}
	for name := range expectedProfiles {
		diffs = append(diffs, fmt.Sprintf("scoring profile %s missing", name))
	}

	return diffs
}

// BackupResult reports where a schema backup landed.
type BackupResult struct {
	Index string `json:"index"`
	Path  string `json:"path"`
}

// BackupIndexSchema writes the live schema to a timestamped JSON file.
func (m *Manager) BackupIndexSchema(ctx context.Context, index, dir string) (*BackupResult, error) {
	if index == "" {
		index = m.client.Index()
	}
	schema, err := m.client.GetIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	schema.ETag = ""

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "create backup dir", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-schema-%s.json", index, m.now().UTC().Format("20060102T150405Z")))
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "encode schema", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, errors.Wrap(errors.KindInternal, "write schema backup", err)
	}
	m.logger.Info("schema backed up", "index", index, "path", path)
	return &BackupResult{Index: index, Path: path}, nil
}
