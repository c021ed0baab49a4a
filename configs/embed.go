// Package configs embeds the canonical index schema and the example
// configuration so they ship inside the binary regardless of how it was
// installed.
//
// The schema is the source of truth for the search index: manage_index,
// rebuild_index, and schema validation all compare the live index
// against it. To change the index layout, edit index_schema.json and
// run `amanrag admin ensure-index`.
package configs

import (
	_ "embed"

	"github.com/Aman-CERP/amanrag/internal/indexops"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// IndexSchemaJSON is the canonical index schema.
//
//go:embed index_schema.json
var IndexSchemaJSON []byte

// ConfigTemplate is the annotated example configuration written by
// `amanrag config init`.
//
//go:embed config.example.yaml
var ConfigTemplate string

// IndexSchema parses the embedded canonical schema. The embed is
// compile-time constant, so a parse failure is a build defect and
// surfaces at startup.
func IndexSchema() (*searchsvc.IndexSchema, error) {
	return indexops.LoadSchema(IndexSchemaJSON)
}
