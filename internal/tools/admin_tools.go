package tools

import (
	"context"

	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/indexer"
	"github.com/Aman-CERP/amanrag/internal/indexops"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// confirmationRequired is the no-side-effect reply for destructive
// actions nested inside multi-action tools.
func confirmationRequired(action string) map[string]any {
	return map[string]any{
		"confirmation_required": true,
		"message":               action + " is destructive; repeat the call with confirm=true to proceed",
	}
}

// ManageIndexParams is the input of manage_index.
type ManageIndexParams struct {
	// Action is one of ensure, validate, stats, list, delete.
	Action string `json:"action"`
	Index  string `json:"index,omitempty"`
	// UpdateIfDifferent applies schema drift during ensure.
	UpdateIfDifferent bool `json:"update_if_different,omitempty"`
	Confirm           bool `json:"confirm,omitempty"`
}

// ManageIndex covers the index lifecycle short of a full rebuild.
func (s *Service) ManageIndex(ctx context.Context, params *ManageIndexParams) (any, error) {
	switch params.Action {
	case "ensure":
		if s.deps.Schema == nil {
			return nil, errors.Unavailable("no canonical index schema is configured")
		}
		result, err := s.deps.Ops.EnsureIndex(ctx, s.deps.Schema, params.UpdateIfDifferent)
		if err != nil {
			return nil, err
		}
		if result.Created || result.Updated {
			s.invalidateSearchCache()
		}
		return result, nil

	case "validate":
		if s.deps.Schema == nil {
			return nil, errors.Unavailable("no canonical index schema is configured")
		}
		index := params.Index
		if index == "" {
			index = s.cfg.Search.IndexName
		}
		return s.deps.Ops.ValidateIndexSchema(ctx, index, s.deps.Schema)

	case "stats":
		index := params.Index
		if index == "" {
			index = s.cfg.Search.IndexName
		}
		return s.deps.Client.GetIndexStats(ctx, index)

	case "list":
		schemas, err := s.deps.Client.ListIndexes(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(schemas))
		for i, schema := range schemas {
			names[i] = schema.Name
		}
		return map[string]any{"indexes": names}, nil

	case "delete":
		if params.Index == "" {
			return nil, errors.Validation("index", "the index to delete must be named explicitly")
		}
		if !params.Confirm {
			return confirmationRequired("manage_index delete"), nil
		}
		if err := s.deps.Client.DeleteIndex(ctx, params.Index); err != nil {
			return nil, err
		}
		s.invalidateSearchCache()
		return map[string]any{"deleted": params.Index}, nil

	default:
		return nil, errors.Validation("action", "must be ensure, validate, stats, list, or delete")
	}
}

// ManageDocumentsParams is the input of manage_documents.
type ManageDocumentsParams struct {
	// Action is one of upload, delete, count.
	Action    string               `json:"action"`
	Index     string               `json:"index,omitempty"`
	Documents []searchsvc.Document `json:"documents,omitempty"`
	Keys      []string             `json:"keys,omitempty"`
	Confirm   bool                 `json:"confirm,omitempty"`
}

// ManageDocuments uploads, deletes, or counts documents directly.
func (s *Service) ManageDocuments(ctx context.Context, params *ManageDocumentsParams) (any, error) {
	switch params.Action {
	case "upload":
		if len(params.Documents) == 0 {
			return nil, errors.Validation("documents", "at least one document is required")
		}
		resp, err := s.deps.Client.UploadDocuments(ctx, params.Index, params.Documents)
		if err != nil {
			return nil, err
		}
		s.invalidateSearchCache()
		return map[string]any{"uploaded": len(resp.Value)}, nil

	case "delete":
		if len(params.Keys) == 0 {
			return nil, errors.Validation("keys", "at least one document key is required")
		}
		if !params.Confirm {
			return confirmationRequired("manage_documents delete"), nil
		}
		resp, err := s.deps.Client.DeleteDocuments(ctx, params.Index, params.Keys)
		if err != nil {
			return nil, err
		}
		s.invalidateSearchCache()
		return map[string]any{"deleted": len(resp.Value)}, nil

	case "count":
		index := params.Index
		if index == "" {
			index = s.cfg.Search.IndexName
		}
		stats, err := s.deps.Client.GetIndexStats(ctx, index)
		if err != nil {
			return nil, err
		}
		return map[string]any{"index": index, "document_count": stats.DocumentCount}, nil

	default:
		return nil, errors.Validation("action", "must be upload, delete, or count")
	}
}

// ManageIndexerParams is the input of manage_indexer.
type ManageIndexerParams struct {
	// Action is one of list, status, run, reset, create, delete.
	Action     string             `json:"action"`
	Name       string             `json:"name,omitempty"`
	Definition *searchsvc.Indexer `json:"definition,omitempty"`
	Confirm    bool               `json:"confirm,omitempty"`
}

// ManageIndexer drives service-side pull indexers.
func (s *Service) ManageIndexer(ctx context.Context, params *ManageIndexerParams) (any, error) {
	needsName := params.Action == "status" || params.Action == "run" ||
		params.Action == "reset" || params.Action == "delete"
	if needsName && params.Name == "" {
		return nil, errors.Validation("name", "the indexer name is required for "+params.Action)
	}

	switch params.Action {
	case "list":
		indexers, err := s.deps.Client.ListIndexers(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"indexers": indexers}, nil
	case "status":
		return s.deps.Client.GetIndexerStatus(ctx, params.Name)
	case "run":
		if err := s.deps.Client.RunIndexer(ctx, params.Name); err != nil {
			return nil, err
		}
		return map[string]any{"started": params.Name}, nil
	case "reset":
		if err := s.deps.Client.ResetIndexer(ctx, params.Name); err != nil {
			return nil, err
		}
		return map[string]any{"reset": params.Name}, nil
	case "create":
		if params.Definition == nil || params.Definition.Name == "" {
			return nil, errors.Validation("definition", "an indexer definition with a name is required")
		}
		if err := s.deps.Client.CreateOrUpdateIndexer(ctx, params.Definition); err != nil {
			return nil, err
		}
		return map[string]any{"created": params.Definition.Name}, nil
	case "delete":
		if !params.Confirm {
			return confirmationRequired("manage_indexer delete"), nil
		}
		if err := s.deps.Client.DeleteIndexer(ctx, params.Name); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": params.Name}, nil
	default:
		return nil, errors.Validation("action", "must be list, status, run, reset, create, or delete")
	}
}

// CreateDataSourceParams is the input of create_datasource.
type CreateDataSourceParams struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Credentials map[string]any `json:"credentials,omitempty"`
	Container   map[string]any `json:"container,omitempty"`
	Description string         `json:"description,omitempty"`
}

// CreateDataSource creates or updates an indexer data source.
func (s *Service) CreateDataSource(ctx context.Context, params *CreateDataSourceParams) (any, error) {
	if params.Name == "" || params.Type == "" {
		return nil, errors.Validation("name", "data source name and type are required")
	}
	ds := &searchsvc.DataSource{
		Name:        params.Name,
		Type:        params.Type,
		Credentials: params.Credentials,
		Container:   params.Container,
		Description: params.Description,
	}
	if err := s.deps.Client.CreateOrUpdateDataSource(ctx, ds); err != nil {
		return nil, err
	}
	return map[string]any{"created": params.Name}, nil
}

// CreateSkillsetParams is the input of create_skillset.
type CreateSkillsetParams struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Skills      []map[string]any `json:"skills"`
}

// CreateSkillset creates or updates an enrichment skillset.
func (s *Service) CreateSkillset(ctx context.Context, params *CreateSkillsetParams) (any, error) {
	if params.Name == "" {
		return nil, errors.Validation("name", "the skillset name is required")
	}
	if len(params.Skills) == 0 {
		return nil, errors.Validation("skills", "at least one skill is required")
	}
	sk := &searchsvc.Skillset{
		Name:        params.Name,
		Description: params.Description,
		Skills:      params.Skills,
	}
	if err := s.deps.Client.CreateOrUpdateSkillset(ctx, sk); err != nil {
		return nil, err
	}
	return map[string]any{"created": params.Name}, nil
}

// RebuildIndexParams is the input of rebuild_index.
type RebuildIndexParams struct {
	Confirm bool `json:"confirm,omitempty"`
	// Backup exports documents to a JSONL file before dropping the index.
	Backup    bool   `json:"backup,omitempty"`
	BackupDir string `json:"backup_dir,omitempty"`
}

// RebuildIndex drops and recreates the canonical index. The confirmation
// gate runs in the dispatcher; by the time this handler executes the
// caller has already confirmed.
func (s *Service) RebuildIndex(ctx context.Context, params *RebuildIndexParams) (any, error) {
	if s.deps.Schema == nil {
		return nil, errors.Unavailable("no canonical index schema is configured")
	}
	result, err := s.deps.Ops.RecreateIndex(ctx, s.deps.Schema, params.Backup, params.BackupDir)
	if err != nil {
		return nil, err
	}
	s.invalidateSearchCache()
	return result, nil
}

// IndexRepositoryParams is the input of index_repository.
type IndexRepositoryParams struct {
	Repository string `json:"repository"`
	Root       string `json:"root"`
	Index      string `json:"index,omitempty"`
	Embed      bool   `json:"embed,omitempty"`
}

// IndexRepository walks and indexes a repository.
func (s *Service) IndexRepository(ctx context.Context, params *IndexRepositoryParams) (any, error) {
	report, err := s.deps.Indexer.Run(ctx, indexer.Options{
		Repository: params.Repository,
		Root:       params.Root,
		Index:      params.Index,
		Embed:      params.Embed,
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSearchCache()
	return report, nil
}

// IndexChangedFilesParams is the input of index_changed_files.
type IndexChangedFilesParams struct {
	Repository string   `json:"repository"`
	Root       string   `json:"root"`
	Files      []string `json:"files"`
	Index      string   `json:"index,omitempty"`
	Embed      bool     `json:"embed,omitempty"`
}

// IndexChangedFiles re-indexes an explicit file list.
func (s *Service) IndexChangedFiles(ctx context.Context, params *IndexChangedFilesParams) (any, error) {
	if len(params.Files) == 0 {
		return nil, errors.Validation("files", "at least one file path is required")
	}
	report, err := s.deps.Indexer.IndexChangedFiles(ctx, indexer.Options{
		Repository: params.Repository,
		Root:       params.Root,
		Index:      params.Index,
		Embed:      params.Embed,
	}, params.Files)
	if err != nil {
		return nil, err
	}
	s.invalidateSearchCache()
	return report, nil
}

// BackfillEmbeddingsParams is the input of backfill_embeddings.
type BackfillEmbeddingsParams struct {
	Index          string `json:"index,omitempty"`
	BatchSize      int    `json:"batch_size,omitempty"`
	IncludeContext bool   `json:"include_context,omitempty"`
	MaxDocs        int    `json:"max_docs,omitempty"`
	Cursor         string `json:"cursor,omitempty"`
	DryRun         bool   `json:"dry_run,omitempty"`
}

// BackfillEmbeddings attaches vectors to documents that lack them.
func (s *Service) BackfillEmbeddings(ctx context.Context, params *BackfillEmbeddingsParams) (any, error) {
	index := params.Index
	if index == "" {
		index = s.cfg.Search.IndexName
	}
	return s.deps.Ops.BackfillEmbeddings(ctx, indexops.BackfillOptions{
		Index:          index,
		BatchSize:      params.BatchSize,
		IncludeContext: params.IncludeContext,
		MaxDocs:        params.MaxDocs,
		Cursor:         params.Cursor,
		DryRun:         params.DryRun,
	})
}

// ValidateEmbeddingsParams is the input of validate_embeddings.
type ValidateEmbeddingsParams struct {
	Index       string `json:"index,omitempty"`
	SampleSize  int    `json:"sample_size,omitempty"`
	ExpectedDim int    `json:"expected_dim,omitempty"`
}

// ValidateEmbeddings samples documents and checks vector coverage.
func (s *Service) ValidateEmbeddings(ctx context.Context, params *ValidateEmbeddingsParams) (any, error) {
	index := params.Index
	if index == "" {
		index = s.cfg.Search.IndexName
	}
	expectedDim := params.ExpectedDim
	if expectedDim == 0 {
		expectedDim = s.deps.Embedder.Dimensions()
	}
	return s.deps.Ops.ValidateEmbeddings(ctx, index, params.SampleSize, expectedDim)
}

// BackupSchemaParams is the input of backup_index_schema.
type BackupSchemaParams struct {
	Index string `json:"index,omitempty"`
	Dir   string `json:"dir,omitempty"`
}

// BackupIndexSchema writes the live schema to a timestamped file.
func (s *Service) BackupIndexSchema(ctx context.Context, params *BackupSchemaParams) (any, error) {
	index := params.Index
	if index == "" {
		index = s.cfg.Search.IndexName
	}
	return s.deps.Ops.BackupIndexSchema(ctx, index, params.Dir)
}

// ClearRepositoryParams is the input of clear_repository_documents.
type ClearRepositoryParams struct {
	Repository string `json:"repository"`
	Index      string `json:"index,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
	Confirm    bool   `json:"confirm,omitempty"`
}

// ClearRepositoryDocuments deletes every chunk of one repository.
func (s *Service) ClearRepositoryDocuments(ctx context.Context, params *ClearRepositoryParams) (any, error) {
	if params.Repository == "" {
		return nil, errors.Validation("repository", "the repository to clear must be named explicitly")
	}
	index := params.Index
	if index == "" {
		index = s.cfg.Search.IndexName
	}
	result, err := s.deps.Ops.ClearRepositoryDocuments(ctx, index, params.Repository, params.DryRun)
	if err != nil {
		return nil, err
	}
	if !params.DryRun {
		s.invalidateSearchCache()
	}
	return result, nil
}

// CacheClearParams is the input of cache_clear.
type CacheClearParams struct {
	Scope   string `json:"scope,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Confirm bool   `json:"confirm,omitempty"`
}

// CacheClear clears the cache entirely, by scope, or by glob pattern.
func (s *Service) CacheClear(ctx context.Context, params *CacheClearParams) (any, error) {
	var (
		removed int
		err     error
	)
	switch {
	case params.Pattern != "":
		removed, err = s.deps.Cache.ClearPattern(params.Pattern)
		if err != nil {
			return nil, errors.Wrap(errors.KindValidation, "cache pattern", err)
		}
	case params.Scope != "":
		removed = s.deps.Cache.ClearScope(params.Scope)
	default:
		removed = s.deps.Cache.ClearAll()
	}
	return map[string]any{"removed": removed}, nil
}

// ConfigureSemanticParams is the input of configure_semantic_search.
type ConfigureSemanticParams struct {
	Index         string                      `json:"index,omitempty"`
	Configuration *searchsvc.SemanticSettings `json:"configuration"`
}

// ConfigureSemanticSearch replaces the semantic configuration of an
// index.
func (s *Service) ConfigureSemanticSearch(ctx context.Context, params *ConfigureSemanticParams) (any, error) {
	if params.Configuration == nil || len(params.Configuration.Configurations) == 0 {
		return nil, errors.Validation("configuration", "at least one semantic configuration is required")
	}
	index := params.Index
	if index == "" {
		index = s.cfg.Search.IndexName
	}
	schema, err := s.deps.Ops.ConfigureSemanticSearch(ctx, index, params.Configuration)
	if err != nil {
		return nil, err
	}
	s.invalidateSearchCache()
	return map[string]any{
		"index":          schema.Name,
		"configurations": len(schema.Semantic.Configurations),
	}, nil
}
