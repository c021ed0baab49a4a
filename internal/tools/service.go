package tools

import (
	"log/slog"
	"time"

	"github.com/Aman-CERP/amanrag/internal/auth"
	"github.com/Aman-CERP/amanrag/internal/cache"
	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/feedback"
	"github.com/Aman-CERP/amanrag/internal/indexer"
	"github.com/Aman-CERP/amanrag/internal/indexops"
	"github.com/Aman-CERP/amanrag/internal/query"
	"github.com/Aman-CERP/amanrag/internal/rank"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// queryRecordScope prefixes cache keys for recently served search pages,
// kept so explain_ranking and click tracking can reference them by
// query_id.
const queryRecordScope = "query"

// Deps are the collaborators behind the tool handlers.
type Deps struct {
	Shaper    *query.Shaper
	Retriever *search.Retriever
	Ranker    *rank.Ranker
	Cache     *cache.Cache
	Client    *searchsvc.Client
	Embedder  embed.Provider
	Ops       *indexops.Manager
	Indexer   *indexer.Indexer
	// Feedback may be nil; feedback tools then report the dependency as
	// unavailable instead of failing registration.
	Feedback *feedback.Store
	// NewChunker builds per-call chunkers for analyze_context.
	NewChunker func() chunk.Chunker
	// Schema is the canonical index schema used by manage_index and
	// rebuild_index.
	Schema *searchsvc.IndexSchema
}

// Service implements every tool handler over the shared pipeline.
type Service struct {
	cfg     *config.Config
	deps    Deps
	started time.Time
	logger  *slog.Logger
}

// NewService validates the dependency set and builds the handler service.
func NewService(cfg *config.Config, deps Deps) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindInternal, "service requires a config")
	}
	if deps.Shaper == nil || deps.Retriever == nil || deps.Ranker == nil {
		return nil, errors.New(errors.KindInternal, "service requires the query pipeline (shaper, retriever, ranker)")
	}
	if deps.Cache == nil {
		return nil, errors.New(errors.KindInternal, "service requires a cache")
	}
	if deps.Client == nil || deps.Ops == nil || deps.Indexer == nil {
		return nil, errors.New(errors.KindInternal, "service requires the admin pipeline (client, ops, indexer)")
	}
	if deps.Embedder == nil {
		deps.Embedder = embed.DisabledProvider{}
	}
	if deps.NewChunker == nil {
		deps.NewChunker = func() chunk.Chunker { return chunk.NewCodeChunker() }
	}
	return &Service{
		cfg:     cfg,
		deps:    deps,
		started: time.Now(),
		logger:  slog.Default().With("component", "tools"),
	}, nil
}

// RegisterAll installs the complete tool surface on a registry.
func (s *Service) RegisterAll(r *Registry) error {
	table := []*Tool{
		// Public tier.
		{Name: "search_code", Tier: auth.TierPublic, Params: SearchCodeParams{},
			Description: "Search indexed code with hybrid retrieval, contextual ranking, and pagination",
			Handler:     typed(s.SearchCode)},
		{Name: "search_code_raw", Tier: auth.TierPublic, Params: SearchCodeParams{},
			Description: "Search indexed code returning the fused retrieval page without contextual re-ranking",
			Handler:     typed(s.SearchCodeRaw)},
		{Name: "explain_ranking", Tier: auth.TierPublic, Params: ExplainRankingParams{},
			Description: "Explain why results of a recent query ranked where they did",
			Handler:     typed(s.ExplainRanking)},
		{Name: "preview_query_processing", Tier: auth.TierPublic, Params: PreviewQueryParams{},
			Description: "Show how a query would be sanitized, classified, rewritten, and filtered",
			Handler:     typed(s.PreviewQueryProcessing)},
		{Name: "health_check", Tier: auth.TierPublic,
			Description: "Report service liveness and subsystem state",
			Handler:     typed(s.HealthCheck)},
		{Name: "index_status", Tier: auth.TierPublic, Params: IndexStatusParams{},
			Description: "Report document count, storage size, and schema capabilities of an index",
			Handler:     typed(s.IndexStatus)},
		{Name: "cache_stats", Tier: auth.TierPublic,
			Description: "Report search cache hit, miss, and eviction counters",
			Handler:     typed(s.CacheStats)},

		// Developer tier.
		{Name: "generate_code", Tier: auth.TierDeveloper, Params: GenerateCodeParams{},
			Description: "Assemble a generation prompt grounded in retrieved code examples",
			Handler:     typed(s.GenerateCode)},
		{Name: "analyze_context", Tier: auth.TierDeveloper, Params: AnalyzeContextParams{},
			Description: "Analyze a source file and find related indexed code",
			Handler:     typed(s.AnalyzeContext)},
		{Name: "submit_feedback", Tier: auth.TierDeveloper, Params: SubmitFeedbackParams{},
			Description: "Rate the results of a recent query",
			Handler:     typed(s.SubmitFeedback)},
		{Name: "track_search_click", Tier: auth.TierDeveloper, Params: TrackClickParams{},
			Description: "Record that a result of a recent query was opened",
			Handler:     typed(s.TrackSearchClick)},
		{Name: "track_search_outcome", Tier: auth.TierDeveloper, Params: TrackOutcomeParams{},
			Description: "Record whether a recent query led to a successful task outcome",
			Handler:     typed(s.TrackSearchOutcome)},

		// Admin tier.
		{Name: "manage_index", Tier: auth.TierAdmin, Params: ManageIndexParams{},
			Description: "Ensure, validate, inspect, list, or delete search indexes",
			Handler:     typed(s.ManageIndex)},
		{Name: "manage_documents", Tier: auth.TierAdmin, Params: ManageDocumentsParams{},
			Description: "Upload, delete, or count documents in an index",
			Handler:     typed(s.ManageDocuments)},
		{Name: "manage_indexer", Tier: auth.TierAdmin, Params: ManageIndexerParams{},
			Description: "List, inspect, run, reset, create, or delete service-side indexers",
			Handler:     typed(s.ManageIndexer)},
		{Name: "create_datasource", Tier: auth.TierAdmin, Params: CreateDataSourceParams{},
			Description: "Create or update an indexer data source",
			Handler:     typed(s.CreateDataSource)},
		{Name: "create_skillset", Tier: auth.TierAdmin, Params: CreateSkillsetParams{},
			Description: "Create or update an enrichment skillset",
			Handler:     typed(s.CreateSkillset)},
		{Name: "rebuild_index", Tier: auth.TierAdmin, Destructive: true, Params: RebuildIndexParams{},
			Description: "Drop and recreate the index from the canonical schema, exporting documents first",
			Handler:     typed(s.RebuildIndex)},
		{Name: "index_repository", Tier: auth.TierAdmin, Params: IndexRepositoryParams{},
			Description: "Walk a repository and index its source files",
			Handler:     typed(s.IndexRepository)},
		{Name: "index_changed_files", Tier: auth.TierAdmin, Params: IndexChangedFilesParams{},
			Description: "Re-index an explicit list of changed files",
			Handler:     typed(s.IndexChangedFiles)},
		{Name: "backfill_embeddings", Tier: auth.TierAdmin, Params: BackfillEmbeddingsParams{},
			Description: "Attach vectors to documents that lack them, resumably",
			Handler:     typed(s.BackfillEmbeddings)},
		{Name: "validate_embeddings", Tier: auth.TierAdmin, Params: ValidateEmbeddingsParams{},
			Description: "Sample documents and verify vector presence and dimension",
			Handler:     typed(s.ValidateEmbeddings)},
		{Name: "backup_index_schema", Tier: auth.TierAdmin, Params: BackupSchemaParams{},
			Description: "Write the live index schema to a timestamped file",
			Handler:     typed(s.BackupIndexSchema)},
		{Name: "clear_repository_documents", Tier: auth.TierAdmin, Destructive: true, Params: ClearRepositoryParams{},
			Description: "Delete every indexed document of one repository",
			Handler:     typed(s.ClearRepositoryDocuments)},
		{Name: "cache_clear", Tier: auth.TierAdmin, Destructive: true, Params: CacheClearParams{},
			Description: "Clear the search cache, optionally by scope or pattern",
			Handler:     typed(s.CacheClear)},
		{Name: "configure_semantic_search", Tier: auth.TierAdmin, Params: ConfigureSemanticParams{},
			Description: "Replace the semantic configuration of an index",
			Handler:     typed(s.ConfigureSemanticSearch)},
		{Name: "get_service_info", Tier: auth.TierAdmin,
			Description: "Report search service statistics, embedder state, and build info",
			Handler:     typed(s.GetServiceInfo)},
	}

	for _, t := range table {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// invalidateSearchCache drops memoized search pages after index mutations.
func (s *Service) invalidateSearchCache() {
	removed := s.deps.Cache.ClearScope(search.CacheScope)
	if removed > 0 {
		s.logger.Debug("search cache invalidated", "entries", removed)
	}
}
