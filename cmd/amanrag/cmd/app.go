package cmd

import (
	"github.com/Aman-CERP/amanrag/configs"
	"github.com/Aman-CERP/amanrag/internal/cache"
	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/feedback"
	"github.com/Aman-CERP/amanrag/internal/indexer"
	"github.com/Aman-CERP/amanrag/internal/indexops"
	"github.com/Aman-CERP/amanrag/internal/query"
	"github.com/Aman-CERP/amanrag/internal/rank"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
	"github.com/Aman-CERP/amanrag/internal/tools"
)

// app wires the full pipeline behind the serve, index, and admin
// commands. Close releases resources in reverse construction order.
type app struct {
	cfg      *config.Config
	client   *searchsvc.Client
	embedder embed.Provider
	store    *feedback.Store
	ops      *indexops.Manager
	indexer  *indexer.Indexer
	registry *tools.Registry
	closers  []func()
}

// buildApp constructs every collaborator from config. The admin key
// authorizes the shared client; a separate query-key client serves the
// read path when one is configured.
func buildApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	client, err := searchsvc.NewClient(searchsvc.Config{
		Endpoint:   cfg.Search.Endpoint,
		APIKey:     cfg.Search.AdminKey,
		APIVersion: cfg.Search.APIVersion,
		Index:      cfg.Search.IndexName,
		Timeout:    cfg.Search.Timeout,
	})
	if err != nil {
		return nil, err
	}
	a.client = client

	queryClient := client
	if cfg.Search.QueryKey != "" {
		queryClient, err = searchsvc.NewClient(searchsvc.Config{
			Endpoint:   cfg.Search.Endpoint,
			APIKey:     cfg.Search.QueryKey,
			APIVersion: cfg.Search.APIVersion,
			Index:      cfg.Search.IndexName,
			Timeout:    cfg.Search.Timeout,
		})
		if err != nil {
			return nil, err
		}
	}

	a.embedder, err = embed.NewProvider(cfg.Embed)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { a.embedder.Close() })

	shared := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)

	retrieverOpts := []search.RetrieverOption{
		search.WithSemanticConfiguration(cfg.Search.SemanticConfiguration),
		search.WithTimeout(cfg.Search.Timeout),
	}
	if cfg.Cache.Enabled {
		retrieverOpts = append(retrieverOpts, search.WithCache(shared))
	}
	if cfg.Search.RRFConstant > 0 {
		retrieverOpts = append(retrieverOpts, search.WithRRFConstant(cfg.Search.RRFConstant))
	}
	retriever, err := search.NewRetriever(queryClient, a.embedder, cfg.Search.IndexName, retrieverOpts...)
	if err != nil {
		return nil, err
	}

	if cfg.Feedback.Dir != "" {
		a.store, err = feedback.NewStore(cfg.Feedback.Dir,
			feedback.WithAggregateInterval(cfg.Feedback.AggregateInterval),
			feedback.WithWindowDays(cfg.Feedback.WindowDays))
		if err != nil {
			return nil, err
		}
		if err := a.store.Start(); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = a.store.Stop() })
	}

	a.ops, err = indexops.NewManager(client, a.embedder)
	if err != nil {
		return nil, err
	}
	a.indexer, err = indexer.New(newChunker, a.embedder, client, cfg.Indexing)
	if err != nil {
		return nil, err
	}

	schema, err := configs.IndexSchema()
	if err != nil {
		return nil, err
	}

	// A typed nil store must not become a non-nil Source interface.
	var weightSource feedback.Source
	if a.store != nil {
		weightSource = a.store
	}

	service, err := tools.NewService(cfg, tools.Deps{
		Shaper:     query.NewShaper(),
		Retriever:  retriever,
		Ranker:     rank.NewRanker(weightSource),
		Cache:      shared,
		Client:     client,
		Embedder:   a.embedder,
		Ops:        a.ops,
		Indexer:    a.indexer,
		Feedback:   a.store,
		NewChunker: newChunker,
		Schema:     schema,
	})
	if err != nil {
		return nil, err
	}

	a.registry = tools.NewRegistry(
		tools.WithRequireMFA(cfg.Auth.RequireMFAForAdmin),
		tools.WithDevMode(cfg.Server.DevMode),
	)
	if err := service.RegisterAll(a.registry); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newChunker() chunk.Chunker { return chunk.NewCodeChunker() }
