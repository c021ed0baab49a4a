// Package indexer walks repositories, chunks source files, optionally
// embeds the chunks, and uploads them to the search index. The pipeline
// is a worker pool with back-pressure: a bounded channel between the
// walker and the chunking workers, another between workers and the
// uploader. Single-file failures are logged and counted, never fatal.
package indexer

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// binaryProbeSize is how many leading bytes are checked for NUL when
// deciding whether a file is binary.
const binaryProbeSize = 8 * 1024

// Options selects what one indexing run covers.
type Options struct {
	// Repository is the logical repository name stored on every chunk.
	Repository string
	// Root is the directory to walk.
	Root string
	// Index overrides the client's default index.
	Index string
	// Embed attaches content vectors during upload when the provider is
	// available.
	Embed bool
}

// Report aggregates one indexing run.
type Report struct {
	Repository string        `json:"repository"`
	Files      int           `json:"files"`
	Chunks     int           `json:"chunks"`
	Uploaded   int           `json:"uploaded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Indexer drives the walk-chunk-embed-upload pipeline. Tree-sitter
// parsers are not safe for concurrent use, so each worker builds its own
// chunker from the factory.
type Indexer struct {
	newChunker func() chunk.Chunker
	embedder   embed.Provider
	client     *searchsvc.Client
	cfg        config.IndexingConfig
	logger     *slog.Logger
}

// New creates an indexer. The chunker factory and client are required; a
// nil embedder disables vector generation.
func New(newChunker func() chunk.Chunker, embedder embed.Provider, client *searchsvc.Client, cfg config.IndexingConfig) (*Indexer, error) {
	if newChunker == nil {
		return nil, errors.New(errors.KindInternal, "indexer requires a chunker factory")
	}
	if client == nil {
		return nil, errors.New(errors.KindInternal, "indexer requires a search client")
	}
	if embedder == nil {
		embedder = embed.DisabledProvider{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Indexer{
		newChunker: newChunker,
		embedder:   embedder,
		client:     client,
		cfg:        cfg,
		logger:     slog.Default().With("component", "indexer"),
	}, nil
}

// Run indexes a whole repository.
func (ix *Indexer) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Repository == "" {
		return nil, errors.Validation("repository", "a repository name is required")
	}
	w, err := newWalker(opts.Root, ix.cfg.Include, ix.cfg.Exclude, ix.cfg.MaxFileSizeMB, ix.cfg.MaxFiles)
	if err != nil {
		return nil, err
	}
	w.loadRootIgnore()

	started := time.Now()
	report := &Report{Repository: opts.Repository}
	files := make(chan walkFile, ix.cfg.Workers*2)
	docs := make(chan searchsvc.Document, ix.cfg.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(files)
		_, err := w.walk(gctx, files)
		return err
	})

	var workers errgroup.Group
	counts := newCounter()
	for range ix.cfg.Workers {
		workers.Go(func() error {
			chunker := ix.newChunker()
			defer closeChunker(chunker)
			for f := range files {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				ix.processFile(gctx, chunker, opts.Repository, f, docs, counts)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(docs)
		return workers.Wait()
	})
	g.Go(func() error {
		return ix.upload(gctx, opts, docs, counts)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	counts.fill(report)
	report.Elapsed = time.Since(started)
	ix.logger.Info("indexing run finished",
		"repository", opts.Repository, "files", report.Files, "chunks", report.Chunks,
		"uploaded", report.Uploaded, "failed", report.Failed, "skipped", report.Skipped,
		"elapsed", report.Elapsed)
	return report, nil
}

// processFile chunks one file and forwards its documents.
func (ix *Indexer) processFile(ctx context.Context, chunker chunk.Chunker, repository string, f walkFile, docs chan<- searchsvc.Document, counts *counter) {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		ix.logger.Warn("read failed, skipping", "file", f.RelPath, "error", err)
		counts.add(func(c *tally) { c.failed++ })
		return
	}
	if isBinary(content) {
		counts.add(func(c *tally) { c.skipped++ })
		return
	}

	chunks, err := chunker.Chunk(ctx, &chunk.FileInput{
		Repository: repository,
		Path:       f.RelPath,
		Content:    content,
	})
	if err != nil {
		ix.logger.Warn("chunking failed, skipping", "file", f.RelPath, "error", err)
		counts.add(func(c *tally) { c.failed++ })
		return
	}

	counts.add(func(c *tally) {
		c.files++
		c.chunks += len(chunks)
	})
	for _, ck := range chunks {
		doc := documentFromChunk(ck, f.ModTime)
		select {
		case docs <- doc:
		case <-ctx.Done():
			return
		}
	}
}

// upload batches documents, attaches vectors when requested, and writes
// them through the search client. A failed batch counts its documents
// and moves on.
func (ix *Indexer) upload(ctx context.Context, opts Options, docs <-chan searchsvc.Document, counts *counter) error {
	embedEnabled := opts.Embed && ix.embedder.Available(ctx)
	batch := make([]searchsvc.Document, 0, ix.cfg.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if embedEnabled {
			ix.attachVectors(ctx, batch)
		}
		if _, err := ix.client.UploadDocuments(ctx, opts.Index, batch); err != nil {
			ix.logger.Warn("upload batch failed", "size", len(batch), "error", err)
			counts.add(func(c *tally) { c.failed += len(batch) })
		} else {
			counts.add(func(c *tally) { c.uploaded += len(batch) })
		}
		batch = batch[:0]
	}

	for doc := range docs {
		batch = append(batch, doc)
		if len(batch) >= ix.cfg.BatchSize {
			flush()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	flush()
	return nil
}

// attachVectors embeds batch contents in place. Embedding failure leaves
// the documents vectorless; BM25 still covers them.
func (ix *Indexer) attachVectors(ctx context.Context, batch []searchsvc.Document) {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Content
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		ix.logger.Warn("embedding batch failed, uploading without vectors", "error", err)
		return
	}
	for i := range batch {
		if i < len(vectors) && len(vectors[i]) > 0 {
			batch[i].ContentVector = vectors[i]
		}
	}
}

func documentFromChunk(ck *chunk.Chunk, modTime time.Time) searchsvc.Document {
	return searchsvc.Document{
		ID:              ck.ID,
		Repository:      ck.Repository,
		FilePath:        ck.FilePath,
		Language:        ck.Language,
		StartLine:       ck.StartLine,
		EndLine:         ck.EndLine,
		FunctionName:    ck.FunctionName,
		ClassName:       ck.ClassName,
		Content:         ck.Content,
		Signature:       ck.Signature,
		Docstring:       ck.Docstring,
		Imports:         ck.Imports,
		CalledFunctions: ck.CalledFunctions,
		LastModified:    modTime.UTC(),
	}
}

// closeChunker releases parser resources for chunkers that hold any.
func closeChunker(c chunk.Chunker) {
	if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
}

func isBinary(content []byte) bool {
	probe := content
	if len(probe) > binaryProbeSize {
		probe = probe[:binaryProbeSize]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

// counter is the mutex-guarded run tally shared by workers.
type tally struct {
	files, chunks, uploaded, failed, skipped int
}

type counter struct {
	mu sync.Mutex
	c  tally
}

func newCounter() *counter { return &counter{} }

func (c *counter) add(fn func(*tally)) {
	c.mu.Lock()
	fn(&c.c)
	c.mu.Unlock()
}

func (c *counter) fill(r *Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.Files = c.c.files
	r.Chunks = c.c.chunks
	r.Uploaded = c.c.uploaded
	r.Failed = c.c.failed
	r.Skipped = c.c.skipped
}
