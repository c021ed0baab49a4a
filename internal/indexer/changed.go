package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// IndexChangedFiles re-indexes an explicit file list without walking the
// repository. Paths are relative to opts.Root. A path that no longer
// exists has its chunks deleted. Chunk start lines shift when files
// change, so each file's existing chunks are removed before the new ones
// are uploaded.
func (ix *Indexer) IndexChangedFiles(ctx context.Context, opts Options, paths []string) (*Report, error) {
	if opts.Repository == "" {
		return nil, errors.Validation("repository", "a repository name is required")
	}
	if len(paths) == 0 {
		return &Report{Repository: opts.Repository}, nil
	}

	started := time.Now()
	report := &Report{Repository: opts.Repository}
	embedEnabled := opts.Embed && ix.embedder.Available(ctx)
	chunker := ix.newChunker()
	defer closeChunker(chunker)

	for _, rel := range paths {
		rel = filepath.ToSlash(filepath.Clean(rel))
		if strings.HasPrefix(rel, "../") || filepath.IsAbs(rel) {
			ix.logger.Warn("path outside repository root, skipping", "file", rel)
			report.Skipped++
			continue
		}

		if err := ix.deleteFileChunks(ctx, opts, rel); err != nil {
			ix.logger.Warn("stale chunk cleanup failed", "file", rel, "error", err)
		}

		abs := filepath.Join(opts.Root, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if os.IsNotExist(err) {
			report.Files++ // deletion handled above
			continue
		}
		if err != nil {
			report.Failed++
			continue
		}

		content, err := os.ReadFile(abs)
		if err != nil || isBinary(content) {
			report.Skipped++
			continue
		}
		chunks, err := chunker.Chunk(ctx, &chunk.FileInput{
			Repository: opts.Repository,
			Path:       rel,
			Content:    content,
		})
		if err != nil {
			ix.logger.Warn("chunking failed, skipping", "file", rel, "error", err)
			report.Failed++
			continue
		}

		batch := make([]searchsvc.Document, len(chunks))
		for i, ck := range chunks {
			batch[i] = documentFromChunk(ck, info.ModTime())
		}
		if embedEnabled {
			ix.attachVectors(ctx, batch)
		}
		if _, err := ix.client.UploadDocuments(ctx, opts.Index, batch); err != nil {
			report.Failed += len(batch)
			continue
		}
		report.Files++
		report.Chunks += len(batch)
		report.Uploaded += len(batch)
	}

	report.Elapsed = time.Since(started)
	ix.logger.Info("changed-files run finished",
		"repository", opts.Repository, "files", report.Files,
		"uploaded", report.Uploaded, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

// deleteFileChunks removes every indexed chunk of one file.
func (ix *Indexer) deleteFileChunks(ctx context.Context, opts Options, rel string) error {
	filter := fmt.Sprintf("repository eq '%s' and file_path eq '%s'",
		escapeLiteral(opts.Repository), escapeLiteral(rel))

	resp, err := ix.client.Search(ctx, opts.Index, &searchsvc.SearchRequest{
		Search: "*",
		Filter: filter,
		Select: "id",
		Top:    1000,
	})
	if err != nil {
		return err
	}
	if len(resp.Value) == 0 {
		return nil
	}
	keys := make([]string, len(resp.Value))
	for i, hit := range resp.Value {
		keys[i] = hit.ID
	}
	_, err = ix.client.DeleteDocuments(ctx, opts.Index, keys)
	return err
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
