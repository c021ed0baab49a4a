package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/Aman-CERP/amanrag/internal/errors"
)

// walkFile is one discovered file handed to the chunking workers.
type walkFile struct {
	RelPath string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// walker discovers indexable files under a root: include globs, exclude
// globs, nested .gitignore files, a per-file size cap, and a total file
// cap in that order.
type walker struct {
	root        string
	include     []glob.Glob
	exclude     []glob.Glob
	ignore      *ignoreMatcher
	maxFileSize int64
	maxFiles    int
}

func newWalker(root string, include, exclude []string, maxFileSizeMB, maxFiles int) (*walker, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation, "repository root", err)
	}
	if !info.IsDir() {
		return nil, errors.Validation("root", "must be a directory")
	}

	w := &walker{
		root:        root,
		ignore:      newIgnoreMatcher(),
		maxFileSize: int64(maxFileSizeMB) * 1024 * 1024,
		maxFiles:    maxFiles,
	}
	if w.include, err = compileGlobs(include); err != nil {
		return nil, err
	}
	if w.exclude, err = compileGlobs(exclude); err != nil {
		return nil, err
	}
	return w, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Newf(errors.KindValidation, "bad glob pattern %q", p)
		}
		out = append(out, g)
	}
	return out, nil
}

// walk streams files into out. It closes nothing; the caller owns the
// channel. Stops early when the file cap is reached.
func (w *walker) walk(ctx context.Context, out chan<- walkFile) (int, error) {
	seen := 0
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && d.Name() != "." {
				return filepath.SkipDir
			}
			if w.excluded(rel) || w.ignore.Ignored(rel, true) {
				return filepath.SkipDir
			}
			// Nested ignore files scope their rules to this directory.
			if gi := filepath.Join(path, ".gitignore"); fileExists(gi) {
				_ = w.ignore.AddFile(gi, rel)
			}
			return nil
		}

		if !w.includable(rel) || w.excluded(rel) || w.ignore.Ignored(rel, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil // deleted mid-walk
		}
		if w.maxFileSize > 0 && info.Size() > w.maxFileSize {
			return nil
		}

		select {
		case out <- walkFile{RelPath: rel, AbsPath: path, Size: info.Size(), ModTime: info.ModTime()}:
		case <-ctx.Done():
			return ctx.Err()
		}
		seen++
		if w.maxFiles > 0 && seen >= w.maxFiles {
			return fs.SkipAll
		}
		return nil
	})
	return seen, err
}

// loadRootIgnore loads the root .gitignore before walking.
func (w *walker) loadRootIgnore() {
	if gi := filepath.Join(w.root, ".gitignore"); fileExists(gi) {
		_ = w.ignore.AddFile(gi, "")
	}
}

func (w *walker) includable(rel string) bool {
	if len(w.include) == 0 {
		return true
	}
	for _, g := range w.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (w *walker) excluded(rel string) bool {
	for _, g := range w.exclude {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
