// Package indexops automates index lifecycle: ensure, recreate with
// backup, schema validation, embedding backfill and validation, and
// document cleanup. Every operation is idempotent; re-execution with
// identical inputs converges to the same state. Operations on the same
// index are serialized with a file lock so concurrent processes cannot
// interleave destructive steps.
package indexops

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

const (
	// lockRetryInterval paces file-lock acquisition attempts.
	lockRetryInterval = 100 * time.Millisecond

	// pageSize is the document page size for streaming operations.
	pageSize = 500
)

// Manager runs index automation against one search service.
type Manager struct {
	client   *searchsvc.Client
	embedder embed.Provider
	lockDir  string
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLockDir places the inter-process lock files. Defaults to the OS
// temp directory.
func WithLockDir(dir string) ManagerOption {
	return func(m *Manager) {
		if dir != "" {
			m.lockDir = dir
		}
	}
}

// NewManager creates an index automation manager. The client must carry
// admin credentials; the embedder may be disabled, which turns the
// backfill operations into no-ops that report zero coverage.
func NewManager(client *searchsvc.Client, embedder embed.Provider, opts ...ManagerOption) (*Manager, error) {
	if client == nil {
		return nil, errors.New(errors.KindInternal, "indexops requires a search client")
	}
	if embedder == nil {
		embedder = embed.DisabledProvider{}
	}
	m := &Manager{
		client:   client,
		embedder: embedder,
		lockDir:  os.TempDir(),
		logger:   slog.Default().With("component", "indexops"),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// lock serializes operations per index across goroutines and processes.
// The returned function releases both locks.
func (m *Manager) lock(ctx context.Context, index string) (func(), error) {
	m.mu.Lock()
	local, ok := m.locks[index]
	if !ok {
		local = &sync.Mutex{}
		m.locks[index] = local
	}
	m.mu.Unlock()
	local.Lock()

	fl := flock.New(filepath.Join(m.lockDir, "amanrag-index-"+index+".lock"))
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil || !locked {
		local.Unlock()
		if err == nil {
			err = errors.Newf(errors.KindConflict, "index %s is locked by another process", index)
		} else {
			err = errors.Wrap(errors.KindConflict, "acquire index lock", err)
		}
		return nil, err
	}
	return func() {
		_ = fl.Unlock()
		local.Unlock()
	}, nil
}

// pageDocuments streams documents in id order starting after cursor.
// fn returning false stops iteration.
func (m *Manager) pageDocuments(ctx context.Context, index, filter, selectFields, cursor string, fn func(doc *searchsvc.Document) bool) (string, error) {
	for {
		pageFilter := filter
		if cursor != "" {
			cond := "id gt '" + escapeFilterLiteral(cursor) + "'"
			if pageFilter != "" {
				pageFilter = pageFilter + " and " + cond
			} else {
				pageFilter = cond
			}
		}
		resp, err := m.client.Search(ctx, index, &searchsvc.SearchRequest{
			Search:  "*",
			Filter:  pageFilter,
			OrderBy: "id asc",
			Select:  selectFields,
			Top:     pageSize,
		})
		if err != nil {
			return cursor, err
		}
		if len(resp.Value) == 0 {
			return cursor, nil
		}
		for i := range resp.Value {
			doc := &resp.Value[i].Document
			cursor = doc.ID
			if !fn(doc) {
				return cursor, nil
			}
		}
		if len(resp.Value) < pageSize {
			return cursor, nil
		}
	}
}
