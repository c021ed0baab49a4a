package indexops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/searchsvc"
)

// fakeService is an in-memory search service covering the endpoints the
// automation manager touches.
type fakeService struct {
	mu         sync.Mutex
	schemas    map[string]*searchsvc.IndexSchema
	docs       map[string]map[string]searchsvc.Document
	lastFilter string
}

func newFakeService() *fakeService {
	return &fakeService{
		schemas: make(map[string]*searchsvc.IndexSchema),
		docs:    make(map[string]map[string]searchsvc.Document),
	}
}

func (f *fakeService) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		path := strings.TrimPrefix(r.URL.Path, "/indexes/")
		switch {
		case strings.HasSuffix(r.URL.Path, "/docs/search"):
			name := strings.TrimSuffix(path, "/docs/search")
			f.search(w, r, name)
		case strings.HasSuffix(r.URL.Path, "/docs/index"):
			name := strings.TrimSuffix(path, "/docs/index")
			f.index(w, r, name)
		case strings.HasSuffix(r.URL.Path, "/stats"):
			name := strings.TrimSuffix(path, "/stats")
			_ = json.NewEncoder(w).Encode(searchsvc.IndexStats{
				DocumentCount: int64(len(f.docs[name])),
			})
		default:
			f.schema(w, r, path)
		}
	})
}

func (f *fakeService) schema(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodGet:
		schema, ok := f.schemas[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(schema)
	case http.MethodPut:
		var schema searchsvc.IndexSchema
		_ = json.NewDecoder(r.Body).Decode(&schema)
		f.schemas[name] = &schema
		if _, ok := f.docs[name]; !ok {
			f.docs[name] = make(map[string]searchsvc.Document)
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		delete(f.schemas, name)
		delete(f.docs, name)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeService) search(w http.ResponseWriter, r *http.Request, name string) {
	var req searchsvc.SearchRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.lastFilter = req.Filter

	var ids []string
	for id := range f.docs[name] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var hits []searchsvc.SearchHit
	for _, id := range ids {
		doc := f.docs[name][id]
		if !matchFilter(&doc, req.Filter) {
			continue
		}
		hits = append(hits, searchsvc.SearchHit{Document: doc})
		if req.Top > 0 && len(hits) >= req.Top {
			break
		}
	}
	_ = json.NewEncoder(w).Encode(searchsvc.SearchResponse{
		Count: int64(len(hits)),
		Value: hits,
	})
}

func matchFilter(doc *searchsvc.Document, filter string) bool {
	if filter == "" {
		return true
	}
	for _, clause := range strings.Split(filter, " and ") {
		switch {
		case strings.HasPrefix(clause, "id gt '"):
			v := strings.TrimSuffix(strings.TrimPrefix(clause, "id gt '"), "'")
			if !(doc.ID > v) {
				return false
			}
		case strings.HasPrefix(clause, "repository eq '"):
			v := strings.TrimSuffix(strings.TrimPrefix(clause, "repository eq '"), "'")
			if doc.Repository != strings.ReplaceAll(v, "''", "'") {
				return false
			}
		case strings.HasPrefix(clause, "last_modified lt "):
			cutoff, err := time.Parse(time.RFC3339, strings.TrimPrefix(clause, "last_modified lt "))
			if err != nil || !doc.LastModified.Before(cutoff) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (f *fakeService) index(w http.ResponseWriter, r *http.Request, name string) {
	var batch searchsvc.IndexBatch
	_ = json.NewDecoder(r.Body).Decode(&batch)
	if _, ok := f.docs[name]; !ok {
		f.docs[name] = make(map[string]searchsvc.Document)
	}

	var results []searchsvc.IndexResult
	for _, action := range batch.Value {
		switch action.Action {
		case "delete":
			delete(f.docs[name], action.ID)
		case "merge":
			existing, ok := f.docs[name][action.ID]
			if ok {
				if len(action.ContentVector) > 0 {
					existing.ContentVector = action.ContentVector
				}
				f.docs[name][action.ID] = existing
			}
		default:
			f.docs[name][action.ID] = action.Document
		}
		results = append(results, searchsvc.IndexResult{Key: action.ID, Status: true, StatusCode: 200})
	}
	_ = json.NewEncoder(w).Encode(searchsvc.IndexBatchResponse{Value: results})
}

// fixedEmbedder returns constant three-wide vectors.
type fixedEmbedder struct {
	embed.DisabledProvider
	calls int
}

func (f *fixedEmbedder) Available(ctx context.Context) bool { return true }
func (f *fixedEmbedder) Dimensions() int                    { return 3 }

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func testSchema(name string) *searchsvc.IndexSchema {
	return &searchsvc.IndexSchema{
		Name: name,
		Fields: []searchsvc.Field{
			{Name: "id", Type: "Edm.String", Key: true, Filterable: true, Sortable: true},
			{Name: "repository", Type: "Edm.String", Filterable: true},
			{Name: "content", Type: "Edm.String", Searchable: true},
			{Name: "content_vector", Type: "Collection(Edm.Single)", Dimensions: 3},
			{Name: "last_modified", Type: "Edm.DateTimeOffset", Filterable: true},
		},
		VectorSearch: &searchsvc.VectorSearchSettings{
			Algorithms: []searchsvc.VectorAlgorithm{{Name: "hnsw-1", Kind: "hnsw"}},
			Profiles:   []searchsvc.VectorProfile{{Name: "vp", Algorithm: "hnsw-1"}},
		},
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeService, *fixedEmbedder) {
	t.Helper()
	fake := newFakeService()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client, err := searchsvc.NewClient(searchsvc.Config{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Index:    "code-chunks",
	})
	require.NoError(t, err)

	embedder := &fixedEmbedder{}
	m, err := NewManager(client, embedder, WithLockDir(t.TempDir()))
	require.NoError(t, err)
	return m, fake, embedder
}

func seedDocs(fake *fakeService, index string, docs ...searchsvc.Document) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if _, ok := fake.docs[index]; !ok {
		fake.docs[index] = make(map[string]searchsvc.Document)
	}
	for _, d := range docs {
		fake.docs[index][d.ID] = d
	}
}

func TestEnsureIndexIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	schema := testSchema("code-chunks")

	res, err := m.EnsureIndex(ctx, schema, true)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Updated)

	res, err = m.EnsureIndex(ctx, schema, true)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Updated)
}

func TestEnsureIndexUpdatesOnDrift(t *testing.T) {
	m, fake, _ := newTestManager(t)
	ctx := context.Background()

	drifted := testSchema("code-chunks")
	drifted.Fields = drifted.Fields[:3] // live index lost two fields
	fake.schemas["code-chunks"] = drifted
	fake.docs["code-chunks"] = make(map[string]searchsvc.Document)

	res, err := m.EnsureIndex(ctx, testSchema("code-chunks"), false)
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.NotEmpty(t, res.Diffs)

	res, err = m.EnsureIndex(ctx, testSchema("code-chunks"), true)
	require.NoError(t, err)
	assert.True(t, res.Updated)

	res, err = m.EnsureIndex(ctx, testSchema("code-chunks"), true)
	require.NoError(t, err)
	assert.False(t, res.Updated)
}

func TestValidateIndexSchema(t *testing.T) {
	m, fake, _ := newTestManager(t)
	ctx := context.Background()

	live := testSchema("code-chunks")
	live.Fields = live.Fields[:2]
	live.VectorSearch = nil
	fake.schemas["code-chunks"] = live

	report, err := m.ValidateIndexSchema(ctx, "", testSchema("code-chunks"))
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Contains(t, report.MissingFields, "content_vector")
	assert.False(t, report.VectorSearch)
}

func TestRecreateIndexWithBackup(t *testing.T) {
	m, fake, _ := newTestManager(t)
	ctx := context.Background()
	schema := testSchema("code-chunks")

	_, err := m.EnsureIndex(ctx, schema, true)
	require.NoError(t, err)
	seedDocs(fake, "code-chunks",
		searchsvc.Document{ID: "a", Content: "one"},
		searchsvc.Document{ID: "b", Content: "two"},
	)

	res, err := m.RecreateIndex(ctx, schema, true, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, res.DocsSaved)

	data, err := os.ReadFile(res.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	fake.mu.Lock()
	assert.Empty(t, fake.docs["code-chunks"])
	fake.mu.Unlock()
}

func TestBackfillEmbeddings(t *testing.T) {
	m, fake, embedder := newTestManager(t)
	ctx := context.Background()

	_, err := m.EnsureIndex(ctx, testSchema("code-chunks"), true)
	require.NoError(t, err)
	seedDocs(fake, "code-chunks",
		searchsvc.Document{ID: "a", Content: "alpha"},
		searchsvc.Document{ID: "b", Content: "beta", ContentVector: []float32{1, 2, 3}},
		searchsvc.Document{ID: "c", Content: "gamma"},
		searchsvc.Document{ID: "d"}, // no content, skipped
	)

	res, err := m.BackfillEmbeddings(ctx, BackfillOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Scanned)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	assert.True(t, res.Done)
	assert.Positive(t, embedder.calls)

	fake.mu.Lock()
	assert.Len(t, fake.docs["code-chunks"]["a"].ContentVector, 3)
	assert.Len(t, fake.docs["code-chunks"]["c"].ContentVector, 3)
	fake.mu.Unlock()

	// Converged: nothing left to update.
	res, err = m.BackfillEmbeddings(ctx, BackfillOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
}

func TestBackfillResumable(t *testing.T) {
	m, fake, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.EnsureIndex(ctx, testSchema("code-chunks"), true)
	require.NoError(t, err)
	seedDocs(fake, "code-chunks",
		searchsvc.Document{ID: "a", Content: "x"},
		searchsvc.Document{ID: "b", Content: "x"},
		searchsvc.Document{ID: "c", Content: "x"},
	)

	res, err := m.BackfillEmbeddings(ctx, BackfillOptions{MaxDocs: 2})
	require.NoError(t, err)
	assert.False(t, res.Done)
	assert.NotEmpty(t, res.Cursor)

	res, err = m.BackfillEmbeddings(ctx, BackfillOptions{Cursor: res.Cursor})
	require.NoError(t, err)
	assert.True(t, res.Done)

	fake.mu.Lock()
	for _, id := range []string{"a", "b", "c"} {
		assert.NotEmpty(t, fake.docs["code-chunks"][id].ContentVector, id)
	}
	fake.mu.Unlock()
}

func TestBackfillEscapesCursor(t *testing.T) {
	m, fake, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.EnsureIndex(ctx, testSchema("code-chunks"), true)
	require.NoError(t, err)
	seedDocs(fake, "code-chunks", searchsvc.Document{ID: "zz", Content: "x"})

	// The cursor is caller-supplied; a quote inside it must be doubled
	// rather than spliced into the filter verbatim.
	_, err = m.BackfillEmbeddings(ctx, BackfillOptions{Cursor: "a'b"})
	require.NoError(t, err)

	fake.mu.Lock()
	filter := fake.lastFilter
	fake.mu.Unlock()
	assert.Contains(t, filter, "id gt 'a''b'")
	assert.NotContains(t, filter, "id gt 'a'b'")
}

func TestBackfillDryRun(t *testing.T) {
	m, fake, embedder := newTestManager(t)
	ctx := context.Background()

	_, err := m.EnsureIndex(ctx, testSchema("code-chunks"), true)
	require.NoError(t, err)
	seedDocs(fake, "code-chunks", searchsvc.Document{ID: "a", Content: "x"})

	res, err := m.BackfillEmbeddings(ctx, BackfillOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 0, embedder.calls)
}

func TestValidateEmbeddings(t *testing.T) {
	m, fake, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.EnsureIndex(ctx, testSchema("code-chunks"), true)
	require.NoError(t, err)
	seedDocs(fake, "code-chunks",
		searchsvc.Document{ID: "a", ContentVector: []float32{1, 2, 3}},
		searchsvc.Document{ID: "b", ContentVector: []float32{1, 2}}, // wrong width
		searchsvc.Document{ID: "c"},
	)

	report, err := m.ValidateEmbeddings(ctx, "", 10, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Sampled)
	assert.Equal(t, 2, report.WithVector)
	assert.Equal(t, 1, report.BadDim)
	assert.InDelta(t, 2.0/3.0, report.Coverage, 1e-9)
	assert.False(t, report.OK)
}

func TestCleanupOldDocuments(t *testing.T) {
	m, fake, _ := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := m.EnsureIndex(ctx, testSchema("code-chunks"), true)
	require.NoError(t, err)
	seedDocs(fake, "code-chunks",
		searchsvc.Document{ID: "old", LastModified: now.AddDate(0, 0, -90)},
		searchsvc.Document{ID: "new", LastModified: now},
	)

	res, err := m.CleanupOldDocuments(ctx, "", "last_modified", 30, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 0, res.Deleted)

	res, err = m.CleanupOldDocuments(ctx, "", "last_modified", 30, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	// Idempotent: a re-run matches nothing.
	res, err = m.CleanupOldDocuments(ctx, "", "last_modified", 30, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)
}

func TestClearRepositoryDocuments(t *testing.T) {
	m, fake, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.EnsureIndex(ctx, testSchema("code-chunks"), true)
	require.NoError(t, err)
	seedDocs(fake, "code-chunks",
		searchsvc.Document{ID: "a", Repository: "repo-one"},
		searchsvc.Document{ID: "b", Repository: "repo-two"},
	)

	res, err := m.ClearRepositoryDocuments(ctx, "", "repo-one", false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	fake.mu.Lock()
	_, gone := fake.docs["code-chunks"]["a"]
	_, kept := fake.docs["code-chunks"]["b"]
	fake.mu.Unlock()
	assert.False(t, gone)
	assert.True(t, kept)
}

func TestConfigureSemanticSearch(t *testing.T) {
	m, fake, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.EnsureIndex(ctx, testSchema("code-chunks"), true)
	require.NoError(t, err)

	settings := &searchsvc.SemanticSettings{
		Configurations: []searchsvc.SemanticConfiguration{{
			Name: "default",
			PrioritizedFields: searchsvc.SemanticFieldLayout{
				ContentFields: []searchsvc.SemanticField{{FieldName: "content"}},
			},
		}},
	}
	schema, err := m.ConfigureSemanticSearch(ctx, "", settings)
	require.NoError(t, err)
	require.NotNil(t, schema.Semantic)

	fake.mu.Lock()
	assert.NotNil(t, fake.schemas["code-chunks"].Semantic)
	fake.mu.Unlock()

	_, err = m.ConfigureSemanticSearch(ctx, "", &searchsvc.SemanticSettings{})
	assert.Error(t, err)
}

func TestBackupIndexSchema(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.EnsureIndex(ctx, testSchema("code-chunks"), true)
	require.NoError(t, err)

	res, err := m.BackupIndexSchema(ctx, "", t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	var schema searchsvc.IndexSchema
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, "code-chunks", schema.Name)
}

func TestLoadSchemaValidation(t *testing.T) {
	_, err := LoadSchema([]byte(`{`))
	assert.Error(t, err)
	_, err = LoadSchema([]byte(`{"name":"x","fields":[]}`))
	assert.Error(t, err)

	schema, err := LoadSchema([]byte(`{"name":"x","fields":[{"name":"id","type":"Edm.String","key":true}]}`))
	require.NoError(t, err)
	assert.Equal(t, "x", schema.Name)
}
