// Package searchsvc is a typed client for the external search service REST
// API: indexes, documents, indexers, data sources, and skillsets. It carries
// no business logic; retries and error classification only.
package searchsvc

import "time"

// Document is a code chunk as persisted in the search index. Field names
// mirror the canonical index schema in configs/index_schema.json.
type Document struct {
	ID              string    `json:"id"`
	Repository      string    `json:"repository,omitempty"`
	FilePath        string    `json:"file_path,omitempty"`
	Language        string    `json:"language,omitempty"`
	StartLine       int       `json:"start_line,omitempty"`
	EndLine         int       `json:"end_line,omitempty"`
	FunctionName    string    `json:"function_name,omitempty"`
	ClassName       string    `json:"class_name,omitempty"`
	Content         string    `json:"content,omitempty"`
	Signature       string    `json:"signature,omitempty"`
	Docstring       string    `json:"docstring,omitempty"`
	Imports         []string  `json:"imports,omitempty"`
	CalledFunctions []string  `json:"called_functions,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	LastModified    time.Time `json:"last_modified,omitzero"`
	ContentVector   []float32 `json:"content_vector,omitempty"`
}

// IndexSchema is the declarative index description. The canonical schema in
// source is the source of truth; the live index is validated against it.
type IndexSchema struct {
	Name                  string                 `json:"name"`
	Fields                []Field                `json:"fields"`
	ScoringProfiles       []ScoringProfile       `json:"scoringProfiles,omitempty"`
	DefaultScoringProfile string                 `json:"defaultScoringProfile,omitempty"`
	Semantic              *SemanticSettings      `json:"semantic,omitempty"`
	VectorSearch          *VectorSearchSettings  `json:"vectorSearch,omitempty"`
	CORSOptions           map[string]any         `json:"corsOptions,omitempty"`
	Analyzers             []map[string]any       `json:"analyzers,omitempty"`
	ETag                  string                 `json:"@odata.etag,omitempty"`
}

// Field describes one index field.
type Field struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Key             bool    `json:"key,omitempty"`
	Searchable      bool    `json:"searchable,omitempty"`
	Filterable      bool    `json:"filterable,omitempty"`
	Sortable        bool    `json:"sortable,omitempty"`
	Facetable       bool    `json:"facetable,omitempty"`
	Retrievable     *bool   `json:"retrievable,omitempty"`
	Analyzer        string  `json:"analyzer,omitempty"`
	Dimensions      int     `json:"dimensions,omitempty"`
	VectorProfile   string  `json:"vectorSearchProfile,omitempty"`
	SynonymMaps     []string `json:"synonymMaps,omitempty"`
}

// ScoringProfile boosts results by freshness or popularity.
type ScoringProfile struct {
	Name      string          `json:"name"`
	Text      *TextWeights    `json:"text,omitempty"`
	Functions []ScoringFn     `json:"functions,omitempty"`
}

// TextWeights maps field names to relative weights.
type TextWeights struct {
	Weights map[string]float64 `json:"weights"`
}

// ScoringFn is a freshness/magnitude scoring function.
type ScoringFn struct {
	Type          string         `json:"type"`
	FieldName     string         `json:"fieldName"`
	Boost         float64        `json:"boost"`
	Interpolation string         `json:"interpolation,omitempty"`
	Freshness     map[string]any `json:"freshness,omitempty"`
	Magnitude     map[string]any `json:"magnitude,omitempty"`
}

// SemanticSettings names the semantic configurations of an index.
type SemanticSettings struct {
	Configurations []SemanticConfiguration `json:"configurations"`
}

// SemanticConfiguration names title/content/keyword fields for the
// server-side semantic ranker.
type SemanticConfiguration struct {
	Name              string              `json:"name"`
	PrioritizedFields SemanticFieldLayout `json:"prioritizedFields"`
}

// SemanticFieldLayout selects which fields feed the semantic ranker.
type SemanticFieldLayout struct {
	TitleField    *SemanticField  `json:"titleField,omitempty"`
	ContentFields []SemanticField `json:"prioritizedContentFields,omitempty"`
	KeywordFields []SemanticField `json:"prioritizedKeywordsFields,omitempty"`
}

// SemanticField references an index field by name.
type SemanticField struct {
	FieldName string `json:"fieldName"`
}

// VectorSearchSettings declares ANN algorithms and profiles.
type VectorSearchSettings struct {
	Algorithms []VectorAlgorithm `json:"algorithms,omitempty"`
	Profiles   []VectorProfile   `json:"profiles,omitempty"`
}

// VectorAlgorithm configures one ANN algorithm (e.g. HNSW).
type VectorAlgorithm struct {
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Parameters map[string]any `json:"hnswParameters,omitempty"`
}

// VectorProfile binds a vector field to an algorithm.
type VectorProfile struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
}

// IndexStats reports document count and storage size for an index.
type IndexStats struct {
	DocumentCount int64 `json:"documentCount"`
	StorageSize   int64 `json:"storageSize"`
}

// ServiceStats reports service-level counters and quotas.
type ServiceStats struct {
	Counters map[string]any `json:"counters"`
	Limits   map[string]any `json:"limits"`
}

// SearchRequest is the body of a documents/search call.
type SearchRequest struct {
	Search          string        `json:"search,omitempty"`
	Filter          string        `json:"filter,omitempty"`
	Top             int           `json:"top,omitempty"`
	Skip            int           `json:"skip,omitempty"`
	Count           bool          `json:"count,omitempty"`
	OrderBy         string        `json:"orderby,omitempty"`
	Select          string        `json:"select,omitempty"`
	SearchFields    string        `json:"searchFields,omitempty"`
	Highlight       string        `json:"highlight,omitempty"`
	HighlightPreTag string        `json:"highlightPreTag,omitempty"`
	HighlightPostTag string       `json:"highlightPostTag,omitempty"`
	QueryType       string        `json:"queryType,omitempty"`
	SemanticConfig  string        `json:"semanticConfiguration,omitempty"`
	Captions        string        `json:"captions,omitempty"`
	Answers         string        `json:"answers,omitempty"`
	VectorQueries   []VectorQuery `json:"vectorQueries,omitempty"`
	ScoringProfile  string        `json:"scoringProfile,omitempty"`
}

// VectorQuery is one k-NN sub-query.
type VectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
}

// SearchHit is one result row: the document fields plus server-side scores
// and highlights.
type SearchHit struct {
	Document
	Score         float64             `json:"@search.score"`
	RerankerScore float64             `json:"@search.rerankerScore,omitempty"`
	Highlights    map[string][]string `json:"@search.highlights,omitempty"`
	Captions      []SemanticCaption   `json:"@search.captions,omitempty"`
}

// SemanticCaption is a server-generated extractive caption.
type SemanticCaption struct {
	Text       string `json:"text"`
	Highlights string `json:"highlights,omitempty"`
}

// SearchResponse is the body of a documents/search result.
type SearchResponse struct {
	Count   int64             `json:"@odata.count"`
	Answers []SemanticCaption `json:"@search.answers,omitempty"`
	Value   []SearchHit       `json:"value"`
}

// IndexAction is one document operation in an index batch.
type IndexAction struct {
	Action string `json:"@search.action"` // upload, merge, mergeOrUpload, delete
	Document
}

// IndexBatch is the body of a documents/index call.
type IndexBatch struct {
	Value []IndexAction `json:"value"`
}

// IndexResult reports per-document outcome of an index batch.
type IndexResult struct {
	Key          string `json:"key"`
	Status       bool   `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	StatusCode   int    `json:"statusCode"`
}

// IndexBatchResponse is the body of a documents/index result.
type IndexBatchResponse struct {
	Value []IndexResult `json:"value"`
}

// Indexer pulls documents from a data source into an index.
type Indexer struct {
	Name            string         `json:"name"`
	DataSourceName  string         `json:"dataSourceName"`
	TargetIndexName string         `json:"targetIndexName"`
	SkillsetName    string         `json:"skillsetName,omitempty"`
	Schedule        map[string]any `json:"schedule,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	Disabled        bool           `json:"disabled,omitempty"`
}

// IndexerStatus reports the indexer state machine exposed by the service:
// idle → running → (success | transientFailure → idle | persistentFailure).
type IndexerStatus struct {
	Status           string             `json:"status"`
	LastResult       *IndexerRunResult  `json:"lastResult,omitempty"`
	ExecutionHistory []IndexerRunResult `json:"executionHistory,omitempty"`
}

// IndexerRunResult is one indexer execution record.
type IndexerRunResult struct {
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	StartTime      time.Time `json:"startTime,omitzero"`
	EndTime        time.Time `json:"endTime,omitzero"`
	ItemsProcessed int64     `json:"itemsProcessed"`
	ItemsFailed    int64     `json:"itemsFailed"`
}

// DataSource describes where an indexer reads from.
type DataSource struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Credentials map[string]any `json:"credentials,omitempty"`
	Container   map[string]any `json:"container,omitempty"`
	Description string         `json:"description,omitempty"`
}

// Skillset is an enrichment pipeline attached to an indexer.
type Skillset struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Skills      []map[string]any `json:"skills"`
}
