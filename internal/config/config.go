// Package config loads the AmanRAG configuration.
//
// Configuration is environment-driven (AMANRAG_* variables) with an optional
// YAML file for local development. Precedence, lowest to highest:
//
//  1. Hardcoded defaults (NewConfig)
//  2. YAML config file (--config or AMANRAG_CONFIG)
//  3. .env file in the working directory (never overrides real env)
//  4. Environment variables
//
// The loaded Config is immutable after startup. Admin-mode style toggles are
// carried on request contexts, never on this struct.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete AmanRAG configuration.
type Config struct {
	Search   SearchConfig   `yaml:"search"`
	Embed    EmbedConfig    `yaml:"embedding"`
	Cache    CacheConfig    `yaml:"cache"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Indexing IndexingConfig `yaml:"indexing"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SearchConfig configures the connection to the external search service.
type SearchConfig struct {
	// Endpoint is the search service base URL (e.g. https://acct.search.example.net).
	Endpoint string `yaml:"endpoint"`
	// AdminKey authorizes index and document mutations.
	AdminKey string `yaml:"admin_key"`
	// QueryKey authorizes read-only queries. Falls back to AdminKey when empty.
	QueryKey string `yaml:"query_key"`
	// IndexName is the default index for code chunks.
	IndexName string `yaml:"index_name"`
	// APIVersion is sent as the api-version query parameter.
	APIVersion string `yaml:"api_version"`
	// Timeout bounds each search REST call.
	Timeout time.Duration `yaml:"timeout"`
	// SemanticConfiguration names the server-side semantic config. Empty
	// disables semantic sub-queries.
	SemanticConfiguration string `yaml:"semantic_configuration"`
	// RRFConstant is the fusion smoothing parameter k (default 60).
	RRFConstant int `yaml:"rrf_constant"`
}

// EmbedConfig configures the embedding provider.
type EmbedConfig struct {
	// Provider selects the implementation: "openai" or "none".
	Provider string `yaml:"provider"`
	// Model is the embedding model identifier.
	Model string `yaml:"model"`
	// Dimensions is the vector dimensionality the index declares.
	Dimensions int `yaml:"dimensions"`
	// BatchSize is the number of texts per embedding request.
	BatchSize int `yaml:"batch_size"`
	// Endpoint is the provider base URL (OpenAI-compatible).
	Endpoint string `yaml:"endpoint"`
	// APIKey authorizes embedding requests.
	APIKey string `yaml:"api_key"`
	// Timeout bounds each embedding call (shorter than search).
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig sizes the search result cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Enabled    bool          `yaml:"enabled"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	BaseURL        string   `yaml:"base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// DevMode substitutes a synthetic admin principal for every request.
	// Never enable outside local development.
	DevMode bool `yaml:"dev_mode"`
}

// AuthConfig configures principal derivation.
type AuthConfig struct {
	// SessionSecret signs session JWTs. Required for the HTTP transport.
	SessionSecret string `yaml:"session_secret"`
	// SessionDuration bounds session lifetime.
	SessionDuration time.Duration `yaml:"session_duration"`
	// RequireMFAForAdmin gates admin tools on TOTP verification.
	RequireMFAForAdmin bool `yaml:"require_mfa_for_admin"`
	// AdminEmails lists addresses granted the admin tier.
	AdminEmails []string `yaml:"admin_emails"`
	// DeveloperDomains lists email domains granted the developer tier.
	DeveloperDomains []string `yaml:"developer_domains"`
	// APIKeys maps pre-provisioned keys to "name:tier" descriptors.
	APIKeys map[string]string `yaml:"api_keys"`
}

// IndexingConfig configures the repository indexing worker.
type IndexingConfig struct {
	MaxFileSizeMB int      `yaml:"max_file_size_mb"`
	MaxFiles      int      `yaml:"max_files"`
	Workers       int      `yaml:"workers"`
	BatchSize     int      `yaml:"batch_size"`
	Include       []string `yaml:"include"`
	Exclude       []string `yaml:"exclude"`
	// WatchDebounce coalesces file events in watch mode.
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// FeedbackConfig configures the feedback store and aggregator.
type FeedbackConfig struct {
	// Dir is the directory holding the JSONL day files.
	Dir string `yaml:"dir"`
	// AggregateInterval is how often the weights snapshot is recomputed.
	AggregateInterval time.Duration `yaml:"aggregate_interval"`
	// WindowDays is the sliding aggregation window.
	WindowDays int `yaml:"window_days"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level        string `yaml:"level"`
	File         string `yaml:"file"`
	DebugTimings bool   `yaml:"debug_timings"`
}

// defaultExcludePatterns are always excluded from indexing.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Search: SearchConfig{
			APIVersion:  "2024-07-01",
			IndexName:   "code-chunks",
			Timeout:     30 * time.Second,
			RRFConstant: 60,
		},
		Embed: EmbedConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			BatchSize: 32,
			Timeout:   15 * time.Second,
		},
		Cache: CacheConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 1024,
			Enabled:    true,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Auth: AuthConfig{
			SessionDuration:    60 * time.Minute,
			RequireMFAForAdmin: true,
		},
		Indexing: IndexingConfig{
			MaxFileSizeMB: 2,
			MaxFiles:      50_000,
			Workers:       4,
			BatchSize:     100,
			Exclude:       defaultExcludePatterns,
			WatchDebounce: 500 * time.Millisecond,
		},
		Feedback: FeedbackConfig{
			Dir:               ".amanrag/feedback",
			AggregateInterval: time.Minute,
			WindowDays:        7,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file, and environment variables (highest precedence).
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = os.Getenv("AMANRAG_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// godotenv.Load never overrides variables already set in the environment.
	_ = godotenv.Load()

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays AMANRAG_* environment variables onto the config.
func (c *Config) applyEnv() {
	envString(&c.Search.Endpoint, "AMANRAG_SEARCH_ENDPOINT")
	envString(&c.Search.AdminKey, "AMANRAG_SEARCH_ADMIN_KEY")
	envString(&c.Search.QueryKey, "AMANRAG_SEARCH_QUERY_KEY")
	envString(&c.Search.IndexName, "AMANRAG_SEARCH_INDEX")
	envString(&c.Search.APIVersion, "AMANRAG_SEARCH_API_VERSION")
	envDuration(&c.Search.Timeout, "AMANRAG_SEARCH_TIMEOUT")
	envString(&c.Search.SemanticConfiguration, "AMANRAG_SEARCH_SEMANTIC_CONFIG")
	envInt(&c.Search.RRFConstant, "AMANRAG_RRF_CONSTANT")

	envString(&c.Embed.Provider, "AMANRAG_EMBED_PROVIDER")
	envString(&c.Embed.Model, "AMANRAG_EMBED_MODEL")
	envInt(&c.Embed.Dimensions, "AMANRAG_EMBED_DIMENSIONS")
	envInt(&c.Embed.BatchSize, "AMANRAG_EMBED_BATCH_SIZE")
	envString(&c.Embed.Endpoint, "AMANRAG_EMBED_ENDPOINT")
	envString(&c.Embed.APIKey, "AMANRAG_EMBED_API_KEY")
	envDuration(&c.Embed.Timeout, "AMANRAG_EMBED_TIMEOUT")

	envDuration(&c.Cache.TTL, "AMANRAG_CACHE_TTL")
	envInt(&c.Cache.MaxEntries, "AMANRAG_CACHE_MAX_ENTRIES")
	envBool(&c.Cache.Enabled, "AMANRAG_CACHE_ENABLED")

	envString(&c.Server.Host, "AMANRAG_HOST")
	envInt(&c.Server.Port, "AMANRAG_PORT")
	envString(&c.Server.BaseURL, "AMANRAG_BASE_URL")
	envStringSlice(&c.Server.AllowedOrigins, "AMANRAG_ALLOWED_ORIGINS")
	envBool(&c.Server.DevMode, "AMANRAG_DEV_MODE")

	envString(&c.Auth.SessionSecret, "AMANRAG_SESSION_SECRET")
	envDuration(&c.Auth.SessionDuration, "AMANRAG_SESSION_DURATION")
	envBool(&c.Auth.RequireMFAForAdmin, "AMANRAG_REQUIRE_MFA_FOR_ADMIN")
	envStringSlice(&c.Auth.AdminEmails, "AMANRAG_ADMIN_EMAILS")
	envStringSlice(&c.Auth.DeveloperDomains, "AMANRAG_DEVELOPER_DOMAINS")

	envInt(&c.Indexing.MaxFileSizeMB, "AMANRAG_INDEXING_MAX_FILE_SIZE_MB")
	envInt(&c.Indexing.MaxFiles, "AMANRAG_INDEXING_MAX_FILES")
	envInt(&c.Indexing.Workers, "AMANRAG_INDEXING_WORKERS")
	envInt(&c.Indexing.BatchSize, "AMANRAG_INDEXING_BATCH_SIZE")

	envString(&c.Feedback.Dir, "AMANRAG_FEEDBACK_DIR")
	envDuration(&c.Feedback.AggregateInterval, "AMANRAG_FEEDBACK_AGGREGATE_INTERVAL")
	envInt(&c.Feedback.WindowDays, "AMANRAG_FEEDBACK_WINDOW_DAYS")

	envString(&c.Logging.Level, "AMANRAG_LOG_LEVEL")
	envString(&c.Logging.File, "AMANRAG_LOG_FILE")
	envBool(&c.Logging.DebugTimings, "AMANRAG_DEBUG_TIMINGS")
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Search.RRFConstant <= 0 {
		c.Search.RRFConstant = 60
	}
	if c.Embed.BatchSize <= 0 {
		c.Embed.BatchSize = 32
	}
	if c.Embed.BatchSize > 256 {
		return fmt.Errorf("embedding.batch_size %d exceeds maximum 256", c.Embed.BatchSize)
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 1024
	}
	if c.Indexing.Workers <= 0 {
		c.Indexing.Workers = 4
	}
	if c.Indexing.BatchSize <= 0 || c.Indexing.BatchSize > 1000 {
		return fmt.Errorf("indexing.batch_size must be in 1..1000, got %d", c.Indexing.BatchSize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Auth.SessionDuration <= 0 {
		c.Auth.SessionDuration = 60 * time.Minute
	}
	return nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(secs) * time.Second
		}
	}
}

func envStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
