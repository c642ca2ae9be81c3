package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/registry"
)

// Project configuration file names, in lookup order.
const (
	ProjectYAML = ".mcb.yaml"
	ProjectYML  = ".mcb.yml"
	ProjectTOML = ".mcb.toml"
	EnvFile     = ".env"
)

// Config is the complete mcb configuration record.
type Config struct {
	Database    DatabaseConfig    `yaml:"database" toml:"database" json:"database"`
	Embedding   EmbeddingConfig   `yaml:"embedding" toml:"embedding" json:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store" json:"vector_store"`
	Cache       CacheConfig       `yaml:"cache" toml:"cache" json:"cache"`
	Search      SearchConfig      `yaml:"search" toml:"search" json:"search"`
	Indexing    IndexingConfig    `yaml:"indexing" toml:"indexing" json:"indexing"`
	Events      EventsConfig      `yaml:"events" toml:"events" json:"events"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging" json:"logging"`
	Server      ServerConfig      `yaml:"server" toml:"server" json:"server"`
}

// DatabaseConfig selects the relational store shared by the file-hash,
// memory and sqlite lexical components.
type DatabaseConfig struct {
	Provider string `yaml:"provider" toml:"provider" json:"provider"`
	// Path is the database file; ":memory:" keeps everything in process.
	Path string `yaml:"path" toml:"path" json:"path"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider          string         `yaml:"provider" toml:"provider" json:"provider"`
	Model             string         `yaml:"model" toml:"model" json:"model"`
	URL               string         `yaml:"url" toml:"url" json:"url"`
	APIKey            string         `yaml:"api_key" toml:"api_key" json:"-"`
	Dimensions        int            `yaml:"dimensions" toml:"dimensions" json:"dimensions"`
	BatchSize         int            `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	MaxTokens         int            `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`
	MaxAttempts       int            `yaml:"max_attempts" toml:"max_attempts" json:"max_attempts"`
	RequestsPerSecond float64        `yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second"`
	Timeout           string         `yaml:"timeout" toml:"timeout" json:"timeout"`
	Options           map[string]any `yaml:"options" toml:"options" json:"options,omitempty"`
}

// VectorStoreConfig selects the vector store provider.
type VectorStoreConfig struct {
	Provider string `yaml:"provider" toml:"provider" json:"provider"`
	Endpoint string `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	// Collection is the collection used when a caller names none.
	Collection string         `yaml:"collection" toml:"collection" json:"collection"`
	Path       string         `yaml:"path" toml:"path" json:"path"`
	APIKey     string         `yaml:"api_key" toml:"api_key" json:"-"`
	Options    map[string]any `yaml:"options" toml:"options" json:"options,omitempty"`
}

// CacheConfig selects the cache provider.
type CacheConfig struct {
	Provider   string         `yaml:"provider" toml:"provider" json:"provider"`
	MaxEntries int            `yaml:"max_entries" toml:"max_entries" json:"max_entries"`
	TTL        string         `yaml:"ttl" toml:"ttl" json:"ttl"`
	Options    map[string]any `yaml:"options" toml:"options" json:"options,omitempty"`
}

// SearchConfig tunes hybrid search and the BM25 scorer.
type SearchConfig struct {
	// BM25Weight and VectorWeight must sum to 1.
	BM25Weight          float64 `yaml:"bm25_weight" toml:"bm25_weight" json:"bm25_weight"`
	VectorWeight        float64 `yaml:"vector_weight" toml:"vector_weight" json:"vector_weight"`
	CandidateMultiplier int     `yaml:"candidate_multiplier" toml:"candidate_multiplier" json:"candidate_multiplier"`
	K1                  float64 `yaml:"k1" toml:"k1" json:"k1"`
	B                   float64 `yaml:"b" toml:"b" json:"b"`
	// LexicalBackend is memory, sqlite or bleve.
	LexicalBackend string `yaml:"lexical_backend" toml:"lexical_backend" json:"lexical_backend"`
	// Fusion is linear or rrf.
	Fusion      string `yaml:"fusion" toml:"fusion" json:"fusion"`
	RRFConstant int    `yaml:"rrf_constant" toml:"rrf_constant" json:"rrf_constant"`
	MaxResults  int    `yaml:"max_results" toml:"max_results" json:"max_results"`
}

// IndexingConfig tunes discovery and the indexing pipeline.
type IndexingConfig struct {
	Exclude          []string `yaml:"exclude" toml:"exclude" json:"exclude"`
	Extensions       []string `yaml:"extensions" toml:"extensions" json:"extensions"`
	MaxFileSize      int64    `yaml:"max_file_size" toml:"max_file_size" json:"max_file_size"`
	Workers          int      `yaml:"workers" toml:"workers" json:"workers"`
	TombstoneTTL     string   `yaml:"tombstone_ttl" toml:"tombstone_ttl" json:"tombstone_ttl"`
	ProgressEvery    int      `yaml:"progress_every" toml:"progress_every" json:"progress_every"`
	RespectGitignore bool     `yaml:"respect_gitignore" toml:"respect_gitignore" json:"respect_gitignore"`
	WatchDebounce    string   `yaml:"watch_debounce" toml:"watch_debounce" json:"watch_debounce"`
}

// EventsConfig sizes the domain event bus.
type EventsConfig struct {
	Capacity int `yaml:"capacity" toml:"capacity" json:"capacity"`
}

// LoggingConfig configures the process log sink.
type LoggingConfig struct {
	Level     string `yaml:"level" toml:"level" json:"level"`
	File      string `yaml:"file" toml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" toml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" toml:"max_files" json:"max_files"`
	Stderr    bool   `yaml:"stderr" toml:"stderr" json:"stderr"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	// Transport is stdio or http.
	Transport string `yaml:"transport" toml:"transport" json:"transport"`
	Addr      string `yaml:"addr" toml:"addr" json:"addr"`
}

// defaultExcludePatterns are excluded on top of the scanner's built-in set.
var defaultExcludePatterns = []string{
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Provider: "sqlite",
			Path:     filepath.Join(HomeDir(), "mcb.db"),
		},
		Embedding: EmbeddingConfig{
			Provider:          "static",
			BatchSize:         32,
			MaxAttempts:       3,
			RequestsPerSecond: 0,
			Timeout:           "60s",
		},
		VectorStore: VectorStoreConfig{
			Provider:   "in_memory",
			Collection: "default",
		},
		Cache: CacheConfig{
			Provider:   "in_memory",
			MaxEntries: 10000,
			TTL:        "1h",
		},
		Search: SearchConfig{
			BM25Weight:          0.4,
			VectorWeight:        0.6,
			CandidateMultiplier: 2,
			K1:                  1.2,
			B:                   0.75,
			LexicalBackend:      "sqlite",
			Fusion:              "linear",
			RRFConstant:         60,
			MaxResults:          100,
		},
		Indexing: IndexingConfig{
			Exclude:          append([]string(nil), defaultExcludePatterns...),
			MaxFileSize:      1 << 20,
			Workers:          runtime.NumCPU(),
			TombstoneTTL:     "720h",
			ProgressEvery:    10,
			RespectGitignore: true,
			WatchDebounce:    "200ms",
		},
		Events: EventsConfig{Capacity: 256},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
			Stderr:    false,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Addr:      "127.0.0.1:8765",
		},
	}
}

// HomeDir returns the mcb state directory: $MCB_HOME, else ~/.mcb.
func HomeDir() string {
	if dir := os.Getenv("MCB_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".mcb")
	}
	return filepath.Join(home, ".mcb")
}

// GetUserConfigPath returns the user configuration file path.
func GetUserConfigPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration for the project in dir. Later sources win:
//  1. Defaults
//  2. User config (~/.mcb/config.yaml)
//  3. Project config (.mcb.yaml, .mcb.yml or .mcb.toml in dir)
//  4. .env in dir (never overriding variables already set)
//  5. MCB_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if dir != "" {
		if err := cfg.loadFromDir(dir); err != nil {
			return nil, err
		}
		if env := filepath.Join(dir, EnvFile); fileExists(env) {
			if err := godotenv.Load(env); err != nil {
				return nil, mcberrors.Configuration("failed to read "+env, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromDir applies the first project file found in dir.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{ProjectYAML, ProjectYML, ProjectTOML} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadFile(path)
		}
	}
	return nil
}

// loadFile decodes path over c. Keys absent from the file keep their
// current values; unknown keys are ignored.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return mcberrors.Configuration("failed to read config file "+path, err)
	}
	if strings.HasSuffix(path, ".toml") {
		err = toml.Unmarshal(data, c)
	} else {
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return mcberrors.Configuration("failed to parse config file "+path, err)
	}
	return nil
}

// applyEnvOverrides applies MCB_* environment variables. Malformed numeric
// values are ignored.
func (c *Config) applyEnvOverrides() {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("MCB_DATABASE_PROVIDER", &c.Database.Provider)
	str("MCB_DATABASE_PATH", &c.Database.Path)
	str("MCB_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("MCB_EMBEDDING_MODEL", &c.Embedding.Model)
	str("MCB_EMBEDDING_URL", &c.Embedding.URL)
	str("MCB_EMBEDDING_API_KEY", &c.Embedding.APIKey)
	str("MCB_VECTOR_STORE_PROVIDER", &c.VectorStore.Provider)
	str("MCB_VECTOR_STORE_ENDPOINT", &c.VectorStore.Endpoint)
	str("MCB_VECTOR_STORE_API_KEY", &c.VectorStore.APIKey)
	str("MCB_VECTOR_STORE_PATH", &c.VectorStore.Path)
	str("MCB_COLLECTION", &c.VectorStore.Collection)
	str("MCB_CACHE_PROVIDER", &c.Cache.Provider)
	str("MCB_LEXICAL_BACKEND", &c.Search.LexicalBackend)
	str("MCB_FUSION", &c.Search.Fusion)
	str("MCB_LOG_LEVEL", &c.Logging.Level)
	str("MCB_LOG_FILE", &c.Logging.File)
	str("MCB_TRANSPORT", &c.Server.Transport)
	str("MCB_ADDR", &c.Server.Addr)

	if v := os.Getenv("MCB_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("MCB_BM25_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("MCB_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("MCB_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Indexing.Workers = n
		}
	}
}

// weightTolerance absorbs float rounding in the weight sum.
const weightTolerance = 1e-6

// Validate reports the first invalid setting as a Configuration error.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return mcberrors.Configuration(fmt.Sprintf(format, args...), nil)
	}

	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return invalid("search.bm25_weight must be between 0 and 1, got %g", c.Search.BM25Weight)
	}
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return invalid("search.vector_weight must be between 0 and 1, got %g", c.Search.VectorWeight)
	}
	if sum := c.Search.BM25Weight + c.Search.VectorWeight; math.Abs(sum-1) > weightTolerance {
		return invalid("search.bm25_weight + search.vector_weight must equal 1, got %g", sum)
	}
	if c.Search.CandidateMultiplier < 1 {
		return invalid("search.candidate_multiplier must be positive, got %d", c.Search.CandidateMultiplier)
	}
	if c.Search.K1 <= 0 {
		return invalid("search.k1 must be positive, got %g", c.Search.K1)
	}
	if c.Search.B < 0 || c.Search.B > 1 {
		return invalid("search.b must be between 0 and 1, got %g", c.Search.B)
	}
	if c.Search.MaxResults < 1 {
		return invalid("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if err := oneOf("search.fusion", c.Search.Fusion, "linear", "rrf"); err != nil {
		return err
	}
	if err := oneOf("search.lexical_backend", c.Search.LexicalBackend, "memory", "sqlite", "bleve"); err != nil {
		return err
	}
	if err := oneOf("database.provider", c.Database.Provider, "sqlite"); err != nil {
		return err
	}
	if c.Database.Path == "" {
		return invalid("database.path must be set")
	}

	if c.Embedding.Provider == "" || c.VectorStore.Provider == "" || c.Cache.Provider == "" {
		return invalid("embedding, vector_store and cache providers must be set")
	}
	if c.Embedding.Dimensions < 0 {
		return invalid("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize < 1 {
		return invalid("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.MaxTokens < 0 {
		return invalid("embedding.max_tokens must not be negative, got %d", c.Embedding.MaxTokens)
	}
	if c.Embedding.MaxAttempts < 1 {
		return invalid("embedding.max_attempts must be positive, got %d", c.Embedding.MaxAttempts)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return invalid("embedding.requests_per_second must not be negative, got %g", c.Embedding.RequestsPerSecond)
	}
	if c.Cache.MaxEntries < 1 {
		return invalid("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	}

	if c.Indexing.MaxFileSize < 1 {
		return invalid("indexing.max_file_size must be positive, got %d", c.Indexing.MaxFileSize)
	}
	if c.Indexing.Workers < 0 {
		return invalid("indexing.workers must not be negative, got %d", c.Indexing.Workers)
	}
	if c.Indexing.ProgressEvery < 1 {
		return invalid("indexing.progress_every must be positive, got %d", c.Indexing.ProgressEvery)
	}
	if c.Events.Capacity < 1 {
		return invalid("events.capacity must be positive, got %d", c.Events.Capacity)
	}
	if c.Logging.MaxSizeMB < 1 || c.Logging.MaxFiles < 1 {
		return invalid("logging.max_size_mb and logging.max_files must be positive")
	}
	if err := oneOf("logging.level", strings.ToLower(c.Logging.Level), "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if err := oneOf("server.transport", c.Server.Transport, "stdio", "http"); err != nil {
		return err
	}

	for name, v := range map[string]string{
		"embedding.timeout":       c.Embedding.Timeout,
		"cache.ttl":               c.Cache.TTL,
		"indexing.tombstone_ttl":  c.Indexing.TombstoneTTL,
		"indexing.watch_debounce": c.Indexing.WatchDebounce,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return mcberrors.Configuration(fmt.Sprintf("%s is not a duration: %q", name, v), err)
		}
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return mcberrors.Configuration(
		fmt.Sprintf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value), nil)
}

// duration parses s, falling back to def when s is empty or malformed.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// TombstoneTTLDuration returns the tombstone retention; zero selects the
// store default.
func (c IndexingConfig) TombstoneTTLDuration() time.Duration {
	return duration(c.TombstoneTTL, 0)
}

// WatchDebounceDuration returns the watcher debounce window.
func (c IndexingConfig) WatchDebounceDuration() time.Duration {
	return duration(c.WatchDebounce, 200*time.Millisecond)
}

// TTLDuration returns the cache entry lifetime; zero selects the consumer
// default.
func (c CacheConfig) TTLDuration() time.Duration {
	return duration(c.TTL, 0)
}

// Registry returns the embedding provider record. Options set explicitly
// win over the typed fields.
func (c EmbeddingConfig) Registry() registry.Config {
	cfg := registry.NewConfig(c.Provider)
	set(cfg, "model", c.Model)
	set(cfg, "url", c.URL)
	set(cfg, "api_key", c.APIKey)
	set(cfg, "timeout", c.Timeout)
	if c.Dimensions > 0 {
		cfg.Options["dimensions"] = c.Dimensions
	}
	if c.BatchSize > 0 {
		cfg.Options["batch_size"] = c.BatchSize
	}
	if c.MaxTokens > 0 {
		cfg.Options["max_tokens"] = c.MaxTokens
	}
	return merge(cfg, c.Options)
}

// Registry returns the vector store provider record.
func (c VectorStoreConfig) Registry() registry.Config {
	cfg := registry.NewConfig(c.Provider)
	set(cfg, "endpoint", c.Endpoint)
	set(cfg, "path", c.Path)
	set(cfg, "api_key", c.APIKey)
	return merge(cfg, c.Options)
}

// Registry returns the cache provider record.
func (c CacheConfig) Registry() registry.Config {
	cfg := registry.NewConfig(c.Provider)
	if c.MaxEntries > 0 {
		cfg.Options["max_entries"] = c.MaxEntries
	}
	set(cfg, "ttl", c.TTL)
	return merge(cfg, c.Options)
}

func set(cfg registry.Config, key, value string) {
	if value != "" {
		cfg.Options[key] = value
	}
}

func merge(cfg registry.Config, extra map[string]any) registry.Config {
	for k, v := range extra {
		cfg.Options[k] = v
	}
	return cfg
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir to the first directory holding
// .git or an mcb project file. Without one it returns startDir.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	dir := absDir
	for {
		if dirExists(filepath.Join(dir, ".git")) || fileExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		for _, name := range []string{ProjectYAML, ProjectYML, ProjectTOML} {
			if fileExists(filepath.Join(dir, name)) {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
