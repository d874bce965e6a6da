// Package config loads and validates docscout configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete docscout configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// PathsConfig configures the document root and data directory.
type PathsConfig struct {
	// Root is the document folder to index.
	Root string `yaml:"root" json:"root"`
	// DataDir holds the SQLite database, vector index files, and manifest.
	// Defaults to <root>/.docscout.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// Exclude is a list of doublestar glob patterns to skip while scanning.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexingConfig configures extraction and index build behavior.
type IndexingConfig struct {
	// ChunkSize is the chunk window size in words.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// MaxFileSizeMB is the per-file size cap; larger files are skipped.
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb"`

	// PartitionThreshold is the chunk count at which the vector index
	// switches from the exact variant to the partitioned variant.
	PartitionThreshold int `yaml:"partition_threshold" json:"partition_threshold"`

	// NList is the number of partitions trained for the partitioned variant.
	NList int `yaml:"nlist" json:"nlist"`

	// NProbe is the number of partitions scanned per query.
	NProbe int `yaml:"nprobe" json:"nprobe"`

	// Workers bounds concurrent embedding batches during a build.
	Workers int `yaml:"workers" json:"workers"`

	// WatchDebounce is the quiet period before a watch-triggered build.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the embedding model name (ollama provider).
	Model string `yaml:"model" json:"model"`

	// Dimensions is the embedding vector size. 0 means auto-detect
	// from the provider on first use.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is the number of chunk texts per provider call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// BatchTimeout is the per-batch deadline.
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout"`

	// MaxRetries bounds retries for a failed batch before the document
	// is marked failed.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// CacheSize is the LRU embedding cache capacity (entries).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// SearchConfig configures query behavior.
type SearchConfig struct {
	// TopK is the default number of results per query.
	TopK int `yaml:"top_k" json:"top_k"`
}

// defaultExcludePatterns are always excluded from scans.
var defaultExcludePatterns = []string{
	"**/.docscout/**",
	"**/.git/**",
	"**/~$*", // Office lock files
	"**/.DS_Store",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Root:    ".",
			Exclude: defaultExcludePatterns,
		},
		Indexing: IndexingConfig{
			ChunkSize:          200,
			MaxFileSizeMB:      100,
			PartitionThreshold: 50000,
			NList:              100,
			NProbe:             8,
			Workers:            runtime.NumCPU(),
			WatchDebounce:      "500ms",
		},
		Embeddings: EmbeddingsConfig{
			Provider:     "ollama",
			Model:        "nomic-embed-text",
			Dimensions:   0, // auto-detect from provider
			BatchSize:    64,
			OllamaHost:   "http://localhost:11434",
			BatchTimeout: 60 * time.Second,
			MaxRetries:   3,
			CacheSize:    4096,
		},
		Search: SearchConfig{
			TopK: 10,
		},
		LogLevel: "info",
	}
}

// Load loads configuration for the given directory.
// Precedence, lowest to highest:
//  1. Hardcoded defaults
//  2. docscout.yaml (or .yml) in dir
//  3. Environment variables (DOCSCOUT_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DataDir returns the resolved data directory.
func (c *Config) DataDir() string {
	if c.Paths.DataDir != "" {
		return c.Paths.DataDir
	}
	return filepath.Join(c.Paths.Root, ".docscout")
}

// MetadataPath returns the SQLite database location.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.DataDir(), "metadata.db")
}

// loadFromFile attempts to load configuration from docscout.yaml or docscout.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, "docscout.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, "docscout.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.Root != "" {
		c.Paths.Root = other.Paths.Root
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if len(other.Paths.Exclude) > 0 {
		// User patterns extend the defaults rather than replace them
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Indexing.ChunkSize != 0 {
		c.Indexing.ChunkSize = other.Indexing.ChunkSize
	}
	if other.Indexing.MaxFileSizeMB != 0 {
		c.Indexing.MaxFileSizeMB = other.Indexing.MaxFileSizeMB
	}
	if other.Indexing.PartitionThreshold != 0 {
		c.Indexing.PartitionThreshold = other.Indexing.PartitionThreshold
	}
	if other.Indexing.NList != 0 {
		c.Indexing.NList = other.Indexing.NList
	}
	if other.Indexing.NProbe != 0 {
		c.Indexing.NProbe = other.Indexing.NProbe
	}
	if other.Indexing.Workers != 0 {
		c.Indexing.Workers = other.Indexing.Workers
	}
	if other.Indexing.WatchDebounce != "" {
		c.Indexing.WatchDebounce = other.Indexing.WatchDebounce
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.BatchTimeout != 0 {
		c.Embeddings.BatchTimeout = other.Embeddings.BatchTimeout
	}
	if other.Embeddings.MaxRetries != 0 {
		c.Embeddings.MaxRetries = other.Embeddings.MaxRetries
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}

	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// applyEnvOverrides applies DOCSCOUT_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCSCOUT_ROOT"); v != "" {
		c.Paths.Root = v
	}
	if v := os.Getenv("DOCSCOUT_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("DOCSCOUT_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCSCOUT_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCSCOUT_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("DOCSCOUT_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.ChunkSize = n
		}
	}
	if v := os.Getenv("DOCSCOUT_PARTITION_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.PartitionThreshold = n
		}
	}
	if v := os.Getenv("DOCSCOUT_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.TopK = n
		}
	}
	if v := os.Getenv("DOCSCOUT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Indexing.ChunkSize <= 0 {
		return fmt.Errorf("indexing.chunk_size must be positive, got %d", c.Indexing.ChunkSize)
	}
	if c.Indexing.PartitionThreshold <= 0 {
		return fmt.Errorf("indexing.partition_threshold must be positive, got %d", c.Indexing.PartitionThreshold)
	}
	if c.Indexing.NList <= 0 {
		return fmt.Errorf("indexing.nlist must be positive, got %d", c.Indexing.NList)
	}
	if c.Indexing.NProbe <= 0 || c.Indexing.NProbe > c.Indexing.NList {
		return fmt.Errorf("indexing.nprobe must be in 1..nlist, got %d", c.Indexing.NProbe)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}

	validProviders := map[string]bool{"ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}

	if _, err := time.ParseDuration(c.Indexing.WatchDebounce); err != nil {
		return fmt.Errorf("indexing.watch_debounce is not a valid duration: %w", err)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
