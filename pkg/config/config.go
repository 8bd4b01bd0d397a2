// Package config loads pipeline configuration from an optional YAML
// file layered with environment variables. A .env file is loaded
// first when present, then RAG_-prefixed variables override the file
// values, so deployments can ship one config file and tune per
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config is the full pipeline configuration.
type Config struct {
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Query     QueryConfig     `yaml:"query"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ChunkingConfig controls how extracted text is split.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "ollama", "openai", "gemini".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Host       string `yaml:"host"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`

	// CacheDir enables the on-disk embedding cache when set.
	CacheDir string        `yaml:"cache_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// StoreConfig selects the vector store backends.
type StoreConfig struct {
	// Backend is one of "qdrant", "pgvector", "filestore".
	Backend    string `yaml:"backend"`
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	APIKey     string `yaml:"api_key"`

	// FallbackDir is the directory for the file-backed fallback store.
	// Empty disables failover.
	FallbackDir string `yaml:"fallback_dir"`
}

// QueryConfig tunes the retrieval pipeline.
type QueryConfig struct {
	TopK        int     `yaml:"top_k"`
	Threshold   float64 `yaml:"threshold"`
	TokenBudget int     `yaml:"token_budget"`
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{Size: 1000, Overlap: 200},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			BatchSize:  8,
		},
		Store: StoreConfig{
			Backend:    "qdrant",
			URL:        "http://localhost:6334",
			Collection: "chunks",
		},
		Query: QueryConfig{
			TopK:        5,
			Threshold:   0.7,
			TokenBudget: 2000,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then .env, then RAG_
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	// .env is optional; variables already set in the environment win
	_ = godotenv.Load()

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setInt(&cfg.Chunking.Size, "RAG_CHUNK_SIZE")
	setInt(&cfg.Chunking.Overlap, "RAG_CHUNK_OVERLAP")

	setString(&cfg.Embedding.Provider, "RAG_EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.Model, "RAG_EMBEDDING_MODEL")
	setString(&cfg.Embedding.Host, "RAG_EMBEDDING_HOST")
	setInt(&cfg.Embedding.Dimensions, "RAG_EMBEDDING_DIMENSIONS")
	setInt(&cfg.Embedding.BatchSize, "RAG_EMBEDDING_BATCH_SIZE")
	setString(&cfg.Embedding.CacheDir, "RAG_EMBEDDING_CACHE_DIR")

	setString(&cfg.Store.Backend, "RAG_STORE_BACKEND")
	setString(&cfg.Store.URL, "RAG_STORE_URL")
	setString(&cfg.Store.Collection, "RAG_STORE_COLLECTION")
	setString(&cfg.Store.APIKey, "RAG_STORE_API_KEY")
	setString(&cfg.Store.FallbackDir, "RAG_STORE_FALLBACK_DIR")

	setInt(&cfg.Query.TopK, "RAG_QUERY_TOP_K")
	setFloat(&cfg.Query.Threshold, "RAG_QUERY_THRESHOLD")
	setInt(&cfg.Query.TokenBudget, "RAG_QUERY_TOKEN_BUDGET")

	setString(&cfg.Logging.Level, "RAG_LOG_LEVEL")
}

func (c *Config) validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}
	switch c.Embedding.Provider {
	case "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Store.Backend {
	case "qdrant", "pgvector", "filestore":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("query.top_k must be positive, got %d", c.Query.TopK)
	}
	if c.Query.Threshold < 0 || c.Query.Threshold > 1 {
		return fmt.Errorf("query.threshold must be in [0, 1], got %v", c.Query.Threshold)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
