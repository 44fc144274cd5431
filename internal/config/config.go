// Package config loads voxrag configuration from defaults, an optional
// YAML file, and environment overrides, in that order of precedence
// (environment wins). Command-line flags are applied on top by the CLI.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variable overrides recognized at startup.
const (
	// EnvDim overrides the vector dimension.
	EnvDim = "VOX_DIM"
	// EnvDataDir overrides the data directory.
	EnvDataDir = "VOX_DATA_DIR"
	// EnvAddr overrides the HTTP listen address.
	EnvAddr = "VOX_ADDR"
)

// Config represents the complete voxrag configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	// Addr is the listen address. Typical deployments bind 127.0.0.1
	// for local isolation; the default listens on all interfaces.
	Addr string `yaml:"addr" json:"addr"`
}

// StoreConfig configures the persistent stores.
type StoreConfig struct {
	// DataDir holds vectors.bin and metadata.db. Created on first open.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Dimension is the vector dimension. It is written into the vector
	// file header on first open; reopening with a different value fails.
	Dimension int `yaml:"dimension" json:"dimension"`
}

// RetrievalConfig configures candidate gathering, scoring, and packing.
type RetrievalConfig struct {
	// MaxTokens is the default token budget when a request supplies none.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// TopKCandidates is how many candidates the ANN search returns
	// before metadata is fetched and re-ranking happens.
	TopKCandidates int `yaml:"top_k_candidates" json:"top_k_candidates"`

	// SimilarityWeight and RecencyWeight must be non-negative and sum to 1.
	SimilarityWeight float32 `yaml:"similarity_weight" json:"similarity_weight"`
	RecencyWeight    float32 `yaml:"recency_weight" json:"recency_weight"`

	// DocCacheSize bounds the per-engine LRU cache of documents.
	DocCacheSize int `yaml:"doc_cache_size" json:"doc_cache_size"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			DataDir:   "data",
			Dimension: 1536,
		},
		Retrieval: RetrievalConfig{
			MaxTokens:        2000,
			TopKCandidates:   50,
			SimilarityWeight: 0.8,
			RecencyWeight:    0.2,
			DocCacheSize:     1024,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration. path may be empty; a missing
// file at a non-empty path is an error, so typos do not silently fall
// back to defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies VOX_* environment overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvDim); v != "" {
		if dim, err := strconv.Atoi(v); err == nil && dim > 0 {
			cfg.Store.Dimension = dim
		}
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Store.Dimension <= 0 {
		return fmt.Errorf("store.dimension must be positive, got %d", c.Store.Dimension)
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir must not be empty")
	}
	if c.Retrieval.MaxTokens <= 0 {
		return fmt.Errorf("retrieval.max_tokens must be positive, got %d", c.Retrieval.MaxTokens)
	}
	if c.Retrieval.TopKCandidates <= 0 {
		return fmt.Errorf("retrieval.top_k_candidates must be positive, got %d", c.Retrieval.TopKCandidates)
	}
	if c.Retrieval.SimilarityWeight < 0 || c.Retrieval.RecencyWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative")
	}
	sum := float64(c.Retrieval.SimilarityWeight + c.Retrieval.RecencyWeight)
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("retrieval weights must sum to 1.0, got %.3f", sum)
	}
	if c.Retrieval.DocCacheSize <= 0 {
		return fmt.Errorf("retrieval.doc_cache_size must be positive, got %d", c.Retrieval.DocCacheSize)
	}
	return nil
}
