// Package config loads and validates the service configuration from YAML
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	DataDir string        `yaml:"data_dir" json:"data_dir"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	AI      AIConfig      `yaml:"ai" json:"ai"`
	Bus     BusConfig     `yaml:"bus" json:"bus"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// SearchConfig configures the hybrid search engine.
//
// Weights and the RRF constant are configurable via:
//  1. Config file (config.yaml)
//  2. Env vars (NEOALEX_LEXICAL_WEIGHT, NEOALEX_DENSE_WEIGHT,
//     NEOALEX_SPARSE_WEIGHT, NEOALEX_RRF_CONSTANT) - highest priority
type SearchConfig struct {
	// LexicalWeight, DenseWeight and SparseWeight are the default
	// three-way fusion weights. They are normalized to sum 1 at use.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	DenseWeight   float64 `yaml:"dense_weight" json:"dense_weight"`
	SparseWeight  float64 `yaml:"sparse_weight" json:"sparse_weight"`

	// RRFConstant is the RRF fusion smoothing parameter k (default: 60).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// LexicalBackend selects the lexical index backend.
	// Options: "sqlite" (FTS5, default) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// DefaultLimit is the page size when the request does not set one.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	// MaxLimit is the maximum allowed page size.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`

	// RerankTopKCap bounds the number of candidates passed to the
	// cross-encoder: top_k = min(limit, RerankTopKCap).
	RerankTopKCap int `yaml:"rerank_top_k_cap" json:"rerank_top_k_cap"`
	// RerankTimeout bounds a single rerank call.
	RerankTimeout time.Duration `yaml:"rerank_timeout" json:"rerank_timeout"`
	// RerankCacheSize is the LRU capacity of the per-gateway rerank cache.
	RerankCacheSize int `yaml:"rerank_cache_size" json:"rerank_cache_size"`

	// LegTimeout is the per-leg retrieval budget; an overrunning leg is
	// cancelled and the engine proceeds with the others.
	LegTimeout time.Duration `yaml:"leg_timeout" json:"leg_timeout"`
}

// AIConfig configures the AI core facade.
type AIConfig struct {
	// Endpoint is the AI core base URL (embed/sparse_embed/rerank).
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Dimensions is the dense embedding dimension D.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// Timeout bounds a single model call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// StaticFallback enables the deterministic hash embedder when the
	// endpoint is unreachable, keeping the dense leg alive.
	StaticFallback bool `yaml:"static_fallback" json:"static_fallback"`
}

// BusConfig configures the in-process event bus.
type BusConfig struct {
	// HistoryCapacity is the size of the bounded event history ring.
	HistoryCapacity int `yaml:"history_capacity" json:"history_capacity"`
	// SlowHandlerThreshold marks handlers slower than this for logging.
	SlowHandlerThreshold time.Duration `yaml:"slow_handler_threshold" json:"slow_handler_threshold"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	File          string `yaml:"file" json:"file"`
	MaxSizeMB     int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: 1,
		DataDir: ".neoalex",
		Server: ServerConfig{
			Addr:            ":8400",
			ShutdownTimeout: 10 * time.Second,
		},
		Search: SearchConfig{
			LexicalWeight:   1.0 / 3,
			DenseWeight:     1.0 / 3,
			SparseWeight:    1.0 / 3,
			RRFConstant:     60,
			LexicalBackend:  "sqlite",
			DefaultLimit:    25,
			MaxLimit:        100,
			RerankTopKCap:   100,
			RerankTimeout:   2 * time.Second,
			RerankCacheSize: 1024,
			LegTimeout:      3 * time.Second,
		},
		AI: AIConfig{
			Endpoint:       "http://localhost:9470",
			Dimensions:     768,
			Timeout:        30 * time.Second,
			StaticFallback: true,
		},
		Bus: BusConfig{
			HistoryCapacity:      1000,
			SlowHandlerThreshold: 100 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:         "info",
			MaxSizeMB:     10,
			MaxFiles:      5,
			WriteToStderr: true,
		},
	}
}

// Load reads the config file at path, applies env overrides and validates.
// A missing file yields defaults with env overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies environment-variable overrides. Env vars always win.
func (c *Config) applyEnv() {
	if v := os.Getenv("NEOALEX_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("NEOALEX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("NEOALEX_AI_ENDPOINT"); v != "" {
		c.AI.Endpoint = v
	}
	if v := os.Getenv("NEOALEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v, ok := envFloat("NEOALEX_LEXICAL_WEIGHT"); ok {
		c.Search.LexicalWeight = v
	}
	if v, ok := envFloat("NEOALEX_DENSE_WEIGHT"); ok {
		c.Search.DenseWeight = v
	}
	if v, ok := envFloat("NEOALEX_SPARSE_WEIGHT"); ok {
		c.Search.SparseWeight = v
	}
	if v, ok := envInt("NEOALEX_RRF_CONSTANT"); ok {
		c.Search.RRFConstant = v
	}
	if v := os.Getenv("NEOALEX_LEXICAL_BACKEND"); v != "" {
		c.Search.LexicalBackend = v
	}
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks ranges and enums.
func (c *Config) Validate() error {
	if c.Search.LexicalWeight < 0 || c.Search.DenseWeight < 0 || c.Search.SparseWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	switch c.Search.LexicalBackend {
	case "sqlite", "bleve":
	default:
		return fmt.Errorf("lexical_backend must be \"sqlite\" or \"bleve\", got %q", c.Search.LexicalBackend)
	}
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("default_limit %d out of range [1,%d]", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.AI.Dimensions <= 0 {
		return fmt.Errorf("ai.dimensions must be positive, got %d", c.AI.Dimensions)
	}
	if c.Bus.HistoryCapacity <= 0 {
		return fmt.Errorf("bus.history_capacity must be positive, got %d", c.Bus.HistoryCapacity)
	}
	return nil
}

// Save writes the config as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
