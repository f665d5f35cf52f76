// Package config provides configuration management for the memory engine.
// Settings are loaded from an optional YAML file and overlaid with
// MEMCORE_-prefixed environment variables, which always take precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaultmind/memcore/pkg/types"
)

// Config holds every enumerated configuration option the engine accepts.
type Config struct {
	DataPath  string          `yaml:"data_path"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Storage   StorageConfig   `yaml:"storage"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Security  SecurityConfig  `yaml:"security"`
}

// EmbeddingConfig selects and configures the embedding client.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai, azure, local
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Endpoint   string `yaml:"endpoint"`
	Dimensions int    `yaml:"dimensions"`
}

// VectorConfig fixes the dimension every stored embedding must match.
type VectorConfig struct {
	Dimension int `yaml:"dimension"`
}

// StorageConfig selects and configures the storage adapter.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // file, sql, kv
	Connection string `yaml:"connection"`
}

// RetrievalConfig tunes the ranking pipeline's defaults.
type RetrievalConfig struct {
	DefaultThreshold float64 `yaml:"default_threshold"`
	DefaultLimit     int     `yaml:"default_limit"`
	HalfLifeDays     float64 `yaml:"half_life_days"`
	MinScore         float64 `yaml:"min_score"`
}

// ConcurrencyConfig bounds adapter connection pools.
type ConcurrencyConfig struct {
	MaxConnections int `yaml:"max_connections"`
}

// TimeoutsConfig sets per-call and overall deadlines.
type TimeoutsConfig struct {
	AdapterMS   int `yaml:"adapter_ms"`
	EmbeddingMS int `yaml:"embedding_ms"`
	OverallMS   int `yaml:"overall_ms"`
}

// SecurityConfig controls tenant-isolation enforcement.
type SecurityConfig struct {
	TenantIsolation bool `yaml:"tenant_isolation"`
}

func (c *TimeoutsConfig) Adapter() time.Duration   { return time.Duration(c.AdapterMS) * time.Millisecond }
func (c *TimeoutsConfig) Embedding() time.Duration { return time.Duration(c.EmbeddingMS) * time.Millisecond }
func (c *TimeoutsConfig) Overall() time.Duration   { return time.Duration(c.OverallMS) * time.Millisecond }

// Default returns a Config with sensible defaults for every field.
func Default() *Config {
	return &Config{
		DataPath: "./data",
		Embedding: EmbeddingConfig{
			Provider:   "local",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Vector: VectorConfig{Dimension: 1536},
		Storage: StorageConfig{
			Backend:    "file",
			Connection: "./data",
		},
		Retrieval: RetrievalConfig{
			DefaultThreshold: 0.7,
			DefaultLimit:     10,
			HalfLifeDays:     30,
			MinScore:         0.1,
		},
		Concurrency: ConcurrencyConfig{MaxConnections: 10},
		Timeouts: TimeoutsConfig{
			AdapterMS:   30000,
			EmbeddingMS: 10000,
			OverallMS:   60000,
		},
		Security: SecurityConfig{TenantIsolation: true},
	}
}

// Load builds a Config from an optional YAML file at path (ignored if path
// is empty or missing) overlaid with MEMCORE_-prefixed environment
// variables, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, &types.Error{Kind: types.KindConfig, Message: fmt.Sprintf("config: parsing %s", path), Err: err}
			}
		} else if !os.IsNotExist(err) {
			return nil, &types.Error{Kind: types.KindConfig, Message: fmt.Sprintf("config: reading %s", path), Err: err}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.DataPath = getEnv("MEMCORE_DATA_PATH", cfg.DataPath)

	cfg.Embedding.Provider = getEnv("MEMCORE_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.APIKey = getEnv("MEMCORE_EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.Model = getEnv("MEMCORE_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Endpoint = getEnv("MEMCORE_EMBEDDING_ENDPOINT", cfg.Embedding.Endpoint)
	cfg.Embedding.Dimensions = getEnvInt("MEMCORE_EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)

	cfg.Vector.Dimension = getEnvInt("MEMCORE_VECTOR_DIMENSION", cfg.Vector.Dimension)

	cfg.Storage.Backend = getEnv("MEMCORE_STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Connection = getEnv("MEMCORE_STORAGE_CONNECTION", cfg.Storage.Connection)

	cfg.Retrieval.DefaultThreshold = getEnvFloat("MEMCORE_RETRIEVAL_DEFAULT_THRESHOLD", cfg.Retrieval.DefaultThreshold)
	cfg.Retrieval.DefaultLimit = getEnvInt("MEMCORE_RETRIEVAL_DEFAULT_LIMIT", cfg.Retrieval.DefaultLimit)
	cfg.Retrieval.HalfLifeDays = getEnvFloat("MEMCORE_RETRIEVAL_HALF_LIFE_DAYS", cfg.Retrieval.HalfLifeDays)
	cfg.Retrieval.MinScore = getEnvFloat("MEMCORE_RETRIEVAL_MIN_SCORE", cfg.Retrieval.MinScore)

	cfg.Concurrency.MaxConnections = getEnvInt("MEMCORE_CONCURRENCY_MAX_CONNECTIONS", cfg.Concurrency.MaxConnections)

	cfg.Timeouts.AdapterMS = getEnvInt("MEMCORE_TIMEOUTS_ADAPTER_MS", cfg.Timeouts.AdapterMS)
	cfg.Timeouts.EmbeddingMS = getEnvInt("MEMCORE_TIMEOUTS_EMBEDDING_MS", cfg.Timeouts.EmbeddingMS)
	cfg.Timeouts.OverallMS = getEnvInt("MEMCORE_TIMEOUTS_OVERALL_MS", cfg.Timeouts.OverallMS)

	cfg.Security.TenantIsolation = getEnvBool("MEMCORE_SECURITY_TENANT_ISOLATION", cfg.Security.TenantIsolation)
}

// Validate checks internal consistency of the configuration. It does not
// check embedding.dimensions against vector.dimension; that match is
// verified at engine initialize() once the embedding client is live.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai", "azure", "local":
	default:
		return types.NewConfigError("embedding.provider %q is not one of openai, azure, local", c.Embedding.Provider)
	}
	switch c.Storage.Backend {
	case "file", "sql", "kv":
	default:
		return types.NewConfigError("storage.backend %q is not one of file, sql, kv", c.Storage.Backend)
	}
	if c.Vector.Dimension <= 0 {
		return types.NewConfigError("vector.dimension must be positive, got %d", c.Vector.Dimension)
	}
	if c.Retrieval.DefaultLimit <= 0 {
		return types.NewConfigError("retrieval.default_limit must be positive, got %d", c.Retrieval.DefaultLimit)
	}
	if c.Retrieval.HalfLifeDays <= 0 {
		return types.NewConfigError("retrieval.half_life_days must be positive, got %f", c.Retrieval.HalfLifeDays)
	}
	if c.Concurrency.MaxConnections <= 0 {
		return types.NewConfigError("concurrency.max_connections must be positive, got %d", c.Concurrency.MaxConnections)
	}
	if c.Timeouts.AdapterMS <= 0 || c.Timeouts.EmbeddingMS <= 0 || c.Timeouts.OverallMS <= 0 {
		return types.NewConfigError("timeouts must all be positive")
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
