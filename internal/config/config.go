// Package config loads prospector configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all prospector configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM gateway configuration
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Pipeline behavior
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM gateway.
type LLMConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url"`
	Timeout         string `yaml:"timeout"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// EmbeddingConfig configures the embedding engine behind the memory store.
type EmbeddingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

// StorageConfig configures the SQLite databases.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	MemoryPath   string `yaml:"memory_path"`
}

// PipelineConfig configures the stage runner.
type PipelineConfig struct {
	// MaxConcurrentJobs bounds simultaneous pipeline runs; sized to the
	// upstream LLM provider's rate limits. Work beyond the bound queues.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// RetryMax bounds per-stage retries of transient provider errors.
	RetryMax int `yaml:"retry_max"`

	// RetryBackoff is the base backoff; doubled per attempt.
	RetryBackoff string `yaml:"retry_backoff"`

	// JobTimeout bounds total wall-clock duration of one pipeline run.
	JobTimeout string `yaml:"job_timeout"`

	// InternalOps enables the internal operations intelligence stage.
	InternalOps bool `yaml:"internal_ops"`

	// ContextCap bounds each tracked list in inherited context.
	ContextCap int `yaml:"context_cap"`
}

// LoggingConfig configures the category file logging system.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "prospector",
		Version: "1.0.0",

		LLM: LLMConfig{
			Model:           "gemini-2.0-flash",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         "120s",
			MaxOutputTokens: 8192,
		},

		Embedding: EmbeddingConfig{
			Enabled: true,
			Model:   "gemini-embedding-001",
		},

		Storage: StorageConfig{
			DatabasePath: "data/prospector.db",
			MemoryPath:   "data/memory.db",
		},

		Pipeline: PipelineConfig{
			MaxConcurrentJobs: 4,
			RetryMax:          3,
			RetryBackoff:      "1s",
			JobTimeout:        "10m",
			InternalOps:       false,
			ContextCap:        10,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields
// defaults; environment variables override in either case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("PROSPECTOR_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("PROSPECTOR_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("PROSPECTOR_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if path := os.Getenv("PROSPECTOR_MEMORY_DB"); path != "" {
		c.Storage.MemoryPath = path
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetRetryBackoff returns the base retry backoff as a duration.
func (c *Config) GetRetryBackoff() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.RetryBackoff)
	if err != nil {
		return time.Second
	}
	return d
}

// GetJobTimeout returns the per-job wall-clock timeout as a duration.
func (c *Config) GetJobTimeout() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.JobTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY)")
	}
	if c.Pipeline.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max_concurrent_jobs must be at least 1")
	}
	if c.Pipeline.RetryMax < 0 {
		return fmt.Errorf("retry_max must not be negative")
	}
	if c.Pipeline.ContextCap < 1 {
		return fmt.Errorf("context_cap must be at least 1")
	}
	return nil
}
