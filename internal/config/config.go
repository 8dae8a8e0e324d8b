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

	"pravnyk/internal/logging"
)

// Config holds all pravnyk configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Data directory: sqlite databases, logs, adapter caches
	DataDir string `yaml:"data_dir"`

	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Adapters  AdaptersConfig  `yaml:"adapters"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Query     QueryConfig     `yaml:"query"`
	Logging   logging.Settings `yaml:"logging"`
}

// ServerConfig configures the MCP protocol endpoint.
type ServerConfig struct {
	Addr       string   `yaml:"addr"`
	AuthSecret string   `yaml:"auth_secret"` // HMAC secret for bearer tokens
	APIKeys    []string `yaml:"api_keys"`    // static keys accepted in X-API-Key
}

// LLMConfig configures the synthesis client.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`

	// Models by budget tier; empty entries fall back to defaults.
	QuickModel    string `yaml:"quick_model"`
	StandardModel string `yaml:"standard_model"`
	DeepModel     string `yaml:"deep_model"`
}

// EmbeddingConfig configures the embedding gateway.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "genai" or "ollama"
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	Dimensions     int    `yaml:"dimensions"`
	MaxBatch       int    `yaml:"max_batch"`
	MaxRetries     int    `yaml:"max_retries"`
}

// AdaptersConfig configures the external source adapters.
type AdaptersConfig struct {
	ZakonOnline ZakonOnlineConfig `yaml:"zakononline"`
	Rada        RadaConfig        `yaml:"rada"`
	CacheFetches bool             `yaml:"cache_fetches"`
}

// ZakonOnlineConfig configures the court-decisions search API client.
type ZakonOnlineConfig struct {
	BaseURL     string `yaml:"base_url"`
	AppToken    string `yaml:"app_token"`
	MinInterval string `yaml:"min_interval"` // minimum delay between calls
}

// RadaConfig configures the legislation HTML source.
type RadaConfig struct {
	BaseURL     string `yaml:"base_url"`
	MinInterval string `yaml:"min_interval"`
}

// IngestConfig configures the ingest worker.
type IngestConfig struct {
	Concurrency int `yaml:"concurrency"`
	// Section types selected for embedding; decisions and reasoning only
	// by default, for cost.
	EmbedSections []string `yaml:"embed_sections"`
}

// QueryConfig configures the orchestrator.
type QueryConfig struct {
	ExpandTopK      int    `yaml:"expand_top_k"`
	DefaultDeadline string `yaml:"default_deadline"`
	SearchLimit     int    `yaml:"search_limit"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "pravnyk",
		Version: "1.2.0",
		DataDir: "data",

		Server: ServerConfig{
			Addr: ":8741",
		},

		LLM: LLMConfig{
			BaseURL:       "https://generativelanguage.googleapis.com/v1beta",
			Timeout:       "120s",
			QuickModel:    "gemini-2.5-flash-lite",
			StandardModel: "gemini-2.5-flash",
			DeepModel:     "gemini-2.5-pro",
		},

		Embedding: EmbeddingConfig{
			Provider:       "genai",
			GenAIModel:     "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			Dimensions:     1536,
			MaxBatch:       64,
			MaxRetries:     3,
		},

		Adapters: AdaptersConfig{
			ZakonOnline: ZakonOnlineConfig{
				BaseURL:     "https://court.searcher.api.zakononline.com.ua",
				MinInterval: "200ms",
			},
			Rada: RadaConfig{
				BaseURL:     "https://zakon.rada.gov.ua",
				MinInterval: "500ms",
			},
			CacheFetches: true,
		},

		Ingest: IngestConfig{
			Concurrency:   10,
			EmbedSections: []string{"DECISION", "COURT_REASONING"},
		},

		Query: QueryConfig{
			ExpandTopK:      3,
			DefaultDeadline: "90s",
			SearchLimit:     10,
		},

		Logging: logging.Settings{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// when the file does not exist, then applies environment overrides.
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}
	if key := os.Getenv("ZAKONONLINE_APP_TOKEN"); key != "" {
		c.Adapters.ZakonOnline.AppToken = key
	}
	if secret := os.Getenv("PRAVNYK_AUTH_SECRET"); secret != "" {
		c.Server.AuthSecret = secret
	}
	if addr := os.Getenv("PRAVNYK_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if dir := os.Getenv("PRAVNYK_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if dims := os.Getenv("PRAVNYK_EMBED_DIM"); dims != "" {
		if d, err := strconv.Atoi(dims); err == nil && d > 0 {
			c.Embedding.Dimensions = d
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Embedding.Provider != "genai" && c.Embedding.Provider != "ollama" {
		return fmt.Errorf("invalid embedding provider: %s (use 'genai' or 'ollama')", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "genai" && c.Embedding.GenAIAPIKey == "" {
		return fmt.Errorf("embedding API key not configured (set GEMINI_API_KEY)")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest concurrency must be positive, got %d", c.Ingest.Concurrency)
	}
	return nil
}

// DatabasePath returns the sqlite path for the metadata store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "pravnyk.db")
}

// VectorDatabasePath returns the sqlite path for the vector store.
func (c *Config) VectorDatabasePath() string {
	return filepath.Join(c.DataDir, "vectors.db")
}

// CachePath returns the sqlite path for the adapter fetch cache.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "fetch_cache.db")
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the synthesis timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetZakonOnlineInterval returns the court API minimum inter-call interval.
func (c *Config) GetZakonOnlineInterval() time.Duration {
	return parseDuration(c.Adapters.ZakonOnline.MinInterval, 200*time.Millisecond)
}

// GetRadaInterval returns the legislation source minimum inter-call interval.
func (c *Config) GetRadaInterval() time.Duration {
	return parseDuration(c.Adapters.Rada.MinInterval, 500*time.Millisecond)
}

// GetDefaultDeadline returns the per-tool default deadline.
func (c *Config) GetDefaultDeadline() time.Duration {
	return parseDuration(c.Query.DefaultDeadline, 90*time.Second)
}
