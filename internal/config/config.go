// Package config loads hexmem server configuration from a YAML file with
// HEXMEM_* environment variable overrides. Environment always wins over file
// values so deployments can keep secrets out of the config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all hexmem server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Extract   ExtractConfig   `yaml:"extraction"`
	Decay     DecayConfig     `yaml:"decay"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path         string        `yaml:"path"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	ConnMaxIdle  time.Duration `yaml:"conn_max_idle"`
}

// AuthConfig configures bearer authentication.
type AuthConfig struct {
	// DevKey, when non-empty, is accepted as a bearer token granting
	// read/write/admin with no agent scope. Intended for local development.
	DevKey string `yaml:"dev_key"`
}

// EmbeddingConfig configures the vector embedding engine.
// Supports Ollama (local), GenAI (Google cloud), and any OpenAI-compatible
// embeddings endpoint.
type EmbeddingConfig struct {
	// Provider: "ollama", "genai", "openai", or "" to disable embeddings.
	Provider string `yaml:"provider"`

	Dimensions int `yaml:"dimensions"` // Default: 768

	// Ollama configuration (local embedding server)
	OllamaEndpoint string `yaml:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `yaml:"ollama_model"`    // Default: "embeddinggemma"

	// GenAI configuration (Google cloud embedding)
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"` // Default: "gemini-embedding-001"

	// OpenAI-compatible configuration
	OpenAIEndpoint string `yaml:"openai_endpoint"` // Default: "https://api.openai.com"
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIModel    string `yaml:"openai_model"` // Default: "text-embedding-3-small"
}

// ExtractConfig configures the LLM extraction/summarization capability.
type ExtractConfig struct {
	// Provider: "anthropic" or "" to disable extraction.
	Provider        string `yaml:"provider"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	Model           string `yaml:"model"` // Default: "claude-3-5-haiku-20241022"
}

// DecayConfig configures the background lifecycle sweeps.
type DecayConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"` // Default: 1h
	PruneInterval time.Duration `yaml:"prune_interval"` // Default: 6h
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8440",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:         "hexmem.db",
			MaxOpenConns: 20,
			ConnMaxIdle:  30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:       "",
			Dimensions:     768,
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			OpenAIEndpoint: "https://api.openai.com",
			OpenAIModel:    "text-embedding-3-small",
		},
		Extract: ExtractConfig{
			Provider: "",
			Model:    "claude-3-5-haiku-20241022",
		},
		Decay: DecayConfig{
			SweepInterval: time.Hour,
			PruneInterval: 6 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load reads configuration from path (optional) and applies environment
// overrides. A missing file is not an error; env-only configuration is
// supported.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if cfg.Embedding.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Embedding.Dimensions)
	}
	return cfg, nil
}

// applyEnvOverrides maps HEXMEM_* (and provider-native) environment variables
// onto the config.
func (c *Config) applyEnvOverrides() {
	setString(&c.Server.Addr, "HEXMEM_ADDR")
	setString(&c.Database.Path, "HEXMEM_DB_PATH")
	setInt(&c.Database.MaxOpenConns, "HEXMEM_DB_MAX_CONNS")
	setString(&c.Auth.DevKey, "HEXMEM_DEV_KEY")
	setString(&c.Embedding.Provider, "HEXMEM_EMBEDDING_PROVIDER")
	setInt(&c.Embedding.Dimensions, "HEXMEM_EMBEDDING_DIMENSIONS")
	setString(&c.Embedding.OllamaEndpoint, "OLLAMA_HOST")
	setString(&c.Embedding.OllamaModel, "HEXMEM_OLLAMA_MODEL")
	setString(&c.Embedding.GenAIAPIKey, "GEMINI_API_KEY")
	setString(&c.Embedding.GenAIModel, "HEXMEM_GENAI_MODEL")
	setString(&c.Embedding.OpenAIEndpoint, "HEXMEM_OPENAI_ENDPOINT")
	setString(&c.Embedding.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Embedding.OpenAIModel, "HEXMEM_OPENAI_MODEL")
	setString(&c.Extract.Provider, "HEXMEM_EXTRACT_PROVIDER")
	setString(&c.Extract.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.Extract.Model, "HEXMEM_EXTRACT_MODEL")
	setString(&c.Logging.Level, "HEXMEM_LOG_LEVEL")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
