package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Storage    StorageConfig    `yaml:"storage"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	MCP        MCPConfig        `yaml:"mcp"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// BearerToken protects the API when non-empty. The local dashboard
	// usually runs without one.
	BearerToken string `yaml:"bearer_token"`
}

type OllamaConfig struct {
	BaseURL       string `yaml:"base_url"`
	GenerateModel string `yaml:"generate_model"`
	EmbedModel    string `yaml:"embed_model"`
}

type StorageConfig struct {
	DataDir   string `yaml:"data_dir"`
	ImportDir string `yaml:"import_dir"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type GenerationConfig struct {
	// ContextBudget is the prompt budget for retrieved entries, in tokens.
	ContextBudget int    `yaml:"context_budget"`
	MaxTokens     int    `yaml:"max_tokens"`
	Timeout       string `yaml:"timeout"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4400,
		},
		Ollama: OllamaConfig{
			BaseURL:       "http://localhost:11434",
			GenerateModel: "phi3.5",
			EmbedModel:    "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir:   defaultDataDir(),
			ImportDir: "./journal",
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Generation: GenerationConfig{
			ContextBudget: 3000,
			MaxTokens:     512,
			Timeout:       "2m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "quillback")
}

// Load reads configuration from ./config.yaml or
// $HOME/.config/quillback/config.yaml (first one found), then layers
// QUILLBACK_* environment variables over it. A missing config file is not an
// error; defaults apply.
func Load() (Config, error) {
	cfg := defaults()

	for _, path := range candidatePaths() {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
		break
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func candidatePaths() []string {
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "quillback", "config.yaml"))
	}
	return paths
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUILLBACK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("QUILLBACK_BEARER_TOKEN"); v != "" {
		cfg.Server.BearerToken = v
	}
	if v := os.Getenv("QUILLBACK_OLLAMA_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("QUILLBACK_GENERATE_MODEL"); v != "" {
		cfg.Ollama.GenerateModel = v
	}
	if v := os.Getenv("QUILLBACK_EMBED_MODEL"); v != "" {
		cfg.Ollama.EmbedModel = v
	}
	if v := os.Getenv("QUILLBACK_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("QUILLBACK_IMPORT_DIR"); v != "" {
		cfg.Storage.ImportDir = v
	}
	if v := os.Getenv("QUILLBACK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks the fields whose zero or malformed values would otherwise
// only fail deep inside the pipeline.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Ollama.EmbedModel == "" {
		return fmt.Errorf("ollama.embed_model must be set")
	}
	if c.Ollama.GenerateModel == "" {
		return fmt.Errorf("ollama.generate_model must be set")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if _, err := time.ParseDuration(c.Generation.Timeout); err != nil {
		return fmt.Errorf("invalid generation.timeout %q: %w", c.Generation.Timeout, err)
	}
	return nil
}

// GenerationTimeout returns the parsed generation timeout. Call Validate
// first; an unparseable value falls back to two minutes here.
func (c Config) GenerationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Generation.Timeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}
