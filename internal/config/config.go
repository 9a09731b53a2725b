package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all memgate configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	LLM         LLMConfig         `yaml:"llm"`
	Memory      MemoryConfig      `yaml:"memory"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LLMConfig struct {
	Provider       string `yaml:"provider"` // "anthropic", "ollama"
	Model          string `yaml:"model"`
	OllamaURL      string `yaml:"ollama_url"`
	OllamaModel    string `yaml:"ollama_model"`
	EmbeddingModel string `yaml:"embedding_model"` // e.g. "nomic-embed-text"
	AnthropicKey   string `yaml:"anthropic_key"`
}

// MemoryConfig carries the tunable thresholds of the memory core. These are
// starting values; the adaptation loop may move them at runtime.
type MemoryConfig struct {
	DecayRate          float64 `yaml:"decay_rate"`           // per-day multiplier for chunk relevance
	MinRelevance       float64 `yaml:"min_relevance"`        // prune threshold
	PromotionThreshold int     `yaml:"promotion_threshold"`  // recurrences before a chunk becomes a fact
	UnusedDays         int     `yaml:"unused_days"`          // extra decay for chunks unaccessed this long
	RetentionDays      int     `yaml:"retention_days"`       // sessions idle longer than this are pruned
	RelevanceThreshold float64 `yaml:"relevance_threshold"`  // similarity floor for enforcement candidates
	MinClassifyConf    float64 `yaml:"min_classify_conf"`    // below this, domain defaults to "general"
}

type MaintenanceConfig struct {
	Schedule string `yaml:"schedule"` // cron expression, 5-field
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38800,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider: "ollama",
		},
		Memory: MemoryConfig{
			DecayRate:          0.95,
			MinRelevance:       0.1,
			PromotionThreshold: 3,
			UnusedDays:         14,
			RetentionDays:      90,
			RelevanceThreshold: 0.55,
			MinClassifyConf:    0.25,
		},
		Maintenance: MaintenanceConfig{
			Schedule: "30 3 * * *",
		},
	}
}

// DefaultPath returns the default config file path: ~/.memgate/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".memgate", "config.yaml"), nil
}

// Load reads the config file at path, layered over defaults. A missing file
// is not an error — defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers environment overrides on top of file values.
func (c *Config) applyEnv() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.Provider = "anthropic"
		c.LLM.AnthropicKey = key
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		c.LLM.OllamaURL = url
	}
	if path := os.Getenv("MEMGATE_DB"); path != "" {
		c.Database.Path = path
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
