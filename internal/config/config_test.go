package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Memory.DecayRate != 0.95 {
		t.Errorf("decay_rate = %f, want 0.95", cfg.Memory.DecayRate)
	}
	if cfg.Memory.MinRelevance != 0.1 {
		t.Errorf("min_relevance = %f, want 0.1", cfg.Memory.MinRelevance)
	}
	if cfg.Memory.PromotionThreshold != 3 {
		t.Errorf("promotion_threshold = %d, want 3", cfg.Memory.PromotionThreshold)
	}
	if cfg.ListenAddr() != "127.0.0.1:38800" {
		t.Errorf("listen addr = %q", cfg.ListenAddr())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Memory.DecayRate != 0.95 {
		t.Errorf("decay_rate = %f, want default", cfg.Memory.DecayRate)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9999
memory:
  decay_rate: 0.9
  promotion_threshold: 5
maintenance:
  schedule: "0 4 * * *"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Memory.DecayRate != 0.9 {
		t.Errorf("decay_rate = %f, want 0.9", cfg.Memory.DecayRate)
	}
	if cfg.Memory.PromotionThreshold != 5 {
		t.Errorf("promotion_threshold = %d, want 5", cfg.Memory.PromotionThreshold)
	}
	// Unset keys keep defaults.
	if cfg.Memory.MinRelevance != 0.1 {
		t.Errorf("min_relevance = %f, want default 0.1", cfg.Memory.MinRelevance)
	}
	if cfg.Maintenance.Schedule != "0 4 * * *" {
		t.Errorf("schedule = %q", cfg.Maintenance.Schedule)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("MEMGATE_DB", "/tmp/alt.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", cfg.LLM.Provider)
	}
	if cfg.LLM.AnthropicKey != "sk-test" {
		t.Errorf("key = %q", cfg.LLM.AnthropicKey)
	}
	if cfg.Database.Path != "/tmp/alt.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
}
