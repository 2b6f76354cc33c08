package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "llama3" {
		t.Errorf("expected default model llama3, got %s", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", cfg.LLM.Temperature)
	}
	if cfg.Crew.Process != "sequential" {
		t.Errorf("expected sequential process, got %s", cfg.Crew.Process)
	}
	if cfg.Refresh.Interval != time.Hour {
		t.Errorf("expected 1h refresh, got %s", cfg.Refresh.Interval)
	}
	if cfg.Chat.MaxHistory != 50 {
		t.Errorf("expected max history 50, got %d", cfg.Chat.MaxHistory)
	}
	if len(cfg.Risk.Levels) != 3 || cfg.Risk.Levels[0].Name != "Low" || cfg.Risk.Levels[2].Color != "#eb4034" {
		t.Errorf("unexpected levels %+v", cfg.Risk.Levels)
	}
	if len(cfg.Risk.Categories) != 12 {
		t.Errorf("expected 12 categories, got %d", len(cfg.Risk.Categories))
	}
	if len(cfg.Projects.Defaults) != 5 {
		t.Errorf("expected 5 default projects, got %d", len(cfg.Projects.Defaults))
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("RISKCREW_LLM_BASE_URL", "http://ollama:11434")
	t.Setenv("RISKCREW_CREW_PROCESS", "parallel")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.BaseURL != "http://ollama:11434" {
		t.Errorf("expected base url from env, got %s", cfg.LLM.BaseURL)
	}
	if cfg.Crew.Process != "parallel" {
		t.Errorf("expected parallel from env, got %s", cfg.Crew.Process)
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	base := `
llm:
  model: "llama3.1"
log:
  level: "info"
`
	basePath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(basePath, []byte(base), 0644); err != nil {
		t.Fatalf("failed to write base config: %v", err)
	}
	dev := `
log:
  level: "debug"
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.dev.yaml"), []byte(dev), 0644); err != nil {
		t.Fatalf("failed to write profile: %v", err)
	}

	cfg, err := LoadOptions(basePath, "dev", nil)
	if err != nil {
		t.Fatalf("LoadOptions failed: %v", err)
	}
	if cfg.LLM.Model != "llama3.1" {
		t.Errorf("expected base model, got %s", cfg.LLM.Model)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected profile log level debug, got %s", cfg.Log.Level)
	}

	cfg, err = LoadOptions(basePath, "prod", nil)
	if err != nil {
		t.Fatalf("missing profile should be ignored: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected base log level, got %s", cfg.Log.Level)
	}
}

func TestLoadWithCLIOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("llm:\n  model: model-a\ncache:\n  ttl: 1m\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RISKCREW_LLM_MODEL", "model-env")

	cfg, err := LoadWithCLI([]string{
		"serve",
		"--config", path,
		"--set", "llm.model=model-cli",
		"--set=crew.max_iterations=3",
		"--set", "risk.weights.Security=150",
	})
	if err != nil {
		t.Fatalf("LoadWithCLI: %v", err)
	}
	if cfg.LLM.Model != "model-cli" {
		t.Errorf("expected CLI override to win, got %s", cfg.LLM.Model)
	}
	if cfg.Crew.MaxIterations != 3 {
		t.Errorf("expected max iterations 3, got %d", cfg.Crew.MaxIterations)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("expected ttl from file, got %s", cfg.Cache.TTL)
	}
	if cfg.Risk.Weights["Security"] != 150 {
		t.Errorf("expected Security weight 150, got %v", cfg.Risk.Weights)
	}
}

func TestLoadWithCLIRejectsMalformedSet(t *testing.T) {
	if _, err := LoadWithCLI([]string{"--set", "novalue"}); err == nil {
		t.Fatal("expected error for override without '='")
	}
	if _, err := LoadWithCLI([]string{"--config"}); err == nil {
		t.Fatal("expected error for missing flag value")
	}
}

func TestValidate(t *testing.T) {
	if _, err := LoadOptions("", "", []string{"crew.process=round-robin"}); err == nil {
		t.Error("expected invalid process to fail")
	}
	if _, err := LoadOptions("", "", []string{"vector.provider=pinecone"}); err == nil {
		t.Error("expected unknown vector provider to fail")
	}
}

func TestModelFor(t *testing.T) {
	c := LLMConfig{Model: "llama3", Models: map[string]string{"risk_scorer": "qwen2.5"}}
	if got := c.ModelFor("risk_scorer"); got != "qwen2.5" {
		t.Errorf("expected per-agent model, got %s", got)
	}
	if got := c.ModelFor("market_analyst"); got != "llama3" {
		t.Errorf("expected default model, got %s", got)
	}
}

func TestProfilePath(t *testing.T) {
	if got := ProfilePath("/etc/riskcrew/config.yaml", "dev"); got != "/etc/riskcrew/config.dev.yaml" {
		t.Errorf("unexpected profile path %s", got)
	}
}
