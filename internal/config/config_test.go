package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Defaults.TurnBudget != 5 {
		t.Errorf("TurnBudget = %d, want 5", cfg.Defaults.TurnBudget)
	}
	if cfg.Defaults.ContextCapacity != 200000 {
		t.Errorf("ContextCapacity = %d, want 200000", cfg.Defaults.ContextCapacity)
	}
	if cfg.Escalation.Wait != 30*time.Minute {
		t.Errorf("Escalation.Wait = %v, want 30m", cfg.Escalation.Wait)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
anthropic:
  api_key: test-key
  model: claude-sonnet-4-20250514
defaults:
  turn_budget: 8
  context_capacity: 150000
timeouts:
  implementer: 10m
escalation:
  wait: 1h
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("APIKey = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Defaults.TurnBudget != 8 {
		t.Errorf("TurnBudget = %d, want 8", cfg.Defaults.TurnBudget)
	}
	if cfg.Defaults.ContextCapacity != 150000 {
		t.Errorf("ContextCapacity = %d, want 150000", cfg.Defaults.ContextCapacity)
	}
	if cfg.Timeouts.Implementer != 10*time.Minute {
		t.Errorf("Timeouts.Implementer = %v, want 10m", cfg.Timeouts.Implementer)
	}
	if cfg.Escalation.Wait != time.Hour {
		t.Errorf("Escalation.Wait = %v, want 1h", cfg.Escalation.Wait)
	}
	// Unset values keep their defaults.
	if cfg.Timeouts.Scorer != 5*time.Minute {
		t.Errorf("Timeouts.Scorer = %v, want default 5m", cfg.Timeouts.Scorer)
	}
}

func TestLoadFromPathExpandsEnv(t *testing.T) {
	t.Setenv("BATON_TEST_KEY", "expanded-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "anthropic:\n  api_key: ${BATON_TEST_KEY}\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "expanded-secret" {
		t.Errorf("APIKey = %q, want expanded-secret", cfg.Anthropic.APIKey)
	}
}
