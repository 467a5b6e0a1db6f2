package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ESCALATION_CONFIG", "")
	t.Setenv("ESCALATION_THRESHOLD", "")
	t.Setenv("ESCALATION_WINDOW", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Defaults.Threshold != 3 {
		t.Fatalf("threshold %d, want 3", cfg.Defaults.Threshold)
	}
	if cfg.Defaults.Window != 24*time.Hour {
		t.Fatalf("window %v, want 24h", cfg.Defaults.Window)
	}
	if cfg.Defaults.Type != "medication" || cfg.Defaults.Priority != "high" {
		t.Fatalf("unexpected defaults: %+v", cfg.Defaults)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "escalation.yaml")
	content := `
defaults:
  threshold: 4
  window: 12h
  priority: medium
patients:
  patient-frail:
    threshold: 2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ESCALATION_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Defaults.Threshold != 4 {
		t.Fatalf("threshold %d, want 4", cfg.Defaults.Threshold)
	}
	if cfg.Defaults.Window != 12*time.Hour {
		t.Fatalf("window %v, want 12h", cfg.Defaults.Window)
	}
	if cfg.Defaults.Priority != "medium" {
		t.Fatalf("priority %s, want medium", cfg.Defaults.Priority)
	}

	rule := cfg.RuleForPatient("patient-frail")
	if rule.Threshold != 2 {
		t.Fatalf("override threshold %d, want 2", rule.Threshold)
	}
	if rule.Window != 12*time.Hour {
		t.Fatalf("override inherits window, got %v", rule.Window)
	}

	if got := cfg.RuleForPatient("patient-other").Threshold; got != 4 {
		t.Fatalf("unknown patient threshold %d, want 4", got)
	}
}

func TestLoadConfigEnvFallbacks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("patients: {}\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ESCALATION_CONFIG", path)
	t.Setenv("ESCALATION_THRESHOLD", "5")
	t.Setenv("ESCALATION_WINDOW", "48h")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Defaults.Threshold != 5 {
		t.Fatalf("threshold %d, want 5", cfg.Defaults.Threshold)
	}
	if cfg.Defaults.Window != 48*time.Hour {
		t.Fatalf("window %v, want 48h", cfg.Defaults.Window)
	}
}
