package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"KAGAN_CONFIG_DIR", "KAGAN_MAX_CONCURRENT_AGENTS", "KAGAN_DEFAULT_PAIR_TERMINAL_BACKEND"} {
		original := os.Getenv(key)
		os.Unsetenv(key)
		defer func(k, v string) {
			if v != "" {
				os.Setenv(k, v)
			}
		}(key, original)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected config to load successfully, got error: %v", err)
	}
	if cfg.General.MaxConcurrentAgents != 3 {
		t.Errorf("expected default max_concurrent_agents 3, got %d", cfg.General.MaxConcurrentAgents)
	}
	if cfg.General.MaxIterations != 25 {
		t.Errorf("expected default max_iterations 25, got %d", cfg.General.MaxIterations)
	}
	if !cfg.General.RequireReviewApproval {
		t.Errorf("expected default require_review_approval true")
	}
	if cfg.General.DefaultPairTerminalBackend != "tmux" {
		t.Errorf("expected default terminal backend tmux, got %s", cfg.General.DefaultPairTerminalBackend)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("KAGAN_MAX_CONCURRENT_AGENTS", "7")
	os.Setenv("KAGAN_AUTO_APPROVE", "true")
	defer os.Unsetenv("KAGAN_MAX_CONCURRENT_AGENTS")
	defer os.Unsetenv("KAGAN_AUTO_APPROVE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected config to load successfully, got error: %v", err)
	}
	if cfg.General.MaxConcurrentAgents != 7 {
		t.Errorf("expected env override to set max_concurrent_agents to 7, got %d", cfg.General.MaxConcurrentAgents)
	}
	if !cfg.General.AutoApprove {
		t.Errorf("expected env override to set auto_approve true")
	}
}

func TestValidate_RejectsUnknownTerminalBackend(t *testing.T) {
	cfg := &Config{General: GeneralConfig{
		MaxConcurrentAgents:        1,
		MaxIterations:              1,
		DefaultPairTerminalBackend: "notepad",
	}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown terminal backend")
	}
}

func TestValidate_RejectsZeroMaxConcurrentAgents(t *testing.T) {
	cfg := &Config{General: GeneralConfig{
		MaxConcurrentAgents:        0,
		MaxIterations:              1,
		DefaultPairTerminalBackend: "tmux",
	}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for max_concurrent_agents < 1")
	}
}

func TestWriteDefaultConfig_WritesOnceThenLeavesFileAlone(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("KAGAN_CONFIG_DIR", dir)
	defer os.Unsetenv("KAGAN_CONFIG_DIR")

	path, err := WriteDefaultConfig()
	if err != nil {
		t.Fatalf("expected WriteDefaultConfig to succeed, got error: %v", err)
	}
	wantPath := filepath.Join(dir, "config.yaml")
	if path != wantPath {
		t.Errorf("expected written path %s, got %s", wantPath, path)
	}
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("expected config file to exist: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty default config.yaml")
	}

	if err := os.WriteFile(wantPath, []byte("general:\n  max_concurrent_agents: 9\n"), 0o644); err != nil {
		t.Fatalf("failed to overwrite config for test: %v", err)
	}
	secondPath, err := WriteDefaultConfig()
	if err != nil {
		t.Fatalf("expected second WriteDefaultConfig call to succeed, got error: %v", err)
	}
	if secondPath != "" {
		t.Errorf("expected empty path when config already exists, got %s", secondPath)
	}
	data, err = os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("expected config file to still exist: %v", err)
	}
	if string(data) != "general:\n  max_concurrent_agents: 9\n" {
		t.Error("expected existing config.yaml to be left untouched")
	}
}
