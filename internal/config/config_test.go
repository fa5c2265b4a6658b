package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8000" {
		t.Fatalf("listen_addr=%q, want :8000", cfg.ListenAddr)
	}
	if cfg.LLMProvider != "mock" {
		t.Fatalf("llm_provider=%q, want mock", cfg.LLMProvider)
	}
	if cfg.StorageKind != "memory" {
		t.Fatalf("storage_kind=%q, want memory", cfg.StorageKind)
	}
	if cfg.SessionTTLMinutes != 30 {
		t.Fatalf("session_ttl_minutes=%d, want 30", cfg.SessionTTLMinutes)
	}
	if cfg.PreviewRows != 100 || cfg.PageLimit != 100 {
		t.Fatalf("preview/page=(%d,%d), want (100,100)", cfg.PreviewRows, cfg.PageLimit)
	}
	if cfg.DatadogEnabled {
		t.Fatalf("datadog enabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("INSIGHT_LISTEN_ADDR", ":9999")
	t.Setenv("INSIGHT_LLM_PROVIDER", "ollama")
	t.Setenv("INSIGHT_STORAGE_KIND", "sqlite")
	t.Setenv("INSIGHT_STORAGE_DSN", "insight.db")
	t.Setenv("INSIGHT_DATADOG_ENABLED", "true")
	t.Setenv("INSIGHT_SESSION_TTL_MINUTES", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("listen_addr=%q", cfg.ListenAddr)
	}
	if cfg.LLMProvider != "ollama" {
		t.Fatalf("llm_provider=%q", cfg.LLMProvider)
	}
	if cfg.StorageKind != "sqlite" || cfg.StorageDSN != "insight.db" {
		t.Fatalf("storage=(%q,%q)", cfg.StorageKind, cfg.StorageDSN)
	}
	if !cfg.DatadogEnabled {
		t.Fatalf("datadog_enabled=false, want true")
	}
	if cfg.SessionTTLMinutes != 5 {
		t.Fatalf("session_ttl_minutes=%d, want 5", cfg.SessionTTLMinutes)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "listen_addr: \":7070\"\nllm_provider: gemini\nmodel: gemini-2.5-flash-lite\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7070" || cfg.LLMProvider != "gemini" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Model != "gemini-2.5-flash-lite" {
		t.Fatalf("model=%q", cfg.Model)
	}
	// Unset keys keep their defaults.
	if cfg.StorageKind != "memory" {
		t.Fatalf("storage_kind=%q, want default", cfg.StorageKind)
	}
}

// TestLoadEnvBeatsFile verifies precedence: env over file over defaults.
func TestLoadEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":7070\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("INSIGHT_LISTEN_ADDR", ":6060")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":6060" {
		t.Fatalf("listen_addr=%q, want env override", cfg.ListenAddr)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("Load(absent file) err=nil")
	}
}
