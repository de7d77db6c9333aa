package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadDefaults verifies the service starts without a config file.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Upload.MaxSizeMB != 50 || cfg.Upload.MaxBytes() != 50*1024*1024 {
		t.Fatalf("max size = %d MB", cfg.Upload.MaxSizeMB)
	}
	if len(cfg.Upload.AllowedExts) != 1 || cfg.Upload.AllowedExts[0] != ".m4a" {
		t.Fatalf("allowed exts = %v", cfg.Upload.AllowedExts)
	}
	if cfg.Subtitle.DefaultMaxWords != 8 || cfg.Subtitle.MaxWordsLimit != 20 {
		t.Fatalf("subtitle = %+v", cfg.Subtitle)
	}
	if cfg.Jobs.Timeout != 30*time.Minute || cfg.Jobs.Retention != time.Hour {
		t.Fatalf("jobs = %+v", cfg.Jobs)
	}
	if len(cfg.Transcribe.Chain) != 2 || cfg.Transcribe.Chain[0] != "local" {
		t.Fatalf("chain = %v", cfg.Transcribe.Chain)
	}
}

// TestLoadFile checks YAML values and duration parsing.
func TestLoadFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  port: 9000
upload:
  max_size_mb: 100
  allowed_exts: [".m4a", ".mp3"]
subtitle:
  default_max_words: 4
  split_on_segments: true
transcribe:
  chain: ["openai"]
  openai:
    api_key: sk-test
jobs:
  timeout: 90s
  retention: 15m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Upload.MaxSizeMB != 100 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Upload.AllowedExts) != 2 {
		t.Fatalf("allowed exts = %v", cfg.Upload.AllowedExts)
	}
	if cfg.Subtitle.DefaultMaxWords != 4 || !cfg.Subtitle.SplitOnSegments {
		t.Fatalf("subtitle = %+v", cfg.Subtitle)
	}
	if cfg.Transcribe.OpenAI.APIKey != "sk-test" || cfg.Transcribe.OpenAI.Model != "whisper-1" {
		t.Fatalf("openai = %+v", cfg.Transcribe.OpenAI)
	}
	if cfg.Jobs.Timeout != 90*time.Second || cfg.Jobs.Retention != 15*time.Minute {
		t.Fatalf("jobs = %+v", cfg.Jobs)
	}
}

// TestLoadRejectsInvalid covers validation.
func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
subtitle:
  default_max_words: 30
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

// TestEnvOverride verifies the FUSIONN_SRT_ prefix.
func TestEnvOverride(t *testing.T) {
	t.Setenv("FUSIONN_SRT_SERVER_PORT", "7070")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port = %d, want 7070", cfg.Server.Port)
	}
}

// TestManagerReload checks polling picks up edits and runs callbacks.
func TestManagerReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "subtitle:\n  default_max_words: 8\n")

	m, err := newManager(path, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	defer m.Stop()

	changed := make(chan int, 1)
	m.OnChange(func(old, cur *Config) {
		select {
		case changed <- cur.Subtitle.DefaultMaxWords:
		default:
		}
	})

	writeConfig(t, dir, "subtitle:\n  default_max_words: 5\n")
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case got := <-changed:
		if got != 5 {
			t.Fatalf("reloaded default_max_words = %d, want 5", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("config was not reloaded")
	}

	if m.Get().Subtitle.DefaultMaxWords != 5 {
		t.Fatalf("Get() = %d, want 5", m.Get().Subtitle.DefaultMaxWords)
	}
}
