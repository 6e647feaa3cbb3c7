package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := writeConfig(t, `
songgen:
  base_url: http://localhost:9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Listen.Port != 8080 {
		t.Errorf("Listen.Port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.OpenAI.ChatModel != "gpt-4o-mini" {
		t.Errorf("ChatModel = %q, want gpt-4o-mini", cfg.OpenAI.ChatModel)
	}
	if cfg.OpenAI.ObjectModel != cfg.OpenAI.ChatModel {
		t.Errorf("ObjectModel = %q, want it to default to ChatModel", cfg.OpenAI.ObjectModel)
	}
	if got := cfg.Agent.StepBudgets["teach"]; got != 2 {
		t.Errorf("StepBudgets[teach] = %d, want 2", got)
	}
	if got := cfg.Agent.StepBudgets["flashcard"]; got != 5 {
		t.Errorf("StepBudgets[flashcard] = %d, want 5", got)
	}
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	path := writeConfig(t, `
openai:
  api_key: sk-from-file
songgen:
  base_url: http://localhost:9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want env value to win", cfg.OpenAI.APIKey)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, `
songgen:
  base_url: http://localhost:9090
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail without an API key")
	}
}

func TestLoadMissingSongGenURL(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := writeConfig(t, `
log_level: debug
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail without songgen.base_url")
	}
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := writeConfig(t, `
log_format: xml
songgen:
  base_url: http://localhost:9090
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() should reject an unknown log format")
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("FindConfig() should fail for a missing explicit path")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{" debug ", slog.LevelDebug, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
