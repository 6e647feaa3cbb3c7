// Package config handles Studly configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/studly/config.yaml, /etc/studly/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "studly", "config.yaml"))
	}

	paths = append(paths, "/etc/studly/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Studly configuration.
type Config struct {
	Listen   ListenConfig `yaml:"listen"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	SongGen  SongGenConfig `yaml:"songgen"`
	Agent    AgentConfig  `yaml:"agent"`
	DataDir  string       `yaml:"data_dir"`
	LogLevel string       `yaml:"log_level"`
	// LogFormat selects "text" (default) or "json" log output.
	LogFormat string `yaml:"log_format"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// OpenAIConfig defines model provider settings.
type OpenAIConfig struct {
	// APIKey authenticates against the provider. The OPENAI_API_KEY
	// environment variable takes precedence over the file value.
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the API endpoint (for proxies or compatible servers).
	BaseURL string `yaml:"base_url"`
	// ChatModel drives the agent loop and tool selection.
	ChatModel string `yaml:"chat_model"`
	// ObjectModel is used for structured generation (quizzes, flashcards,
	// lesson plans, rehearsal feedback).
	ObjectModel string `yaml:"object_model"`
	// EmbeddingModel generates lesson embeddings at ingest time.
	// Embeddings are skipped when empty.
	EmbeddingModel string `yaml:"embedding_model"`
}

// SongGenConfig defines the asynchronous music generation provider.
type SongGenConfig struct {
	// APIKey authenticates against the provider. The SUNO_API_KEY
	// environment variable takes precedence over the file value.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// PollIntervalSec is the delay between status polls. Default 4.
	PollIntervalSec int `yaml:"poll_interval_sec"`
	// MaxPollAttempts bounds the poll loop. Default 30.
	MaxPollAttempts int `yaml:"max_poll_attempts"`
}

// AgentConfig defines agent loop settings.
type AgentConfig struct {
	// StepBudgets caps the number of model turns per chat request, keyed
	// by study mode. The teach budget of 2 exists specifically to bound
	// the giveInfo → generateQuiz chain. The agent loop supplies the
	// fallback for modes without an entry.
	StepBudgets map[string]int `yaml:"step_budgets"`
	// TurnTimeoutSec is the hard wall-clock budget for one chat turn,
	// including any in-flight tool execution. Default 120.
	TurnTimeoutSec int `yaml:"turn_timeout_sec"`
}

// Load reads and validates a config file. A .env file in the working
// directory is loaded first (missing files are fine), then environment
// variables override file-provided secrets.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if c.OpenAI.ObjectModel == "" {
		c.OpenAI.ObjectModel = c.OpenAI.ChatModel
	}
	if c.SongGen.PollIntervalSec <= 0 {
		c.SongGen.PollIntervalSec = 4
	}
	if c.SongGen.MaxPollAttempts <= 0 {
		c.SongGen.MaxPollAttempts = 30
	}
	if c.Agent.TurnTimeoutSec <= 0 {
		c.Agent.TurnTimeoutSec = 120
	}
	if c.Agent.StepBudgets == nil {
		c.Agent.StepBudgets = map[string]int{
			"teach":     2,
			"song":      2,
			"flashcard": 5,
			"rehearse":  5,
		}
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("SUNO_API_KEY"); v != "" {
		c.SongGen.APIKey = v
	}
}

// Validate checks required fields after defaults and overrides are applied.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required (or set OPENAI_API_KEY)")
	}
	if c.SongGen.BaseURL == "" {
		return fmt.Errorf("songgen.base_url is required")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be \"text\" or \"json\", got %q", c.LogFormat)
	}
	return nil
}

// TurnTimeout returns the per-turn wall-clock budget.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.Agent.TurnTimeoutSec) * time.Second
}

// PollInterval returns the song generation poll delay.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.SongGen.PollIntervalSec) * time.Second
}
