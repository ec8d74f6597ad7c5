// Package config loads agent configuration from defaults, an optional YAML
// file, an optional .env file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported model providers.
const (
	ProviderTogether = "together"
	ProviderDummy    = "dummy"
)

// Config holds configuration for the agent CLI.
type Config struct {
	ModelProvider       string `yaml:"model_provider"`
	APIKey              string `yaml:"-"`
	ChatCompletionsURL  string `yaml:"chat_completions_url"`
	Model               string `yaml:"model"`
	HTTPTimeoutSeconds  int    `yaml:"http_timeout_seconds"`
	DummyProviderScript string `yaml:"dummy_provider_script"`
	KnowledgeDir        string `yaml:"knowledge_dir"`
	PersonaFile         string `yaml:"persona_file"`
	DBPath              string `yaml:"db_path"`
	MetricsFile         string `yaml:"metrics_file"`
	LogLevel            string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ModelProvider:       ProviderTogether,
		ChatCompletionsURL:  "https://api.together.xyz/v1/chat/completions",
		Model:               "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free",
		DummyProviderScript: "ok",
		KnowledgeDir:        "knowledge",
		PersonaFile:         "prompt.md",
		LogLevel:            "info",
	}
}

// HTTPTimeout returns the request timeout; zero means the transport default.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Load resolves and validates the configuration.
func Load(configFile, envFile string) (Config, error) {
	cfg, err := Resolve(configFile, envFile)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Resolve layers the configuration sources without validating the result,
// for commands that only read local state. envFile is loaded into the
// process environment when it exists, without overriding variables already
// set. configFile (or AGENT_CONFIG_FILE) names an optional YAML file.
func Resolve(configFile, envFile string) (Config, error) {
	if envFile != "" {
		if err := loadDotEnv(envFile); err != nil {
			return Config{}, err
		}
	}

	cfg := Default()

	if configFile == "" {
		configFile = os.Getenv("AGENT_CONFIG_FILE")
	}
	if configFile != "" {
		if err := loadYAML(configFile, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.ModelProvider = strings.ToLower(envOrDefault("AGENT_MODEL_PROVIDER", cfg.ModelProvider))
	cfg.APIKey = os.Getenv("TOGETHER_API_KEY")
	cfg.ChatCompletionsURL = envOrDefault("AGENT_CHAT_COMPLETIONS_URL", cfg.ChatCompletionsURL)
	cfg.Model = envOrDefault("AGENT_MODEL", cfg.Model)
	cfg.HTTPTimeoutSeconds = envIntOrDefault("AGENT_HTTP_TIMEOUT_SECONDS", cfg.HTTPTimeoutSeconds)
	cfg.DummyProviderScript = envOrDefault("AGENT_DUMMY_PROVIDER_SCRIPT", cfg.DummyProviderScript)
	cfg.KnowledgeDir = envOrDefault("AGENT_KNOWLEDGE_DIR", cfg.KnowledgeDir)
	cfg.PersonaFile = envOrDefault("AGENT_PERSONA_FILE", cfg.PersonaFile)
	cfg.DBPath = envOrDefault("AGENT_DB_PATH", cfg.DBPath)
	cfg.MetricsFile = envOrDefault("AGENT_METRICS_FILE", cfg.MetricsFile)
	cfg.LogLevel = envOrDefault("AGENT_LOG_LEVEL", cfg.LogLevel)
	return cfg, nil
}

// Validate checks the configuration for missing or invalid values.
func (c Config) Validate() error {
	switch c.ModelProvider {
	case ProviderTogether:
		if c.APIKey == "" {
			return fmt.Errorf("TOGETHER_API_KEY is required in environment when AGENT_MODEL_PROVIDER=%s", ProviderTogether)
		}
		if c.ChatCompletionsURL == "" {
			return fmt.Errorf("AGENT_CHAT_COMPLETIONS_URL cannot be empty")
		}
	case ProviderDummy:
	default:
		return fmt.Errorf("unsupported AGENT_MODEL_PROVIDER: %s", c.ModelProvider)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("AGENT_MODEL cannot be empty")
	}
	if c.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("AGENT_HTTP_TIMEOUT_SECONDS must be >= 0, got %d", c.HTTPTimeoutSeconds)
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
