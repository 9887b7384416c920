// Package config loads runtime settings from the environment and an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifies the LLM backend used by the analysis agents.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// Staging
	ScratchDir string
	TempDir    string

	// Job pacing
	PollInterval    time.Duration
	StageDelay      time.Duration
	AnalysisTimeout time.Duration

	// LLM
	LLMProvider     Provider
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	AWSRegion       string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig mirrors Config for YAML decoding. Durations and levels are
// strings so "1s" and "debug" work in the file.
type fileConfig struct {
	ScratchDir      string `yaml:"scratch_dir"`
	TempDir         string `yaml:"temp_dir"`
	PollInterval    string `yaml:"poll_interval"`
	StageDelay      string `yaml:"stage_delay"`
	AnalysisTimeout string `yaml:"analysis_timeout"`
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OllamaHost      string `yaml:"ollama_host"`
	AWSRegion       string `yaml:"aws_region"`
	LogFile         string `yaml:"log_file"`
	LogLevel        string `yaml:"log_level"`
}

// Load reads configuration from environment variables.
// If DILIGENCE_CONFIG points at a YAML file, its values are applied first
// and environment variables still win.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("DILIGENCE_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.ScratchDir = getEnv("DILIGENCE_SCRATCH_DIR", cfg.ScratchDir)
	cfg.TempDir = getEnv("DILIGENCE_TEMP_DIR", cfg.TempDir)
	cfg.PollInterval = getDuration("DILIGENCE_POLL_INTERVAL", cfg.PollInterval)
	cfg.StageDelay = getDuration("DILIGENCE_STAGE_DELAY", cfg.StageDelay)
	cfg.AnalysisTimeout = getDuration("DILIGENCE_ANALYSIS_TIMEOUT", cfg.AnalysisTimeout)

	cfg.LLMProvider = Provider(strings.ToLower(getEnv("DILIGENCE_LLM_PROVIDER", string(cfg.LLMProvider))))
	cfg.LLMModel = getEnv("DILIGENCE_LLM_MODEL", cfg.LLMModel)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)

	cfg.LogFile = getEnv("DILIGENCE_LOG_FILE", cfg.LogFile)
	if lvl := os.Getenv("DILIGENCE_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = parseLogLevel(lvl)
	}

	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ScratchDir:      filepath.Join(os.TempDir(), "diligence"),
		TempDir:         "",
		PollInterval:    time.Second,
		StageDelay:      600 * time.Millisecond,
		AnalysisTimeout: 0,
		LLMProvider:     ProviderOllama,
		LLMModel:        "llama3.2",
		OllamaHost:      "http://localhost:11434",
		AWSRegion:       "us-east-1",
		LogFile:         filepath.Join(os.TempDir(), "diligence.log"),
		LogLevel:        slog.LevelInfo,
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.ScratchDir, fc.ScratchDir)
	setString(&c.TempDir, fc.TempDir)
	setString(&c.LLMModel, fc.LLMModel)
	setString(&c.OllamaHost, fc.OllamaHost)
	setString(&c.AWSRegion, fc.AWSRegion)
	setString(&c.LogFile, fc.LogFile)
	if fc.LLMProvider != "" {
		c.LLMProvider = Provider(strings.ToLower(fc.LLMProvider))
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"poll_interval", fc.PollInterval, &c.PollInterval},
		{"stage_delay", fc.StageDelay, &c.StageDelay},
		{"analysis_timeout", fc.AnalysisTimeout, &c.AnalysisTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
