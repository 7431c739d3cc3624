// Package config handles configuration loading and management for baton.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for baton.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Defaults   DefaultsConfig   `mapstructure:"defaults"`
	Timeouts   TimeoutsConfig   `mapstructure:"timeouts"`
	Escalation EscalationConfig `mapstructure:"escalation"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseBedrock routes calls through AWS Bedrock instead of the direct API.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// DefaultsConfig holds default values for task execution.
type DefaultsConfig struct {
	// TurnBudget is the initial scored-turn budget for a new task.
	TurnBudget int `mapstructure:"turn_budget"`
	// ContextCapacity is the session context budget in tokens.
	ContextCapacity int64 `mapstructure:"context_capacity"`
	// TransientRetries bounds the per-turn retry of flaky agent calls.
	TransientRetries int `mapstructure:"transient_retries"`
	// CheckpointDir is where continuation artifacts are written, relative
	// to the project root unless absolute.
	CheckpointDir string `mapstructure:"checkpoint_dir"`
}

// TimeoutsConfig holds per-call timeout settings.
type TimeoutsConfig struct {
	// Implementer bounds one work-generation call.
	Implementer time.Duration `mapstructure:"implementer"`
	// Scorer bounds one scoring call.
	Scorer time.Duration `mapstructure:"scorer"`
}

// EscalationConfig holds escalation wait settings.
type EscalationConfig struct {
	// Wait bounds how long an escalated task waits for an operator
	// before failing.
	Wait time.Duration `mapstructure:"wait"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.baton.yaml in current directory or parent)
// 3. User config (~/.config/baton/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("defaults.turn_budget", cfg.Defaults.TurnBudget)
	v.Set("defaults.context_capacity", cfg.Defaults.ContextCapacity)
	v.Set("defaults.transient_retries", cfg.Defaults.TransientRetries)
	v.Set("defaults.checkpoint_dir", cfg.Defaults.CheckpointDir)
	v.Set("timeouts.implementer", cfg.Timeouts.Implementer.String())
	v.Set("timeouts.scorer", cfg.Timeouts.Scorer.String())
	v.Set("escalation.wait", cfg.Escalation.Wait.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("defaults.turn_budget", 5)
	v.SetDefault("defaults.context_capacity", 200000)
	v.SetDefault("defaults.transient_retries", 2)
	v.SetDefault("defaults.checkpoint_dir", filepath.Join(".baton", "handoffs"))

	v.SetDefault("timeouts.implementer", "15m")
	v.SetDefault("timeouts.scorer", "5m")

	v.SetDefault("escalation.wait", "30m")
}

// getUserConfigDir returns the XDG config directory for baton.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "baton")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "baton")
	}
	return filepath.Join(home, ".config", "baton")
}

// findProjectConfig searches for .baton.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".baton.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// ResolveProjectPath resolves a configured path against the project root.
// Absolute paths are returned unchanged.
func ResolveProjectPath(projectRoot, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectRoot, path)
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			TurnBudget:       5,
			ContextCapacity:  200000,
			TransientRetries: 2,
			CheckpointDir:    filepath.Join(".baton", "handoffs"),
		},
		Timeouts: TimeoutsConfig{
			Implementer: 15 * time.Minute,
			Scorer:      5 * time.Minute,
		},
		Escalation: EscalationConfig{
			Wait: 30 * time.Minute,
		},
	}
}
