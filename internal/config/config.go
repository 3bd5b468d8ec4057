// Package config handles configuration loading and management for Brio.
// It layers XDG config paths, a project-level override file, and
// environment variables on top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the branch lifecycle kernel.
type Config struct {
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Branch    BranchConfig    `mapstructure:"branch"`
	Merge     MergeConfig     `mapstructure:"merge"`
	Inference InferenceConfig `mapstructure:"inference"`
}

// SandboxConfig bounds where session working trees may be materialized.
type SandboxConfig struct {
	// AllowedPaths lists absolute path prefixes a session's base directory
	// must fall beneath. Empty means no restriction is enforced.
	AllowedPaths []string `mapstructure:"allowed_paths"`
}

// BranchConfig holds kernel-level limits on branch lifecycle.
type BranchConfig struct {
	// MaxActive caps the number of branches in a non-terminal status at once.
	MaxActive int `mapstructure:"max_active"`
	// DefaultTimeout is the configured branch execution time limit. It is
	// loaded and saved with the rest of the config; no command reads it, so
	// branch runs started from the CLI get no deadline from this setting.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// MergeConfig holds defaults for the merge pipeline.
type MergeConfig struct {
	// DefaultStrategy names the merge.Strategy used when a branch doesn't
	// request one explicitly.
	DefaultStrategy string `mapstructure:"default_strategy"`
	// MaxFileSize is the configured per-file size limit, in bytes, for
	// three-way merges. It is loaded and saved with the rest of the config;
	// the three-way strategy does not read it and always applies
	// merge.DefaultMaxFileSize.
	MaxFileSize int64 `mapstructure:"max_file_size"`
}

// InferenceConfig selects the default guest inference.chat provider.
type InferenceConfig struct {
	Provider string `mapstructure:"provider"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (BRIO_ prefixed)
// 2. Project config (.brio.yaml in current directory or parent)
// 3. User config (~/.config/brio/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("brio")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

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

	v.Set("sandbox.allowed_paths", cfg.Sandbox.AllowedPaths)
	v.Set("branch.max_active", cfg.Branch.MaxActive)
	v.Set("branch.default_timeout", cfg.Branch.DefaultTimeout.String())
	v.Set("merge.default_strategy", cfg.Merge.DefaultStrategy)
	v.Set("merge.max_file_size", cfg.Merge.MaxFileSize)
	v.Set("inference.provider", cfg.Inference.Provider)

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
	// Sandbox defaults
	v.SetDefault("sandbox.allowed_paths", []string{})

	// Branch lifecycle defaults
	v.SetDefault("branch.max_active", 8)
	v.SetDefault("branch.default_timeout", "15m")

	// Merge defaults
	v.SetDefault("merge.default_strategy", "union")
	v.SetDefault("merge.max_file_size", 10*1024*1024)

	// Inference defaults
	v.SetDefault("inference.provider", "anthropic")
}

// getUserConfigDir returns the XDG config directory for Brio.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "brio")
	}

	// Fall back to ~/.config/brio
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "brio")
	}
	return filepath.Join(home, ".config", "brio")
}

// findProjectConfig searches for .brio.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".brio.yaml")
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

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			AllowedPaths: []string{},
		},
		Branch: BranchConfig{
			MaxActive:      8,
			DefaultTimeout: 15 * time.Minute,
		},
		Merge: MergeConfig{
			DefaultStrategy: "union",
			MaxFileSize:     10 * 1024 * 1024,
		},
		Inference: InferenceConfig{
			Provider: "anthropic",
		},
	}
}
