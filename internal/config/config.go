package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents application configuration.
type Config struct {
	WorkingDir     string `json:"working_dir"`
	Model          string `json:"model"`
	PermissionMode string `json:"permission_mode"`

	// Compaction controls.
	DisableCompaction  bool    `json:"disable_compaction"`
	DisableMemoryFold  bool    `json:"disable_memory_fold"`
	AutoCompactPercent float64 `json:"auto_compact_percent,omitempty"`
	MaxOutputTokens    int     `json:"max_output_tokens,omitempty"`

	ApprovalTimeoutSeconds int `json:"approval_timeout_seconds,omitempty"`

	LogLevel string `json:"log_level"`
	LogPath  string `json:"log_path"`

	SessionDir string `json:"session_dir"`
	MemoryPath string `json:"memory_path"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	stateDir := defaultStateDir()
	return &Config{
		WorkingDir:     ".",
		Model:          "claude-sonnet-4-5",
		PermissionMode: "default",
		LogLevel:       "info",
		LogPath:        filepath.Join(stateDir, "agentloop.log"),
		SessionDir:     filepath.Join(stateDir, "sessions"),
		MemoryPath:     filepath.Join(stateDir, "memory.md"),
	}
}

// Load reads configuration from path, falling back to defaults for a missing
// file and for any field the file leaves empty.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	defaults := DefaultConfig()
	if config.WorkingDir == "" {
		config.WorkingDir = defaults.WorkingDir
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.PermissionMode == "" {
		config.PermissionMode = defaults.PermissionMode
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.LogPath == "" {
		config.LogPath = defaults.LogPath
	}
	if config.SessionDir == "" {
		config.SessionDir = defaults.SessionDir
	}
	if config.MemoryPath == "" {
		config.MemoryPath = defaults.MemoryPath
	}
	return config, nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "agentloop", "config.json")
	}
	return filepath.Join(".", "agentloop.json")
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "agentloop")
	}
	return filepath.Join(os.TempDir(), "agentloop")
}
