package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// environment holds the variables that override default locations.
type environment struct {
	ConfigPath string `envconfig:"DSYNC_CONFIG_PATH"`
	Home       string `envconfig:"DSYNC_HOME"`
	LogLevel   string `envconfig:"DSYNC_LOG_LEVEL" default:"info"`
}

func readEnvironment() (*environment, error) {
	var env environment
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &env, nil
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - DSYNC_CONFIG_PATH: config file location (default: ~/.config/dsync.toml)
//   - DSYNC_HOME: base directory for dsync data (default: ~/.local/share/dsync)
func GetDefaults() (map[string]string, error) {
	env, err := readEnvironment()
	if err != nil {
		return nil, err
	}

	configPath := env.ConfigPath
	baseDir := env.Home
	if configPath == "" || baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		if configPath == "" {
			configPath = filepath.Join(homeDir, ".config", "dsync.toml")
		}
		if baseDir == "" {
			baseDir = filepath.Join(homeDir, ".local", "share", "dsync")
		}
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// logLevel returns the level from DSYNC_LOG_LEVEL, falling back to info.
func logLevel() slog.Level {
	env, err := readEnvironment()
	if err != nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(env.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
