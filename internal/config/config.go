package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the platform configuration file looked up next to the
// daemon when no --config flag is given.
const DefaultFileName = "dapla.yaml"

// Config holds platform-level settings for the daemon. All sections may be
// omitted in the file; zero values fall back to defaults.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Daps    DapsConfig    `yaml:"daps"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

// HTTPConfig describes the listening socket.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DapsConfig locates the directory holding one subdirectory per dap.
type DapsConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig locates the lifecycle history database. An empty path after
// load disables history recording.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls daemon logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Host: "127.0.0.1", Port: 8080},
		Daps:    DapsConfig{Path: "daps"},
		History: HistoryConfig{Path: "dapla.db"},
		Log:     LogConfig{Level: "info"},
	}
}

// Addr returns the host:port the HTTP server should bind.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// Load reads the configuration file at path. A missing file is not an error:
// defaults are returned, so a bare checkout can start the daemon. A malformed
// file is surfaced to the caller.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFileName
	}

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: decode %s: %w", path, err)
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "127.0.0.1"
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return Default(), fmt.Errorf("config: http.port must be between 1 and 65535")
	}
	if cfg.Daps.Path == "" {
		cfg.Daps.Path = "daps"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	return cfg, nil
}

// Save persists the configuration to path, creating intermediate directories
// as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultFileName
	}
	path = ExpandPath(path)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}

	encoded, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ExpandPath expands ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == os.PathSeparator {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
