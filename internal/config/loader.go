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

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/vigil/vigil.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "vigil", "vigil.yaml"))
	}

	paths = append(paths, "vigil.yaml")

	if envPath := os.Getenv("VIGIL_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/vigil/vigil.yaml < ~/.config/vigil/vigil.yaml < ./vigil.yaml < $VIGIL_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("VIGIL_ARCHIVE_DIR"); dir != "" {
		cfg.Archive.Dir = dir
	}
	if bin := os.Getenv("VIGIL_PRODUCER_BIN"); bin != "" {
		cfg.Producer.Bin = bin
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Producer.Bin == "" {
		return fmt.Errorf("producer.bin must not be empty")
	}

	if cfg.Producer.StopTimeout < time.Second {
		return fmt.Errorf("producer.stop_timeout must be at least 1s, got %s", cfg.Producer.StopTimeout)
	}

	if cfg.Broker.Capacity < 1 {
		return fmt.Errorf("broker.capacity must be at least 1, got %d", cfg.Broker.Capacity)
	}

	if cfg.Stream.Keepalive < time.Second {
		return fmt.Errorf("stream.keepalive must be at least 1s, got %s", cfg.Stream.Keepalive)
	}

	if cfg.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("rate_limit.requests_per_minute must be at least 1")
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Archive.Dir = ExpandHome(cfg.Archive.Dir)
	cfg.Producer.WorkDir = ExpandHome(cfg.Producer.WorkDir)

	return nil
}
