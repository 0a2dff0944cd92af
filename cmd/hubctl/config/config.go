package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

const (
	defaultServerURL = "http://localhost:8080"
	envVarServerURL  = "HUBRUNNER_SERVER_URL"
	envVarAPIKey     = "HUBRUNNER_API_KEY"
	configFileName   = ".hubrunner/config.yml"
)

// Config holds the hubctl configuration
type Config struct {
	ServerURL string `yaml:"server"`
	APIKey    string `yaml:"api_key"`
}

// Load reads ~/.hubrunner/config.yml. A missing file yields an empty config.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadFromFile(cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return cfg, nil
}

// GetServerURL returns the server URL with priority: env var > config file > default
func (c *Config) GetServerURL() string {
	if url := os.Getenv(envVarServerURL); url != "" {
		return url
	}
	if c.ServerURL != "" {
		return c.ServerURL
	}
	return defaultServerURL
}

// GetAPIKey returns the API key with priority: env var > config file.
// An empty key lets the server fall back to its own default.
func (c *Config) GetAPIKey() string {
	if key := os.Getenv(envVarAPIKey); key != "" {
		return key
	}
	return c.APIKey
}

func loadFromFile(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(homeDir, configFileName))
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}
