// Package config loads the run configuration from an optional YAML file,
// then applies environment overrides and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything a run needs besides the run date.
type Config struct {
	Site              string        `yaml:"site"`
	Query             []string      `yaml:"query"`
	MaxMessages       int64         `yaml:"max_messages"`
	DataDir           string        `yaml:"data_dir"`
	TokenFile         string        `yaml:"token_file"`
	AuthorizationFile string        `yaml:"authorization_file"`
	TokenStore        string        `yaml:"token_store"` // file|keyring
	Timezone          string        `yaml:"timezone"`
	Alignment         string        `yaml:"alignment"` // warn|strict
	Ledger            string        `yaml:"ledger"`    // sqlite path, empty disables
	Logging           LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
	Dir    string `yaml:"dir"`
}

// Load reads the YAML file at path when path is non-empty, applies
// GIGMAIL_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}
	c.applyEnvVars()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate fills defaults and rejects values the pipeline cannot use.
func (c *Config) Validate() error {
	if c.MaxMessages < 0 {
		return errors.New("max_messages must be >= 0")
	}
	if c.Site == "" {
		c.Site = "freelancer"
	}
	if len(c.Query) == 0 {
		c.Query = []string{"from:freelancer.com"}
	}
	if c.MaxMessages == 0 {
		c.MaxMessages = 1
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.TokenFile == "" {
		c.TokenFile = "token_gmail.json"
	}
	if c.AuthorizationFile == "" {
		c.AuthorizationFile = "oauth_gmail.json"
	}
	switch c.TokenStore {
	case "":
		c.TokenStore = "file"
	case "file", "keyring":
	default:
		return fmt.Errorf("unsupported token_store: %s", c.TokenStore)
	}
	switch c.Alignment {
	case "":
		c.Alignment = "warn"
	case "warn", "strict":
	default:
		return fmt.Errorf("unsupported alignment: %s", c.Alignment)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone %q: %w", c.Timezone, err)
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	return nil
}

// Location returns the configured timezone, or time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// applyEnvVars overrides values with non-empty GIGMAIL_* variables.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("GIGMAIL_SITE"); v != "" {
		c.Site = v
	}
	if v := os.Getenv("GIGMAIL_QUERY"); v != "" {
		c.Query = strings.Fields(v)
	}
	if v := os.Getenv("GIGMAIL_MAX_MESSAGES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxMessages = n
		}
	}
	if v := os.Getenv("GIGMAIL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("GIGMAIL_TOKEN_STORE"); v != "" {
		c.TokenStore = v
	}
	if v := os.Getenv("GIGMAIL_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("GIGMAIL_LEDGER"); v != "" {
		c.Ledger = v
	}
	if v := os.Getenv("GIGMAIL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GIGMAIL_LOG_DIR"); v != "" {
		c.Logging.Dir = v
	}
}
