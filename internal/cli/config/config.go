package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const ConfigFileName = "chatdesk.json"

const DefaultAPIURL = "http://localhost:5000"

// Environment variables that override chatdesk.json
const (
	EnvAPIURL          = "CHATDESK_API_URL"
	EnvAPIURL2         = "CHATDESK_API_URL2"
	EnvCredentialStore = "CHATDESK_CREDENTIAL_STORE"
	EnvLogLevel        = "CHATDESK_LOG_LEVEL"
	EnvEmail           = "CHATDESK_EMAIL"
	EnvPassword        = "CHATDESK_PASSWORD"
)

var ErrConfigNotFound = errors.New(ConfigFileName + " not found")

// Config represents the CLI configuration file
type Config struct {
	// APIURL is the primary backend (chats, accounts, admin).
	APIURL string `json:"api_url"`
	// APIURL2 is the document backend. Empty means APIURL.
	APIURL2         string `json:"api_url2,omitempty"`
	CredentialStore string `json:"credential_store,omitempty"`
	LogLevel        string `json:"log_level,omitempty"`
}

// DefaultConfig returns a configuration pointing at a local dev server
func DefaultConfig() *Config {
	return &Config{
		APIURL:          DefaultAPIURL,
		CredentialStore: "keyring",
		LogLevel:        "warn",
	}
}

// DocumentsURL returns the base URL of the document backend
func (c *Config) DocumentsURL() string {
	if c.APIURL2 != "" {
		return c.APIURL2
	}
	return c.APIURL
}

// Validate checks that the configured URLs are absolute http(s) URLs
func (c *Config) Validate() error {
	if err := validateURL("api_url", c.APIURL); err != nil {
		return err
	}
	if c.APIURL2 != "" {
		if err := validateURL("api_url2", c.APIURL2); err != nil {
			return err
		}
	}
	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q: must be an http(s) URL", field, raw)
	}
	return nil
}

// FindConfigFile searches for chatdesk.json in current directory and parent directories
func FindConfigFile() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := currentDir
	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%w in %s or any parent directory", ErrConfigNotFound, currentDir)
}

// Load reads the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Resolve builds the effective configuration: defaults, then chatdesk.json if
// one is found, then environment variables (a .env file in the working
// directory is loaded first).
func Resolve() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()
	path, err := FindConfigFile()
	switch {
	case err == nil:
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	case !errors.Is(err, ErrConfigNotFound):
		return nil, err
	}

	cfg.applyEnv()
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.APIURL2 = strings.TrimRight(cfg.APIURL2, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv(EnvAPIURL2); v != "" {
		c.APIURL2 = v
	}
	if v := os.Getenv(EnvCredentialStore); v != "" {
		c.CredentialStore = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Save writes the configuration to a file
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
