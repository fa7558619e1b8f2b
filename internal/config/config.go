package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

const (
	MinTimeout   = 1
	MaxTimeout   = 3600
	MinTransfers = 1
	MaxTransfers = 32
	MinRetries   = 1
	MaxRetries   = 10
	MaxMockFiles = 1000
)

// Config represents the main application configuration
type Config struct {
	APIURL      string     `toml:"api_url"`
	Loglevel    string     `toml:"loglevel"`
	Timeout     int        `toml:"timeout"`
	SessionFile string     `toml:"session_file"`
	Transfers   int        `toml:"transfers"`
	Retries     int        `toml:"retries"`
	Mock        MockConfig `toml:"mock"`
}

// MockConfig holds the development mock server configuration
type MockConfig struct {
	BindAddress string   `toml:"bind_address"`
	Port        int      `toml:"port"`
	Username    string   `toml:"username"`
	Password    string   `toml:"password"`
	Secret      string   `toml:"secret"`
	TokenTTL    int      `toml:"token_ttl"`
	Files       int      `toml:"files"`
	Sites       []string `toml:"sites"`
	Seed        int64    `toml:"seed"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		APIURL:    "http://127.0.0.1:9528",
		Loglevel:  "info",
		Timeout:   30,
		Transfers: 4,
		Retries:   3,
		Mock: MockConfig{
			BindAddress: "127.0.0.1",
			Port:        9528,
			Username:    "admin",
			Password:    "admin",
			TokenTTL:    24,
			Files:       10,
			Sites:       []string{"bj", "sh", "gz"},
		},
	}
}

// ConfigDir returns the directory holding the config file and session store.
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "storageportal"), nil
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads configuration from a TOML file
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads configPath, falling back to DefaultConfig when the
// file does not exist.
func LoadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return Load(configPath)
}

// TimeoutDuration returns the request timeout.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// SessionPath returns the session store location, defaulting to the config
// directory.
func (c *Config) SessionPath() (string, error) {
	if c.SessionFile != "" {
		return c.SessionFile, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.db"), nil
}

// Validate checks if the client configuration is valid
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	u, err := url.ParseRequestURI(c.APIURL)
	if err != nil {
		return fmt.Errorf("api_url is invalid: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api_url must use http or https")
	}

	if _, err := logrus.ParseLevel(c.Loglevel); err != nil {
		return fmt.Errorf("loglevel must be one of: panic, fatal, error, warn, info, debug, trace")
	}

	if c.Timeout < MinTimeout || c.Timeout > MaxTimeout {
		return fmt.Errorf("timeout must be between %d and %d seconds", MinTimeout, MaxTimeout)
	}
	if c.Transfers < MinTransfers || c.Transfers > MaxTransfers {
		return fmt.Errorf("transfers must be between %d and %d", MinTransfers, MaxTransfers)
	}
	if c.Retries < MinRetries || c.Retries > MaxRetries {
		return fmt.Errorf("retries must be between %d and %d", MinRetries, MaxRetries)
	}

	return nil
}

// ValidateMock checks the mock server section
func (c *Config) ValidateMock() error {
	if _, err := logrus.ParseLevel(c.Loglevel); err != nil {
		return fmt.Errorf("loglevel must be one of: panic, fatal, error, warn, info, debug, trace")
	}

	m := c.Mock
	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("mock.port must be between 1 and 65535")
	}
	if m.Username == "" {
		return fmt.Errorf("mock.username is required")
	}
	if m.Password == "" {
		return fmt.Errorf("mock.password is required")
	}
	if m.TokenTTL < 1 {
		return fmt.Errorf("mock.token_ttl must be at least 1 hour")
	}
	if m.Files < 0 || m.Files > MaxMockFiles {
		return fmt.Errorf("mock.files must be between 0 and %d", MaxMockFiles)
	}
	if len(m.Sites) == 0 {
		return fmt.Errorf("mock.sites must not be empty")
	}
	for _, site := range m.Sites {
		if site == "" {
			return fmt.Errorf("mock.sites must not contain empty codes")
		}
	}

	return nil
}
