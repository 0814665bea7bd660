package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/gdrv-gateway/internal/utils"
	"go.yaml.in/yaml/v3"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.yaml"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "GDRV_GATEWAY_"
)

// Config holds gateway configuration
type Config struct {
	// ListenAddr is the HTTP listen address
	ListenAddr string `yaml:"listenAddr"`

	// RootFolder is the folder listed when a request names none
	RootFolder string `yaml:"rootFolder"`

	// SizeLimitKB excludes larger objects from listings
	SizeLimitKB float64 `yaml:"sizeLimitKb"`

	// ServiceAccountFile is the path to the service account key JSON
	ServiceAccountFile string `yaml:"serviceAccountFile"`

	// KeyringProfile, when set, loads the service account key from the
	// system keyring instead of ServiceAccountFile
	KeyringProfile string `yaml:"keyringProfile"`

	// Scopes requested for the service account token
	Scopes []string `yaml:"scopes"`

	// DefaultPageSize is used when a listing request omits pageSize
	DefaultPageSize int `yaml:"defaultPageSize"`

	// MaxListItems caps non-paginated listings; 0 means unlimited
	MaxListItems int `yaml:"maxListItems"`

	// ChunkSize is the byte size of each download range request
	ChunkSize int64 `yaml:"chunkSize"`

	// RequestTimeout bounds each catalog and tunnel call, in seconds
	RequestTimeout int `yaml:"requestTimeout"`

	// ChunkTimeout bounds each download chunk request, in seconds
	ChunkTimeout int `yaml:"chunkTimeout"`

	// TunnelAllowedHosts are host suffixes the tunnel may forward to; "*"
	// allows any host
	TunnelAllowedHosts []string `yaml:"tunnelAllowedHosts"`

	// CORSOrigins lists allowed origins; "*" allows all
	CORSOrigins []string `yaml:"corsOrigins"`

	// LogLevel sets the logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"logLevel"`

	// LogFormat is console or json
	LogFormat string `yaml:"logFormat"`

	// LogFile optionally mirrors logs to a rotating JSON file
	LogFile string `yaml:"logFile"`

	// LogColor enables ANSI colors in console logs
	LogColor bool `yaml:"logColor"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:         ":8080",
		RootFolder:         "",
		SizeLimitKB:        utils.DefaultSizeLimitKB,
		ServiceAccountFile: "service_account-credentials.json",
		Scopes:             append([]string(nil), utils.DefaultScopes...),
		DefaultPageSize:    utils.DefaultPageSize,
		MaxListItems:       0,
		ChunkSize:          utils.DefaultChunkSize,
		RequestTimeout:     utils.DefaultRequestTimeoutSec,
		ChunkTimeout:       utils.DefaultChunkTimeoutSec,
		TunnelAllowedHosts: append([]string(nil), utils.DefaultTunnelHosts...),
		CORSOrigins:        []string{"*"},
		LogLevel:           "info",
		LogFormat:          "console",
		LogColor:           true,
	}
}

// Load loads configuration with precedence: env vars > config file > defaults.
// An empty path means the default config location; a missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromFile(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile reads defaults overlaid with the file at path, ignoring the
// environment. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadFromFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads configuration from a YAML file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// loadFromEnv loads configuration from environment variables. The
// unprefixed SERVICE_ACCOUNT_JSON, ROOT_FOLDER and SIZE_LIMIT_KB names are
// honored too; prefixed names win. Every unparsable value is reported.
func (c *Config) loadFromEnv() error {
	var errs []error
	parse := func(name, v string, fn func(string) error) {
		if v == "" {
			return
		}
		if err := fn(v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", name, v, err))
		}
	}
	atoi := func(dst *int) func(string) error {
		return func(v string) (err error) {
			*dst, err = strconv.Atoi(v)
			return err
		}
	}

	if v := getenv("SERVICE_ACCOUNT_JSON"); v != "" {
		c.ServiceAccountFile = v
	}
	if v := getenv("ROOT_FOLDER"); v != "" {
		c.RootFolder = v
	}
	parse("SIZE_LIMIT_KB", getenv("SIZE_LIMIT_KB"), func(v string) (err error) {
		c.SizeLimitKB, err = strconv.ParseFloat(v, 64)
		return err
	})
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "KEYRING_PROFILE"); v != "" {
		c.KeyringProfile = v
	}
	parse(EnvPrefix+"DEFAULT_PAGE_SIZE", os.Getenv(EnvPrefix+"DEFAULT_PAGE_SIZE"), atoi(&c.DefaultPageSize))
	parse(EnvPrefix+"MAX_LIST_ITEMS", os.Getenv(EnvPrefix+"MAX_LIST_ITEMS"), atoi(&c.MaxListItems))
	parse(EnvPrefix+"CHUNK_SIZE", os.Getenv(EnvPrefix+"CHUNK_SIZE"), func(v string) (err error) {
		c.ChunkSize, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	parse(EnvPrefix+"REQUEST_TIMEOUT", os.Getenv(EnvPrefix+"REQUEST_TIMEOUT"), atoi(&c.RequestTimeout))
	parse(EnvPrefix+"CHUNK_TIMEOUT", os.Getenv(EnvPrefix+"CHUNK_TIMEOUT"), atoi(&c.ChunkTimeout))
	if v := os.Getenv(EnvPrefix + "TUNNEL_ALLOWED_HOSTS"); v != "" {
		c.TunnelAllowedHosts = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_COLOR"); v != "" {
		c.LogColor = parseBool(v)
	}
	return errors.Join(errs...)
}

// getenv looks up a prefixed variable first, then the bare name
func getenv(name string) string {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		return v
	}
	return os.Getenv(name)
}

// Save writes the configuration to path as YAML
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}

	if c.SizeLimitKB < 0 {
		return fmt.Errorf("size limit must be non-negative, got: %g", c.SizeLimitKB)
	}

	if c.ServiceAccountFile == "" && c.KeyringProfile == "" {
		return fmt.Errorf("either serviceAccountFile or keyringProfile must be set")
	}

	if len(c.Scopes) == 0 {
		return fmt.Errorf("at least one scope required")
	}

	if c.DefaultPageSize < 1 || c.DefaultPageSize > 1000 {
		return fmt.Errorf("default page size must be between 1 and 1000, got: %d", c.DefaultPageSize)
	}

	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items must be non-negative, got: %d", c.MaxListItems)
	}

	if c.ChunkSize < utils.MinChunkSize {
		return fmt.Errorf("chunk size must be at least %d bytes, got: %d", utils.MinChunkSize, c.ChunkSize)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	if c.ChunkTimeout < 1 || c.ChunkTimeout > 3600 {
		return fmt.Errorf("chunk timeout must be between 1 and 3600 seconds, got: %d", c.ChunkTimeout)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.LogFormat)
	}

	return nil
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetChunkTimeout returns the per-chunk timeout as a duration
func (c *Config) GetChunkTimeout() time.Duration {
	return time.Duration(c.ChunkTimeout) * time.Second
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "gdrv-gateway"), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitList splits a comma-separated list, dropping empty items
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
