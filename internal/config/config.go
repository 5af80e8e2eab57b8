package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const (
	// DefaultMaxBodyBytes caps decoded body text (characters).
	DefaultMaxBodyBytes = 10 * 1024 * 1024
	// DefaultMaxAttachmentBytes caps attachment payload sizes (bytes).
	DefaultMaxAttachmentBytes = 25 * 1024 * 1024
)

// Config holds all configuration for mailbridge
type Config struct {
	Limits   LimitsConfig   `koanf:"limits" yaml:"limits"`
	Logging  LoggingConfig  `koanf:"logging" yaml:"logging"`
	Profiles ProfilesConfig `koanf:"profiles" yaml:"profiles"`
	TLS      TLSConfig      `koanf:"tls" yaml:"tls"`
	DKIM     DKIMConfig     `koanf:"dkim" yaml:"dkim"`
	Audit    AuditConfig    `koanf:"audit" yaml:"audit"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
}

// LimitsConfig holds size guardrails and timeouts
type LimitsConfig struct {
	MaxBodyBytes       int    `koanf:"max_body_bytes" yaml:"max_body_bytes"`             // Body truncation, in characters
	MaxAttachmentBytes int    `koanf:"max_attachment_bytes" yaml:"max_attachment_bytes"` // Attachment truncation/upload cap, in bytes
	ConnectTimeout     string `koanf:"connect_timeout" yaml:"connect_timeout"`           // Dial timeout for IMAP and SMTP
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`   // debug, info, warn, error
	Format string `koanf:"format" yaml:"format"` // json, text
	Output string `koanf:"output" yaml:"output"` // stdout, stderr, or file path
}

// ProfilesConfig locates the account profile store
type ProfilesConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// TLSConfig holds client TLS settings
type TLSConfig struct {
	InsecureSkipVerify bool `koanf:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// DKIMConfig enables signing of outgoing messages
type DKIMConfig struct {
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
	Domain   string `koanf:"domain" yaml:"domain"`
	Selector string `koanf:"selector" yaml:"selector"`
	KeyFile  string `koanf:"key_file" yaml:"key_file"`
}

// AuditConfig holds the audit trail database settings
type AuditConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Path    string `koanf:"path" yaml:"path"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Textfile string `koanf:"textfile" yaml:"textfile"` // Prometheus textfile collector output
}

// envKeys maps the recognised environment variables onto config keys.
var envKeys = map[string]string{
	"MAX_BODY_BYTES":       "limits.max_body_bytes",
	"MAX_ATTACHMENT_BYTES": "limits.max_attachment_bytes",
	"MAILBRIDGE_LOG_LEVEL": "logging.level",
	"MAILBRIDGE_PROFILES":  "profiles.path",
}

// DefaultDir returns the per-user configuration directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailbridge"
	}
	return filepath.Join(home, ".config", "mailbridge")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	dir := DefaultDir()
	return &Config{
		Limits: LimitsConfig{
			MaxBodyBytes:       DefaultMaxBodyBytes,
			MaxAttachmentBytes: DefaultMaxAttachmentBytes,
			ConnectTimeout:     "30s",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "json",
			Output: "stderr",
		},
		Profiles: ProfilesConfig{
			Path: filepath.Join(dir, "accounts.json"),
		},
		DKIM: DKIMConfig{
			Selector: "mail",
		},
		Audit: AuditConfig{
			Path: filepath.Join(dir, "audit.db"),
		},
	}
}

// Load reads configuration from a YAML file, then applies environment overrides
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// envKey returns the config key for an environment variable, or "" to skip it.
func envKey(name string) string {
	return envKeys[strings.ToUpper(name)]
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Limits.MaxBodyBytes < 1 {
		return fmt.Errorf("limits.max_body_bytes must be positive (got: %d)", c.Limits.MaxBodyBytes)
	}
	if c.Limits.MaxAttachmentBytes < 1 {
		return fmt.Errorf("limits.max_attachment_bytes must be positive (got: %d)", c.Limits.MaxAttachmentBytes)
	}

	if err := c.validateTimeouts(); err != nil {
		return err
	}

	if c.Logging.Level != "" {
		validLevels := map[string]bool{
			"debug": true, "info": true, "warn": true, "warning": true, "error": true,
		}
		if !validLevels[c.Logging.Level] {
			return fmt.Errorf("logging.level must be one of: debug, info, warn, error (got: %s)", c.Logging.Level)
		}
	}

	if c.Logging.Format != "" {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[c.Logging.Format] {
			return fmt.Errorf("logging.format must be one of: json, text (got: %s)", c.Logging.Format)
		}
	}

	if c.Profiles.Path == "" {
		return fmt.Errorf("profiles.path is required")
	}

	if c.DKIM.Enabled {
		if c.DKIM.Domain == "" {
			return fmt.Errorf("dkim.domain is required when dkim is enabled")
		}
		if c.DKIM.Selector == "" {
			return fmt.Errorf("dkim.selector is required when dkim is enabled")
		}
		if err := validateFileReadable(c.DKIM.KeyFile); err != nil {
			return fmt.Errorf("dkim.key_file: %w", err)
		}
	}

	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required when audit is enabled")
	}

	return nil
}

// ConnectTimeout returns the parsed dial timeout, falling back to 30s.
func (c *Config) ConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.Limits.ConnectTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// validateTimeouts ensures all timeout configurations are valid
func (c *Config) validateTimeouts() error {
	timeouts := map[string]string{
		"limits.connect_timeout": c.Limits.ConnectTimeout,
	}

	for name, timeout := range timeouts {
		if timeout == "" {
			continue
		}
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("%s is invalid: %w", name, err)
		}
		if duration <= 0 {
			return fmt.Errorf("%s must be positive (got: %s)", name, timeout)
		}
		if duration > 5*time.Minute {
			return fmt.Errorf("%s is too long, maximum is 5m (got: %s)", name, timeout)
		}
	}

	return nil
}

// validateFileReadable checks if a file exists and is readable
func validateFileReadable(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("cannot access file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("path is a directory, expected a file: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file is not readable: %w", err)
	}
	f.Close()

	return nil
}

// WriteDefault writes the default configuration as YAML, refusing to overwrite.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := yamlv3.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	return os.WriteFile(path, data, 0600)
}
