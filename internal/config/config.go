// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-vault.
//
// go-vault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-vault/pkg/validation"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvRootDir        = "VAULT_ROOT_DIR"
	EnvVault          = "VAULT_NAME"
	EnvPKCS11Library  = "VAULT_PKCS11_LIBRARY"
	EnvLogLevel       = "VAULT_LOG_LEVEL"
	EnvLogFormat      = "VAULT_LOG_FORMAT"
	EnvMetricsEnabled = "VAULT_METRICS_ENABLED"
)

// Defaults applied by SetDefaults
const (
	DefaultVault     = "default"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

var (
	ErrRootDirRequired = errors.New("config: root_dir is required")
	ErrInvalidVault    = errors.New("config: invalid vault name")
	ErrInvalidLogLevel = errors.New("config: invalid log level")
	ErrInvalidFormat   = errors.New("config: invalid log format")
)

// Config represents the vault configuration
type Config struct {
	// RootDir is the application data directory holding settings/ and vaults/
	RootDir string `yaml:"root_dir"`

	// Vault is the name of the vault opened by the service
	Vault string `yaml:"vault"`

	Hardware HardwareConfig `yaml:"hardware"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// HardwareConfig controls PKCS#11 token access
type HardwareConfig struct {
	Enabled bool `yaml:"enabled"`
	// Library is the PKCS#11 module path. Empty probes the environment and
	// the per-OS default locations.
	Library string `yaml:"library"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls Prometheus instrumentation
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file on fs, applies environment
// variable overrides and defaults, and validates the result.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	ApplyEnvOverrides(&cfg, os.Getenv)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyEnvOverrides overrides cfg with any set environment variables.
// Unparseable boolean values are ignored.
func ApplyEnvOverrides(cfg *Config, getenv func(string) string) {
	if dir := getenv(EnvRootDir); dir != "" {
		cfg.RootDir = dir
	}
	if vault := getenv(EnvVault); vault != "" {
		cfg.Vault = vault
	}
	if lib := getenv(EnvPKCS11Library); lib != "" {
		cfg.Hardware.Library = lib
		cfg.Hardware.Enabled = true
	}
	if level := getenv(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if format := getenv(EnvLogFormat); format != "" {
		cfg.Logging.Format = format
	}
	if enabled := getenv(EnvMetricsEnabled); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			cfg.Metrics.Enabled = v
		}
	}
}

// SetDefaults fills unset fields
func (c *Config) SetDefaults() {
	if c.Vault == "" {
		c.Vault = DefaultVault
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return ErrRootDirRequired
	}
	if err := validation.ValidateVaultName(c.Vault); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidVault, err)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("%w: %s (must be debug, info, warn or error)", ErrInvalidLogLevel, c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("%w: %s (must be json or text)", ErrInvalidFormat, c.Logging.Format)
	}
	return nil
}
