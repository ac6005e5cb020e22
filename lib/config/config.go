// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the wallet tools.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Ledger names the on-ledger objects of the access package.
	Ledger LedgerConfig `yaml:"ledger"`

	// KeyServers lists the threshold key servers, in share order.
	KeyServers []KeyServerConfig `yaml:"key_servers"`

	// Threshold is the number of key servers required to decrypt.
	// Zero means a simple majority.
	Threshold int `yaml:"threshold"`

	// Compression is the envelope compression preference: none, lz4
	// or zstd.
	Compression string `yaml:"compression"`

	// Session configures session lifetimes.
	Session SessionConfig `yaml:"session"`

	// Timeouts bounds network-bound operations.
	Timeouts TimeoutsConfig `yaml:"timeouts"`

	// Blobstore selects where encrypted envelopes are stored.
	Blobstore BlobstoreConfig `yaml:"blobstore"`

	// KeyServer configures a key server daemon.
	KeyServer KeyServerDaemonConfig `yaml:"key_server"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths      *PathsConfig      `yaml:"paths,omitempty"`
	Ledger     *LedgerConfig     `yaml:"ledger,omitempty"`
	KeyServers []KeyServerConfig `yaml:"key_servers,omitempty"`
	Threshold  int               `yaml:"threshold,omitempty"`
	Session    *SessionConfig    `yaml:"session,omitempty"`
	Timeouts   *TimeoutsConfig   `yaml:"timeouts,omitempty"`
	Blobstore  *BlobstoreConfig  `yaml:"blobstore,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for wallet data.
	Root string `yaml:"root"`

	// State holds master records, signing keys and the development
	// ledger snapshot.
	State string `yaml:"state"`

	// Blobs is the root of a directory blob store.
	Blobs string `yaml:"blobs"`
}

// LedgerConfig names the access package and its shared objects.
// Addresses are 0x-prefixed hex.
type LedgerConfig struct {
	PackageID  string `yaml:"package_id"`
	RegistryID string `yaml:"registry_id"`
	ClockID    string `yaml:"clock_id"`
}

// KeyServerConfig identifies one key server.
type KeyServerConfig struct {
	ID string `yaml:"id"`

	// PublicKey is the server's age recipient (age1...).
	PublicKey string `yaml:"public_key"`

	// URL is the server's HTTP base URL.
	URL string `yaml:"url"`
}

// SessionConfig configures session lifetimes.
type SessionConfig struct {
	// DefaultTTL is the lifetime of sessions the client creates.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// MaxTTL is the longest session accepted.
	MaxTTL time.Duration `yaml:"max_ttl"`
}

// TimeoutsConfig bounds each network-bound step.
type TimeoutsConfig struct {
	Session   time.Duration `yaml:"session"`
	Ledger    time.Duration `yaml:"ledger"`
	Authority time.Duration `yaml:"authority"`
}

// BlobstoreConfig selects the blob store.
type BlobstoreConfig struct {
	// Kind is "dir", "memory" or "redis".
	Kind string `yaml:"kind"`

	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// KeyServerDaemonConfig configures pdw-keyserver.
type KeyServerDaemonConfig struct {
	// ID is this server's name in envelopes.
	ID string `yaml:"id"`

	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Keypair is the path of the server's age identity file.
	Keypair string `yaml:"keypair"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "pdw")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
			Blobs: filepath.Join(defaultRoot, "blobs"),
		},
		Compression: "none",
		Session: SessionConfig{
			DefaultTTL: 10 * time.Minute,
			MaxTTL:     30 * time.Minute,
		},
		Timeouts: TimeoutsConfig{
			Session:   time.Minute,
			Ledger:    30 * time.Second,
			Authority: 30 * time.Second,
		},
		Blobstore: BlobstoreConfig{
			Kind:        "dir",
			RedisPrefix: "pdw:blob:",
		},
		KeyServer: KeyServerDaemonConfig{
			Listen: "127.0.0.1:8420",
		},
	}
}

// Load loads configuration from PDW_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if PDW_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("PDW_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PDW_CONFIG environment variable not set; " +
			"set it to the path of your pdw.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
		if overrides.Paths.Blobs != "" {
			c.Paths.Blobs = overrides.Paths.Blobs
		}
	}

	if overrides.Ledger != nil {
		if overrides.Ledger.PackageID != "" {
			c.Ledger.PackageID = overrides.Ledger.PackageID
		}
		if overrides.Ledger.RegistryID != "" {
			c.Ledger.RegistryID = overrides.Ledger.RegistryID
		}
		if overrides.Ledger.ClockID != "" {
			c.Ledger.ClockID = overrides.Ledger.ClockID
		}
	}

	// The key server list is replaced as a whole: merging share order
	// across files would be ambiguous.
	if len(overrides.KeyServers) > 0 {
		c.KeyServers = overrides.KeyServers
	}
	if overrides.Threshold != 0 {
		c.Threshold = overrides.Threshold
	}

	if overrides.Session != nil {
		if overrides.Session.DefaultTTL != 0 {
			c.Session.DefaultTTL = overrides.Session.DefaultTTL
		}
		if overrides.Session.MaxTTL != 0 {
			c.Session.MaxTTL = overrides.Session.MaxTTL
		}
	}

	if overrides.Timeouts != nil {
		if overrides.Timeouts.Session != 0 {
			c.Timeouts.Session = overrides.Timeouts.Session
		}
		if overrides.Timeouts.Ledger != 0 {
			c.Timeouts.Ledger = overrides.Timeouts.Ledger
		}
		if overrides.Timeouts.Authority != 0 {
			c.Timeouts.Authority = overrides.Timeouts.Authority
		}
	}

	if overrides.Blobstore != nil {
		if overrides.Blobstore.Kind != "" {
			c.Blobstore.Kind = overrides.Blobstore.Kind
		}
		if overrides.Blobstore.RedisAddr != "" {
			c.Blobstore.RedisAddr = overrides.Blobstore.RedisAddr
		}
		if overrides.Blobstore.RedisPrefix != "" {
			c.Blobstore.RedisPrefix = overrides.Blobstore.RedisPrefix
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"PDW_ROOT": c.Paths.Root,
		"HOME":     os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["PDW_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Blobs = expandVars(c.Paths.Blobs, vars)
	c.KeyServer.Keypair = expandVars(c.KeyServer.Keypair, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	for name, value := range map[string]string{
		"ledger.package_id":  c.Ledger.PackageID,
		"ledger.registry_id": c.Ledger.RegistryID,
		"ledger.clock_id":    c.Ledger.ClockID,
	} {
		if !addressPattern.MatchString(value) {
			errs = append(errs, fmt.Errorf("%s must be a 0x-prefixed hex address, got %q", name, value))
		}
	}

	ids := make(map[string]bool, len(c.KeyServers))
	for position, server := range c.KeyServers {
		if server.ID == "" {
			errs = append(errs, fmt.Errorf("key_servers[%d].id is required", position))
		} else if ids[server.ID] {
			errs = append(errs, fmt.Errorf("key_servers[%d].id %q is duplicated", position, server.ID))
		}
		ids[server.ID] = true
		if server.PublicKey == "" {
			errs = append(errs, fmt.Errorf("key_servers[%d].public_key is required", position))
		}
		if server.URL == "" {
			errs = append(errs, fmt.Errorf("key_servers[%d].url is required", position))
		}
	}
	if c.Threshold < 0 || c.Threshold > len(c.KeyServers) {
		errs = append(errs, fmt.Errorf("threshold %d with %d key servers", c.Threshold, len(c.KeyServers)))
	}

	if !contains([]string{"", "none", "lz4", "zstd"}, c.Compression) {
		errs = append(errs, fmt.Errorf("compression must be one of: none, lz4, zstd"))
	}

	if c.Session.MaxTTL <= 0 {
		errs = append(errs, fmt.Errorf("session.max_ttl must be positive"))
	}
	if c.Session.DefaultTTL <= 0 || c.Session.DefaultTTL > c.Session.MaxTTL {
		errs = append(errs, fmt.Errorf("session.default_ttl must be positive and at most session.max_ttl"))
	}

	if c.Timeouts.Session < 0 || c.Timeouts.Ledger < 0 || c.Timeouts.Authority < 0 {
		errs = append(errs, fmt.Errorf("timeouts must not be negative"))
	}

	switch c.Blobstore.Kind {
	case "dir":
		if c.Paths.Blobs == "" {
			errs = append(errs, fmt.Errorf("paths.blobs is required for a dir blobstore"))
		}
	case "memory":
		if c.Environment == Production {
			errs = append(errs, fmt.Errorf("blobstore.kind memory is not allowed in production"))
		}
	case "redis":
		if c.Blobstore.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("blobstore.redis_addr is required for a redis blobstore"))
		}
	default:
		errs = append(errs, fmt.Errorf("blobstore.kind must be one of: dir, memory, redis"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		c.Paths.Blobs,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
