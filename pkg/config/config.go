// Package config loads and persists the agent's configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/topio-agent/pkg/release"
	"github.com/cuemby/topio-agent/pkg/security"
	"github.com/cuemby/topio-agent/pkg/types"
	"github.com/cuemby/topio-agent/pkg/version"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration. JSON files are accepted as well,
// being valid YAML.
type Config struct {
	Tenants  map[string]*types.Tenant `yaml:"tenants"`
	Release  ReleaseConfig            `yaml:"release"`
	Schedule ScheduleConfig           `yaml:"schedule"`

	// PendingPasswords holds plaintext mining passwords by tenant id until
	// `check` seals them
	PendingPasswords map[string]string `yaml:"pending_passwords,omitempty"`

	path string
}

// ReleaseConfig points at the release metadata source
type ReleaseConfig struct {
	API         string `yaml:"api"`
	AssetSuffix string `yaml:"asset_suffix"`

	// TagPrefix is prepended to a version to name its release tag. Unset
	// means "v"; an explicit "" is kept for repos tagging bare versions.
	TagPrefix *string `yaml:"tag_prefix,omitempty"`
}

// Prefix returns the configured tag prefix or the default
func (r ReleaseConfig) Prefix() string {
	if r.TagPrefix == nil {
		return version.DefaultTagPrefix
	}
	return *r.TagPrefix
}

// ScheduleConfig shapes the workflow loops
type ScheduleConfig struct {
	// FrequencyBase scales every frequency controller interval
	FrequencyBase time.Duration `yaml:"frequency_base"`

	MinJitter time.Duration `yaml:"min_jitter"`
	MaxJitter time.Duration `yaml:"max_jitter"`
}

// Defaults
const (
	DefaultFrequencyBase = 60 * time.Second
	DefaultMinJitter     = 10 * time.Second
	DefaultMaxJitter     = 100 * time.Second
)

// Load reads and validates the configuration at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes and validates configuration bytes
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for id, t := range c.Tenants {
		if t == nil {
			continue
		}
		t.ID = id
	}
	if c.Release.API == "" {
		c.Release.API = release.DefaultAPI
	}
	if c.Release.AssetSuffix == "" {
		c.Release.AssetSuffix = release.DefaultAssetSuffix
	}
	if c.Schedule.FrequencyBase == 0 {
		c.Schedule.FrequencyBase = DefaultFrequencyBase
	}
	if c.Schedule.MinJitter == 0 {
		c.Schedule.MinJitter = DefaultMinJitter
	}
	if c.Schedule.MaxJitter == 0 {
		c.Schedule.MaxJitter = DefaultMaxJitter
	}
}

// Validate checks the structural invariants of the configuration
func (c *Config) Validate() error {
	if len(c.Tenants) == 0 {
		return fmt.Errorf("no tenants configured")
	}
	for _, id := range c.TenantIDs() {
		t := c.Tenants[id]
		if t == nil {
			return fmt.Errorf("tenant %s is empty", id)
		}
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for id := range c.PendingPasswords {
		if _, ok := c.Tenants[id]; !ok {
			return fmt.Errorf("pending password for unknown tenant %s", id)
		}
	}
	if c.Schedule.FrequencyBase < 0 {
		return fmt.Errorf("schedule.frequency_base must be positive")
	}
	if c.Schedule.MinJitter < 0 || c.Schedule.MaxJitter <= c.Schedule.MinJitter {
		return fmt.Errorf("schedule jitter range [%s, %s) is empty", c.Schedule.MinJitter, c.Schedule.MaxJitter)
	}
	return nil
}

// CheckSealed verifies every tenant has an encrypted password and that no
// plaintext passwords remain in the file
func (c *Config) CheckSealed() error {
	if len(c.PendingPasswords) > 0 {
		return fmt.Errorf("config holds %d plaintext password(s); run `topio-agent check` first", len(c.PendingPasswords))
	}
	for _, id := range c.TenantIDs() {
		if c.Tenants[id].EncryptedMiningPassword == "" {
			return fmt.Errorf("tenant %s has no mining_pswd_enc", id)
		}
	}
	return nil
}

// TenantIDs returns the tenant ids in sorted order
func (c *Config) TenantIDs() []string {
	ids := make([]string, 0, len(c.Tenants))
	for id := range c.Tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SealPendingPasswords encrypts every pending plaintext password into its
// tenant record and drops the plaintext. It returns the number sealed.
func (c *Config) SealPendingPasswords(v *security.Vault) (int, error) {
	n := 0
	for id, pw := range c.PendingPasswords {
		t, ok := c.Tenants[id]
		if !ok {
			return n, fmt.Errorf("pending password for unknown tenant %s", id)
		}
		sealed, err := v.SealPassword(pw)
		if err != nil {
			return n, fmt.Errorf("failed to seal password for %s: %w", id, err)
		}
		t.EncryptedMiningPassword = sealed
		delete(c.PendingPasswords, id)
		n++
	}
	return n, nil
}

// Password decrypts the mining password of tenant id
func (c *Config) Password(v *security.Vault, id string) (string, error) {
	t, ok := c.Tenants[id]
	if !ok {
		return "", fmt.Errorf("unknown tenant %s", id)
	}
	pw, err := v.OpenPassword(t.EncryptedMiningPassword)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt password for %s: %w", id, err)
	}
	return pw, nil
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// Save writes the configuration back to the file it was loaded from
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config has no file path")
	}
	return c.SaveAs(c.path)
}

// SaveAs atomically writes the configuration to path with 0600 permissions
func (c *Config) SaveAs(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".topio-agent-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	c.path = path
	return nil
}
