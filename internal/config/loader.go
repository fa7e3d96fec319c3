// Package config reads and writes config.yaml in the config directory.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/validate"
)

// FileName is the configuration file inside the config directory.
const FileName = "config.yaml"

// DefaultBackend is used when the configuration names no backend.
const DefaultBackend = "age"

// FallbackProfile is used when no profile is given anywhere.
const FallbackProfile = "default"

// EnvProfile overrides default_profile.
const EnvProfile = "WITH_PROFILE"

// ErrConfigNotFound is returned by LoadConfig when config.yaml does not exist.
var ErrConfigNotFound = witherrors.ErrConfigNotFound

// Config is the content of config.yaml.
type Config struct {
	Backend        string   `yaml:"backend,omitempty"`
	DefaultProfile string   `yaml:"default_profile,omitempty"`
	Profiles       []string `yaml:"profiles,omitempty"`
	KeyVault       KeyVault `yaml:"keyvault,omitempty"`
}

// KeyVault configures the azure-keyvault backend.
type KeyVault struct {
	URL string `yaml:"url,omitempty"`
}

// Path returns the config file path for configDir.
func Path(configDir string) string {
	return filepath.Join(configDir, FileName)
}

// LoadConfig reads and parses the configuration file from configDir.
// Returns ErrConfigNotFound if the file doesn't exist.
func LoadConfig(configDir string) (*Config, error) {
	configPath := Path(configDir)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, witherrors.FileError("failed to read configuration file", configPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, witherrors.ConfigFileError("failed to parse configuration file (invalid YAML)",
			configPath, "check YAML syntax and indentation", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, witherrors.ConfigFileError("invalid configuration", configPath, "", err)
	}

	return &cfg, nil
}

// LoadOrDefault is LoadConfig with an empty configuration when the file is missing.
func LoadOrDefault(configDir string) (*Config, error) {
	cfg, err := LoadConfig(configDir)
	if err == ErrConfigNotFound {
		return &Config{}, nil
	}
	return cfg, err
}

// SaveConfig writes cfg to configDir, creating the directory if needed.
func SaveConfig(configDir string, cfg *Config) error {
	configPath := Path(configDir)

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return witherrors.FileError("failed to create config directory", configDir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return witherrors.ConfigFileError("failed to marshal configuration to YAML", configPath, "", err)
	}

	tmp := configPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		_ = os.Remove(tmp)
		return witherrors.FileError("failed to write configuration file", configPath, err).
			WithContext("permissions", "0600")
	}
	if err := os.Rename(tmp, configPath); err != nil {
		_ = os.Remove(tmp)
		return witherrors.FileError("failed to replace configuration file", configPath, err)
	}

	return nil
}

// Validate checks names and URLs in the configuration.
func (c *Config) Validate() error {
	if c.DefaultProfile != "" {
		if err := validate.ValidateProfileName(c.DefaultProfile); err != nil {
			return err
		}
	}
	for _, p := range c.Profiles {
		if err := validate.ValidateProfileName(p); err != nil {
			return err
		}
	}
	if c.KeyVault.URL != "" {
		if err := validate.ValidateVaultURL(c.KeyVault.URL); err != nil {
			return err
		}
	}
	return nil
}

// BackendName returns the configured backend or DefaultBackend.
func (c *Config) BackendName() string {
	if c.Backend == "" {
		return DefaultBackend
	}
	return c.Backend
}

// AddProfile records name as a known profile. It reports whether the list changed.
func (c *Config) AddProfile(name string) bool {
	if slices.Contains(c.Profiles, name) {
		return false
	}
	c.Profiles = append(c.Profiles, name)
	sort.Strings(c.Profiles)
	return true
}

// RemoveProfile forgets name, clearing default_profile if it pointed there.
// It reports whether anything changed.
func (c *Config) RemoveProfile(name string) bool {
	changed := false
	if i := slices.Index(c.Profiles, name); i >= 0 {
		c.Profiles = slices.Delete(c.Profiles, i, i+1)
		changed = true
	}
	if c.DefaultProfile == name {
		c.DefaultProfile = ""
		changed = true
	}
	return changed
}

// ResolveProfile picks the active profile: the flag value, then
// $WITH_PROFILE, then default_profile, then FallbackProfile.
func (c *Config) ResolveProfile(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvProfile); env != "" {
		return env
	}
	if c.DefaultProfile != "" {
		return c.DefaultProfile
	}
	return FallbackProfile
}
