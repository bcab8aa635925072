package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides applied on top of the profile file.
const (
	EnvServer      = "EMSTORE_SERVER"
	EnvScheme      = "EMSTORE_SCHEME"
	EnvCredentials = "EMSTORE_CREDENTIALS_FILE"
	EnvTimeout     = "EMSTORE_TIMEOUT"
)

const defaultServer = "http://localhost:8000"

// Profile is the on-disk CLI configuration.
type Profile struct {
	Server          string        `yaml:"server"`
	Scheme          string        `yaml:"scheme"`
	CredentialsFile string        `yaml:"credentials_file"`
	Timeout         time.Duration `yaml:"timeout"`
}

// DefaultConfigPath is $XDG_CONFIG_HOME/emstore/config.yaml, falling back to
// the platform config directory.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "emstore")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "emstore")
	}
	return ".emstore"
}

// LoadProfile reads path, tolerating a missing file, then applies
// environment overrides and defaults.
func LoadProfile(path string) (Profile, error) {
	var p Profile

	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return p, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv(EnvServer); v != "" {
		p.Server = v
	}
	if v := os.Getenv(EnvScheme); v != "" {
		p.Scheme = v
	}
	if v := os.Getenv(EnvCredentials); v != "" {
		p.CredentialsFile = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return p, fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		p.Timeout = d
	}

	if p.Server == "" {
		p.Server = defaultServer
	}
	if p.Scheme == "" {
		p.Scheme = "bearer"
	}
	if p.CredentialsFile == "" {
		p.CredentialsFile = filepath.Join(configDir(), "credentials.json")
	}
	return p, nil
}

// Save writes the profile as YAML, creating the directory if needed.
func (p Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
