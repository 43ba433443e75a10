// Package config loads server configuration from the config file,
// environment, and command line flags, in ascending precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/dockhand-sh/dockhand/pkg/approval"
)

const (
	// DefaultPort is the preferred listen port.
	DefaultPort = 41100

	// DefaultPortRetries is how many successor ports to try when the
	// preferred one is taken.
	DefaultPortRetries = 16

	envPrefix  = "DOCKHAND"
	configName = "config"
	configType = "yaml"
)

// Config is the resolved runtime configuration.
type Config struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	PortRetries int           `mapstructure:"port_retries"`
	Workspace   string        `mapstructure:"workspace"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	Metrics     bool          `mapstructure:"metrics"`
	Approval    string        `mapstructure:"approval"`
	Debug       bool          `mapstructure:"debug"`
}

// ApprovalMode parses the configured approval mode string.
func (c *Config) ApprovalMode() (approval.Mode, error) {
	return approval.ParseMode(c.Approval)
}

// Dir returns the directory holding the config file and the server
// discovery file, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "dockhand")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// SetDefaults installs defaults on the given viper instance. Flag and env
// bindings happen in the CLI layer; this keeps the canonical values in
// one place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("port_retries", DefaultPortRetries)
	v.SetDefault("workspace", ".")
	v.SetDefault("session_ttl", 30*time.Minute)
	v.SetDefault("metrics", false)
	v.SetDefault("approval", approval.ModeAuto.String())
	v.SetDefault("debug", false)
}

// Load reads configuration into a Config. A missing config file is fine;
// defaults and environment still apply.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if dir, err := Dir(); err == nil {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if _, err := cfg.ApprovalMode(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
