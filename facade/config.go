// File: facade/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bus configuration: defaults, YAML file and HBUS_ environment overrides.

package facade

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/momentics/hioload-bus/control"
	"github.com/momentics/hioload-bus/internal/session"
)

// EnvPrefix prefixes every environment override, e.g. HBUS_DIR.
const EnvPrefix = "HBUS"

// Config holds parameters immutable per Bus.
type Config struct {
	// Dir is the media driver directory.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// EmbeddedDriver launches an in-process driver for Dir on Initialize
	// when none is running yet.
	EmbeddedDriver bool `mapstructure:"embedded_driver" yaml:"embedded_driver"`
	// RegistrationTimeout bounds each add-publication/subscription wait.
	RegistrationTimeout time.Duration `mapstructure:"registration_timeout" yaml:"registration_timeout"`
	// DefaultIdleIntervalMS is used by the CLI when no interval is given.
	DefaultIdleIntervalMS int `mapstructure:"default_idle_interval_ms" yaml:"default_idle_interval_ms"`
	// PollCPUAffinity lists CPUs poll loops are pinned to, round-robin by
	// subscription handle. Empty leaves scheduling to the runtime.
	PollCPUAffinity []int `mapstructure:"poll_cpu_affinity" yaml:"poll_cpu_affinity"`
	// TermLength is the embedded driver's image capacity in fragments.
	TermLength int `mapstructure:"term_length" yaml:"term_length"`
	// ClientName identifies this bus in logs; empty generates one.
	ClientName string `mapstructure:"client_name" yaml:"client_name"`

	Log control.LogConfig `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns defaults suitable for a single-process bus.
func DefaultConfig() *Config {
	return &Config{
		Dir:                   filepath.Join(os.TempDir(), "hioload-bus"),
		EmbeddedDriver:        true,
		RegistrationTimeout:   session.DefaultRegistrationTimeout,
		DefaultIdleIntervalMS: 1,
		TermLength:            1024,
		Log:                   control.DefaultLogConfig(),
	}
}

// LoadConfig reads path (or hbus.yaml in the usual places when empty) over
// the defaults, then applies HBUS_* environment overrides.
// Example: HBUS_LOG_LEVEL=debug
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("dir", cfg.Dir)
	v.SetDefault("embedded_driver", cfg.EmbeddedDriver)
	v.SetDefault("registration_timeout", cfg.RegistrationTimeout)
	v.SetDefault("default_idle_interval_ms", cfg.DefaultIdleIntervalMS)
	v.SetDefault("poll_cpu_affinity", cfg.PollCPUAffinity)
	v.SetDefault("term_length", cfg.TermLength)
	v.SetDefault("client_name", cfg.ClientName)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hbus")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".hbus"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes empty fields and rejects unusable values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return errors.New("config: dir is required")
	}
	if _, err := control.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	if c.RegistrationTimeout <= 0 {
		c.RegistrationTimeout = session.DefaultRegistrationTimeout
	}
	if c.TermLength <= 0 {
		return fmt.Errorf("config: term_length must be positive, got %d", c.TermLength)
	}
	for _, cpu := range c.PollCPUAffinity {
		if cpu < 0 {
			return fmt.Errorf("config: poll_cpu_affinity: negative cpu %d", cpu)
		}
	}
	return nil
}
