// Package config loads and validates cachefsd's server configuration.
// Values come from the config file (YAML); CACHEFSD_* environment variables
// override the keys that file sets, and defaults fill whatever is left unset.
// When no config file is found the defaults are used as they are and the
// environment is not consulted. No setting other than the config file path
// is taken from CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/cachefsd/internal/bytesize"
)

// Config is cachefsd's server configuration (spec.md §6 "Server config").
type Config struct {
	// SocketPath is the filesystem path the local stream socket binds to.
	// Bounded by UNIX_PATH_MAX (108 bytes), see SPEC_FULL.md §C.
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path" validate:"required,max=108"`

	// MaxFiles bounds files_in_use (spec.md §3).
	MaxFiles int `mapstructure:"max_files" yaml:"max_files" validate:"required,gt=0"`

	// MaxBytes bounds bytes_in_use. Accepts a human-readable size ("1Gi",
	// "512Mi") or a plain byte count.
	MaxBytes bytesize.ByteSize `mapstructure:"max_bytes" yaml:"max_bytes" validate:"required,gt=0"`

	// Workers is the fixed worker-pool size W (spec.md §4.5).
	Workers int `mapstructure:"workers" yaml:"workers" validate:"required,gt=0"`

	// ReplacementPolicy selects the eviction victim order: LRU or FIFO.
	ReplacementPolicy string `mapstructure:"replacement_policy" yaml:"replacement_policy" validate:"required,oneof=LRU FIFO lru fifo"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls the structured log output (spec.md §6 "Log").
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Path is the append-only log file path, "stdout", or "stderr".
	Path string `mapstructure:"log_path" yaml:"log_path" validate:"required"`
}

// MetricsConfig configures the optional Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// Load reads configuration from configPath (or the default search path if
// empty), applies defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(byteSizeDecodeHook())); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// SaveConfig writes cfg to path as YAML, creating parent directories as
// needed. Mirrors the teacher's pkg/config.SaveConfig.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CACHEFSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

// byteSizeDecodeHook lets config files use human-readable sizes ("1Gi")
// for max_bytes, via mapstructure's decode-hook mechanism.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cachefsd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "cachefsd")
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}
