package config

import "github.com/marmos91/cachefsd/internal/bytesize"

// DefaultConfig returns the configuration used when no config file is
// found (spec.md §6 lists these as the tunables cachefsd accepts).
func DefaultConfig() *Config {
	return &Config{
		SocketPath:        "/tmp/cachefsd.sock",
		MaxFiles:          1024,
		MaxBytes:          64 * bytesize.MiB,
		Workers:           8,
		ReplacementPolicy: "LRU",
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Path:   "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
	}
}

// ApplyDefaults fills any zero-valued field left unset after unmarshaling,
// matching the teacher's "zero values replaced, explicit values preserved"
// strategy.
func ApplyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.SocketPath == "" {
		cfg.SocketPath = defaults.SocketPath
	}
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = defaults.MaxFiles
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = defaults.MaxBytes
	}
	if cfg.Workers == 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.ReplacementPolicy == "" {
		cfg.ReplacementPolicy = defaults.ReplacementPolicy
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
	if cfg.Logging.Path == "" {
		cfg.Logging.Path = defaults.Logging.Path
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = defaults.Metrics.Addr
	}
}
