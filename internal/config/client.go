package config

// ClientConfig documents the client-facing configuration keys the original
// source's Client_setup struct carried (see original_source/headers/s_api.h).
// The server core has no use for these; they exist so pkg/client's thin
// wrapper has a typed config to load instead of hand-parsing flags.
type ClientConfig struct {
	// SocketPath is the server's local stream socket.
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path" validate:"required,max=108"`

	// DirnameBuffer is the directory client file operations read their
	// content from, mirroring the original's dirname_buffer.
	DirnameBuffer string `mapstructure:"dirname_buffer" yaml:"dirname_buffer"`

	// EjectedBuffer is the directory evicted file payloads are written to,
	// mirroring the original's ejected_buffer.
	EjectedBuffer string `mapstructure:"ejected_buffer" yaml:"ejected_buffer"`

	// ReqTimeIntervalMs is the delay between requests a batch-mode client
	// inserts, mirroring the original's req_time_interval.
	ReqTimeIntervalMs int `mapstructure:"req_time_interval_ms" yaml:"req_time_interval_ms"`

	// OpLog enables per-operation logging, mirroring the original's -p flag
	// (op_log).
	OpLog bool `mapstructure:"op_log" yaml:"op_log"`
}

// DefaultClientConfig returns the client defaults used when no client config
// file is found.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		SocketPath:        DefaultConfig().SocketPath,
		ReqTimeIntervalMs: 0,
		OpLog:             false,
	}
}
