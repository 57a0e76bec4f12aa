package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	require.Equal(t, DefaultConfig().SocketPath, cfg.SocketPath)
	require.False(t, cfg.OpLog)
	require.Zero(t, cfg.ReqTimeIntervalMs)
}
