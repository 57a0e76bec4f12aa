package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/cachefsd/internal/config"
)

func TestRunInit_CreatesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfgFile = path
	initForce = false
	defer func() { cfgFile = ""; initForce = false }()

	require.NoError(t, runInit(nil, nil))

	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.DefaultConfig().MaxFiles, loaded.MaxFiles)
}

func TestRunInit_RefusesToOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("socket_path: /tmp/x\n"), 0o600))

	cfgFile = path
	initForce = false
	defer func() { cfgFile = ""; initForce = false }()

	err := runInit(nil, nil)
	require.Error(t, err)
}

func TestRunInit_ForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("socket_path: /tmp/x\n"), 0o600))

	cfgFile = path
	initForce = true
	defer func() { cfgFile = ""; initForce = false }()

	require.NoError(t, runInit(nil, nil))
}
