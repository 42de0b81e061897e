package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverExecutableFindsOnPath(t *testing.T) {
	path, err := DiscoverExecutable("ls")
	require.NoError(t, err)
	assert.NotEmpty(t, path)
}

func TestDiscoverExecutableUnknownBinaryErrors(t *testing.T) {
	_, err := DiscoverExecutable("definitely-not-a-real-binary-xyz")
	assert.Error(t, err)
}

func TestDiscoverExecutableFindsLatestVersionedInstall(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	versionsDir := filepath.Join(home, ".local/share/myagent/versions")
	require.NoError(t, os.MkdirAll(filepath.Join(versionsDir, "1.0.0"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(versionsDir, "2.0.0"), 0o755))
	binPath := filepath.Join(versionsDir, "2.0.0", "myagent")
	require.NoError(t, os.WriteFile(binPath, []byte("#!/bin/sh\n"), 0o755))

	path, err := DiscoverExecutable("myagent")
	require.NoError(t, err)
	assert.Equal(t, binPath, path)
}

func TestDefaultWatchdogConfig(t *testing.T) {
	cfg := DefaultWatchdogConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, ActionRestart, cfg.Action)
	assert.EqualValues(t, 3, cfg.UnresponsiveThreshold)
}

func TestAutoModeAlwaysPreloadToday(t *testing.T) {
	assert.Equal(t, NetmonPreload, AutoMode(false))
	assert.Equal(t, NetmonPreload, AutoMode(true))
}

func TestNewAppConfigHonoursDebugEnvVar(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("DEBUG", "TRUE")

	cfg, err := NewAppConfig("aegis-wrap", "1.0.0", "abc", "2026-01-01", "source", false, "/tmp")
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Len(t, cfg.AgentRegistry, 3)
}
