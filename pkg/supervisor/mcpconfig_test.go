package supervisor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectAndRestoreControlServerNoExistingConfig(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, injectControlServer(dir, "/usr/local/bin/aegis-wrap"))

	backupInfo, err := os.Stat(filepath.Join(dir, ".mcp.json.aegis-backup"))
	require.NoError(t, err)
	assert.Zero(t, backupInfo.Size(), "backup of a nonexistent original must be zero bytes")

	data, err := os.ReadFile(filepath.Join(dir, ".mcp.json"))
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	servers, ok := doc["mcpServers"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, servers, "aegis-wrap")

	require.NoError(t, restoreControlServer(dir))
	_, err = os.Stat(filepath.Join(dir, ".mcp.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, ".mcp.json.aegis-backup"))
	assert.True(t, os.IsNotExist(err))
}

func TestInjectAndRestoreControlServerPreservesExisting(t *testing.T) {
	dir := t.TempDir()
	original := `{"mcpServers":{"other":{"command":"other-tool"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mcp.json"), []byte(original), 0o644))

	require.NoError(t, injectControlServer(dir, "/usr/local/bin/aegis-wrap"))
	require.NoError(t, restoreControlServer(dir))

	data, err := os.ReadFile(filepath.Join(dir, ".mcp.json"))
	require.NoError(t, err)
	assert.JSONEq(t, original, string(data))
}

func TestRestoreControlServerWithoutPriorInject(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, restoreControlServer(dir))
}

func TestInjectIsCrashSafeAcrossRepeatedCalls(t *testing.T) {
	dir := t.TempDir()
	original := `{"mcpServers":{"other":{"command":"other-tool"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mcp.json"), []byte(original), 0o644))

	require.NoError(t, injectControlServer(dir, "/usr/local/bin/aegis-wrap"))
	// Simulate a crash: inject is called again before a restore ever
	// happens. The pre-existing backup must remain authoritative.
	require.NoError(t, injectControlServer(dir, "/usr/local/bin/aegis-wrap"))
	require.NoError(t, restoreControlServer(dir))

	data, err := os.ReadFile(filepath.Join(dir, ".mcp.json"))
	require.NoError(t, err)
	assert.JSONEq(t, original, string(data))
}
