package signalfile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestartSignalRoundTrip(t *testing.T) {
	pid := 424242
	t.Cleanup(func() { Cleanup(pid) })

	prompt := "resume please"
	require.NoError(t, WriteRestartSignal(pid, "manual restart", &prompt))

	sig, err := CheckRestartSignal(pid)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "manual restart", sig.Reason)
	require.NotNil(t, sig.Prompt)
	assert.Equal(t, prompt, *sig.Prompt)

	// consumed: a second read sees nothing
	sig, err = CheckRestartSignal(pid)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestCheckRestartSignalToleratesMalformedContent(t *testing.T) {
	pid := 424243
	t.Cleanup(func() { Cleanup(pid) })

	require.NoError(t, os.WriteFile(RestartPath(pid), []byte("not json at all"), 0o600))

	sig, err := CheckRestartSignal(pid)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "not json at all", sig.Reason)
	assert.Nil(t, sig.Prompt)
}

func TestCheckRestartSignalAbsentReturnsNil(t *testing.T) {
	sig, err := CheckRestartSignal(999999991)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestWatchdogPingRoundTrip(t *testing.T) {
	pid := 424244
	t.Cleanup(func() { Cleanup(pid) })

	assert.False(t, CheckWatchdogPing(pid))
	require.NoError(t, WriteWatchdogPing(pid))
	assert.True(t, CheckWatchdogPing(pid))
	assert.False(t, CheckWatchdogPing(pid))
}

func TestWatchdogConfigRoundTrip(t *testing.T) {
	pid := 424245
	t.Cleanup(func() { Cleanup(pid) })

	enabled := false
	update := WatchdogPolicyUpdate{Enabled: &enabled}
	require.NoError(t, WriteWatchdogConfig(pid, update))

	got, err := CheckWatchdogConfig(pid)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Enabled)
	assert.False(t, *got.Enabled)

	got, err = CheckWatchdogConfig(pid)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCheckWatchdogConfigToleratesMalformedContent(t *testing.T) {
	pid := 424246
	t.Cleanup(func() { Cleanup(pid) })

	require.NoError(t, os.WriteFile(WatchdogConfigPath(pid), []byte("not json"), 0o600))
	got, err := CheckWatchdogConfig(pid)
	require.NoError(t, err)
	assert.Nil(t, got)
}
