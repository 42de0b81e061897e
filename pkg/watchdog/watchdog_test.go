package watchdog

import (
	"testing"
	"time"

	"github.com/brainwires/aegis-wrap/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorBasic(t *testing.T) {
	m := NewMonitor(config.DefaultWatchdogConfig())
	m.StartMonitoring(1)

	status := m.GetStatus()
	require.NotNil(t, status)
	assert.Contains(t, []State{StateStarting, StateActive}, status.State)
}

func TestMonitorActivityRecording(t *testing.T) {
	m := NewMonitor(config.DefaultWatchdogConfig())
	m.StartMonitoring(1)

	m.RecordStdout()
	m.RecordMCPCall()
	m.RecordPing()

	status := m.GetStatus()
	require.NotNil(t, status)
	assert.Equal(t, uint64(0), status.LastActivitySecs)
}

func TestMonitorDisable(t *testing.T) {
	m := NewMonitor(config.DefaultWatchdogConfig())
	m.StartMonitoring(1)

	m.DisableFor(time.Minute)
	assert.True(t, m.IsDisabled())

	m.Enable()
	assert.False(t, m.IsDisabled())
}

func TestMonitorCheckHealthWithoutProcess(t *testing.T) {
	m := NewMonitor(config.DefaultWatchdogConfig())
	assert.Nil(t, m.CheckHealth())
}

func TestMonitorCheckHealthDisabled(t *testing.T) {
	cfg := config.DefaultWatchdogConfig()
	cfg.Enabled = false
	m := NewMonitor(cfg)
	m.StartMonitoring(1)
	assert.Nil(t, m.CheckHealth())
}
