// Package watchdog monitors the supervised child's responsiveness and
// resource usage, surfacing a HealthStatus the supervisor samples on
// its poll tick and publishes into the shared state document.
package watchdog

import (
	"sync"
	"time"

	"github.com/brainwires/aegis-wrap/pkg/config"
	"github.com/shirou/gopsutil/v3/process"
)

// State is the watchdog's coarse classification of the monitored
// process at the most recent check.
type State int

const (
	StateStarting State = iota
	StateActive
	StateIdle
	StateUnresponsive
	StateHighResource
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateUnresponsive:
		return "unresponsive"
	case StateHighResource:
		return "high_resource"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// HealthStatus is one point-in-time observation of the monitored
// process.
type HealthStatus struct {
	State              State
	UptimeSecs         uint64
	LastActivitySecs   uint64
	MemoryMB           uint64
	CPUPercent         float64
	UnresponsiveCount  uint32
	ActionPending      *config.LockupAction
}

type activity struct {
	pid             int32
	startedAt       time.Time
	lastStdout      *time.Time
	lastStderr      *time.Time
	lastMCPCall     *time.Time
	lastFileIO      *time.Time
	lastPing        *time.Time
	state           State
	unresponsiveCnt uint32
	memoryMB        uint64
	cpuPercent      float64
}

func newActivity(pid int32) *activity {
	now := time.Now()
	return &activity{
		pid:        pid,
		startedAt:  now,
		lastStdout: &now,
		state:      StateStarting,
	}
}

func (a *activity) lastActivity() time.Time {
	latest := a.startedAt
	for _, t := range []*time.Time{a.lastStdout, a.lastStderr, a.lastMCPCall, a.lastFileIO, a.lastPing} {
		if t != nil && t.After(latest) {
			latest = *t
		}
	}
	return latest
}

func (a *activity) timeSinceActivity() time.Duration {
	return time.Since(a.lastActivity())
}

func (a *activity) uptime() time.Duration {
	return time.Since(a.startedAt)
}

// Monitor tracks a single child process's responsiveness over time. It
// is safe for concurrent use: record* methods are meant to be called
// from I/O-handling goroutines while CheckHealth runs on the
// supervisor's poll tick.
type Monitor struct {
	mu           sync.Mutex
	cfg          config.WatchdogConfig
	act          *activity
	disabledUntil *time.Time
}

// NewMonitor builds a watchdog using the given policy. The monitor
// tracks no process until StartMonitoring is called.
func NewMonitor(cfg config.WatchdogConfig) *Monitor {
	return &Monitor{cfg: cfg}
}

// StartMonitoring begins tracking pid, replacing any process
// previously tracked.
func (m *Monitor) StartMonitoring(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.act = newActivity(int32(pid))
}

// StopMonitoring clears the tracked process.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.act = nil
}

// Configure replaces the monitor's policy, as pushed by a watchdog
// config signal file update.
func (m *Monitor) Configure(cfg config.WatchdogConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Config returns the monitor's current policy.
func (m *Monitor) Config() config.WatchdogConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// DisableFor temporarily suppresses health-check actions, used while
// the supervisor is already mid-restart.
func (m *Monitor) DisableFor(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until := time.Now().Add(d)
	m.disabledUntil = &until
}

// Enable re-enables the watchdog immediately.
func (m *Monitor) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabledUntil = nil
}

// IsDisabled reports whether the watchdog is currently suppressed.
func (m *Monitor) IsDisabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disabledUntil != nil && time.Now().Before(*m.disabledUntil)
}

func (m *Monitor) recordOn(set func(*activity, time.Time)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.act != nil {
		set(m.act, time.Now())
	}
}

// RecordStdout notes that the child produced stdout output.
func (m *Monitor) RecordStdout() { m.recordOn(func(a *activity, t time.Time) { a.lastStdout = &t }) }

// RecordStderr notes stderr output.
func (m *Monitor) RecordStderr() { m.recordOn(func(a *activity, t time.Time) { a.lastStderr = &t }) }

// RecordMCPCall notes an RPC tool call routed through the control
// server, since that also indicates the system around the child agent
// is alive even if the agent itself is silent.
func (m *Monitor) RecordMCPCall() {
	m.recordOn(func(a *activity, t time.Time) { a.lastMCPCall = &t })
}

// RecordFileActivity notes a filesystem hook event observed through
// the interposition library.
func (m *Monitor) RecordFileActivity() {
	m.recordOn(func(a *activity, t time.Time) { a.lastFileIO = &t })
}

// RecordPing notes a manual liveness ping, delivered via the watchdog
// ping signal file.
func (m *Monitor) RecordPing() { m.recordOn(func(a *activity, t time.Time) { a.lastPing = &t }) }

// CheckHealth samples the monitored process's resource usage, advances
// its state, and returns the resulting status. Returns nil if the
// watchdog is disabled, not configured to run, or not currently
// tracking a process.
func (m *Monitor) CheckHealth() *HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.Enabled || m.act == nil {
		return nil
	}
	if m.disabledUntil != nil && time.Now().Before(*m.disabledUntil) {
		return nil
	}

	a := m.act
	if proc, err := process.NewProcess(a.pid); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
			a.memoryMB = memInfo.RSS / (1024 * 1024)
		}
		if cpuPct, err := proc.CPUPercent(); err == nil {
			a.cpuPercent = cpuPct
		}
	}

	timeSince := a.timeSinceActivity()
	var actionPending *config.LockupAction

	if m.cfg.MaxMemoryMB != nil && a.memoryMB > *m.cfg.MaxMemoryMB {
		a.state = StateHighResource
		action := m.cfg.Action
		actionPending = &action
	}
	if m.cfg.MaxCPUPercent != nil && a.cpuPercent > *m.cfg.MaxCPUPercent {
		a.state = StateHighResource
		action := m.cfg.Action
		actionPending = &action
	}

	if a.state != StateHighResource {
		switch {
		case timeSince > m.cfg.HeartbeatTimeout:
			a.unresponsiveCnt++
			a.state = StateUnresponsive
			if a.unresponsiveCnt >= m.cfg.UnresponsiveThreshold {
				action := m.cfg.Action
				actionPending = &action
			}
		case timeSince > m.cfg.HeartbeatTimeout/2:
			a.state = StateIdle
			a.unresponsiveCnt = 0
		default:
			a.state = StateActive
			a.unresponsiveCnt = 0
		}
	}

	return &HealthStatus{
		State:             a.state,
		UptimeSecs:        uint64(a.uptime().Seconds()),
		LastActivitySecs:  uint64(timeSince.Seconds()),
		MemoryMB:          a.memoryMB,
		CPUPercent:        a.cpuPercent,
		UnresponsiveCount: a.unresponsiveCnt,
		ActionPending:     actionPending,
	}
}

// GetStatus returns the monitor's last-known state without refreshing
// resource usage or advancing unresponsive counters — used for
// reporting tools that should not themselves trigger a lockup action.
func (m *Monitor) GetStatus() *HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.act == nil {
		return nil
	}
	a := m.act
	timeSince := a.timeSinceActivity()

	var actionPending *config.LockupAction
	if a.unresponsiveCnt >= m.cfg.UnresponsiveThreshold {
		action := m.cfg.Action
		actionPending = &action
	}

	return &HealthStatus{
		State:             a.state,
		UptimeSecs:        uint64(a.uptime().Seconds()),
		LastActivitySecs:  uint64(timeSince.Seconds()),
		MemoryMB:          a.memoryMB,
		CPUPercent:        a.cpuPercent,
		UnresponsiveCount: a.unresponsiveCnt,
		ActionPending:     actionPending,
	}
}

// PID returns the currently monitored pid, if any.
func (m *Monitor) PID() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.act == nil {
		return 0, false
	}
	return int(m.act.pid), true
}
