// Package signalfile implements the filesystem-based single-writer /
// single-reader rendezvous points used for inter-process notification
// between the control server (or any external tool) and the supervisor:
// the restart signal, the watchdog ping, and the watchdog config update.
package signalfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/brainwires/aegis-wrap/pkg/config"
)

// RestartPath is the signal file an external process writes to request
// a restart of the child supervised by the wrapper with the given pid.
func RestartPath(wrapperPID int) string {
	return fmt.Sprintf("/tmp/%s-%d", config.ProductPrefix, wrapperPID)
}

// WatchdogPingPath is the signal file written to record a liveness ping
// from the agent (surfaced through the control server's tools).
func WatchdogPingPath(wrapperPID int) string {
	return fmt.Sprintf("/tmp/%s-watchdog-ping-%d", config.ProductPrefix, wrapperPID)
}

// WatchdogConfigPath is the signal file used to push a new watchdog
// policy to a running supervisor.
func WatchdogConfigPath(wrapperPID int) string {
	return fmt.Sprintf("/tmp/%s-watchdog-config-%d", config.ProductPrefix, wrapperPID)
}

// RestartSignal is the payload an external writer places at RestartPath.
type RestartSignal struct {
	Reason string  `json:"reason"`
	Prompt *string `json:"prompt,omitempty"`
}

// WriteRestartSignal writes a restart request. Used both by the control
// server's restart_claude tool and by tests simulating an external
// writer.
func WriteRestartSignal(wrapperPID int, reason string, prompt *string) error {
	sig := RestartSignal{Reason: reason, Prompt: prompt}
	data, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return os.WriteFile(RestartPath(wrapperPID), data, 0o600)
}

// CheckRestartSignal reads and deletes the restart signal file if
// present, returning nil if there is none. Non-JSON content is
// tolerated: the entire file content becomes the reason with no prompt,
// per spec — malformed input must never block a restart.
func CheckRestartSignal(wrapperPID int) (*RestartSignal, error) {
	path := RestartPath(wrapperPID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	// Consume (delete) before returning: a second concurrent writer
	// creates a fresh file rather than merging with this one.
	_ = os.Remove(path)

	var parsed RestartSignal
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Reason != "" {
		return &parsed, nil
	}

	reason := string(data)
	if reason == "" {
		reason = "restart requested"
	}
	return &RestartSignal{Reason: reason}, nil
}

// CheckWatchdogPing reports and consumes a pending ping.
func CheckWatchdogPing(wrapperPID int) bool {
	path := WatchdogPingPath(wrapperPID)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	_ = os.Remove(path)
	return true
}

// WriteWatchdogPing records a liveness ping for the supervisor to pick
// up on its next poll tick.
func WriteWatchdogPing(wrapperPID int) error {
	return os.WriteFile(WatchdogPingPath(wrapperPID), nil, 0o600)
}

// WatchdogPolicyUpdate mirrors config.WatchdogConfig's JSON-facing
// subset of fields that can be hot-updated without restarting the
// supervisor.
type WatchdogPolicyUpdate struct {
	Enabled               *bool    `json:"enabled,omitempty"`
	HeartbeatTimeoutSecs  *uint64  `json:"heartbeat_timeout_secs,omitempty"`
	UnresponsiveThreshold *uint32  `json:"unresponsive_threshold,omitempty"`
	Action                *string  `json:"action,omitempty"`
	MaxMemoryMB           *uint64  `json:"max_memory_mb,omitempty"`
	MaxCPUPercent         *float64 `json:"max_cpu_percent,omitempty"`
}

// CheckWatchdogConfig reads and deletes a pending watchdog policy update.
func CheckWatchdogConfig(wrapperPID int) (*WatchdogPolicyUpdate, error) {
	path := WatchdogConfigPath(wrapperPID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	_ = os.Remove(path)

	var update WatchdogPolicyUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, nil // tolerate malformed config pushes silently, like the restart signal
	}
	return &update, nil
}

// WriteWatchdogConfig pushes a new policy to a running supervisor.
func WriteWatchdogConfig(wrapperPID int, update WatchdogPolicyUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return os.WriteFile(WatchdogConfigPath(wrapperPID), data, 0o600)
}

// Cleanup removes any stale signal files left from a previous run with
// this pid. Called once at supervisor startup.
func Cleanup(wrapperPID int) {
	_ = os.Remove(RestartPath(wrapperPID))
	_ = os.Remove(WatchdogPingPath(wrapperPID))
	_ = os.Remove(WatchdogConfigPath(wrapperPID))
}
