// Package config handles the supervisor's own configuration: the fixed
// registry of supported coding agents, watchdog and network-monitoring
// defaults, and the on-disk locations the supervisor uses for logs and
// its own run-scoped state.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/OpenPeeDeeP/xdg"
)

// AgentDescriptor identifies how to launch a supported agent. It is
// immutable once built by the fixed registry in NewAppConfig.
type AgentDescriptor struct {
	// Name is the display/lookup name, e.g. "claude".
	Name string
	// Executable is an absolute path to the agent binary. Empty until
	// resolved by DiscoverExecutable.
	Executable string
	// ResumeFlag, if non-nil, is the flag this agent accepts to resume
	// its previous session (e.g. "--continue").
	ResumeFlag *string
	// SkipPermissionsFlag, if non-nil, is the flag this agent accepts
	// to skip interactive permission prompts.
	SkipPermissionsFlag *string
}

func strPtr(s string) *string { return &s }

// defaultRegistry is the fixed set of agents the supervisor knows how to
// launch. Executable paths are resolved lazily via DiscoverExecutable,
// not hardcoded, since install locations vary across machines.
func defaultRegistry() map[string]AgentDescriptor {
	return map[string]AgentDescriptor{
		"claude": {
			Name:                "claude",
			ResumeFlag:          strPtr("--continue"),
			SkipPermissionsFlag: strPtr("--dangerously-skip-permissions"),
		},
		"cursor": {
			Name: "cursor",
		},
		"aider": {
			Name:                "aider",
			SkipPermissionsFlag: strPtr("--yes"),
		},
	}
}

// DiscoverExecutable resolves an agent's executable from PATH, then a
// handful of common install locations, then the newest entry under
// ~/.local/share/<name>/versions/. It returns an error only when none of
// these candidates exist; callers are expected to treat that as "this
// agent type isn't available on this machine" rather than a fatal error.
func DiscoverExecutable(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/usr/bin", name),
	}
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".local/bin", name),
			filepath.Join(home, ".local/share", name, name),
		)
	}
	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c, nil
		}
	}

	if home != "" {
		versionsDir := filepath.Join(home, ".local/share", name, "versions")
		entries, err := os.ReadDir(versionsDir)
		if err == nil {
			var latest string
			for _, e := range entries {
				if e.IsDir() && e.Name() > latest {
					latest = e.Name()
				}
			}
			if latest != "" {
				candidate := filepath.Join(versionsDir, latest, name)
				if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
					return candidate, nil
				}
			}
		}
	}

	return "", fmt.Errorf("could not find %q executable on this machine", name)
}

// WatchdogConfig controls the health-monitoring policy applied to the
// supervised child. Heuristics beyond this contract are this
// implementation's own choice; the spec leaves them unspecified.
type WatchdogConfig struct {
	Enabled              bool
	HeartbeatTimeout     time.Duration
	CheckInterval        time.Duration
	MaxMemoryMB          *uint64
	MaxCPUPercent        *float64
	Action               LockupAction
	UnresponsiveThreshold uint32
}

// LockupAction names what the supervisor does when the watchdog
// declares the child unresponsive or over its resource caps.
type LockupAction string

const (
	ActionWarn               LockupAction = "warn"
	ActionRestart            LockupAction = "restart"
	ActionRestartWithBackoff LockupAction = "restart_with_backoff"
	ActionKill               LockupAction = "kill"
	ActionNotifyAndWait      LockupAction = "notify_and_wait"
)

// DefaultWatchdogConfig mirrors the original implementation's defaults:
// a 60s heartbeat timeout, 1s check interval, three consecutive
// unresponsive checks before acting, and a restart action.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		Enabled:               true,
		HeartbeatTimeout:      60 * time.Second,
		CheckInterval:         time.Second,
		Action:                ActionRestart,
		UnresponsiveThreshold: 3,
	}
}

// NetmonMode selects how outbound network activity is observed.
type NetmonMode string

const (
	NetmonOff       NetmonMode = ""
	NetmonPreload   NetmonMode = "preload"
	NetmonNamespace NetmonMode = "netns"
)

// AutoMode chooses preload mode regardless of privilege level today;
// namespace mode requires explicit opt-in via --netmon=netns (see
// SPEC_FULL.md §10.4 — namespace isolation is a stretch mode, not yet
// auto-selected even when running as root).
func AutoMode(keepRoot bool) NetmonMode {
	_ = keepRoot
	return NetmonPreload
}

// AppConfig is the supervisor's own bootstrap configuration, built once
// at startup from CLI flags and the environment.
type AppConfig struct {
	Name        string
	Version     string
	Commit      string
	BuildDate   string
	BuildSource string
	Debug       bool

	ProjectDir string
	ConfigDir  string

	AgentRegistry map[string]AgentDescriptor
	Watchdog      WatchdogConfig
}

// NewAppConfig builds the supervisor's bootstrap configuration. Unlike
// the teacher's user-facing YAML config (there is no per-user
// customization surface for this tool — the thing being configured is
// the *child's* config file, not ours), this only resolves (and
// creates) the config directory, which also holds the debug log, and
// assembles the fixed agent registry.
func NewAppConfig(name, version, commit, date, buildSource string, debug bool, projectDir string) (*AppConfig, error) {
	configDir, err := findOrCreateConfigDir(name)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		Name:          name,
		Version:       version,
		Commit:        commit,
		BuildDate:     date,
		BuildSource:   buildSource,
		Debug:         debug || os.Getenv("DEBUG") == "TRUE",
		ProjectDir:    projectDir,
		ConfigDir:     configDir,
		AgentRegistry: defaultRegistry(),
		Watchdog:      DefaultWatchdogConfig(),
	}, nil
}

func configDirForVendor(vendor, projectName string) string {
	if envDir := os.Getenv("CONFIG_DIR"); envDir != "" {
		return envDir
	}
	dirs := xdg.New(vendor, projectName)
	return dirs.ConfigHome()
}

func findOrCreateConfigDir(projectName string) (string, error) {
	dir := configDirForVendor("brainwires", projectName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// ProductPrefix is the shared prefix embedded in every tmp rendezvous
// filename (signal files, state file, netmon log) and, when an
// ancestor-walk is required, matched against process command names by
// the control server (see pkg/rpcserver).
const ProductPrefix = "aegis-wrap"
