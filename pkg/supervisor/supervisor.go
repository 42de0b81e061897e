// Package supervisor implements the core process-management loop: it
// launches the chosen coding-agent CLI, watches it for exit, restart
// signals, and unresponsiveness, and republishes the shared state
// document on every transition.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/brainwires/aegis-wrap/pkg/config"
	"github.com/brainwires/aegis-wrap/pkg/netmon"
	"github.com/brainwires/aegis-wrap/pkg/signalfile"
	"github.com/brainwires/aegis-wrap/pkg/state"
	"github.com/brainwires/aegis-wrap/pkg/watchdog"
	"github.com/jesseduffield/kill"
	"github.com/sirupsen/logrus"
)

// Options configures one supervisor run, assembled from parsed CLI
// flags the way app.NewApp is constructed from AppConfig.
type Options struct {
	AgentName    string
	AgentArgs    []string
	ProjectDir   string
	KeepRoot     bool
	InjectMCP    bool
	NetmonMode   config.NetmonMode
	Watchdog     config.WatchdogConfig
	NoWatchdog   bool
}

// Supervisor owns one run of the supervised child: its process, its
// published state, its watchdog, and the cleanup required to leave the
// filesystem as it found it.
type Supervisor struct {
	opts   Options
	cfg    *config.AppConfig
	log    *logrus.Entry
	pub    *state.Publisher
	mon    *watchdog.Monitor

	hooksLibrary string
	overlayPath  string

	mu           sync.Mutex
	cmd          *exec.Cmd
	exited       chan struct{}
	waitErr      error
	restartCount uint32
	cleanedUp    bool
	backoff      time.Duration
}

const (
	backoffBase = 2 * time.Second
	backoffCap  = 60 * time.Second
)

// New builds a supervisor for the given options.
func New(cfg *config.AppConfig, log *logrus.Entry, opts Options) (*Supervisor, error) {
	desc, ok := cfg.AgentRegistry[opts.AgentName]
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", opts.AgentName)
	}
	if desc.Executable == "" {
		path, err := config.DiscoverExecutable(opts.AgentName)
		if err != nil {
			return nil, err
		}
		desc.Executable = path
		cfg.AgentRegistry[opts.AgentName] = desc
	}

	wrapperPID := os.Getpid()
	signalfile.Cleanup(wrapperPID)

	return &Supervisor{
		opts:    opts,
		cfg:     cfg,
		log:     log,
		pub:     state.NewPublisher(wrapperPID, opts.AgentName),
		mon:     watchdog.NewMonitor(opts.Watchdog),
		backoff: backoffBase,
	}, nil
}

// Run drives the supervisor until the child exits normally, the
// process receives a termination signal, or the watchdog takes a
// terminal action. It never returns while a restart is pending.
func (s *Supervisor) Run(ctx context.Context) (exitCode int, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			s.emergencyCleanup()
			panic(r)
		}
	}()

	if !s.opts.KeepRoot {
		if err := dropPrivileges(); err != nil {
			return 1, err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	shutdownRequested := make(chan struct{})
	go func() {
		<-sigCh
		s.log.Info("received shutdown signal")
		close(shutdownRequested)
	}()

	if s.opts.InjectMCP {
		self, err := os.Executable()
		if err == nil {
			if err := injectControlServer(s.opts.ProjectDir, self); err != nil {
				s.log.WithError(err).Warn("failed to inject mcp config")
			} else {
				defer func() {
					if err := restoreControlServer(s.opts.ProjectDir); err != nil {
						s.log.WithError(err).Warn("failed to restore mcp config")
					}
				}()
			}
		}
	}

	if s.opts.NetmonMode != config.NetmonOff {
		if path, ok := locateHooksLibrary(); ok {
			s.hooksLibrary = path
			probeHooksLibrary(s.log, path)
		} else if s.log != nil {
			s.log.Warn("interposition library not found; continuing without network monitoring")
		}

		if self, err := os.Executable(); err == nil {
			overlay, err := writeOverlayFile(s.opts.ProjectDir, self, os.Getpid())
			if err != nil {
				if s.log != nil {
					s.log.WithError(err).Warn("failed to build mcp config overlay")
				}
			} else {
				s.overlayPath = overlay
				defer os.Remove(overlay)
			}
		}
	}

	resumeNext := false
	var pendingPrompt *string

	for {
		code, reason, err := s.runOnce(ctx, resumeNext, pendingPrompt, shutdownRequested)
		pendingPrompt = nil
		if err != nil {
			_ = s.pub.Update(func(d *state.Document) { d.Lifecycle = state.Failed })
			return 1, err
		}

		switch reason {
		case exitNormal:
			_ = s.pub.Update(func(d *state.Document) { d.Lifecycle = state.Stopped })
			signalfile.Cleanup(os.Getpid())
			_ = s.pub.Delete()
			return code, nil

		case exitShutdown:
			_ = s.pub.Update(func(d *state.Document) { d.Lifecycle = state.Stopped })
			signalfile.Cleanup(os.Getpid())
			_ = s.pub.Delete()
			return code, nil

		case exitRestart:
			resumeNext = true
			s.mu.Lock()
			s.restartCount++
			count := s.restartCount
			s.mu.Unlock()
			_ = s.pub.Update(func(d *state.Document) {
				d.Lifecycle = state.Restarting
				d.RestartCount = count
			})

		case exitWatchdogBackoff:
			resumeNext = true
			s.mu.Lock()
			s.restartCount++
			count := s.restartCount
			wait := s.backoff
			if s.backoff < backoffCap {
				s.backoff *= 2
				if s.backoff > backoffCap {
					s.backoff = backoffCap
				}
			}
			s.mu.Unlock()
			_ = s.pub.Update(func(d *state.Document) {
				d.Lifecycle = state.Restarting
				d.RestartCount = count
			})
			time.Sleep(wait)

		case exitWatchdogRestart:
			resumeNext = true
			s.mu.Lock()
			s.restartCount++
			count := s.restartCount
			s.mu.Unlock()
			_ = s.pub.Update(func(d *state.Document) {
				d.Lifecycle = state.Restarting
				d.RestartCount = count
			})

		case exitWatchdogKill:
			_ = s.pub.Update(func(d *state.Document) { d.Lifecycle = state.Stopped })
			signalfile.Cleanup(os.Getpid())
			_ = s.pub.Delete()
			return 1, nil
		}
	}
}

type exitReason int

const (
	exitNormal exitReason = iota
	exitShutdown
	exitRestart
	exitWatchdogRestart
	exitWatchdogBackoff
	exitWatchdogKill
)

// runOnce launches the child once and monitors it until it exits, a
// restart signal arrives, a shutdown is requested, or the watchdog
// declares it unresponsive past the configured threshold.
func (s *Supervisor) runOnce(ctx context.Context, resume bool, prompt *string, shutdownRequested <-chan struct{}) (int, exitReason, error) {
	desc := s.cfg.AgentRegistry[s.opts.AgentName]

	args := append([]string{}, s.opts.AgentArgs...)
	if resume && desc.ResumeFlag != nil {
		args = append(args, *desc.ResumeFlag)
	}
	if prompt != nil {
		args = append(args, *prompt)
	}

	cmd := exec.Command(desc.Executable, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if s.opts.ProjectDir != "" {
		cmd.Dir = s.opts.ProjectDir
	}
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", SupervisorPIDEnvVar, os.Getpid()))
	if s.opts.NetmonMode != config.NetmonOff {
		cmd.Env = append(cmd.Env,
			"AEGIS_NETMON_LOG="+netmon.LogPath(os.Getpid()),
		)
		if s.hooksLibrary != "" {
			cmd.Env = append(cmd.Env, "LD_PRELOAD="+s.hooksLibrary)
		}
		if s.overlayPath != "" {
			cmd.Env = append(cmd.Env,
				"AEGIS_MCP_OVERLAY="+s.overlayPath,
				"AEGIS_MCP_TARGET=.mcp.json",
			)
		}
	}
	kill.PrepareForChildren(cmd)

	if err := cmd.Start(); err != nil {
		return 1, exitNormal, fmt.Errorf("starting %s: %w", s.opts.AgentName, err)
	}

	exited := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.exited = exited
	s.mu.Unlock()

	childPID := cmd.Process.Pid
	_ = s.pub.Update(func(d *state.Document) {
		d.Lifecycle = state.Running
		d.ChildPID = &childPID
	})

	s.mon.StartMonitoring(childPID)

	// A single goroutine owns Wait() for this child's lifetime; every
	// other reader (the select below, terminateChild, emergencyCleanup)
	// only ever selects on exited, since exec.Cmd.Wait must not be
	// called more than once.
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.waitErr = err
		s.mu.Unlock()
		close(exited)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-exited:
			s.mu.Lock()
			err := s.waitErr
			s.cmd = nil
			s.mu.Unlock()
			s.mon.StopMonitoring()
			if err == nil {
				return 0, exitNormal, nil
			}
			if exitErr, ok := err.(*exec.ExitError); ok {
				return exitErr.ExitCode(), exitNormal, nil
			}
			return 1, exitNormal, nil

		case <-shutdownRequested:
			s.terminateChild(cmd, exited)
			<-exited
			s.mon.StopMonitoring()
			return 0, exitShutdown, nil

		case <-ticker.C:
			if signalfile.CheckWatchdogPing(os.Getpid()) {
				s.mon.RecordPing()
			}
			if update, err := signalfile.CheckWatchdogConfig(os.Getpid()); err == nil && update != nil {
				s.applyWatchdogUpdate(*update)
			}

			if sig, err := signalfile.CheckRestartSignal(os.Getpid()); err == nil && sig != nil {
				s.log.WithField("reason", sig.Reason).Info("restart requested")
				s.terminateChild(cmd, exited)
				<-exited
				s.mon.StopMonitoring()
				return 0, exitRestart, nil
			}

			if health := s.mon.CheckHealth(); health != nil {
				s.publishHealth(health)
				if health.UnresponsiveCount == 0 && time.Duration(health.UptimeSecs)*time.Second > s.mon.Config().HeartbeatTimeout {
					s.mu.Lock()
					s.backoff = backoffBase
					s.mu.Unlock()
				}
				if health.ActionPending != nil {
					reason := s.reasonForAction(*health.ActionPending, cmd, exited)
					if reason != exitNormal {
						s.mon.StopMonitoring()
						return 0, reason, nil
					}
				}
			}
		}
	}
}

func (s *Supervisor) reasonForAction(action config.LockupAction, cmd *exec.Cmd, exited <-chan struct{}) exitReason {
	switch action {
	case config.ActionWarn:
		s.log.Warn("watchdog: child appears unresponsive")
		return exitNormal
	case config.ActionRestart:
		s.terminateChild(cmd, exited)
		return exitWatchdogRestart
	case config.ActionRestartWithBackoff:
		s.terminateChild(cmd, exited)
		return exitWatchdogBackoff
	case config.ActionKill:
		s.terminateChild(cmd, exited)
		return exitWatchdogKill
	case config.ActionNotifyAndWait:
		s.log.Warn("watchdog: child unresponsive, awaiting manual intervention")
		return exitNormal
	default:
		return exitNormal
	}
}

func (s *Supervisor) applyWatchdogUpdate(update signalfile.WatchdogPolicyUpdate) {
	cfg := s.mon.Config()
	if update.Enabled != nil {
		cfg.Enabled = *update.Enabled
	}
	if update.HeartbeatTimeoutSecs != nil {
		cfg.HeartbeatTimeout = time.Duration(*update.HeartbeatTimeoutSecs) * time.Second
	}
	if update.UnresponsiveThreshold != nil {
		cfg.UnresponsiveThreshold = *update.UnresponsiveThreshold
	}
	if update.Action != nil {
		cfg.Action = config.LockupAction(*update.Action)
	}
	if update.MaxMemoryMB != nil {
		cfg.MaxMemoryMB = update.MaxMemoryMB
	}
	if update.MaxCPUPercent != nil {
		cfg.MaxCPUPercent = update.MaxCPUPercent
	}
	s.mon.Configure(cfg)
}

func (s *Supervisor) publishHealth(h *watchdog.HealthStatus) {
	_ = s.pub.Update(func(d *state.Document) {
		d.Health = &state.HealthSnapshot{
			ActivityAgeSecs:   h.LastActivitySecs,
			MemoryMB:          h.MemoryMB,
			CPUPercent:        h.CPUPercent,
			UnresponsiveCount: h.UnresponsiveCount,
		}
		if h.ActionPending != nil {
			d.Health.PendingRemediation = string(*h.ActionPending)
		}
	})
}

// terminateChild escalates SIGINT -> SIGTERM -> SIGKILL, giving the
// child 3s then 2s to exit at each step before escalating. SIGINT and
// SIGTERM go to the child process itself; the final SIGKILL goes to
// its whole process group via kill.Kill.
func (s *Supervisor) terminateChild(cmd *exec.Cmd, exited <-chan struct{}) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	_ = cmd.Process.Signal(syscall.SIGINT)
	select {
	case <-exited:
		return
	case <-time.After(3 * time.Second):
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
		return
	case <-time.After(2 * time.Second):
	}

	_ = kill.Kill(cmd)
	<-exited
}

// emergencyCleanup runs from Run's panic-recovery defer. It is
// idempotent: the cleanedUp flag makes any second call a no-op, so
// nothing is restored or deleted twice.
func (s *Supervisor) emergencyCleanup() {
	s.mu.Lock()
	if s.cleanedUp {
		s.mu.Unlock()
		return
	}
	s.cleanedUp = true
	cmd := s.cmd
	exited := s.exited
	s.mu.Unlock()

	if cmd != nil {
		s.terminateChild(cmd, exited)
	}
	if s.opts.InjectMCP {
		_ = restoreControlServer(s.opts.ProjectDir)
	}
	signalfile.Cleanup(os.Getpid())
	_ = s.pub.Delete()
}

// PrivilegeInfo reports this process's current privilege state.
func (s *Supervisor) PrivilegeInfo() PrivilegeInfo {
	return GetPrivilegeInfo()
}

// Sibling-agent pooling is not part of Supervisor: main.go's
// --mcp-server path builds a pkg/pool.Pool from the same agent
// registry and hands it to pkg/rpcserver.
