package pool

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/brainwires/aegis-wrap/pkg/config"
	"github.com/jesseduffield/kill"
	"github.com/sirupsen/logrus"
)

// StatusKind discriminates the variants of Status.
type StatusKind int

const (
	StatusStarting StatusKind = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusStopped
)

// Status is a sibling agent's current lifecycle state. Only the fields
// relevant to Kind are meaningful.
type Status struct {
	Kind      StatusKind
	Iteration uint32
	Activity  string
	Summary   string
	Error     string
}

func (s Status) String() string {
	switch s.Kind {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return fmt.Sprintf("running (iteration %d: %s)", s.Iteration, s.Activity)
	case StatusCompleted:
		return fmt.Sprintf("completed: %s", s.Summary)
	case StatusFailed:
		return fmt.Sprintf("failed: %s", s.Error)
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Handle owns one sibling agent's process and status. All methods are
// safe for concurrent use.
type Handle struct {
	ID   string
	task Task

	mu        sync.Mutex
	status    Status
	cmd       *exec.Cmd
	exited    chan struct{}
	waitErr   error
	startedAt time.Time

	locks *LockManager
	log   *logrus.Entry
}

func newHandle(id string, task Task, locks *LockManager, log *logrus.Entry) *Handle {
	return &Handle{
		ID:        id,
		task:      task,
		status:    Status{Kind: StatusStarting},
		startedAt: time.Now(),
		locks:     locks,
		log:       log,
	}
}

// Status returns a snapshot of the handle's current status.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Task returns the task this handle was spawned for.
func (h *Handle) Task() Task {
	return h.task
}

// Elapsed reports how long this handle has existed.
func (h *Handle) Elapsed() time.Duration {
	return time.Since(h.startedAt)
}

// start launches the agent's process per its registry descriptor. The
// task description is passed after a "-p" argument (the primary
// supervised child, by contrast, gets its restart prompt as a bare
// trailing argument).
func (h *Handle) start(desc config.AgentDescriptor) error {
	args := []string{}
	if desc.SkipPermissionsFlag != nil {
		args = append(args, *desc.SkipPermissionsFlag)
	}
	args = append(args, "-p", h.task.Description)

	executable := desc.Executable
	if executable == "" {
		resolved, err := config.DiscoverExecutable(desc.Name)
		if err != nil {
			return err
		}
		executable = resolved
	}

	cmd := exec.Command(executable, args...)
	if h.task.WorkingDirectory != "" {
		cmd.Dir = h.task.WorkingDirectory
	}
	kill.PrepareForChildren(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning agent process: %w", err)
	}

	exited := make(chan struct{})
	h.mu.Lock()
	h.cmd = cmd
	h.exited = exited
	h.status = Status{Kind: StatusRunning, Activity: "starting"}
	h.mu.Unlock()

	// A single goroutine owns Wait() for this process's lifetime; every
	// other reader (poll, stop) only ever selects on exited, since
	// exec.Cmd.Wait must not be called more than once.
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.mu.Unlock()
		close(exited)
	}()

	return nil
}

// isRunning reports whether the handle still owns a live process.
func (h *Handle) isRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cmd != nil
}

// poll checks for process exit without blocking, releasing this
// agent's file locks and updating status on completion. Returns nil
// while the process is still running.
func (h *Handle) poll() *Result {
	h.mu.Lock()
	cmd := h.cmd
	exited := h.exited
	h.mu.Unlock()
	if cmd == nil {
		return nil
	}

	select {
	case <-exited:
		h.mu.Lock()
		err := h.waitErr
		h.cmd = nil
		h.mu.Unlock()
		h.locks.ReleaseAll(h.ID)

		if err == nil {
			result := successResult(h.task.ID, "Task completed", h.task.MaxIterations)
			h.mu.Lock()
			h.status = Status{Kind: StatusCompleted, Summary: result.Summary}
			h.mu.Unlock()
			return &result
		}

		errMsg := err.Error()
		if exitErr, ok := err.(*exec.ExitError); ok {
			errMsg = fmt.Sprintf("Agent exited with code %d", exitErr.ExitCode())
		}
		result := failureResult(h.task.ID, errMsg, h.task.MaxIterations)
		h.mu.Lock()
		h.status = Status{Kind: StatusFailed, Error: result.Error}
		h.mu.Unlock()
		return &result
	default:
		return nil
	}
}

// stop terminates the agent's process with the same SIGINT, then
// SIGTERM, then SIGKILL escalation the supervisor uses for the primary
// child, releasing its locks once it is gone.
func (h *Handle) stop(ctx context.Context) error {
	h.mu.Lock()
	cmd := h.cmd
	exited := h.exited
	h.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGINT)

		escalate := func(sig syscall.Signal, after time.Duration) bool {
			select {
			case <-exited:
				return true
			case <-time.After(after):
				_ = cmd.Process.Signal(sig)
				return false
			}
		}

		if !escalate(syscall.SIGTERM, 3*time.Second) {
			select {
			case <-exited:
			case <-time.After(2 * time.Second):
				_ = kill.Kill(cmd)
			}
		}
		<-exited
	}

	h.mu.Lock()
	h.cmd = nil
	h.status = Status{Kind: StatusStopped}
	h.mu.Unlock()
	h.locks.ReleaseAll(h.ID)

	return nil
}

// setActivity updates the running agent's reported iteration and
// activity description.
func (h *Handle) setActivity(iteration uint32, activity string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = Status{Kind: StatusRunning, Iteration: iteration, Activity: activity}
}
