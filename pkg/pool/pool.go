package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brainwires/aegis-wrap/pkg/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Stats summarizes the pool's current population.
type Stats struct {
	MaxAgents    int
	TotalAgents  int
	Running      int
	Completed    int
	Failed       int
}

// Pool runs a bounded set of sibling agent processes, each coordinated
// through a shared LockManager so they don't step on each other's
// files.
type Pool struct {
	maxAgents int
	registry  map[string]config.AgentDescriptor
	locks     *LockManager
	log       *logrus.Entry

	mu     sync.RWMutex
	agents map[string]*Handle
}

// New builds a pool bounded to maxAgents concurrent sibling agents.
// Agent types whose executable cannot be resolved on this machine are
// silently omitted from the pool's registry rather than failing
// construction — the same degrade-gracefully behavior the original
// agent config builder used.
func New(maxAgents int, registry map[string]config.AgentDescriptor, log *logrus.Entry) *Pool {
	resolved := make(map[string]config.AgentDescriptor, len(registry))
	for name, desc := range registry {
		if desc.Executable != "" {
			resolved[name] = desc
			continue
		}
		if path, err := config.DiscoverExecutable(name); err == nil {
			desc.Executable = path
			resolved[name] = desc
		}
	}

	return &Pool{
		maxAgents: maxAgents,
		registry:  resolved,
		locks:     NewLockManager(),
		log:       log,
		agents:    make(map[string]*Handle),
	}
}

// LockManager exposes the pool's shared file lock arbiter, used by the
// control server's agent_file_locks tool.
func (p *Pool) LockManager() *LockManager {
	return p.locks
}

// Spawn launches a new sibling agent for task and returns its id.
func (p *Pool) Spawn(task Task) (string, error) {
	p.mu.RLock()
	full := len(p.agents) >= p.maxAgents
	p.mu.RUnlock()
	if full {
		return "", fmt.Errorf("Agent pool is full (%d/%d)", len(p.agents), p.maxAgents)
	}

	desc, ok := p.registry[task.AgentType]
	if !ok {
		return "", fmt.Errorf("unknown agent type: %s", task.AgentType)
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	agentID := "agent-" + uuid.NewString()

	handle := newHandle(agentID, task, p.locks, p.log)
	if err := handle.start(desc); err != nil {
		return "", err
	}

	p.mu.Lock()
	p.agents[agentID] = handle
	p.mu.Unlock()

	if p.log != nil {
		p.log.WithField("agent_id", agentID).Info("spawned sibling agent")
	}
	return agentID, nil
}

// Status returns the status of a single agent, or false if it isn't
// found.
func (p *Pool) Status(agentID string) (Status, bool) {
	p.mu.RLock()
	h, ok := p.agents[agentID]
	p.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	return h.Status(), true
}

// Entry pairs an agent id with its current status, as returned by List.
type Entry struct {
	ID     string
	Status Status
}

// List returns every agent currently tracked by the pool.
func (p *Pool) List() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Entry, 0, len(p.agents))
	for id, h := range p.agents {
		out = append(out, Entry{ID: id, Status: h.Status()})
	}
	return out
}

// Stop terminates and removes an agent from the pool.
func (p *Pool) Stop(ctx context.Context, agentID string) error {
	p.mu.Lock()
	h, ok := p.agents[agentID]
	if ok {
		delete(p.agents, agentID)
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("agent %s not found", agentID)
	}
	return h.stop(ctx)
}

// AwaitCompletion blocks, polling at a fixed interval, until agentID
// exits and returns its result.
func (p *Pool) AwaitCompletion(ctx context.Context, agentID string) (*Result, error) {
	for {
		p.mu.Lock()
		h, ok := p.agents[agentID]
		if !ok {
			p.mu.Unlock()
			return nil, fmt.Errorf("agent %s not found", agentID)
		}
		if result := h.poll(); result != nil {
			delete(p.agents, agentID)
			p.mu.Unlock()
			return result, nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// AwaitCompletionTimeout is AwaitCompletion bounded by timeout.
func (p *Pool) AwaitCompletionTimeout(agentID string, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	result, err := p.AwaitCompletion(ctx, agentID)
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("timeout waiting for agent %s", agentID)
	}
	return result, err
}

// Stats reports the pool's current population breakdown.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{MaxAgents: p.maxAgents, TotalAgents: len(p.agents)}
	for _, h := range p.agents {
		switch h.Status().Kind {
		case StatusRunning, StatusStarting:
			stats.Running++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// CleanupCompleted polls every tracked agent once, removing and
// returning those that have finished.
func (p *Pool) CleanupCompleted() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var done []Entry
	for id, h := range p.agents {
		if result := h.poll(); result != nil {
			done = append(done, Entry{ID: id, Status: h.Status()})
			delete(p.agents, id)
			_ = result
		}
	}
	return done
}

// Shutdown stops every tracked agent, best-effort.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	agents := p.agents
	p.agents = make(map[string]*Handle)
	p.mu.Unlock()

	for id, h := range agents {
		if p.log != nil {
			p.log.WithField("agent_id", id).Debug("stopping agent for pool shutdown")
		}
		_ = h.stop(ctx)
	}
}

// IsRunning reports whether agentID is a tracked, still-running agent.
func (p *Pool) IsRunning(agentID string) bool {
	p.mu.RLock()
	h, ok := p.agents[agentID]
	p.mu.RUnlock()
	return ok && h.isRunning()
}

// ActiveCount returns the number of agents currently tracked.
func (p *Pool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.agents)
}
