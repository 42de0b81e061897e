package pool

import (
	"github.com/sasha-s/go-deadlock"
)

// LockKind distinguishes shared read access from exclusive write access.
type LockKind int

const (
	LockRead LockKind = iota
	LockWrite
)

// LockEntry is one held lock, as reported by LockManager.List.
type LockEntry struct {
	Path    string
	AgentID string
	Kind    LockKind
}

// LockManager arbitrates concurrent file access across sibling agents.
// Multiple readers on the same path are allowed; a write lock is
// exclusive. An agent already holding a lock on a path may re-acquire
// or change its own kind without contention.
type LockManager struct {
	mu    deadlock.Mutex
	locks map[string]LockEntry
}

// NewLockManager returns an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]LockEntry)}
}

// TryAcquire attempts to take a lock of the given kind on path for
// agentID. It reports whether the lock was granted.
func (m *LockManager) TryAcquire(path, agentID string, kind LockKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.locks[path]; ok {
		switch {
		case existing.Kind == LockRead && kind == LockRead:
			return true
		case existing.AgentID == agentID:
			m.locks[path] = LockEntry{Path: path, AgentID: agentID, Kind: kind}
			return true
		default:
			return false
		}
	}

	m.locks[path] = LockEntry{Path: path, AgentID: agentID, Kind: kind}
	return true
}

// Release drops agentID's lock on path, if it holds one. Reports
// whether a lock was actually released.
func (m *LockManager) Release(path, agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.locks[path]; ok && existing.AgentID == agentID {
		delete(m.locks, path)
		return true
	}
	return false
}

// ReleaseAll drops every lock held by agentID, called when an agent
// exits or is stopped.
func (m *LockManager) ReleaseAll(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for path, entry := range m.locks {
		if entry.AgentID == agentID {
			delete(m.locks, path)
		}
	}
}

// List returns every currently held lock, in no particular order.
func (m *LockManager) List() []LockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]LockEntry, 0, len(m.locks))
	for _, entry := range m.locks {
		out = append(out, entry)
	}
	return out
}

// IsLockedBy reports whether agentID holds the lock on path.
func (m *LockManager) IsLockedBy(path, agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[path]
	return ok && entry.AgentID == agentID
}

// HeldBy returns every lock currently held by agentID.
func (m *LockManager) HeldBy(agentID string) []LockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []LockEntry
	for _, entry := range m.locks {
		if entry.AgentID == agentID {
			out = append(out, entry)
		}
	}
	return out
}
