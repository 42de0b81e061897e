package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockManagerAcquireRelease(t *testing.T) {
	m := NewLockManager()

	assert.True(t, m.TryAcquire("/tmp/test.txt", "agent-1", LockWrite))
	assert.True(t, m.TryAcquire("/tmp/test.txt", "agent-1", LockWrite))
	assert.False(t, m.TryAcquire("/tmp/test.txt", "agent-2", LockWrite))
	assert.False(t, m.TryAcquire("/tmp/test.txt", "agent-2", LockRead))

	assert.True(t, m.Release("/tmp/test.txt", "agent-1"))
	assert.True(t, m.TryAcquire("/tmp/test.txt", "agent-2", LockWrite))
}

func TestLockManagerMultipleReaders(t *testing.T) {
	m := NewLockManager()

	assert.True(t, m.TryAcquire("/tmp/test.txt", "agent-1", LockRead))
	assert.True(t, m.TryAcquire("/tmp/test.txt", "agent-2", LockRead))
	assert.False(t, m.TryAcquire("/tmp/test.txt", "agent-3", LockWrite))
}

func TestLockManagerReleaseAll(t *testing.T) {
	m := NewLockManager()

	m.TryAcquire("/tmp/a.txt", "agent-1", LockWrite)
	m.TryAcquire("/tmp/b.txt", "agent-1", LockWrite)
	m.TryAcquire("/tmp/c.txt", "agent-2", LockWrite)

	m.ReleaseAll("agent-1")

	assert.True(t, m.TryAcquire("/tmp/a.txt", "agent-3", LockWrite))
	assert.True(t, m.TryAcquire("/tmp/b.txt", "agent-3", LockWrite))
	assert.False(t, m.TryAcquire("/tmp/c.txt", "agent-3", LockWrite))
}

func TestLockManagerList(t *testing.T) {
	m := NewLockManager()

	m.TryAcquire("/tmp/a.txt", "agent-1", LockWrite)
	m.TryAcquire("/tmp/b.txt", "agent-2", LockRead)

	assert.Len(t, m.List(), 2)
}

func TestLockManagerHeldBy(t *testing.T) {
	m := NewLockManager()

	m.TryAcquire("/tmp/a.txt", "agent-1", LockWrite)
	m.TryAcquire("/tmp/b.txt", "agent-1", LockRead)
	m.TryAcquire("/tmp/c.txt", "agent-2", LockWrite)

	assert.Len(t, m.HeldBy("agent-1"), 2)
	assert.Len(t, m.HeldBy("agent-2"), 1)
}
