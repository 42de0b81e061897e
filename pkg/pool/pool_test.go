package pool

import (
	"testing"

	"github.com/brainwires/aegis-wrap/pkg/config"
	"github.com/stretchr/testify/assert"
)

func emptyRegistry() map[string]config.AgentDescriptor {
	return map[string]config.AgentDescriptor{}
}

func TestPoolCreation(t *testing.T) {
	p := New(10, emptyRegistry(), nil)
	assert.Equal(t, 10, p.maxAgents)
	assert.Equal(t, 0, p.ActiveCount())
}

func TestPoolStats(t *testing.T) {
	p := New(10, emptyRegistry(), nil)
	stats := p.Stats()
	assert.Equal(t, 10, stats.MaxAgents)
	assert.Equal(t, 0, stats.TotalAgents)
	assert.Equal(t, 0, stats.Running)
}

func TestPoolSpawnUnknownAgentType(t *testing.T) {
	p := New(5, emptyRegistry(), nil)
	task := NewTask("do something")
	task.AgentType = "nonexistent"

	_, err := p.Spawn(task)
	assert.Error(t, err)
}

func TestPoolSpawnWhenFull(t *testing.T) {
	p := New(0, emptyRegistry(), nil)
	task := NewTask("do something")

	_, err := p.Spawn(task)
	assert.ErrorContains(t, err, "full")
}

func TestPoolStatusMissingAgent(t *testing.T) {
	p := New(5, emptyRegistry(), nil)
	_, ok := p.Status("does-not-exist")
	assert.False(t, ok)
}
