package state

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherWritesStartingDocument(t *testing.T) {
	pid := 525251
	t.Cleanup(func() { _ = os.Remove(Path(pid)) })

	pub := NewPublisher(pid, "claude")
	doc, err := Read(pid)
	require.NoError(t, err)
	assert.Equal(t, Starting, doc.Lifecycle)
	assert.Equal(t, "claude", doc.AgentName)
	assert.Equal(t, pid, doc.WrapperPID)
	_ = pub
}

func TestUpdatePublishesMutation(t *testing.T) {
	pid := 525252
	t.Cleanup(func() { _ = os.Remove(Path(pid)) })

	pub := NewPublisher(pid, "claude")
	childPID := 9999
	require.NoError(t, pub.Update(func(d *Document) {
		d.Lifecycle = Running
		d.ChildPID = &childPID
	}))

	doc, err := Read(pid)
	require.NoError(t, err)
	assert.Equal(t, Running, doc.Lifecycle)
	require.NotNil(t, doc.ChildPID)
	assert.Equal(t, childPID, *doc.ChildPID)
}

func TestDeleteRemovesDocument(t *testing.T) {
	pid := 525253
	pub := NewPublisher(pid, "claude")
	require.NoError(t, pub.Delete())

	_, err := Read(pid)
	assert.True(t, os.IsNotExist(err))
}

func TestReadMissingSupervisorReturnsNotExist(t *testing.T) {
	_, err := Read(999999992)
	assert.True(t, os.IsNotExist(err))
}
