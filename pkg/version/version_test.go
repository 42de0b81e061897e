package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoIncludesVersionAndOS(t *testing.T) {
	Version = "1.2.3"
	Commit = "deadbeef"
	info := Info()
	assert.Contains(t, info, "1.2.3")
	assert.Contains(t, info, "deadbeef")
	assert.Contains(t, info, "OS:")
}

func TestSafeTruncate(t *testing.T) {
	assert.Equal(t, "abcdefg", safeTruncate("abcdefghijk", 7))
	assert.Equal(t, "ab", safeTruncate("ab", 7))
}

func TestResolveNoopWhenVersionAlreadySet(t *testing.T) {
	Version = "1.0.0"
	Commit = "fixed"
	Resolve()
	assert.Equal(t, "1.0.0", Version)
	assert.Equal(t, "fixed", Commit)
}
