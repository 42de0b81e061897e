package supervisor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindAncestorSupervisorUsesEnvVar(t *testing.T) {
	t.Setenv(SupervisorPIDEnvVar, "1")
	pid, ok := FindAncestorSupervisor()
	assert.True(t, ok)
	assert.Equal(t, 1, pid)
}

func TestFindAncestorSupervisorFallsBackWhenEnvPointsToDeadPID(t *testing.T) {
	t.Setenv(SupervisorPIDEnvVar, "999999999")
	_, _ = FindAncestorSupervisor()
	// No assertion on the fallback's result here since it depends on the
	// real process tree under the test runner; this only exercises that
	// an invalid env value doesn't panic or hang.
}

func TestProcessExistsForSelf(t *testing.T) {
	assert.True(t, processExists(os.Getpid()))
}
