package supervisor

import (
	"os"
	"strconv"
	"strings"

	"github.com/brainwires/aegis-wrap/pkg/config"
)

// SupervisorPIDEnvVar is set on the child's (and its descendants')
// environment so tools spawned arbitrarily deep under the supervised
// agent can find their way back to the supervisor without walking
// /proc.
const SupervisorPIDEnvVar = "AEGIS_SUPERVISOR_PID"

// FindAncestorSupervisor locates the pid of the aegis-wrap process
// that is an ancestor of the calling process. It first trusts
// AEGIS_SUPERVISOR_PID, set by the supervisor on its child's
// environment; that env var is inherited by every further descendant,
// so this is the fast path for any tool spawned directly or indirectly
// under the supervised agent. When the variable is absent — the
// caller's own parent chain was not spawned by a supervisor that set
// it — it falls back to walking /proc/<pid>/stat up to 5 hops,
// stopping at pid 1, looking for a process whose command name matches
// the product prefix.
func FindAncestorSupervisor() (int, bool) {
	if raw := os.Getenv(SupervisorPIDEnvVar); raw != "" {
		if pid, err := strconv.Atoi(raw); err == nil {
			if processExists(pid) {
				return pid, true
			}
		}
	}
	return ancestorWalk(os.Getpid(), 5)
}

func ancestorWalk(startPID, maxHops int) (int, bool) {
	current := startPID
	for i := 0; i < maxHops; i++ {
		ppid, ok := parentPID(current)
		if !ok {
			return 0, false
		}
		current = ppid

		comm, ok := commName(current)
		if ok && strings.Contains(comm, config.ProductPrefix) {
			return current, true
		}
		if current <= 1 {
			return 0, false
		}
	}
	return 0, false
}

func parentPID(pid int) (int, bool) {
	data, err := os.ReadFile(statPath(pid))
	if err != nil {
		return 0, false
	}
	close := strings.LastIndexByte(string(data), ')')
	if close < 0 || close+2 >= len(data) {
		return 0, false
	}
	fields := strings.Fields(string(data[close+2:]))
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}

func commName(pid int) (string, bool) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/comm")
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func statPath(pid int) string {
	return "/proc/" + strconv.Itoa(pid) + "/stat"
}

func processExists(pid int) bool {
	_, err := os.Stat("/proc/" + strconv.Itoa(pid))
	return err == nil
}
