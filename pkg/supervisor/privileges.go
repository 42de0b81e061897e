package supervisor

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// PrivilegeInfo describes the supervisor's current privilege state,
// independent of whether a drop was attempted. Surfaced through the
// control server's server_status tool so an operator can see why a
// drop did or did not happen.
type PrivilegeInfo struct {
	EffectiveUID int    `json:"effective_uid"`
	EffectiveGID int    `json:"effective_gid"`
	IsRoot       bool   `json:"is_root"`
	SudoUser     string `json:"sudo_user,omitempty"`
	SudoUID      *int   `json:"sudo_uid,omitempty"`
	SudoGID      *int   `json:"sudo_gid,omitempty"`
}

// GetPrivilegeInfo reports the process's current effective ids and any
// sudo-invocation environment it was launched under.
func GetPrivilegeInfo() PrivilegeInfo {
	info := PrivilegeInfo{
		EffectiveUID: unix.Geteuid(),
		EffectiveGID: unix.Getegid(),
	}
	info.IsRoot = info.EffectiveUID == 0

	if u := os.Getenv("SUDO_USER"); u != "" {
		info.SudoUser = u
	}
	if v, err := strconv.Atoi(os.Getenv("SUDO_UID")); err == nil {
		info.SudoUID = &v
	}
	if v, err := strconv.Atoi(os.Getenv("SUDO_GID")); err == nil {
		info.SudoGID = &v
	}
	return info
}

// dropPrivileges drops from root to the user that invoked sudo, using
// SUDO_UID/SUDO_GID exclusively — never a hardcoded fallback uid, since
// guessing wrong would hand the child's filesystem access to the wrong
// account. A no-op when not running as root.
func dropPrivileges() error {
	if unix.Geteuid() != 0 {
		return nil
	}

	uidStr := os.Getenv("SUDO_UID")
	gidStr := os.Getenv("SUDO_GID")
	if uidStr == "" || gidStr == "" {
		return fmt.Errorf("running as root but SUDO_UID/SUDO_GID not set; run via sudo, not as root directly")
	}

	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return fmt.Errorf("parsing SUDO_GID: %w", err)
	}
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return fmt.Errorf("parsing SUDO_UID: %w", err)
	}

	// Order matters: gid must drop before uid, since root is required
	// to change the group and is given up by the uid drop.
	if err := unix.Setgid(gid); err != nil {
		return fmt.Errorf("dropping group privileges: %w", err)
	}
	if err := unix.Setuid(uid); err != nil {
		return fmt.Errorf("dropping user privileges: %w", err)
	}

	return nil
}
