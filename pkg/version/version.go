// Package version holds the build-time identity of the aegis-wrap
// binary: the same version/commit/date/buildSource quadruplet the
// teacher's main.go injects via -ldflags. The hooks library carries its
// own copy of version/commit/date behind two cgo-exported getters, and
// the supervisor compares those against these values at startup so a
// mismatched, stale preload is detected.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/samber/lo"
)

// DefaultVersion is the placeholder used before Resolve (or an
// -ldflags -X injection) overrides it.
const DefaultVersion = "unversioned"

var (
	// Commit is the git revision this binary was built from.
	Commit string
	// Version is the release version, or DefaultVersion for dev builds.
	Version = DefaultVersion
	// Date is the UTC build timestamp.
	Date string
	// BuildSource identifies how the binary was produced (e.g. "binaryRelease", "go install").
	BuildSource = "unknown"
)

// Info renders the multi-line banner --version prints, matching the
// teacher's own version string layout.
func Info() string {
	return fmt.Sprintf(
		"%s\nDate: %s\nBuildSource: %s\nCommit: %s\nOS: %s\nArch: %s",
		Version, Date, BuildSource, Commit, runtime.GOOS, runtime.GOARCH,
	)
}

// Resolve fills in Commit/Version/Date from the Go module's embedded
// VCS metadata when no -ldflags injection happened at build time, so
// `go install`-built binaries still report a meaningful version
// instead of "unversioned".
func Resolve() {
	if Version != DefaultVersion {
		return
	}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	revision, found := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
		return setting.Key == "vcs.revision"
	})
	if found {
		Commit = revision.Value
		Version = safeTruncate(revision.Value, 7)
	}

	buildTime, found := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
		return setting.Key == "vcs.time"
	})
	if found {
		Date = buildTime.Value
	}
}

func safeTruncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
