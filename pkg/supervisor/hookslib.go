package supervisor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/brainwires/aegis-wrap/pkg/version"
	"github.com/ebitengine/purego"
	"github.com/sirupsen/logrus"
)

const (
	hooksLibraryEnvVar = "AEGIS_HOOKS_LIBRARY"
	hooksLibraryName   = "libaegis_hooks.so"
)

// locateHooksLibrary finds the compiled interposition library: an
// explicit override first, then the usual install locations relative
// to the running binary. Returns false if nothing is found, in which
// case LD_PRELOAD is simply never set — spec.md §7 treats this as
// non-fatal: warn, continue without interposition.
func locateHooksLibrary() (string, bool) {
	if override := os.Getenv(hooksLibraryEnvVar); override != "" {
		if fi, err := os.Stat(override); err == nil && !fi.IsDir() {
			return override, true
		}
	}

	var candidates []string
	if self, err := os.Executable(); err == nil {
		dir := filepath.Dir(self)
		candidates = append(candidates,
			filepath.Join(dir, hooksLibraryName),
			filepath.Join(dir, "hooks", hooksLibraryName),
		)
	}
	candidates = append(candidates,
		filepath.Join("/usr/local/lib", "aegis-wrap", hooksLibraryName),
		filepath.Join("/usr/lib", "aegis-wrap", hooksLibraryName),
	)

	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c, true
		}
	}
	return "", false
}

// ownVersionString mirrors the format hooks.go's aegis_hooks_version
// export builds, so the two are directly comparable.
func ownVersionString() string {
	return fmt.Sprintf("%s+%s (%s)", version.Version, version.Commit, version.Date)
}

// probeHooksLibrary loads path via purego and invokes its two exported
// version probes, warning if the reported version doesn't match this
// supervisor's own, per spec.md §4.2: "The supervisor dynamically loads
// the library once at startup, invokes both, and warns if the version
// identifier does not match its own." purego resolves the symbols with
// dlopen/dlsym under the hood without requiring cgo in this package, so
// the main binary's build stays plain `go build` — the hooks library
// itself is the only piece of this repo that needs a C toolchain. This
// is a one-shot compatibility check; the actual LD_PRELOAD is set on
// the child's environment in runOnce and resolved by the dynamic
// linker independently.
func probeHooksLibrary(log *logrus.Entry, path string) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW)
	if err != nil {
		if log != nil {
			log.WithError(err).Warnf("could not load interposition library at %s for version probe", path)
		}
		return
	}
	defer purego.Dlclose(lib)

	defer func() {
		if r := recover(); r != nil && log != nil {
			log.Warnf("interposition library at %s is missing its version probe exports: %v", path, r)
		}
	}()

	var hooksVersion func() string
	var hooksBuildTime func() string
	purego.RegisterLibFunc(&hooksVersion, lib, "aegis_hooks_version")
	purego.RegisterLibFunc(&hooksBuildTime, lib, "aegis_hooks_build_time")

	hooksVer := hooksVersion()
	hooksBuild := hooksBuildTime()
	own := ownVersionString()

	entry := log
	if entry != nil {
		entry = entry.WithField("hooks_version", hooksVer).WithField("hooks_build_time", hooksBuild)
	}
	if hooksVer != own {
		if entry != nil {
			entry.Warnf("interposition library version %q does not match supervisor version %q", hooksVer, own)
		}
		return
	}
	if entry != nil {
		entry.Debug("interposition library version matches supervisor")
	}
}
