//go:build hooks

// Command hooks builds libaegis_hooks.so, the LD_PRELOAD interposition
// library described in spec.md §4.2: outbound network auditing and
// .mcp.json filesystem-redirect overlay. It is gated behind the
// "hooks" build tag (see Makefile) so the main module's ordinary `go
// build ./...`/`go vet ./...`/`go test ./...` never touch it — cgo's
// c-shared buildmode and its libc-symbol-interposing C preamble have
// nothing in common with the rest of this repo's pure-Go packages.
//
// The actual interposed symbols (open, connect, stat, ...) are
// implemented in interpose.c, not here: calling back into the Go
// runtime from an arbitrary interposed libc call on an arbitrary
// thread — possibly signal-adjacent — is unsafe, so the C side never
// calls into Go. This file only exports the version probe spec.md
// §4.2 requires, mirroring the teacher's own version/commit/date
// variable-injection pattern in main.go.
package main

/*
#include <stdlib.h>
#include <string.h>
*/
import "C"

import "fmt"

// These mirror pkg/version's Version/Commit/Date and are populated the same
// way, via `-ldflags "-X"` at build time (see Makefile). The hooks
// library is built independently of the main binary, so it carries
// its own copy rather than importing pkg/version directly — cgo
// c-shared mode requires package main, and a second package main
// cannot import the first.
var (
	hooksVersion   = "unversioned"
	hooksCommit    string
	hooksBuildDate string
)

var (
	cachedVersionString   *C.char
	cachedBuildDateString *C.char
)

// aegis_hooks_version returns the library's own version identifier:
// version number, build timestamp, and source revision, exactly as
// spec.md §4.2 requires so the supervisor can detect a stale preload.
// The returned pointer is valid for the life of the process and must
// not be freed by the caller.
//
//export aegis_hooks_version
func aegis_hooks_version() *C.char {
	if cachedVersionString == nil {
		s := fmt.Sprintf("%s+%s (%s)", hooksVersion, hooksCommit, hooksBuildDate)
		cachedVersionString = C.CString(s)
	}
	return cachedVersionString
}

// aegis_hooks_build_time returns the UTC build timestamp alone.
//
//export aegis_hooks_build_time
func aegis_hooks_build_time() *C.char {
	if cachedBuildDateString == nil {
		cachedBuildDateString = C.CString(hooksBuildDate)
	}
	return cachedBuildDateString
}

func main() {}
