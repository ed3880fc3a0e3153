// Package version carries the build-time identity saxsengine prints with
// -version, so a profile emitted by one binary can be traced back to the
// exact commit and build that produced it when comparing runs across a
// fitting campaign.
package version

import "fmt"

var (
	// Engine is the saxsengine release version, set via -ldflags at build
	// time; "dev" for a local, non-release build.
	Engine = "dev"
	// Commit is the git commit SHA the binary was built from.
	Commit = "unknown"
	// BuiltAt is the build timestamp.
	BuiltAt = "unknown"
)

// String renders the build identity as a single line suitable for -version
// output or a session-start log line.
func String() string {
	return fmt.Sprintf("saxsengine %s (commit %s, built %s)", Engine, Commit, BuiltAt)
}
