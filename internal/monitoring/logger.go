// Package monitoring centralizes the diagnostic-logging indirection the
// histogram engine and its gRPC publisher share: the axis-overflow notice
// (internal/engine) and the publisher's serve/exit/stop notices
// (pkg/scatterapi) write through Logf rather than calling the log package
// directly, so an embedder or test can redirect or silence them without
// reaching into the standard library's global logger. cmd/saxsengine logs
// its session and checkpoint lines with the log package directly.
package monitoring

import "log"

// Logf is the package-level diagnostic sink, defaulting to log.Printf.
// Replace it with SetLogger.
var Logf = log.Printf

// discard is the sink SetLogger installs in place of a nil argument.
func discard(string, ...interface{}) {}

// SetLogger swaps the diagnostic sink. A nil argument installs discard,
// which tests use to silence expected diagnostic output (an axis-overflow
// notice during a deliberately out-of-range test fixture, say) without
// asserting on log formatting.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = discard
		return
	}
	Logf = f
}
