// Package preflight checks that a project can build its indexes before a
// build is attempted.
//
// The checks cover:
//   - Free disk space under the data directory (minimum 100MB)
//   - Write access to the data directory
//   - The open file limit (minimum 1024)
//   - Every scope root exists and is a directory
//   - Caller-supplied checks, such as opening the index provider
//
// Use the Checker type to run them:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{DataDir: dir})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
