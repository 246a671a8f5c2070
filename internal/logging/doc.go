// Package logging configures structured logging for amanindex.
//
// Logs are JSON lines written through log/slog to a size-rotated file under
// ~/.amanindex/logs/, so long rebuilds can be inspected after the fact.
// With --debug they are mirrored to stderr. Viewer reads the file back,
// filtered by level, scope or build run.
package logging
