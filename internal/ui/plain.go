package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	noColor bool
	totals  map[string]int
	errors  []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:     cfg.Output,
		noColor: cfg.NoColor,
		totals:  make(map[string]int),
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
//
// Format: [STAGE] scope (mode) detail
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totals[event.Scope] += event.Applied
	total := r.totals[event.Scope]

	head := fmt.Sprintf("[%s] %s", event.Stage.Icon(), event.Scope)
	if event.Mode != "" {
		head += " (" + event.Mode + ")"
	}

	switch {
	case event.Stage == StageApplying:
		_, _ = fmt.Fprintf(r.out, "%s segment %d: %d operations (%d total)\n", head, event.Segment, event.Applied, total)
	case event.Stage == StageComplete:
		_, _ = fmt.Fprintf(r.out, "%s %d operations\n", head, total)
	case event.Message != "":
		_, _ = fmt.Fprintf(r.out, "%s %s\n", head, event.Message)
	default:
		_, _ = fmt.Fprintln(r.out, head)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}

	if event.Scope != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Scope, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d scopes, %d operations applied in %s",
		stats.Scopes, stats.Operations, stats.Duration.Round(100*time.Millisecond))

	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}

	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
