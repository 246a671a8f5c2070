package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// BarRenderer shows a single spinner line counting applied operations
// across every scope being built. Errors and warnings are printed above it.
type BarRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	noColor bool
	styles  Styles
	bar     *progressbar.ProgressBar
	active  map[string]string
}

// NewBarRenderer creates a spinner renderer writing to cfg.Output.
func NewBarRenderer(cfg Config) *BarRenderer {
	return &BarRenderer{
		out:     cfg.Output,
		noColor: cfg.NoColor,
		styles:  GetStyles(cfg.NoColor),
		active:  make(map[string]string),
	}
}

// Start implements Renderer.
func (r *BarRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionEnableColorCodes(!r.noColor),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("ops"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetDescription(r.describe("Indexing", "")),
	)
	return nil
}

// UpdateProgress implements Renderer.
func (r *BarRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil {
		return
	}

	switch event.Stage {
	case StageComplete:
		delete(r.active, event.Scope)
	default:
		r.active[event.Scope] = event.Mode
	}

	detail := event.Scope
	if n := len(r.active); n > 1 {
		detail = fmt.Sprintf("%s +%d", event.Scope, n-1)
	}
	if event.Stage == StageApplying {
		detail += fmt.Sprintf(" seg %d", event.Segment)
	}
	r.bar.Describe(r.describe(modeLabel(event.Mode), detail))
	if event.Applied > 0 {
		_ = r.bar.Add(event.Applied)
	}
}

// AddError implements Renderer.
func (r *BarRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, event.Scope)
	if r.bar != nil {
		_ = r.bar.Clear()
	}

	style, icon := r.styles.Error, "✗"
	if event.IsWarn {
		style, icon = r.styles.Warning, "⚠"
	}
	msg := fmt.Sprintf("%s %v", icon, event.Err)
	if event.Scope != "" {
		msg = fmt.Sprintf("%s %s: %v", icon, event.Scope, event.Err)
	}
	_, _ = fmt.Fprintln(r.out, style.Render(msg))
}

// Complete implements Renderer.
func (r *BarRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar != nil {
		_ = r.bar.Finish()
	}

	head := r.styles.Success.Render("✓ Indexing complete")
	if stats.Errors > 0 {
		head = r.styles.Error.Render("✗ Indexing finished with errors")
	}
	_, _ = fmt.Fprintln(r.out, head)
	_, _ = fmt.Fprintf(r.out, "%s %s\n", r.styles.Label.Render("Scopes:    "), r.styles.Active.Render(fmt.Sprint(stats.Scopes)))
	_, _ = fmt.Fprintf(r.out, "%s %s\n", r.styles.Label.Render("Operations:"), r.styles.Active.Render(fmt.Sprint(stats.Operations)))
	_, _ = fmt.Fprintf(r.out, "%s %s\n", r.styles.Label.Render("Duration:  "), r.styles.Active.Render(formatDuration(stats.Duration)))
	if stats.Errors > 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Error.Render(fmt.Sprintf("✗ %d errors", stats.Errors)))
	}
	if stats.Warnings > 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", stats.Warnings)))
	}
}

// Stop implements Renderer.
func (r *BarRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil || r.bar.IsFinished() {
		return nil
	}
	return r.bar.Finish()
}

func (r *BarRenderer) describe(label, detail string) string {
	if !r.noColor {
		label = "[cyan]" + label + "[reset]"
	}
	if detail == "" {
		return label
	}
	return label + " " + detail
}

func modeLabel(mode string) string {
	switch mode {
	case "rebuild":
		return "Rebuilding"
	case "update":
		return "Updating"
	default:
		return "Indexing"
	}
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}

var _ Renderer = (*BarRenderer)(nil)
