package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/amanindex/internal/status"
)

// StatusView is the JSON shape of one scope's status.
type StatusView struct {
	Scope          string     `json:"scope"`
	Status         string     `json:"status"`
	LastIndexedUTC *time.Time `json:"last_indexed_utc"`
	DocumentCount  int        `json:"document_count"`
	Fields         []string   `json:"fields"`
	Environment    string     `json:"environment"`
	Stuck          bool       `json:"stuck,omitempty"`
	Busy           bool       `json:"busy,omitempty"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out      io.Writer
	styles   Styles
	noColor  bool
	now      func() time.Time
	stuckAge time.Duration
}

// DefaultStuckAge is how long a record may stay in progress before it is
// flagged as probably left behind by a crashed build.
const DefaultStuckAge = time.Hour

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:      out,
		styles:   GetStyles(noColor),
		noColor:  noColor,
		now:      time.Now,
		stuckAge: DefaultStuckAge,
	}
}

// Render displays one block per scope.
func (r *StatusRenderer) Render(infos []status.IndexInfo) error {
	if len(infos) == 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Dim.Render("No scopes configured."))
		return nil
	}

	for i, info := range infos {
		if i > 0 {
			_, _ = fmt.Fprintln(r.out)
		}
		_, _ = fmt.Fprintln(r.out, r.styles.Header.Render("Scope: "+info.Scope))
		_, _ = fmt.Fprintf(r.out, "  Status:       %s\n", r.renderStatus(info))
		if info.LastIndexedUTC != nil {
			_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", r.formatTime(*info.LastIndexedUTC))
		} else {
			_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", r.styles.Dim.Render("never"))
		}
		if info.Busy {
			_, _ = fmt.Fprintf(r.out, "  Documents:    %s\n", r.styles.Dim.Render("unknown (index in use by another process)"))
		} else {
			_, _ = fmt.Fprintf(r.out, "  Documents:    %d\n", info.DocumentCount)
		}
		if len(info.Fields) > 0 {
			_, _ = fmt.Fprintf(r.out, "  Fields:       %s\n", strings.Join(info.Fields, ", "))
		}
		if info.Environment != "" {
			_, _ = fmt.Fprintf(r.out, "  Environment:  %s\n", info.Environment)
		}
	}
	return nil
}

// RenderJSON outputs status as a JSON array.
func (r *StatusRenderer) RenderJSON(infos []status.IndexInfo) error {
	views := make([]StatusView, 0, len(infos))
	for _, info := range infos {
		fields := info.Fields
		if fields == nil {
			fields = []string{}
		}
		views = append(views, StatusView{
			Scope:          info.Scope,
			Status:         string(info.Status),
			LastIndexedUTC: info.LastIndexedUTC,
			DocumentCount:  info.DocumentCount,
			Fields:         fields,
			Environment:    info.Environment,
			Stuck:          r.stuck(info),
			Busy:           info.Busy,
		})
	}

	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(views)
}

// stuck reports an in-progress record that has not been touched for a
// long time. Only the next build for the scope clears it.
func (r *StatusRenderer) stuck(info status.IndexInfo) bool {
	if !info.Status.InProgress() || info.UpdatedAt.IsZero() {
		return false
	}
	return r.now().Sub(info.UpdatedAt) > r.stuckAge
}

func (r *StatusRenderer) renderStatus(info status.IndexInfo) string {
	s := string(info.Status)
	switch {
	case r.stuck(info):
		return r.styles.Error.Render(s + " (stuck since " + r.formatTime(info.UpdatedAt) + ")")
	case info.Status == status.Idle:
		return r.styles.Success.Render(s)
	case info.Status.InProgress():
		return r.styles.Active.Render(s)
	case info.Status == status.Unavailable:
		return r.styles.Warning.Render(s)
	default:
		return s
	}
}

// formatTime formats a time relative to now.
func (r *StatusRenderer) formatTime(t time.Time) string {
	diff := r.now().Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.UTC().Format("2006-01-02 15:04 UTC")
	}
}
