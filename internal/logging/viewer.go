package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// maxLineSize bounds a single log line read back by the viewer.
const maxLineSize = 1024 * 1024

// followInterval is how often Follow polls the file for new lines.
const followInterval = 100 * time.Millisecond

// LogEntry is one parsed JSON log line.
type LogEntry struct {
	Time  time.Time
	Level string
	Msg   string
	// Scope and RunID are lifted out of Attrs because builds log them on
	// every line.
	Scope   string
	RunID   string
	Attrs   map[string]any
	Raw     string
	IsValid bool
}

// ViewerConfig filters and formats entries. Zero values match everything.
type ViewerConfig struct {
	Level   string
	Pattern *regexp.Regexp
	Scope   string
	RunID   string
	NoColor bool
}

// Viewer reads log files written by Setup.
type Viewer struct {
	config ViewerConfig
	out    io.Writer
	levels map[string]lipgloss.Style
	dim    lipgloss.Style
}

// NewViewer creates a viewer printing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	v := &Viewer{config: cfg, out: out, levels: map[string]lipgloss.Style{}}
	if !cfg.NoColor {
		v.dim = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		v.levels["DEBUG"] = v.dim
		v.levels["INFO"] = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
		v.levels["WARN"] = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
		v.levels["ERROR"] = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	}
	return v
}

// Tail returns the matching entries among the last n lines of path.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if n <= 0 {
		return nil, nil
	}

	ring := make([]string, 0, n)
	next := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if len(ring) < n {
			ring = append(ring, scanner.Text())
			continue
		}
		ring[next] = scanner.Text()
		next = (next + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var entries []LogEntry
	for i := range ring {
		entry := ParseLine(ring[(next+i)%len(ring)])
		if v.Matches(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Follow sends entries appended to path after the call until ctx is done.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for {
			chunk, err := reader.ReadString('\n')
			if err != nil {
				// Keep an incomplete line until the writer finishes it.
				partial += chunk
				break
			}
			line := strings.TrimSuffix(partial+chunk, "\n")
			partial = ""
			if line == "" {
				continue
			}
			entry := ParseLine(line)
			if !v.Matches(entry) {
				continue
			}
			select {
			case entries <- entry:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Print writes entries to the viewer's output.
func (v *Viewer) Print(entries []LogEntry) {
	for _, entry := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

// FormatEntry renders an entry as "15:04:05.000 LEVEL [scope] msg k=v ...".
// Lines that are not JSON are returned unchanged.
func (v *Viewer) FormatEntry(entry LogEntry) string {
	if !entry.IsValid {
		return entry.Raw
	}

	var b strings.Builder
	b.WriteString(v.render(v.dim, entry.Time.Local().Format("15:04:05.000")))
	b.WriteByte(' ')
	level := strings.ToUpper(entry.Level)
	b.WriteString(v.render(v.levels[level], fmt.Sprintf("%-5s", level)))
	if entry.Scope != "" {
		b.WriteString(" [" + entry.Scope + "]")
	}
	b.WriteByte(' ')
	b.WriteString(entry.Msg)

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" " + v.render(v.dim, k+"=") + fmt.Sprint(entry.Attrs[k]))
	}
	return b.String()
}

func (v *Viewer) render(style lipgloss.Style, s string) string {
	if v.config.NoColor {
		return s
	}
	return style.Render(s)
}

// Matches reports whether entry passes every configured filter. Lines that
// are not JSON only pass when no level, scope or run filter is set.
func (v *Viewer) Matches(entry LogEntry) bool {
	if v.config.Level != "" && (!entry.IsValid || LevelFromString(entry.Level) < LevelFromString(v.config.Level)) {
		return false
	}
	if v.config.Scope != "" && !strings.EqualFold(entry.Scope, v.config.Scope) {
		return false
	}
	if v.config.RunID != "" && !strings.HasPrefix(entry.RunID, v.config.RunID) {
		return false
	}
	if v.config.Pattern != nil && !v.config.Pattern.MatchString(entry.Raw) {
		return false
	}
	return true
}

// ParseLine parses a JSON log line written by Setup.
func ParseLine(line string) LogEntry {
	entry := LogEntry{Raw: line}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return entry
	}
	entry.IsValid = true

	if t, ok := data["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			entry.Time = parsed
		}
	}
	entry.Level, _ = data["level"].(string)
	entry.Msg, _ = data["msg"].(string)
	entry.Scope, _ = data["scope"].(string)
	entry.RunID, _ = data["run_id"].(string)

	for _, k := range []string{"time", "level", "msg", "scope", "run_id"} {
		delete(data, k)
	}
	entry.Attrs = data
	return entry
}
