package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanindex/internal/status"
)

var statusNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestStatusRenderer(buf *bytes.Buffer) *StatusRenderer {
	r := NewStatusRenderer(buf, true)
	r.now = func() time.Time { return statusNow }
	return r
}

func ptr(t time.Time) *time.Time { return &t }

func TestStatusRenderer_Render(t *testing.T) {
	// Given: one built scope and one never built
	infos := []status.IndexInfo{
		{
			Record: status.Record{
				Scope:          "docs",
				Status:         status.Idle,
				LastIndexedUTC: ptr(statusNow.Add(-2 * time.Hour)),
				Environment:    "laptop",
			},
			DocumentCount: 42,
			Fields:        []string{"content", "path"},
		},
		{Record: status.Record{Scope: "api", Status: status.Unavailable}, Fields: []string{}},
	}
	buf := &bytes.Buffer{}

	// When
	require.NoError(t, newTestStatusRenderer(buf).Render(infos))

	// Then
	out := buf.String()
	assert.Contains(t, out, "Scope: docs")
	assert.Contains(t, out, "Status:       idle")
	assert.Contains(t, out, "Last indexed: 2 hours ago")
	assert.Contains(t, out, "Documents:    42")
	assert.Contains(t, out, "Fields:       content, path")
	assert.Contains(t, out, "Environment:  laptop")
	assert.Contains(t, out, "Scope: api")
	assert.Contains(t, out, "Status:       unavailable")
	assert.Contains(t, out, "Last indexed: never")
	assert.NotContains(t, out, "\x1b[")
}

func TestStatusRenderer_BusyIndexHidesCount(t *testing.T) {
	// Given: a scope whose index another process holds open
	infos := []status.IndexInfo{{
		Record: status.Record{Scope: "docs", Status: status.Rebuilding, UpdatedAt: statusNow},
		Fields: []string{},
		Busy:   true,
	}}
	buf := &bytes.Buffer{}

	// When
	require.NoError(t, newTestStatusRenderer(buf).Render(infos))
	require.NoError(t, newTestStatusRenderer(buf).RenderJSON(infos))

	// Then
	out := buf.String()
	assert.Contains(t, out, "Documents:    unknown (index in use by another process)")
	assert.Contains(t, out, `"busy": true`)
}

func TestStatusRenderer_RenderEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, newTestStatusRenderer(buf).Render(nil))
	assert.Equal(t, "No scopes configured.\n", buf.String())
}

func TestStatusRenderer_FlagsStuckBuilds(t *testing.T) {
	// Given: a record left in progress by a crashed build three hours ago
	info := status.IndexInfo{Record: status.Record{
		Scope:     "docs",
		Status:    status.Rebuilding,
		UpdatedAt: statusNow.Add(-3 * time.Hour),
	}}
	recent := status.IndexInfo{Record: status.Record{
		Scope:     "api",
		Status:    status.Updating,
		UpdatedAt: statusNow.Add(-time.Minute),
	}}
	buf := &bytes.Buffer{}
	r := newTestStatusRenderer(buf)

	// When
	require.NoError(t, r.Render([]status.IndexInfo{info, recent}))

	// Then: only the old one is flagged
	out := buf.String()
	assert.Contains(t, out, "rebuilding (stuck since 3 hours ago)")
	assert.Contains(t, out, "Status:       updating\n")
	assert.True(t, r.stuck(info))
	assert.False(t, r.stuck(recent))
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given
	last := time.Date(2026, 5, 9, 8, 30, 0, 0, time.UTC)
	infos := []status.IndexInfo{
		{Record: status.Record{Scope: "docs", Status: status.Idle, LastIndexedUTC: &last, Environment: "ci"}, DocumentCount: 3, Fields: []string{"path"}},
		{Record: status.Record{Scope: "api", Status: status.Unavailable}},
	}
	buf := &bytes.Buffer{}

	// When
	require.NoError(t, newTestStatusRenderer(buf).RenderJSON(infos))

	// Then
	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "docs", got[0]["scope"])
	assert.Equal(t, "idle", got[0]["status"])
	assert.Equal(t, "2026-05-09T08:30:00Z", got[0]["last_indexed_utc"])
	assert.EqualValues(t, 3, got[0]["document_count"])
	assert.Equal(t, []any{"path"}, got[0]["fields"])
	assert.NotContains(t, got[0], "stuck")
	assert.Nil(t, got[1]["last_indexed_utc"])
	assert.Equal(t, []any{}, got[1]["fields"])
}

func TestStatusRenderer_FormatTime(t *testing.T) {
	r := newTestStatusRenderer(&bytes.Buffer{})

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{time.Hour, "1 hour ago"},
		{26 * time.Hour, "1 day ago"},
		{3 * 24 * time.Hour, "3 days ago"},
		{30 * 24 * time.Hour, "2026-04-10 12:00 UTC"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, r.formatTime(statusNow.Add(-tt.ago)))
		})
	}
}
