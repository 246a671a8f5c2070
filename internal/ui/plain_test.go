package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress_OutputFormat(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: two segments of one scope are applied
	r.UpdateProgress(ProgressEvent{Scope: "docs", Mode: "update", Stage: StageApplying, Segment: 1, Applied: 100})
	r.UpdateProgress(ProgressEvent{Scope: "docs", Mode: "update", Stage: StageApplying, Segment: 2, Applied: 40})

	// Then: each line carries the segment and running total
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[APPLY] docs (update) segment 1: 100 operations (100 total)", lines[0])
	assert.Equal(t, "[APPLY] docs (update) segment 2: 40 operations (140 total)", lines[1])
}

func TestPlainRenderer_TotalsArePerScope(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Scope: "a", Stage: StageApplying, Segment: 1, Applied: 5})
	r.UpdateProgress(ProgressEvent{Scope: "b", Stage: StageApplying, Segment: 1, Applied: 7})
	r.UpdateProgress(ProgressEvent{Scope: "a", Stage: StageComplete})

	output := buf.String()
	assert.Contains(t, output, "[APPLY] b segment 1: 7 operations (7 total)")
	assert.Contains(t, output, "[DONE] a 5 operations")
}

func TestPlainRenderer_UpdateProgress_StartWithMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{Scope: "docs", Mode: "rebuild", Stage: StageStarting, Message: "waiting for lock"})
	r.UpdateProgress(ProgressEvent{Scope: "api", Stage: StageStarting})

	assert.Equal(t, "[START] docs (rebuild) waiting for lock\n[START] api\n", buf.String())
}

func TestPlainRenderer_NoANSICodes(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: rendering every stage, an error and the summary
	for _, stage := range []Stage{StageStarting, StageApplying, StageComplete} {
		r.UpdateProgress(ProgressEvent{Scope: "docs", Stage: stage, Segment: 1, Applied: 3})
	}
	r.AddError(ErrorEvent{Scope: "docs", Err: errors.New("boom")})
	r.Complete(CompletionStats{Scopes: 1, Operations: 6, Errors: 1})

	// Then: output contains no ANSI escape codes
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainRenderer_AddError(t *testing.T) {
	tests := []struct {
		name  string
		event ErrorEvent
		want  string
	}{
		{"error", ErrorEvent{Scope: "docs", Err: errors.New("disk full")}, "ERROR: docs: disk full\n"},
		{"warning", ErrorEvent{Scope: "docs", Err: errors.New("busy"), IsWarn: true}, "WARN: docs: busy\n"},
		{"no scope", ErrorEvent{Err: errors.New("bad config")}, "ERROR: bad config\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			r := NewPlainRenderer(NewConfig(buf))

			r.AddError(tt.event)

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPlainRenderer_Complete(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(CompletionStats{Scopes: 2, Operations: 150, Duration: 1500 * time.Millisecond})
	assert.Equal(t, "Complete: 2 scopes, 150 operations applied in 1.5s\n", buf.String())

	buf.Reset()
	r.Complete(CompletionStats{Scopes: 3, Operations: 10, Duration: time.Second, Errors: 1, Warnings: 2})
	assert.Contains(t, buf.String(), "(1 errors, 2 warnings)")
}

func TestPlainRenderer_StartStop(t *testing.T) {
	r := NewPlainRenderer(NewConfig(&bytes.Buffer{}))

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
}

func TestPlainRenderer_ThreadSafe(t *testing.T) {
	// Given: a plain renderer shared by concurrent builds
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: ten scopes report at once
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.UpdateProgress(ProgressEvent{Scope: "shared", Stage: StageApplying, Segment: n, Applied: 1})
			r.AddError(ErrorEvent{Scope: "shared", Err: errors.New("test"), IsWarn: n%2 == 0})
		}(i)
	}
	wg.Wait()

	// Then: the running total saw every update
	r.UpdateProgress(ProgressEvent{Scope: "shared", Stage: StageComplete})
	assert.Contains(t, buf.String(), "[DONE] shared 10 operations")
}
