package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanindex/internal/collector"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/index"
	"github.com/Aman-CERP/amanindex/internal/lock"
	"github.com/Aman-CERP/amanindex/internal/status"
	"github.com/Aman-CERP/amanindex/internal/store"
)

// Integration tests wire the real provider, status backend, lock files and
// filesystem collector together, the way the CLI does.

const env = "ci"

// instance is one process's view of a shared data directory.
type instance struct {
	orch     *index.Orchestrator
	status   *status.Store
	provider store.Provider
}

func newInstance(t *testing.T, provider, projectDir, dataDir string, onSegment index.SegmentFunc) *instance {
	t.Helper()

	p, err := store.NewProvider(provider, filepath.Join(dataDir, "indexes"), 500*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	docs, err := collector.NewFilesystemCollector(collector.FilesystemOptions{
		Scope:        "docs",
		Root:         filepath.Join(projectDir, "docs"),
		Include:      []string{"**/*.md"},
		SegmentSize:  2,
		ManifestPath: filepath.Join(dataDir, "manifests", status.Key("docs", env)+".db"),
	})
	require.NoError(t, err)
	registry, err := collector.NewRegistry(docs)
	require.NoError(t, err)

	st := status.NewStore(status.NewFileBackend(filepath.Join(dataDir, "status")), env)
	orch, err := index.NewOrchestrator(index.Options{
		Provider:   p,
		Collectors: registry,
		Locks:      lock.NewFileCoordinator(filepath.Join(dataDir, "locks")),
		Status:     st,
		OnSegment:  onSegment,
	})
	require.NoError(t, err)

	return &instance{orch: orch, status: st, provider: p}
}

func writeDoc(t *testing.T, projectDir, name, content string) {
	t.Helper()
	path := filepath.Join(projectDir, "docs", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIntegration_BuildLifecycle_Bleve(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a project with three markdown files and a stray text file
	projectDir, dataDir := t.TempDir(), t.TempDir()
	writeDoc(t, projectDir, "intro.md", "# Intro\nlocks keep builds apart\n")
	writeDoc(t, projectDir, "guide/setup.md", "# Setup\nrun rebuild first\n")
	writeDoc(t, projectDir, "guide/usage.md", "# Usage\nupdate applies changes\n")
	writeDoc(t, projectDir, "notes.txt", "ignored\n")

	var segments []int
	inst := newInstance(t, store.ProviderBleve, projectDir, dataDir, func(_ string, segment, applied int) {
		segments = append(segments, applied)
	})
	ctx := context.Background()

	// When: rebuilding
	require.NoError(t, inst.orch.Rebuild(ctx, "docs"))

	// Then: every markdown file is indexed in segments of two
	info, err := inst.orch.IndexInfo(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, status.Idle, info.Status)
	assert.Equal(t, 3, info.DocumentCount)
	assert.Equal(t, []int{2, 1}, segments)
	require.NotNil(t, info.LastIndexedUTC)
	firstBuild := *info.LastIndexedUTC

	// When: one file is removed and one added, then updating
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.Remove(filepath.Join(projectDir, "docs", "intro.md")))
	writeDoc(t, projectDir, "faq.md", "# FAQ\n")
	segments = nil
	require.NoError(t, inst.orch.Update(ctx, "docs"))

	// Then: only the changes are applied
	info, err = inst.orch.IndexInfo(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, info.DocumentCount)
	assert.Equal(t, []int{2}, segments, "one delete and one add")
	assert.True(t, info.LastIndexedUTC.After(firstBuild))

	idx, err := inst.provider.Open(status.Key("docs", env))
	require.NoError(t, err)
	fields, err := idx.Fields(ctx)
	require.NoError(t, err)
	assert.Contains(t, fields, "content")
	require.NoError(t, idx.Release())

	// When: deleting the index
	require.NoError(t, inst.orch.DeleteIndex(ctx, "docs"))

	// Then: the scope is unavailable but keeps its history
	info, err = inst.orch.IndexInfo(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, status.Unavailable, info.Status)
	assert.Zero(t, info.DocumentCount)
	assert.NotNil(t, info.LastIndexedUTC)

	// When: updating the deleted index with no file changes
	require.NoError(t, inst.orch.Update(ctx, "docs"))

	// Then: every file is collected again rather than only recent changes
	info, err = inst.orch.IndexInfo(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, status.Idle, info.Status)
	assert.Equal(t, 3, info.DocumentCount)
}

// within fails the test if fn does not return in time.
func within[T any](t *testing.T, d time.Duration, what string, fn func() T) T {
	t.Helper()
	ch := make(chan T, 1)
	go func() { ch <- fn() }()
	select {
	case v := <-ch:
		return v
	case <-time.After(d):
		t.Fatalf("%s did not return within %s", what, d)
		var zero T
		return zero
	}
}

func TestIntegration_ConcurrentInstances_Bleve(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: two bleve instances sharing a data directory and a finished build
	projectDir, dataDir := t.TempDir(), t.TempDir()
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		writeDoc(t, projectDir, name, "# "+name+"\n")
	}

	var paused atomic.Bool
	inside := make(chan struct{}, 1)
	resume := make(chan struct{})
	first := newInstance(t, store.ProviderBleve, projectDir, dataDir, func(string, int, int) {
		if paused.Load() {
			inside <- struct{}{}
			<-resume
			paused.Store(false)
		}
	})
	second := newInstance(t, store.ProviderBleve, projectDir, dataDir, nil)
	ctx := context.Background()
	require.NoError(t, first.orch.Rebuild(ctx, "docs"))

	type result struct {
		info status.IndexInfo
		err  error
	}

	// When: the second instance reads and updates after the first finished
	got := within(t, 5*time.Second, "IndexInfo after build", func() result {
		info, err := second.orch.IndexInfo(ctx, "docs")
		return result{info, err}
	})

	// Then: the first instance no longer holds the index
	require.NoError(t, got.err)
	assert.False(t, got.info.Busy)
	assert.Equal(t, 3, got.info.DocumentCount)
	require.NoError(t, within(t, 5*time.Second, "Update after build", func() error {
		return second.orch.Update(ctx, "docs")
	}))

	// When: the first instance is paused inside a rebuild
	paused.Store(true)
	done := make(chan error, 1)
	go func() { done <- first.orch.Rebuild(ctx, "docs") }()
	<-inside

	// Then: a read returns promptly with the record and no live facts
	got = within(t, 5*time.Second, "IndexInfo during build", func() result {
		info, err := second.orch.IndexInfo(ctx, "docs")
		return result{info, err}
	})
	require.NoError(t, got.err)
	assert.Equal(t, status.Rebuilding, got.info.Status)
	assert.True(t, got.info.Busy)

	// And: a build is rejected as busy without waiting on the store
	updateErr := within(t, 5*time.Second, "Update during build", func() error {
		return second.orch.Update(ctx, "docs")
	})
	assert.True(t, amerrors.IsBusy(updateErr))

	close(resume)
	require.NoError(t, <-done)

	info, err := second.orch.IndexInfo(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, status.Idle, info.Status)
	assert.Equal(t, 3, info.DocumentCount)
}

func TestIntegration_ConcurrentInstances_OneBuilds(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: two instances sharing a data directory, the first paused
	// inside its build
	projectDir, dataDir := t.TempDir(), t.TempDir()
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		writeDoc(t, projectDir, name, "# "+name+"\n")
	}

	inside := make(chan struct{})
	resume := make(chan struct{})
	var once sync.Once
	first := newInstance(t, store.ProviderSQLite, projectDir, dataDir, func(string, int, int) {
		once.Do(func() {
			close(inside)
			<-resume
		})
	})
	second := newInstance(t, store.ProviderSQLite, projectDir, dataDir, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- first.orch.Rebuild(ctx, "docs") }()
	<-inside

	// When: the second instance tries to build the same scope
	rebuildErr := second.orch.Rebuild(ctx, "docs")
	updateErr := second.orch.Update(ctx, "docs")
	deleteErr := second.orch.DeleteIndex(ctx, "docs")

	// Then: every attempt is rejected as busy and the record shows the
	// first build in progress
	for _, err := range []error{rebuildErr, updateErr, deleteErr} {
		require.Error(t, err)
		assert.True(t, amerrors.IsBusy(err))
	}
	rec, err := second.status.Load(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, status.Rebuilding, rec.Status)

	close(resume)
	require.NoError(t, <-done)

	// And: once released, the second instance sees the finished build and
	// can build again
	rec, err = second.status.Load(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, status.Idle, rec.Status)
	require.NoError(t, second.orch.Update(ctx, "docs"))

	info, err := second.orch.IndexInfo(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, info.DocumentCount)
}

func TestIntegration_StuckRecord_ClearedByNextBuild(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a record left in progress by a build that died
	projectDir, dataDir := t.TempDir(), t.TempDir()
	writeDoc(t, projectDir, "a.md", "# A\n")
	inst := newInstance(t, store.ProviderSQLite, projectDir, dataDir, nil)
	ctx := context.Background()

	stale := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := inst.status.Default("docs")
	rec.Status = status.Updating
	rec.LastIndexedUTC = &stale
	require.NoError(t, inst.status.Write(ctx, rec))

	// When: the next update runs
	require.NoError(t, inst.orch.Update(ctx, "docs"))

	// Then: it finishes idle with a newer cutoff
	got, err := inst.status.Load(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, status.Idle, got.Status)
	require.NotNil(t, got.LastIndexedUTC)
	assert.True(t, got.LastIndexedUTC.After(stale))
}
