package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Aman-CERP/amanindex/internal/store"
)

const (
	// DefaultSegmentSize is the number of operations per segment.
	DefaultSegmentSize = 100

	// DefaultMaxFileSize is the largest file the collector indexes.
	DefaultMaxFileSize int64 = 10 * 1024 * 1024
)

// Document fields produced by FilesystemCollector.
const (
	FieldPath     = "path"
	FieldContent  = "content"
	FieldExt      = "ext"
	FieldSize     = "size"
	FieldModified = "modified"
)

// FilesystemOptions configures a FilesystemCollector.
type FilesystemOptions struct {
	// Scope is the collector's scope name.
	Scope string
	// Root is the directory to walk.
	Root string
	// Include limits collection to matching slash-separated relative
	// paths. Empty includes everything.
	Include []string
	// Exclude drops matching paths. Directories matching an exclude
	// pattern are not descended into.
	Exclude []string
	// NoGitignore disables .gitignore processing.
	NoGitignore bool
	// SegmentSize is the number of operations per segment.
	SegmentSize int
	// MaxFileSize skips larger files.
	MaxFileSize int64
	// ManifestPath is the bbolt file recording indexed files. Required
	// for delete detection; without it updates never emit deletes.
	ManifestPath string
}

// FilesystemCollector indexes the text files under a directory. Each file
// becomes one document whose id is its slash-separated path relative to
// the root.
type FilesystemCollector struct {
	opts FilesystemOptions
}

// NewFilesystemCollector validates opts and fills defaults.
func NewFilesystemCollector(opts FilesystemOptions) (*FilesystemCollector, error) {
	if strings.TrimSpace(opts.Scope) == "" {
		return nil, fmt.Errorf("filesystem collector needs a scope name")
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	abs, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", opts.Root, err)
	}
	opts.Root = abs
	if opts.SegmentSize <= 0 {
		opts.SegmentSize = DefaultSegmentSize
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	for _, p := range append(append([]string{}, opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("scope %s: invalid pattern %q", opts.Scope, p)
		}
	}
	return &FilesystemCollector{opts: opts}, nil
}

// Name implements Collector.
func (c *FilesystemCollector) Name() string { return c.opts.Scope }

// Root returns the absolute directory the collector walks.
func (c *FilesystemCollector) Root() string { return c.opts.Root }

// Collect implements Collector.
//
// With since == nil every file is emitted. Otherwise a file is emitted when
// its modification time is after since or it differs from the manifest,
// and files recorded in the manifest but gone from disk become deletes.
// Manifest changes for a segment are committed only after the consumer
// accepted it.
func (c *FilesystemCollector) Collect(ctx context.Context, since *time.Time, factory store.DocumentFactory) iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		info, err := os.Stat(c.opts.Root)
		if err != nil {
			yield(nil, fmt.Errorf("failed to stat root: %w", err))
			return
		}
		if !info.IsDir() {
			yield(nil, fmt.Errorf("root is not a directory: %s", c.opts.Root))
			return
		}

		var m *manifest
		if c.opts.ManifestPath != "" {
			m, err = openManifest(c.opts.ManifestPath)
			if err != nil {
				yield(nil, err)
				return
			}
			defer func() { _ = m.Close() }()
		}

		run := &collectRun{
			c:       c,
			ctx:     ctx,
			since:   since,
			factory: factory,
			yield:   yield,
			m:       m,
			seen:    make(map[string]struct{}),
			puts:    make(map[string]fileEntry),
		}
		if !c.opts.NoGitignore {
			run.ignore = newGitignore(c.opts.Root)
		}
		run.collect()
	}
}

// errStop ends the walk when the consumer stops iterating.
var errStop = errors.New("stop")

type collectRun struct {
	c       *FilesystemCollector
	ctx     context.Context
	since   *time.Time
	factory store.DocumentFactory
	yield   func(Segment, error) bool
	m       *manifest
	ignore  *gitignore

	seen    map[string]struct{}
	segment Segment
	puts    map[string]fileEntry
	removes []string
}

func (r *collectRun) collect() {
	err := filepath.WalkDir(r.c.opts.Root, r.visit)
	if errors.Is(err, errStop) {
		return
	}
	if err != nil {
		r.yield(nil, err)
		return
	}

	if r.m != nil {
		gone, err := r.m.missing(func(p string) bool {
			_, ok := r.seen[p]
			return ok
		})
		if err != nil {
			r.yield(nil, fmt.Errorf("failed to read manifest: %w", err))
			return
		}
		for _, p := range gone {
			// After a full collect the index was rebuilt without these
			// files, so they only need forgetting.
			if r.since != nil {
				r.segment = append(r.segment, DeleteOp(r.factory.NewDocument(p)))
			}
			r.removes = append(r.removes, p)
			if len(r.segment) >= r.c.opts.SegmentSize && !r.flush() {
				return
			}
		}
	}

	if len(r.segment) > 0 {
		r.flush()
		return
	}
	r.commit()
}

func (r *collectRun) visit(p string, d fs.DirEntry, err error) error {
	if ctxErr := r.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		slog.Debug("collector_skip_unreadable",
			slog.String("scope", r.c.opts.Scope),
			slog.String("path", p),
			slog.String("error", err.Error()))
		if d != nil && d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}

	rel, err := filepath.Rel(r.c.opts.Root, p)
	if err != nil || rel == "." {
		return nil
	}
	rel = filepath.ToSlash(rel)

	if d.IsDir() {
		if r.excluded(rel+"/") || r.excluded(rel) || (r.ignore != nil && r.ignore.ignored(rel, true)) {
			return filepath.SkipDir
		}
		return nil
	}
	if !d.Type().IsRegular() {
		return nil
	}
	if !r.included(rel) || r.excluded(rel) || (r.ignore != nil && r.ignore.ignored(rel, false)) {
		return nil
	}

	info, err := d.Info()
	if err != nil || info.Size() > r.c.opts.MaxFileSize {
		return nil
	}

	entry := fileEntry{ModTime: info.ModTime().UnixNano(), Size: info.Size()}
	if !r.changed(rel, info.ModTime(), entry) {
		r.seen[rel] = struct{}{}
		return nil
	}

	content, binary, err := readText(p)
	if err != nil || binary {
		return nil
	}
	r.seen[rel] = struct{}{}

	doc := r.factory.NewDocument(rel).
		Set(FieldPath, rel).
		Set(FieldContent, content).
		Set(FieldExt, strings.TrimPrefix(path.Ext(rel), ".")).
		Set(FieldSize, info.Size()).
		Set(FieldModified, info.ModTime().UTC())
	r.segment = append(r.segment, IndexOp(doc))
	r.puts[rel] = entry

	if len(r.segment) >= r.c.opts.SegmentSize && !r.flush() {
		return errStop
	}
	return nil
}

func (r *collectRun) changed(rel string, mod time.Time, entry fileEntry) bool {
	if r.since == nil || mod.After(*r.since) {
		return true
	}
	if r.m == nil {
		return false
	}
	prev, ok := r.m.get(rel)
	return !ok || prev != entry
}

// flush hands the pending segment to the consumer and, if accepted,
// commits the matching manifest changes.
func (r *collectRun) flush() bool {
	seg := r.segment
	r.segment = nil
	if !r.yield(seg, nil) {
		return false
	}
	return r.commit()
}

func (r *collectRun) commit() bool {
	if r.m != nil {
		if err := r.m.apply(r.puts, r.removes); err != nil {
			r.yield(nil, fmt.Errorf("failed to update manifest: %w", err))
			return false
		}
	}
	r.puts = make(map[string]fileEntry)
	r.removes = nil
	return true
}

func (r *collectRun) included(rel string) bool {
	if len(r.c.opts.Include) == 0 {
		return true
	}
	return matchAny(r.c.opts.Include, rel)
}

func (r *collectRun) excluded(rel string) bool {
	return matchAny(r.c.opts.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// readText reads a file, reporting binary content (a NUL byte in the
// first 512 bytes) without returning it.
func readText(p string) (string, bool, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", false, err
	}
	if bytes.IndexByte(data[:min(len(data), 512)], 0) >= 0 {
		return "", true, nil
	}
	return string(data), false, nil
}
