// Package index runs index builds: full rebuilds and incremental updates of
// a scope's index store, fed by the scope's collector and guarded by a
// per-scope lock and status record.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amanindex/internal/collector"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/lock"
	"github.com/Aman-CERP/amanindex/internal/status"
	"github.com/Aman-CERP/amanindex/internal/store"
)

// Mode selects how a build treats the existing index.
type Mode string

const (
	// ModeRebuild drops the index and collects every document.
	ModeRebuild Mode = "rebuild"
	// ModeUpdate keeps the index and collects changes since the last build.
	ModeUpdate Mode = "update"
)

func (m Mode) inProgress() status.Status {
	if m == ModeRebuild {
		return status.Rebuilding
	}
	return status.Updating
}

// SegmentFunc observes build progress. It is called after each segment is
// applied with the 1-based segment number and the number of operations
// applied from it.
type SegmentFunc func(scope string, segment, applied int)

// Options configures an Orchestrator.
type Options struct {
	// Provider opens index stores. Nil disables every build operation.
	Provider store.Provider

	// Collectors resolves the collector for a scope (required).
	Collectors *collector.Registry

	// Locks guards each scope against concurrent builds (required).
	Locks lock.Coordinator

	// Status persists the per-scope status record (required).
	Status *status.Store

	// Environment defaults to the status store's environment.
	Environment string

	// Clock defaults to time.Now.
	Clock func() time.Time

	OnSegment SegmentFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Orchestrator coordinates builds across scopes. It is safe for concurrent
// use; calls for the same scope are serialized by the lock coordinator and
// calls for different scopes proceed independently.
type Orchestrator struct {
	provider   store.Provider
	collectors *collector.Registry
	locks      lock.Coordinator
	status     *status.Store
	env        string
	clock      func() time.Time
	onSegment  SegmentFunc
	logger     *slog.Logger
}

// NewOrchestrator validates opts and returns an Orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Collectors == nil {
		return nil, amerrors.ValidationError("collector registry is required", nil)
	}
	if opts.Locks == nil {
		return nil, amerrors.ValidationError("lock coordinator is required", nil)
	}
	if opts.Status == nil {
		return nil, amerrors.ValidationError("status store is required", nil)
	}

	env := opts.Environment
	if env == "" {
		env = opts.Status.Environment()
	}
	if env != opts.Status.Environment() {
		return nil, amerrors.ValidationError(
			fmt.Sprintf("environment %q does not match status store environment %q", env, opts.Status.Environment()), nil)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		provider:   opts.Provider,
		collectors: opts.Collectors,
		locks:      opts.Locks,
		status:     opts.Status,
		env:        env,
		clock:      clock,
		onSegment:  opts.OnSegment,
		logger:     logger,
	}, nil
}

// Enabled reports whether an index store provider is configured.
func (o *Orchestrator) Enabled() bool {
	return o.provider != nil
}

// Scopes returns every registered scope name.
func (o *Orchestrator) Scopes() []string {
	return o.collectors.Scopes()
}

// Rebuild drops the scope's index and repopulates it from every document
// the collector yields.
func (o *Orchestrator) Rebuild(ctx context.Context, scope string) error {
	return o.build(ctx, scope, ModeRebuild)
}

// Update applies the changes the collector reports since the scope's last
// build. A scope that was never built is collected in full.
func (o *Orchestrator) Update(ctx context.Context, scope string) error {
	return o.build(ctx, scope, ModeUpdate)
}

// DeleteIndex removes the scope's index store under the scope's lock. The
// status record is left untouched. Deleting a missing index is a no-op.
func (o *Orchestrator) DeleteIndex(ctx context.Context, scope string) error {
	if o.provider == nil {
		o.logger.Debug("index_provider_disabled", slog.String("scope", scope), slog.String("op", "delete"))
		return nil
	}
	scope = o.canonical(scope)
	if scope == "" {
		return amerrors.New(amerrors.ErrCodeInvalidScope, "scope is required", nil)
	}

	handle, err := o.acquire(scope)
	if err != nil {
		return err
	}
	defer o.release(handle, scope)

	idx, err := o.open(scope)
	if err != nil {
		return err
	}
	defer o.releaseIndex(idx, scope)

	exists, err := idx.Exists(ctx)
	if err != nil {
		return storeFailed(scope, err)
	}
	if !exists {
		return nil
	}
	if err := idx.Delete(ctx); err != nil {
		return storeFailed(scope, err)
	}

	o.logger.Info("index_deleted", slog.String("scope", scope), slog.String("environment", o.env))
	return nil
}

// IndexInfo returns the scope's status record overlaid with live document
// count and fields. It does not take the scope's lock, so a build in
// progress is reported as such. When another process holds the index open
// the live facts are skipped and the result is marked Busy.
func (o *Orchestrator) IndexInfo(ctx context.Context, scope string) (status.IndexInfo, error) {
	scope = o.canonical(scope)
	if scope == "" {
		return status.IndexInfo{}, amerrors.New(amerrors.ErrCodeInvalidScope, "scope is required", nil)
	}
	if o.provider == nil {
		return o.status.Read(ctx, scope, nil)
	}
	idx, err := o.open(scope)
	if err != nil {
		return status.IndexInfo{}, err
	}
	defer o.releaseIndex(idx, scope)

	return o.status.Read(ctx, scope, idx)
}

// build runs one rebuild or update. The named return lets the deferred
// finalize surface its own failure when the build itself succeeded.
func (o *Orchestrator) build(ctx context.Context, scope string, mode Mode) (err error) {
	if o.provider == nil {
		o.logger.Debug("index_provider_disabled", slog.String("scope", scope), slog.String("op", string(mode)))
		return nil
	}

	c, ok := o.collectors.Lookup(scope)
	if !ok {
		return amerrors.CollectorNotFound(scope)
	}
	scope = c.Name()

	handle, err := o.acquire(scope)
	if err != nil {
		return err
	}
	defer o.release(handle, scope)

	logger := o.logger.With(
		slog.String("run_id", uuid.NewString()),
		slog.String("scope", scope),
		slog.String("mode", string(mode)))

	idx, err := o.open(scope)
	if err != nil {
		return err
	}
	defer o.releaseIndex(idx, scope)

	rec, err := o.status.Load(ctx, scope)
	if err != nil {
		return err
	}
	exists, err := idx.Exists(ctx)
	if err != nil {
		return storeFailed(scope, err)
	}
	startedOn := o.clock().UTC()

	// An update against a missing store collects everything, so a deleted
	// index comes back whole instead of holding only recent changes.
	var cutoff *time.Time
	if mode == ModeUpdate && rec.LastIndexedUTC != nil {
		if exists {
			t := *rec.LastIndexedUTC
			cutoff = &t
		} else {
			logger.Info("index_missing_full_collect", slog.Time("last_indexed_utc", *rec.LastIndexedUTC))
		}
	}

	rec.Status = mode.inProgress()
	if err := o.status.Write(ctx, rec); err != nil {
		return err
	}

	logger.Info("index_build_started", slog.Any("cutoff", cutoff))

	stats := buildStats{}
	defer func() {
		rec.Status = status.Idle
		rec.LastIndexedUTC = &startedOn
		// The record must return to idle even when ctx was cancelled.
		fctx := context.WithoutCancel(ctx)
		if ferr := o.status.Write(fctx, rec); ferr != nil {
			logger.LogAttrs(fctx, slog.LevelError, "index_status_finalize_failed", amerrors.LogAttrs(ferr)...)
			if err == nil {
				err = ferr
			}
		}

		attrs := []slog.Attr{
			slog.Int("segments", stats.segments),
			slog.Int("indexed", stats.indexed),
			slog.Int("deleted", stats.deleted),
			slog.Int64("duration_ms", o.clock().Sub(startedOn).Milliseconds()),
		}
		if err != nil {
			logger.LogAttrs(fctx, slog.LevelError, "index_build_failed", append(attrs, amerrors.LogAttrs(err)...)...)
			return
		}
		logger.LogAttrs(fctx, slog.LevelInfo, "index_build_completed", attrs...)
	}()

	if err := prepare(ctx, idx, mode, exists); err != nil {
		return storeFailed(scope, err)
	}

	return o.apply(ctx, logger, scope, mode, c.Collect(ctx, cutoff, idx), idx, &stats)
}

type buildStats struct {
	segments int
	indexed  int
	deleted  int
}

// prepare leaves an empty index for a rebuild and an existing one for an
// update.
func prepare(ctx context.Context, idx store.Index, mode Mode, exists bool) error {
	if mode == ModeRebuild && exists {
		if err := idx.Delete(ctx); err != nil {
			return err
		}
	}
	return idx.CreateIfNotExists(ctx)
}

// storeFailed classifies a store error. An index held open by another
// process is retryable; anything else is a write failure.
func storeFailed(scope string, err error) *amerrors.AmanError {
	if errors.Is(err, store.ErrBusy) {
		return amerrors.StoreBusy(scope, err)
	}
	return amerrors.StoreWriteFailed(scope, err)
}

func (o *Orchestrator) open(scope string) (store.Index, error) {
	idx, err := o.provider.Open(status.Key(scope, o.env))
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeIndexFailed, fmt.Sprintf("failed to open index %q", scope), err).
			WithDetail("scope", scope).
			WithDetail("provider", o.provider.Name())
	}
	return idx, nil
}

func (o *Orchestrator) acquire(scope string) (*lock.Handle, error) {
	handle, err := o.locks.TryAcquire(status.LockKey(scope, o.env))
	if err != nil {
		return nil, err
	}
	if !handle.Acquired() {
		o.logger.Warn("index_busy", slog.String("scope", scope), slog.String("environment", o.env))
		return nil, amerrors.IndexBusy(scope)
	}
	return handle, nil
}

func (o *Orchestrator) releaseIndex(idx store.Index, scope string) {
	if err := idx.Release(); err != nil {
		o.logger.Warn("index_release_failed",
			slog.String("scope", scope),
			slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) release(h *lock.Handle, scope string) {
	if err := h.Release(); err != nil {
		o.logger.Warn("index_lock_release_failed",
			slog.String("scope", scope),
			slog.String("error", err.Error()))
	}
}

// canonical maps scope to the registered collector's spelling so that
// case variants share one lock and one status record.
func (o *Orchestrator) canonical(scope string) string {
	if c, ok := o.collectors.Lookup(scope); ok {
		return c.Name()
	}
	return scope
}

func cancelled(scope string, err error) error {
	return amerrors.New(amerrors.ErrCodeBuildCancelled, fmt.Sprintf("build of %q cancelled", scope), err).
		WithDetail("scope", scope)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
