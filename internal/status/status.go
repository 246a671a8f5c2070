// Package status persists one small record per index scope: whether a
// build is running, and when the last build started. Reads overlay live
// facts from the index store on top of the persisted record.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/store"
)

// Status is the lifecycle state of a scope's index.
type Status string

const (
	// Idle is the steady state, both before the first build and after every build.
	Idle Status = "idle"

	// Rebuilding is persisted while a full rebuild runs.
	Rebuilding Status = "rebuilding"

	// Updating is persisted while an incremental update runs.
	Updating Status = "updating"

	// Unavailable is derived on read when the index does not exist.
	// It is never written.
	Unavailable Status = "unavailable"
)

// Valid reports whether s may appear in a persisted record.
func (s Status) Valid() bool {
	switch s {
	case Idle, Rebuilding, Updating:
		return true
	}
	return false
}

// InProgress reports whether s marks a running build.
func (s Status) InProgress() bool {
	return s == Rebuilding || s == Updating
}

// Record is the persisted part of a scope's status.
type Record struct {
	Scope          string     `json:"scope"`
	Status         Status     `json:"status"`
	LastIndexedUTC *time.Time `json:"last_indexed_utc,omitempty"`
	Environment    string     `json:"environment"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IndexInfo is a Record plus facts read from the live index. DocumentCount
// and Fields are never persisted.
type IndexInfo struct {
	Record
	DocumentCount int      `json:"document_count"`
	Fields        []string `json:"fields"`

	// Busy is set when another process held the index open, so
	// DocumentCount and Fields could not be read.
	Busy bool `json:"busy,omitempty"`
}

// Live is the read-only slice of an index that status reads consult.
type Live interface {
	Exists(ctx context.Context) (bool, error)
	DocumentCount(ctx context.Context) (int, error)
	Fields(ctx context.Context) ([]string, error)
}

// Store reads and writes status records for one environment.
type Store struct {
	backend     Backend
	environment string
	now         func() time.Time
}

// NewStore creates a store over backend for environment.
func NewStore(backend Backend, environment string) *Store {
	return &Store{
		backend:     backend,
		environment: environment,
		now:         time.Now,
	}
}

// Environment returns the environment identifier used in keys.
func (s *Store) Environment() string {
	return s.environment
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Default returns the record of a scope that has never been built.
func (s *Store) Default(scope string) Record {
	return Record{
		Scope:       scope,
		Status:      Idle,
		Environment: s.environment,
	}
}

// Load returns the persisted record for scope, or Default when none exists.
// A record that cannot be decoded is logged and treated as absent, so the
// next build overwrites it.
func (s *Store) Load(ctx context.Context, scope string) (Record, error) {
	key := Key(scope, s.environment)

	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return s.Default(scope), nil
	}
	if err != nil {
		if amerrors.GetCode(err) != "" {
			return Record{}, err
		}
		return Record{}, amerrors.IOError("failed to read status for "+scope, err).
			WithDetail("scope", scope).
			WithDetail("key", key)
	}

	rec, err := decode(data)
	if err != nil {
		corrupt := amerrors.New(amerrors.ErrCodeStatusCorrupt, "status record for "+scope+" is corrupt", err).
			WithDetail("scope", scope).
			WithDetail("key", key)
		slog.LogAttrs(ctx, slog.LevelWarn, "status_record_corrupt", amerrors.LogAttrs(corrupt)...)
		return s.Default(scope), nil
	}
	rec.Scope = scope
	return rec, nil
}

// Read returns the status of scope as a monitoring snapshot. live may be
// nil when no index store is configured; the scope is then unavailable.
func (s *Store) Read(ctx context.Context, scope string, live Live) (IndexInfo, error) {
	rec, err := s.Load(ctx, scope)
	if err != nil {
		return IndexInfo{}, err
	}
	info := IndexInfo{Record: rec, Fields: []string{}}

	if live == nil {
		info.Status = Unavailable
		return info, nil
	}

	exists, err := live.Exists(ctx)
	if err != nil {
		return IndexInfo{}, fmt.Errorf("failed to check index for %s: %w", scope, err)
	}
	if !exists {
		info.Status = Unavailable
		return info, nil
	}

	count, err := live.DocumentCount(ctx)
	if errors.Is(err, store.ErrBusy) {
		return s.busy(ctx, info, err), nil
	}
	if err != nil {
		return IndexInfo{}, fmt.Errorf("failed to count documents for %s: %w", scope, err)
	}
	fields, err := live.Fields(ctx)
	if errors.Is(err, store.ErrBusy) {
		return s.busy(ctx, info, err), nil
	}
	if err != nil {
		return IndexInfo{}, fmt.Errorf("failed to list fields for %s: %w", scope, err)
	}
	info.DocumentCount = count
	if fields != nil {
		info.Fields = fields
	}
	return info, nil
}

// busy reports the persisted record alone when the live index is held by
// another process. Readers never wait for a build to finish.
func (s *Store) busy(ctx context.Context, info IndexInfo, cause error) IndexInfo {
	slog.LogAttrs(ctx, slog.LevelDebug, "index_live_read_skipped",
		slog.String("scope", info.Scope),
		slog.String("error", cause.Error()))
	info.DocumentCount = 0
	info.Fields = []string{}
	info.Busy = true
	return info
}

// Write replaces the persisted record for rec.Scope. Environment and
// UpdatedAt are stamped by the store.
func (s *Store) Write(ctx context.Context, rec Record) error {
	if rec.Scope == "" {
		return amerrors.New(amerrors.ErrCodeInvalidScope, "status record has no scope", nil)
	}
	if !rec.Status.Valid() {
		return amerrors.New(amerrors.ErrCodeInvalidInput,
			fmt.Sprintf("status %q cannot be persisted", rec.Status), nil).
			WithDetail("scope", rec.Scope)
	}

	rec.Environment = s.environment
	rec.UpdatedAt = s.now().UTC()
	if rec.LastIndexedUTC != nil {
		t := rec.LastIndexedUTC.UTC()
		rec.LastIndexedUTC = &t
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return amerrors.InternalError("failed to encode status", err)
	}

	key := Key(rec.Scope, s.environment)
	if err := s.backend.Put(ctx, key, data); err != nil {
		if amerrors.GetCode(err) != "" {
			return err
		}
		return amerrors.New(amerrors.ErrCodeFilePermission, "failed to write status for "+rec.Scope, err).
			WithDetail("scope", rec.Scope).
			WithDetail("key", key)
	}
	return nil
}

func decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	if !rec.Status.Valid() {
		return Record{}, fmt.Errorf("invalid status %q", rec.Status)
	}
	return rec, nil
}
