// Package collector defines how documents reach an index: a collector
// produces a lazy, finite sequence of segments, each a bounded batch of
// index and delete operations.
package collector

import (
	"context"
	"iter"
	"time"

	"github.com/Aman-CERP/amanindex/internal/store"
)

// OperationType says what to do with an operation's document.
type OperationType int

const (
	// Index adds or replaces the document.
	Index OperationType = iota
	// Delete removes the document by id.
	Delete
)

func (t OperationType) String() string {
	switch t {
	case Index:
		return "index"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is one change to apply to an index.
type Operation struct {
	Type     OperationType
	Document *store.Document
}

// IndexOp returns an Index operation for doc.
func IndexOp(doc *store.Document) Operation {
	return Operation{Type: Index, Document: doc}
}

// DeleteOp returns a Delete operation for doc.
func DeleteOp(doc *store.Document) Operation {
	return Operation{Type: Delete, Document: doc}
}

// Segment is one in-memory batch. Segments are applied in the order they
// are produced and dropped once applied.
type Segment []Operation

// Split returns the ids of the segment's deletes and the documents of its
// index operations, each in segment order.
func (s Segment) Split() (deletes []string, adds []*store.Document) {
	for _, op := range s {
		if op.Document == nil {
			continue
		}
		switch op.Type {
		case Delete:
			deletes = append(deletes, op.Document.ID)
		case Index:
			adds = append(adds, op.Document)
		}
	}
	return deletes, adds
}

// Collector produces the changes for one scope.
type Collector interface {
	// Name is the scope the collector feeds.
	Name() string

	// Collect returns the changes since the given time, or everything
	// when since is nil. Each call returns a fresh sequence. An error
	// is yielded as (nil, err) and ends the sequence. Documents are
	// created through factory.
	Collect(ctx context.Context, since *time.Time, factory store.DocumentFactory) iter.Seq2[Segment, error]
}

// CollectFunc is the signature of FuncCollector's function.
type CollectFunc func(ctx context.Context, since *time.Time, factory store.DocumentFactory) iter.Seq2[Segment, error]

// FuncCollector adapts a function to Collector.
type FuncCollector struct {
	Scope string
	Fn    CollectFunc
}

// NewFuncCollector returns a collector for scope backed by fn.
func NewFuncCollector(scope string, fn CollectFunc) *FuncCollector {
	return &FuncCollector{Scope: scope, Fn: fn}
}

// Name implements Collector.
func (c *FuncCollector) Name() string { return c.Scope }

// Collect implements Collector.
func (c *FuncCollector) Collect(ctx context.Context, since *time.Time, factory store.DocumentFactory) iter.Seq2[Segment, error] {
	return c.Fn(ctx, since, factory)
}

// Segments returns a sequence over fixed segments.
func Segments(segments ...Segment) iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		for _, s := range segments {
			if !yield(s, nil) {
				return
			}
		}
	}
}

// Failing returns a sequence that yields the given segments and then err.
func Failing(err error, segments ...Segment) iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		for _, s := range segments {
			if !yield(s, nil) {
				return
			}
		}
		yield(nil, err)
	}
}
