// Package store is the write side of a per-scope search index: existence,
// creation, whole-index deletion, document upserts and deletes, and live
// introspection (document count, field names).
package store

import (
	"context"
	"errors"
	"maps"
	"slices"
)

// ErrClosed is returned by operations on a closed provider or index.
var ErrClosed = errors.New("store: closed")

// ErrNotExist is returned when writing to an index that has not been created.
var ErrNotExist = errors.New("store: index does not exist")

// ErrBusy is returned when another process holds the index open past the
// provider's open timeout.
var ErrBusy = errors.New("store: index in use by another process")

// Document is one indexable record. Fields hold scalar values (string,
// numbers, bool, time.Time); the store decides how to analyze them.
type Document struct {
	ID     string
	Fields map[string]any
}

// Set assigns a field value and returns d for chaining.
func (d *Document) Set(name string, value any) *Document {
	if d.Fields == nil {
		d.Fields = make(map[string]any)
	}
	d.Fields[name] = value
	return d
}

// Get returns a field value.
func (d *Document) Get(name string) (any, bool) {
	v, ok := d.Fields[name]
	return v, ok
}

// FieldNames returns the document's field names in sorted order.
func (d *Document) FieldNames() []string {
	return slices.Sorted(maps.Keys(d.Fields))
}

// DocumentFactory creates empty documents in the shape a store expects.
type DocumentFactory interface {
	NewDocument(id string) *Document
}

// DocumentFactoryFunc adapts a function to DocumentFactory.
type DocumentFactoryFunc func(id string) *Document

// NewDocument implements DocumentFactory.
func (f DocumentFactoryFunc) NewDocument(id string) *Document { return f(id) }

// DefaultFactory builds plain documents with an empty field map.
var DefaultFactory DocumentFactory = DocumentFactoryFunc(func(id string) *Document {
	return &Document{ID: id, Fields: make(map[string]any)}
})

// Index is the write-side view of one scope's index.
type Index interface {
	DocumentFactory

	// Exists reports whether the index has been created.
	Exists(ctx context.Context) (bool, error)

	// CreateIfNotExists creates an empty index when none exists.
	CreateIfNotExists(ctx context.Context) error

	// Delete removes the whole index. Deleting a missing index is a no-op.
	Delete(ctx context.Context) error

	// DeleteDocuments removes documents by id. Unknown ids are ignored.
	DeleteDocuments(ctx context.Context, ids []string) error

	// SaveDocuments upserts documents by id.
	SaveDocuments(ctx context.Context, docs []*Document) error

	// DocumentCount returns the live number of documents. A missing index
	// has zero documents.
	DocumentCount(ctx context.Context) (int, error)

	// Fields returns the sorted names of all fields present in the index.
	Fields(ctx context.Context) ([]string, error)

	// Release closes any OS handles held for the index. The index stays
	// usable and reopens on the next call.
	Release() error
}

// Provider opens indexes by name. Names are filesystem-safe identifiers
// derived from the scope and environment.
type Provider interface {
	Name() string
	Open(name string) (Index, error)
	Close() error
}

// DefaultCodeStopWords are programming keywords dropped by the code analyzer.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}
