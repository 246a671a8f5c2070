package store

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryProvider keeps indexes in process memory. Contents are lost on
// exit; it exists for tests and for embedding the orchestrator.
type MemoryProvider struct {
	mu      sync.Mutex
	indexes map[string]*MemoryIndex
	closed  bool
}

// NewMemoryProvider returns an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{indexes: make(map[string]*MemoryIndex)}
}

// Name implements Provider.
func (p *MemoryProvider) Name() string { return "memory" }

// Open implements Provider. The same name always yields the same index.
func (p *MemoryProvider) Open(name string) (Index, error) {
	return p.Index(name)
}

// Index is Open with the concrete type, for tests that seed or inspect
// contents directly.
func (p *MemoryProvider) Index(name string) (*MemoryIndex, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	idx, ok := p.indexes[name]
	if !ok {
		idx = &MemoryIndex{}
		p.indexes[name] = idx
	}
	return idx, nil
}

// Close implements Provider.
func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// MemoryIndex is a map-backed Index.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]*Document // nil when the index does not exist
}

// NewDocument implements DocumentFactory.
func (m *MemoryIndex) NewDocument(id string) *Document {
	return DefaultFactory.NewDocument(id)
}

// Exists implements Index.
func (m *MemoryIndex) Exists(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docs != nil, nil
}

// CreateIfNotExists implements Index.
func (m *MemoryIndex) CreateIfNotExists(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = make(map[string]*Document)
	}
	return nil
}

// Delete implements Index.
func (m *MemoryIndex) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = nil
	return nil
}

// DeleteDocuments implements Index.
func (m *MemoryIndex) DeleteDocuments(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

// SaveDocuments implements Index. Documents are copied so later mutation
// by the caller does not leak into the index.
func (m *MemoryIndex) SaveDocuments(_ context.Context, docs []*Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		return ErrNotExist
	}
	for _, d := range docs {
		m.docs[d.ID] = &Document{ID: d.ID, Fields: maps.Clone(d.Fields)}
	}
	return nil
}

// DocumentCount implements Index.
func (m *MemoryIndex) DocumentCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

// Fields implements Index.
func (m *MemoryIndex) Fields(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]struct{})
	for _, d := range m.docs {
		for name := range d.Fields {
			set[name] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set)), nil
}

// Release implements Index. Memory indexes hold no OS handles.
func (m *MemoryIndex) Release() error { return nil }

// IDs returns the stored document ids in sorted order.
func (m *MemoryIndex) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.docs))
}

// Get returns a stored document.
func (m *MemoryIndex) Get(id string) (*Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	return d, ok
}

var _ Index = (*MemoryIndex)(nil)
