package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	bolt "go.etcd.io/bbolt"
)

const (
	// CodeTokenizerName is the bleve registry name of the code tokenizer.
	CodeTokenizerName = "code_tokenizer"

	// CodeStopFilterName is the bleve registry name of the stop word filter.
	CodeStopFilterName = "code_stop"

	// CodeAnalyzerName is the default analyzer of every bleve index.
	CodeAnalyzerName = "code_analyzer"

	// DefaultOpenTimeout bounds the wait for another process's bolt lock.
	DefaultOpenTimeout = 2 * time.Second

	bleveExt = ".bleve"
)

func init() {
	_ = registry.RegisterTokenizer(CodeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(CodeStopFilterName, codeStopFilterConstructor)
}

// BleveProvider stores one bleve index directory per name under dir.
//
// Every name maps to a single bleveIndex for the life of the provider, so
// the underlying bolt file is never opened twice by one process. A handle
// is opened on first use and held until Release, so other processes can
// open the index between builds and reads. bolt allows one open handle per
// file across processes; an open that cannot get the file within the
// timeout fails with ErrBusy.
type BleveProvider struct {
	dir         string
	openTimeout time.Duration

	mu      sync.Mutex
	indexes map[string]*bleveIndex
	closed  bool
}

// NewBleveProvider creates a provider rooted at dir. openTimeout <= 0 uses
// DefaultOpenTimeout.
func NewBleveProvider(dir string, openTimeout time.Duration) *BleveProvider {
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}
	return &BleveProvider{
		dir:         dir,
		openTimeout: openTimeout,
		indexes:     make(map[string]*bleveIndex),
	}
}

// Name implements Provider.
func (p *BleveProvider) Name() string { return "bleve" }

// Open implements Provider. The index is not created until
// CreateIfNotExists is called.
func (p *BleveProvider) Open(name string) (Index, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	b, ok := p.indexes[name]
	if !ok {
		b = &bleveIndex{
			name:    name,
			path:    filepath.Join(p.dir, name+bleveExt),
			timeout: p.openTimeout,
		}
		p.indexes[name] = b
	}
	return b, nil
}

// Close closes every open index.
func (p *BleveProvider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	all := make([]*bleveIndex, 0, len(p.indexes))
	for _, b := range p.indexes {
		all = append(all, b)
	}
	p.mu.Unlock()

	var errs []error
	for _, b := range all {
		if err := b.Release(); err != nil {
			errs = append(errs, err)
		}
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
	}
	return errors.Join(errs...)
}

type bleveIndex struct {
	name    string
	path    string
	timeout time.Duration

	mu     sync.Mutex
	idx    bleve.Index
	closed bool
}

func (b *bleveIndex) NewDocument(id string) *Document {
	return DefaultFactory.NewDocument(id)
}

func (b *bleveIndex) Exists(_ context.Context) (bool, error) {
	return dirExists(b.path), nil
}

func (b *bleveIndex) CreateIfNotExists(_ context.Context) error {
	return b.with(true, func(bleve.Index) error { return nil })
}

func (b *bleveIndex) Delete(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.idx != nil {
		if err := b.idx.Close(); err != nil {
			return fmt.Errorf("failed to close index before delete: %w", err)
		}
		b.idx = nil
	}
	if err := os.RemoveAll(b.path); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", b.path, err)
	}
	return nil
}

func (b *bleveIndex) DeleteDocuments(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := b.with(false, func(idx bleve.Index) error {
		batch := idx.NewBatch()
		for _, id := range ids {
			batch.Delete(id)
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrNotExist) {
		return nil
	}
	return err
}

func (b *bleveIndex) SaveDocuments(_ context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	return b.with(false, func(idx bleve.Index) error {
		batch := idx.NewBatch()
		for _, doc := range docs {
			if err := batch.Index(doc.ID, doc.Fields); err != nil {
				return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
			}
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to execute batch: %w", err)
		}
		return nil
	})
}

func (b *bleveIndex) DocumentCount(_ context.Context) (int, error) {
	var count uint64
	err := b.with(false, func(idx bleve.Index) error {
		n, err := idx.DocCount()
		count = n
		return err
	})
	if errors.Is(err, ErrNotExist) {
		return 0, nil
	}
	return int(count), err
}

func (b *bleveIndex) Fields(_ context.Context) ([]string, error) {
	var fields []string
	err := b.with(false, func(idx bleve.Index) error {
		all, err := idx.Fields()
		if err != nil {
			return err
		}
		for _, f := range all {
			// _all and _id are bleve bookkeeping
			if !strings.HasPrefix(f, "_") {
				fields = append(fields, f)
			}
		}
		return nil
	})
	if errors.Is(err, ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	slices.Sort(fields)
	return fields, nil
}

// with runs fn against an open handle, opening (and with create, creating)
// the index as needed. The handle stays open until Release.
func (b *bleveIndex) with(create bool, fn func(bleve.Index) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.idx == nil {
		idx, err := b.openLocked(create)
		if err != nil {
			return err
		}
		b.idx = idx
	}
	return fn(b.idx)
}

func (b *bleveIndex) openLocked(create bool) (bleve.Index, error) {
	if !dirExists(b.path) {
		if !create {
			return nil, ErrNotExist
		}
		return b.createLocked()
	}

	if err := validateIndexIntegrity(b.path); err != nil {
		slog.Warn("bleve_index_corrupted",
			slog.String("path", b.path),
			slog.String("error", err.Error()))
		if err := os.RemoveAll(b.path); err != nil {
			return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w", b.path, err)
		}
		slog.Info("bleve_index_cleared",
			slog.String("path", b.path),
			slog.String("reason", "corruption detected, rebuild required"))
		if !create {
			return nil, ErrNotExist
		}
		return b.createLocked()
	}

	idx, err := bleve.OpenUsing(b.path, b.runtimeConfig())
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, b.path)
	}
	if err != nil && isCorruptionError(err) {
		slog.Warn("bleve_index_open_failed",
			slog.String("path", b.path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(b.path); rmErr != nil {
			return nil, fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", rmErr, err)
		}
		if !create {
			return nil, ErrNotExist
		}
		return b.createLocked()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", b.path, err)
	}
	return idx, nil
}

func (b *bleveIndex) createLocked() (bleve.Index, error) {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	m, err := newIndexMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewUsing(b.path, m, bleve.Config.DefaultIndexType, bleve.Config.DefaultKVStore, b.runtimeConfig())
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, b.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create index %s: %w", b.path, err)
	}
	return idx, nil
}

func (b *bleveIndex) runtimeConfig() map[string]any {
	return map[string]any{"bolt_timeout": b.timeout.String()}
}

// Release closes the handle but keeps the index usable; the next call
// reopens it.
func (b *bleveIndex) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.idx == nil {
		return nil
	}
	err := b.idx.Close()
	b.idx = nil
	return err
}

func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(CodeAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": CodeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			CodeStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add code analyzer: %w", err)
	}
	m.DefaultAnalyzer = CodeAnalyzerName
	return m, nil
}

// validateIndexIntegrity reports a corrupt index directory. A missing
// directory is not corrupt.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

func codeTokenizerConstructor(_ map[string]any, _ *registry.Cache) (analysis.Tokenizer, error) {
	return &codeTokenizer{}, nil
}

// codeTokenizer feeds TokenizeCode output to bleve with byte offsets into
// the original input.
type codeTokenizer struct{}

func (t *codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lower := strings.ToLower(text)
	tokens := TokenizeCode(text)

	stream := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, tok := range tokens {
		start := strings.Index(lower[offset:], tok)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := min(start+len(tok), len(text))

		stream = append(stream, &analysis.Token{
			Term:     []byte(tok),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		offset = end
	}
	return stream
}

func codeStopFilterConstructor(_ map[string]any, _ *registry.Cache) (analysis.TokenFilter, error) {
	return &codeStopFilter{stopWords: BuildStopWordMap(DefaultCodeStopWords)}, nil
}

type codeStopFilter struct {
	stopWords map[string]struct{}
}

func (f *codeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, tok := range input {
		if _, stop := f.stopWords[strings.ToLower(string(tok.Term))]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

var _ Index = (*bleveIndex)(nil)
