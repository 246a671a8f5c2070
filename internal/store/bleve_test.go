package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBleveProvider_CreatesDirectoryPerName(t *testing.T) {
	dir := t.TempDir()
	p := NewBleveProvider(dir, 0)
	defer p.Close()

	idx, err := p.Open("dev.products-12345678")
	require.NoError(t, err)
	require.NoError(t, idx.CreateIfNotExists(context.Background()))

	info, err := os.Stat(filepath.Join(dir, "dev.products-12345678.bleve"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestBleveProvider_ReleaseLetsAnotherProviderOpen(t *testing.T) {
	// Given: two providers on one directory, the first holding a written index
	ctx := context.Background()
	dir := t.TempDir()
	writer := NewBleveProvider(dir, 200*time.Millisecond)
	defer writer.Close()
	reader := NewBleveProvider(dir, 200*time.Millisecond)
	defer reader.Close()

	w, err := writer.Open("shared")
	require.NoError(t, err)
	require.NoError(t, w.CreateIfNotExists(ctx))
	require.NoError(t, w.SaveDocuments(ctx, []*Document{doc(w, "a", "alpha")}))

	// When: the writer releases its handle
	require.NoError(t, w.Release())

	// Then: the second provider reads the index without waiting
	r, err := reader.Open("shared")
	require.NoError(t, err)
	count, err := r.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NoError(t, r.Release())

	// And: the writer reopens on its next call
	require.NoError(t, w.SaveDocuments(ctx, []*Document{doc(w, "b", "beta")}))
	count, err = w.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBleveProvider_HeldIndexReportsBusy(t *testing.T) {
	// Given: a provider holding an open handle on an index
	ctx := context.Background()
	dir := t.TempDir()
	holder := NewBleveProvider(dir, 200*time.Millisecond)
	defer holder.Close()
	other := NewBleveProvider(dir, 200*time.Millisecond)
	defer other.Close()

	h, err := holder.Open("held")
	require.NoError(t, err)
	require.NoError(t, h.CreateIfNotExists(ctx))
	require.NoError(t, h.SaveDocuments(ctx, []*Document{doc(h, "a", "alpha")}))

	// When: a second provider reads it
	o, err := other.Open("held")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := o.DocumentCount(ctx)
		done <- err
	}()

	// Then: the read gives up with ErrBusy instead of blocking
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrBusy)
	case <-time.After(5 * time.Second):
		t.Fatal("read blocked on a held index")
	}

	// And: the held index was not mistaken for a corrupt one
	exists, err := o.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, h.Release())
	count, err := o.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBleveProvider_ClearsCorruptIndex(t *testing.T) {
	// Given: an index directory with an empty index_meta.json
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.bleve")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), nil, 0o644))

	p := NewBleveProvider(dir, 0)
	defer p.Close()
	idx, err := p.Open("broken")
	require.NoError(t, err)

	// When: creating
	err = idx.CreateIfNotExists(context.Background())

	// Then: the directory is replaced by a usable empty index
	require.NoError(t, err)
	count, err := idx.DocumentCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBleveProvider_FieldsHideInternalFields(t *testing.T) {
	ctx := context.Background()
	p := NewBleveProvider(t.TempDir(), 0)
	defer p.Close()

	idx, err := p.Open("fields")
	require.NoError(t, err)
	require.NoError(t, idx.CreateIfNotExists(ctx))
	require.NoError(t, idx.SaveDocuments(ctx, []*Document{doc(idx, "a", "hello")}))

	fields, err := idx.Fields(ctx)
	require.NoError(t, err)
	for _, f := range fields {
		assert.NotEqual(t, "_all", f)
	}
	assert.Contains(t, fields, "content")
}

func TestBleveProvider_ManyBatches(t *testing.T) {
	ctx := context.Background()
	p := NewBleveProvider(t.TempDir(), 0)
	defer p.Close()

	idx, err := p.Open("batches")
	require.NoError(t, err)
	require.NoError(t, idx.CreateIfNotExists(ctx))

	for batch := range 5 {
		docs := make([]*Document, 0, 20)
		for i := range 20 {
			docs = append(docs, doc(idx, fmt.Sprintf("d%d-%d", batch, i), "content"))
		}
		require.NoError(t, idx.SaveDocuments(ctx, docs))
	}

	count, err := idx.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, count)
}

func TestValidateIndexIntegrity(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, validateIndexIntegrity(filepath.Join(dir, "missing")))

	noMeta := filepath.Join(dir, "nometa")
	require.NoError(t, os.MkdirAll(noMeta, 0o755))
	assert.Error(t, validateIndexIntegrity(noMeta))

	badJSON := filepath.Join(dir, "badjson")
	require.NoError(t, os.MkdirAll(badJSON, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(badJSON, "index_meta.json"), []byte("{"), 0o644))
	assert.Error(t, validateIndexIntegrity(badJSON))
}

func TestCodeTokenizer_Offsets(t *testing.T) {
	input := []byte("getUserById(ctx)")
	stream := (&codeTokenizer{}).Tokenize(input)

	require.NotEmpty(t, stream)
	assert.Equal(t, "get", string(stream[0].Term))
	for _, tok := range stream {
		assert.LessOrEqual(t, tok.End, len(input))
		assert.LessOrEqual(t, tok.Start, tok.End)
	}
}
