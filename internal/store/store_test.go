package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// providers returns a fresh instance of every provider, each in its own
// temp directory.
func providers(t *testing.T) map[string]Provider {
	t.Helper()

	ps := map[string]Provider{
		"bleve":  NewBleveProvider(t.TempDir(), 0),
		"sqlite": NewSQLiteProvider(t.TempDir()),
		"memory": NewMemoryProvider(),
	}
	for _, p := range ps {
		t.Cleanup(func() { _ = p.Close() })
	}
	return ps
}

func doc(f DocumentFactory, id, content string) *Document {
	return f.NewDocument(id).
		Set("path", id).
		Set("content", content).
		Set("size", int64(len(content)))
}

func TestIndexContract(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			idx, err := p.Open("test.products-0a1b2c3d")
			require.NoError(t, err)

			// Given: a fresh index name
			exists, err := idx.Exists(ctx)
			require.NoError(t, err)
			assert.False(t, exists, "nothing created yet")

			count, err := idx.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Zero(t, count, "missing index has no documents")

			fields, err := idx.Fields(ctx)
			require.NoError(t, err)
			assert.Empty(t, fields)

			// When: creating and saving
			require.NoError(t, idx.CreateIfNotExists(ctx))
			require.NoError(t, idx.CreateIfNotExists(ctx), "create is idempotent")
			require.NoError(t, idx.SaveDocuments(ctx, []*Document{
				doc(idx, "doc1", "getUserById handler"),
				doc(idx, "doc2", "parse HTTP request"),
			}))

			// Then: the index reflects the documents
			exists, err = idx.Exists(ctx)
			require.NoError(t, err)
			assert.True(t, exists)

			count, err = idx.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			fields, err = idx.Fields(ctx)
			require.NoError(t, err)
			assert.Subset(t, fields, []string{"content", "path", "size"})

			// Upsert replaces rather than duplicates
			require.NoError(t, idx.SaveDocuments(ctx, []*Document{doc(idx, "doc1", "changed")}))
			count, err = idx.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			// Deleting known and unknown ids
			require.NoError(t, idx.DeleteDocuments(ctx, []string{"doc1", "missing"}))
			count, err = idx.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			// Whole-index delete
			require.NoError(t, idx.Delete(ctx))
			exists, err = idx.Exists(ctx)
			require.NoError(t, err)
			assert.False(t, exists)
			require.NoError(t, idx.Delete(ctx), "deleting a missing index is a no-op")

			count, err = idx.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestIndexContract_DeleteThenRecreateIsEmpty(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			idx, err := p.Open("scope")
			require.NoError(t, err)

			require.NoError(t, idx.CreateIfNotExists(ctx))
			require.NoError(t, idx.SaveDocuments(ctx, []*Document{
				doc(idx, "a", "x"), doc(idx, "b", "y"), doc(idx, "c", "z"),
			}))

			require.NoError(t, idx.Delete(ctx))
			require.NoError(t, idx.CreateIfNotExists(ctx))

			count, err := idx.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestIndexContract_SaveWithoutCreateFails(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			idx, err := p.Open("never-created")
			require.NoError(t, err)

			err = idx.SaveDocuments(context.Background(), []*Document{doc(idx, "a", "x")})
			assert.ErrorIs(t, err, ErrNotExist)
		})
	}
}

func TestIndexContract_DeleteDocumentsOnMissingIndex(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			idx, err := p.Open("never-created")
			require.NoError(t, err)

			assert.NoError(t, idx.DeleteDocuments(context.Background(), []string{"a"}))
		})
	}
}

func TestIndexContract_SameNameSameIndex(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := p.Open("shared")
			require.NoError(t, err)
			require.NoError(t, a.CreateIfNotExists(ctx))
			require.NoError(t, a.SaveDocuments(ctx, []*Document{doc(a, "x", "one")}))

			b, err := p.Open("shared")
			require.NoError(t, err)
			count, err := b.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestProvider_RejectsUnsafeNames(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			for _, bad := range []string{"", ".", "..", "../x", "a/b"} {
				_, err := p.Open(bad)
				assert.Error(t, err, bad)
			}
		})
	}
}

func TestProvider_OpenAfterClose(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Close())
			_, err := p.Open("x")
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestIndex_ReleaseKeepsIndexUsable(t *testing.T) {
	ctx := context.Background()
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			// Given: an index with one document
			idx, err := p.Open("released")
			require.NoError(t, err)
			require.NoError(t, idx.CreateIfNotExists(ctx))
			require.NoError(t, idx.SaveDocuments(ctx, []*Document{idx.NewDocument("a").Set("content", "alpha")}))

			// When: its handles are released twice
			require.NoError(t, idx.Release())
			require.NoError(t, idx.Release())

			// Then: the next calls reopen it with contents intact
			require.NoError(t, idx.SaveDocuments(ctx, []*Document{idx.NewDocument("b").Set("content", "beta")}))
			count, err := idx.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, count)
		})
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
		wantNil  bool
		wantErr  bool
	}{
		{name: "bleve", wantName: "bleve"},
		{name: "SQLite", wantName: "sqlite"},
		{name: "memory", wantName: "memory"},
		{name: "none", wantNil: true},
		{name: "", wantNil: true},
		{name: "lucene", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.name), func(t *testing.T) {
			p, err := NewProvider(tt.name, t.TempDir(), 0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, p)
				return
			}
			require.NotNil(t, p)
			defer p.Close()
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestDocument_SetAndFieldNames(t *testing.T) {
	d := DefaultFactory.NewDocument("id").
		Set("b", 1).
		Set("a", time.Unix(0, 0))

	v, ok := d.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"a", "b"}, d.FieldNames())

	var zero Document
	zero.Set("x", "y")
	assert.Equal(t, "y", zero.Fields["x"])
}
