package collector

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/store"
)

func newDoc(id string) *store.Document {
	return store.DefaultFactory.NewDocument(id)
}

func TestSegment_SplitKeepsOrder(t *testing.T) {
	seg := Segment{
		IndexOp(newDoc("a")),
		DeleteOp(newDoc("x")),
		IndexOp(newDoc("b")),
		DeleteOp(newDoc("y")),
		{Type: Index},
	}

	deletes, adds := seg.Split()

	assert.Equal(t, []string{"x", "y"}, deletes)
	require.Len(t, adds, 2)
	assert.Equal(t, "a", adds[0].ID)
	assert.Equal(t, "b", adds[1].ID)
}

func TestOperationType_String(t *testing.T) {
	assert.Equal(t, "index", Index.String())
	assert.Equal(t, "delete", Delete.String())
	assert.Equal(t, "unknown", OperationType(9).String())
}

func TestSegments_StopsWhenConsumerStops(t *testing.T) {
	seq := Segments(Segment{IndexOp(newDoc("1"))}, Segment{IndexOp(newDoc("2"))})

	var got int
	for range seq {
		got++
		break
	}
	assert.Equal(t, 1, got)
}

func TestFailing_YieldsErrorLast(t *testing.T) {
	boom := errors.New("boom")
	var (
		segs int
		errs []error
	)
	for seg, err := range Failing(boom, Segment{IndexOp(newDoc("1"))}) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		segs += len(seg)
	}
	assert.Equal(t, 1, segs)
	assert.Equal(t, []error{boom}, errs)
}

func TestFuncCollector(t *testing.T) {
	var gotSince *time.Time
	c := NewFuncCollector("products", func(_ context.Context, since *time.Time, f store.DocumentFactory) iter.Seq2[Segment, error] {
		gotSince = since
		return Segments(Segment{IndexOp(f.NewDocument("doc1"))})
	})

	ts := time.Now()
	var ids []string
	for seg, err := range c.Collect(context.Background(), &ts, store.DefaultFactory) {
		require.NoError(t, err)
		for _, op := range seg {
			ids = append(ids, op.Document.ID)
		}
	}

	assert.Equal(t, "products", c.Name())
	assert.Equal(t, &ts, gotSince)
	assert.Equal(t, []string{"doc1"}, ids)
}

func TestRegistry(t *testing.T) {
	empty := func(context.Context, *time.Time, store.DocumentFactory) iter.Seq2[Segment, error] {
		return Segments()
	}

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		r, err := NewRegistry(NewFuncCollector("Products", empty))
		require.NoError(t, err)

		c, ok := r.Lookup("PRODUCTS")
		require.True(t, ok)
		assert.Equal(t, "Products", c.Name())

		_, ok = r.Lookup("orders")
		assert.False(t, ok)
	})

	t.Run("duplicates are rejected in any case", func(t *testing.T) {
		r, err := NewRegistry(NewFuncCollector("products", empty))
		require.NoError(t, err)

		err = r.Register(NewFuncCollector("Products", empty))

		require.Error(t, err)
		assert.Equal(t, amerrors.ErrCodeDuplicateCollector, amerrors.GetCode(err))
		assert.Equal(t, 1, r.Len())
	})

	t.Run("surrounding space is ignored on register and lookup", func(t *testing.T) {
		r, err := NewRegistry(NewFuncCollector(" docs", empty))
		require.NoError(t, err)

		_, ok := r.Lookup(" docs")
		assert.True(t, ok)
		_, ok = r.Lookup("docs ")
		assert.True(t, ok)

		err = r.Register(NewFuncCollector("DOCS", empty))
		assert.Equal(t, amerrors.ErrCodeDuplicateCollector, amerrors.GetCode(err))
	})

	t.Run("empty names are rejected", func(t *testing.T) {
		_, err := NewRegistry(NewFuncCollector("  ", empty))
		assert.Error(t, err)
	})

	t.Run("scopes are sorted", func(t *testing.T) {
		r, err := NewRegistry(
			NewFuncCollector("orders", empty),
			NewFuncCollector("Blog", empty),
			NewFuncCollector("products", empty),
		)
		require.NoError(t, err)

		assert.Equal(t, []string{"Blog", "orders", "products"}, r.Scopes())
	})
}
