package vector

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func entry(chunkID, docID, content string, vec []float32) Entry {
	return Entry{ChunkID: chunkID, DocumentID: docID, Content: content, Vector: vec}
}

func TestMemory_SearchOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	// Orthogonal-ish vectors with known similarity to the query (1,0,0).
	require.NoError(t, idx.Upsert(ctx, "hr", []Entry{
		entry("d1:0", "d1", "exact", []float32{1, 0, 0}),
		entry("d1:1", "d1", "close", []float32{0.9, 0.1, 0}),
		entry("d2:0", "d2", "far", []float32{0, 1, 0}),
	}))

	hits, err := idx.Search(ctx, "hr", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "d1:0", hits[0].ChunkID)
	assert.Equal(t, "d1:1", hits[1].ChunkID)
	assert.Equal(t, "d2:0", hits[2].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Greater(t, hits[1].Score, hits[2].Score)
}

func TestMemory_SearchTopK(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()
	require.NoError(t, idx.Upsert(ctx, "it", []Entry{
		entry("d1:0", "d1", "a", []float32{1, 0}),
		entry("d1:1", "d1", "b", []float32{0, 1}),
		entry("d1:2", "d1", "c", []float32{1, 1}),
	}))

	hits, err := idx.Search(ctx, "it", []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestMemory_SearchUnknownCategory(t *testing.T) {
	idx := NewMemory()
	hits, err := idx.Search(context.Background(), "nope", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemory_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	require.NoError(t, idx.Upsert(ctx, "hr", []Entry{
		entry("d1:0", "d1", "old text", []float32{1, 0}),
	}))
	require.NoError(t, idx.Upsert(ctx, "hr", []Entry{
		entry("d1:0", "d1", "new text", []float32{0, 1}),
	}))

	hits, err := idx.Search(ctx, "hr", []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1, "re-upsert must replace, not duplicate")
	assert.Equal(t, "new text", hits[0].Content)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func TestMemory_DeleteByDocument(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	require.NoError(t, idx.Upsert(ctx, "hr", []Entry{
		entry("d1:0", "d1", "a", []float32{1, 0}),
		entry("d1:1", "d1", "b", []float32{0, 1}),
		entry("d2:0", "d2", "c", []float32{1, 1}),
	}))

	removed, err := idx.DeleteByDocument(ctx, "hr", "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	hits, err := idx.Search(ctx, "hr", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d2:0", hits[0].ChunkID)

	removed, err = idx.DeleteByDocument(ctx, "hr", "d1")
	require.NoError(t, err)
	assert.Zero(t, removed, "second delete is a no-op")
}

func TestMemory_DeleteLastDocumentDropsCategory(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	require.NoError(t, idx.Upsert(ctx, "legal", []Entry{
		entry("d1:0", "d1", "a", []float32{1, 0}),
	}))
	_, err := idx.DeleteByDocument(ctx, "legal", "d1")
	require.NoError(t, err)

	cats, err := idx.Categories(ctx)
	require.NoError(t, err)
	assert.NotContains(t, cats, "legal")
}

// A search racing a delete must see either all of a document's chunks or
// none of them.
func TestMemory_DeleteAtomicUnderConcurrentSearch(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	idx := NewMemory()

	entries := []Entry{
		entry("d1:0", "d1", "a", []float32{1, 0}),
		entry("d1:1", "d1", "b", []float32{1, 0}),
		entry("d1:2", "d1", "c", []float32{1, 0}),
	}
	require.NoError(t, idx.Upsert(ctx, "hr", entries))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			hits, err := idx.Search(ctx, "hr", []float32{1, 0}, 10)
			assert.NoError(t, err)
			if len(hits) != 0 && len(hits) != len(entries) {
				t.Errorf("partial document visible: %d of %d chunks", len(hits), len(entries))
				return
			}
		}
	}()

	_, err := idx.DeleteByDocument(ctx, "hr", "d1")
	require.NoError(t, err)
	close(stop)
	wg.Wait()
}

func TestMemory_Categories(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	require.NoError(t, idx.Upsert(ctx, "it", []Entry{entry("d1:0", "d1", "a", []float32{1})}))
	require.NoError(t, idx.Upsert(ctx, "hr", []Entry{entry("d2:0", "d2", "b", []float32{1})}))

	cats, err := idx.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hr", "it"}, cats)
}

func TestMemory_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()
	require.NoError(t, idx.Upsert(ctx, "hr", []Entry{entry("d1:0", "d1", "a", []float32{1, 0, 0})}))

	_, err := idx.Search(ctx, "hr", []float32{1, 0}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosine(t *testing.T) {
	got, err := Cosine([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-6)

	got, err = Cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-6)

	got, err = Cosine([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, got, 1e-6)

	_, err = Cosine([]float32{1}, []float32{1, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	got, err = Cosine([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Zero(t, got, "zero vector has zero similarity")
}
