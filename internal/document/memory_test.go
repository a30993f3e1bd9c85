package document

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoc(owner, category, filename string) Document {
	return Document{
		ID:        uuid.New(),
		OwnerID:   owner,
		Category:  category,
		Filename:  filename,
		SizeBytes: 64,
	}
}

func chunksFor(doc Document, n int) []ChunkRecord {
	out := make([]ChunkRecord, n)
	for i := range out {
		out[i] = ChunkRecord{
			ID:         doc.ID.String() + ":" + string(rune('0'+i)),
			DocumentID: doc.ID,
			Category:   doc.Category,
			Index:      i,
			Content:    "chunk",
		}
	}
	return out
}

func TestMemoryStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc := newDoc("alice", "hr", "handbook.md")
	require.NoError(t, s.Create(ctx, doc, chunksFor(doc, 3)))

	got, err := s.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, 3, got.ChunkCount)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMemoryStore_OwnerIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc := newDoc("alice", "hr", "handbook.md")
	require.NoError(t, s.Create(ctx, doc, nil))

	_, err := s.Get(ctx, "bob", doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Delete(ctx, "bob", doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	docs, err := s.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemoryStore_DeleteReturnsDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc := newDoc("alice", "it", "vpn.txt")
	require.NoError(t, s.Create(ctx, doc, chunksFor(doc, 2)))

	deleted, err := s.Delete(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "it", deleted.Category)

	_, err = s.Get(ctx, "alice", doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Delete(ctx, "alice", doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	chunks, err := s.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	older := newDoc("alice", "hr", "old.md")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newDoc("alice", "hr", "new.md")
	newer.CreatedAt = time.Now()

	require.NoError(t, s.Create(ctx, older, nil))
	require.NoError(t, s.Create(ctx, newer, nil))

	docs, err := s.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new.md", docs[0].Filename)
	assert.Equal(t, "old.md", docs[1].Filename)
}

func TestMemoryStore_ChunksInIndexOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc := newDoc("alice", "hr", "handbook.md")
	records := chunksFor(doc, 3)
	// Create out of order; Chunks must come back sorted.
	require.NoError(t, s.Create(ctx, doc, []ChunkRecord{records[2], records[0], records[1]}))

	got, err := s.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.Index)
	}
}

func TestMemoryStore_ChunkIDsByCategory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	hrDoc := newDoc("alice", "hr", "a.md")
	itDoc := newDoc("alice", "it", "b.md")
	require.NoError(t, s.Create(ctx, hrDoc, chunksFor(hrDoc, 2)))
	require.NoError(t, s.Create(ctx, itDoc, chunksFor(itDoc, 1)))

	ids, err := s.ChunkIDsByCategory(ctx, "hr")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	for _, id := range ids {
		assert.Contains(t, id, hrDoc.ID.String())
	}
}

func TestMemoryStore_CategoriesUnion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Explicit category with no documents yet.
	require.NoError(t, s.CreateCategory(ctx, "alice", "legal"))
	// Implicit category via upload.
	doc := newDoc("alice", "hr", "handbook.md")
	require.NoError(t, s.Create(ctx, doc, nil))

	cats, err := s.Categories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"hr", "legal"}, cats)

	// Deleting the last hr document leaves the category listed.
	_, err = s.Delete(ctx, "alice", doc.ID)
	require.NoError(t, err)

	cats, err = s.Categories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"hr", "legal"}, cats)
}

func TestMemoryStore_CreateCategoryIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateCategory(ctx, "alice", "hr"))
	require.NoError(t, s.CreateCategory(ctx, "alice", "hr"))

	cats, err := s.Categories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"hr"}, cats)
}
