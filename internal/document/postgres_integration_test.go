//go:build integration
// +build integration

package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskwise/deskwise/internal/testutil"
)

func TestPostgresStore_Integration_Lifecycle(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db.Pool)

	doc := newDoc("alice", "hr", "handbook.md")
	require.NoError(t, s.Create(ctx, doc, chunksFor(doc, 2)))

	got, err := s.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "handbook.md", got.Filename)
	assert.Equal(t, 2, got.ChunkCount)

	_, err = s.Get(ctx, "bob", doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	docs, err := s.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	deleted, err := s.Delete(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, deleted.ID)

	_, err = s.Get(ctx, "alice", doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Category survives the delete.
	cats, err := s.Categories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"hr"}, cats)
}

func TestPostgresStore_Integration_Categories(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db.Pool)

	require.NoError(t, s.CreateCategory(ctx, "alice", "legal"))
	require.NoError(t, s.CreateCategory(ctx, "alice", "legal"))
	require.NoError(t, s.Create(ctx, newDoc("alice", "hr", "a.md"), nil))
	require.NoError(t, s.Create(ctx, newDoc("bob", "finance", "b.md"), nil))

	cats, err := s.Categories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"hr", "legal"}, cats, "other owners' categories are not visible")
}
