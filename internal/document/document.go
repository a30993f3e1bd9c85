// Package document persists document metadata and chunk records, and tracks
// the category namespace per owner.
//
// The store is the source of truth for what exists; the vector index only
// holds derived embeddings. Categories live on their own: an explicitly
// created category is listed even before any document lands in it, and it
// survives the deletion of its last document.
package document

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested document does not exist (or belongs
// to a different owner).
var ErrNotFound = errors.New("document not found")

// Document is the metadata record for one uploaded document.
type Document struct {
	ID         uuid.UUID
	OwnerID    string
	Category   string // slug
	Filename   string
	SizeBytes  int64
	ChunkCount int
	CreatedAt  time.Time
}

// ChunkRecord is a stored chunk: the text and span behind an indexed
// vector. Its ID is "{document_id}:{index}".
type ChunkRecord struct {
	ID         string
	DocumentID uuid.UUID
	Category   string
	Index      int
	Start      int
	End        int
	Content    string
}

// Store persists documents, chunk records, and categories.
//
// All document operations are owner-scoped: an owner can never observe or
// delete another owner's documents.
type Store interface {
	// Create persists a document and its chunk records.
	Create(ctx context.Context, doc Document, chunks []ChunkRecord) error

	// Get returns an owner's document by id. ErrNotFound when absent.
	Get(ctx context.Context, ownerID string, id uuid.UUID) (Document, error)

	// Delete removes a document and its chunk records, returning the
	// deleted document so callers can clean up derived state.
	// ErrNotFound when absent.
	Delete(ctx context.Context, ownerID string, id uuid.UUID) (Document, error)

	// List returns an owner's documents, newest first.
	List(ctx context.Context, ownerID string) ([]Document, error)

	// Chunks returns a document's chunk records in index order.
	Chunks(ctx context.Context, documentID uuid.UUID) ([]ChunkRecord, error)

	// ChunkIDsByCategory returns every chunk id stored under a category,
	// across owners. Feeds the index consistency check.
	ChunkIDsByCategory(ctx context.Context, category string) ([]string, error)

	// CreateCategory registers a category for an owner. Idempotent.
	CreateCategory(ctx context.Context, ownerID, slug string) error

	// Categories returns the owner's categories sorted by slug: every
	// explicitly created category plus every category holding at least
	// one of the owner's documents.
	Categories(ctx context.Context, ownerID string) ([]string, error)
}
