package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the Postgres store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists documents and categories in Postgres.
//
// Chunk rows live in the chunks table, which also carries the embedding
// column; they are written by the vector index upsert, not by Create.
// Create records the document row and the expected chunk count, so the
// two writes share one table and cannot drift.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a Store backed by the given querier.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the document row. The owner row is upserted first so
// fresh installations need no provisioning step.
func (s *PostgresStore) Create(ctx context.Context, doc Document, chunks []ChunkRecord) error {
	if _, err := s.db.Exec(ctx,
		`INSERT INTO owners (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		doc.OwnerID); err != nil {
		return fmt.Errorf("ensuring owner %q: %w", doc.OwnerID, err)
	}

	// Register the category so it stays listed even after its last
	// document is deleted.
	if _, err := s.db.Exec(ctx, `
		INSERT INTO categories (owner_id, slug) VALUES ($1, $2)
		ON CONFLICT (owner_id, slug) DO NOTHING`,
		doc.OwnerID, doc.Category); err != nil {
		return fmt.Errorf("registering category %q: %w", doc.Category, err)
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (id, owner_id, category, filename, size_bytes, chunk_count)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.OwnerID, doc.Category, doc.Filename, doc.SizeBytes, len(chunks))
	if err != nil {
		return fmt.Errorf("creating document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, ownerID string, id uuid.UUID) (Document, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, owner_id, category, filename, size_bytes, chunk_count, created_at
		FROM documents
		WHERE owner_id = $1 AND id = $2`,
		ownerID, id)
	return scanDocument(row)
}

// Delete removes the document row; chunk rows follow via ON DELETE CASCADE.
func (s *PostgresStore) Delete(ctx context.Context, ownerID string, id uuid.UUID) (Document, error) {
	row := s.db.QueryRow(ctx, `
		DELETE FROM documents
		WHERE owner_id = $1 AND id = $2
		RETURNING id, owner_id, category, filename, size_bytes, chunk_count, created_at`,
		ownerID, id)
	return scanDocument(row)
}

func (s *PostgresStore) List(ctx context.Context, ownerID string) ([]Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, category, filename, size_bytes, chunk_count, created_at
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC, id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing documents for %q: %w", ownerID, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Chunks(ctx context.Context, documentID uuid.UUID) ([]ChunkRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, category, chunk_index, span_start, span_end, content
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks of %s: %w", documentID, err)
	}
	defer rows.Close()

	var out []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Category, &c.Index, &c.Start, &c.End, &c.Content); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ChunkIDsByCategory(ctx context.Context, category string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM chunks WHERE category = $1 ORDER BY id`, category)
	if err != nil {
		return nil, fmt.Errorf("listing chunk ids in %q: %w", category, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateCategory(ctx context.Context, ownerID, slug string) error {
	if _, err := s.db.Exec(ctx,
		`INSERT INTO owners (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		ownerID); err != nil {
		return fmt.Errorf("ensuring owner %q: %w", ownerID, err)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO categories (owner_id, slug) VALUES ($1, $2)
		ON CONFLICT (owner_id, slug) DO NOTHING`,
		ownerID, slug)
	if err != nil {
		return fmt.Errorf("creating category %q: %w", slug, err)
	}
	return nil
}

// Categories unions explicit categories with the categories of the
// owner's documents.
func (s *PostgresStore) Categories(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT slug FROM categories WHERE owner_id = $1
		UNION
		SELECT DISTINCT category FROM documents WHERE owner_id = $1
		ORDER BY 1`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing categories for %q: %w", ownerID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		out = append(out, slug)
	}
	return out, rows.Err()
}

// scanDocument scans one document row, mapping pgx.ErrNoRows to
// ErrNotFound.
func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Category, &doc.Filename,
		&doc.SizeBytes, &doc.ChunkCount, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("scanning document: %w", err)
	}
	return doc, nil
}

var _ Store = (*PostgresStore)(nil)
