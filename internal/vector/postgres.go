package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Querier is the subset of pgxpool.Pool the Postgres index needs.
// Defined here so tests can substitute a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Postgres is a pgvector-backed Index over the chunks table. Cosine
// distance is computed by the <=> operator against the HNSW index, so
// Score = 1 - distance.
type Postgres struct {
	db Querier
}

// NewPostgres creates an Index backed by the given querier, typically a
// *pgxpool.Pool.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

// Upsert writes entries in a single batch round trip.
func (p *Postgres) Upsert(ctx context.Context, category string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		if len(e.Vector) != Dimension {
			return fmt.Errorf("chunk %s: %w: got %d, want %d",
				e.ChunkID, ErrDimensionMismatch, len(e.Vector), Dimension)
		}
		docID, err := uuid.Parse(e.DocumentID)
		if err != nil {
			return fmt.Errorf("chunk %s: invalid document id: %w", e.ChunkID, err)
		}
		batch.Queue(`
			INSERT INTO chunks (id, document_id, category, chunk_index, span_start, span_end, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				category    = EXCLUDED.category,
				chunk_index = EXCLUDED.chunk_index,
				span_start  = EXCLUDED.span_start,
				span_end    = EXCLUDED.span_end,
				content     = EXCLUDED.content,
				embedding   = EXCLUDED.embedding`,
			e.ChunkID, docID, category, e.Index, e.Start, e.End, e.Content,
			pgvector.NewVector(e.Vector),
		)
	}

	results := p.db.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting chunks in %q: %w", category, err)
		}
	}
	return nil
}

// Search runs a cosine similarity query scoped to the category.
func (p *Postgres) Search(ctx context.Context, category string, query []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(query) != Dimension {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(query), Dimension)
	}

	rows, err := p.db.Query(ctx, `
		SELECT id, document_id, content, 1 - (embedding <=> $1) AS similarity, embedding
		FROM chunks
		WHERE category = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(query), category, topK)
	if err != nil {
		return nil, fmt.Errorf("searching category %q: %w", category, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var docID uuid.UUID
		var embedding pgvector.Vector
		if err := rows.Scan(&h.ChunkID, &docID, &h.Content, &h.Score, &embedding); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		h.DocumentID = docID.String()
		h.Vector = embedding.Slice()
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}
	return hits, nil
}

// DeleteByDocument removes all chunks of a document. The category
// predicate is included so a stale caller cannot cross-delete.
func (p *Postgres) DeleteByDocument(ctx context.Context, category, documentID string) (int, error) {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return 0, fmt.Errorf("invalid document id: %w", err)
	}
	tag, err := p.db.Exec(ctx,
		`DELETE FROM chunks WHERE category = $1 AND document_id = $2`,
		category, docID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks of document %s: %w", documentID, err)
	}
	return int(tag.RowsAffected()), nil
}

// Categories lists categories with at least one indexed chunk.
func (p *Postgres) Categories(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx,
		`SELECT DISTINCT category FROM chunks ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChunkIDs lists all chunk ids in a category.
func (p *Postgres) ChunkIDs(ctx context.Context, category string) ([]string, error) {
	rows, err := p.db.Query(ctx,
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

var _ Index = (*Postgres)(nil)
