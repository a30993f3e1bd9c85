// Package vector provides the per-category vector index used for retrieval.
//
// Two implementations exist: Memory (in-process, used in tests and for
// ephemeral deployments) and Postgres (pgvector-backed, the durable default).
// Both order search results by descending cosine similarity.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Dimension is the embedding dimension the durable schema is provisioned
// for. Embedders must be configured to produce vectors of this length.
const Dimension = 768

// ErrDimensionMismatch indicates a vector of the wrong length was supplied.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Entry is a chunk's indexed representation.
type Entry struct {
	ChunkID    string // "{document_id}:{index}", stable across re-indexing
	DocumentID string
	Index      int // 0-based chunk index within the document
	Start      int // byte span into the source text
	End        int
	Content    string
	Vector     []float32
}

// Hit is a single search result. Vector is the stored embedding of the
// chunk, carried so callers can compare hits pairwise without another
// index round trip.
type Hit struct {
	ChunkID    string
	DocumentID string
	Content    string
	Score      float32 // cosine similarity, descending
	Vector     []float32
}

// Index is a per-category vector index.
//
// Consistency contract: DeleteByDocument is atomic with respect to
// concurrent Search calls: a search observes either all of a document's
// chunks or none of them, never a partial set.
type Index interface {
	// Upsert inserts or replaces entries in a category, keyed by chunk id.
	// Idempotent: re-upserting a chunk id replaces its vector and content.
	Upsert(ctx context.Context, category string, entries []Entry) error

	// Search returns up to topK hits for the category, ordered by
	// descending cosine similarity. An unknown category yields an empty
	// result, not an error.
	Search(ctx context.Context, category string, query []float32, topK int) ([]Hit, error)

	// DeleteByDocument removes every chunk of the document from the
	// category and reports how many entries were removed.
	DeleteByDocument(ctx context.Context, category, documentID string) (int, error)

	// Categories lists categories that currently hold at least one entry.
	Categories(ctx context.Context) ([]string, error)

	// ChunkIDs lists all chunk ids indexed under a category.
	// Used by the consistency check, not by the query path.
	ChunkIDs(ctx context.Context, category string) ([]string, error)
}

// Cosine returns the cosine similarity of two equal-length vectors.
// Returns an error on length mismatch so silent truncation can't skew
// dedup decisions.
func Cosine(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb))), nil
}

// normalize returns a unit-length copy of v (zero vectors pass through).
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
