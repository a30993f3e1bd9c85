package vector

import (
	"context"
	"fmt"
	"sort"
)

// ChunkLister is the document-store view the consistency check needs:
// the authoritative set of chunk ids per category.
type ChunkLister interface {
	ChunkIDsByCategory(ctx context.Context, category string) ([]string, error)
}

// Orphan is an indexed vector whose chunk no longer exists in the
// document store.
type Orphan struct {
	Category string
	ChunkID  string
}

// CheckConsistency scans every category of the index and reports vectors
// that have no backing chunk. The Postgres index cannot produce orphans
// (chunks and vectors share a table), but in-memory pairings can drift if
// a crash interrupts a delete.
func CheckConsistency(ctx context.Context, idx Index, docs ChunkLister) ([]Orphan, error) {
	categories, err := idx.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing index categories: %w", err)
	}

	var orphans []Orphan
	for _, category := range categories {
		indexed, err := idx.ChunkIDs(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("listing indexed chunks in %q: %w", category, err)
		}
		stored, err := docs.ChunkIDsByCategory(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("listing stored chunks in %q: %w", category, err)
		}

		known := make(map[string]bool, len(stored))
		for _, id := range stored {
			known[id] = true
		}
		for _, id := range indexed {
			if !known[id] {
				orphans = append(orphans, Orphan{Category: category, ChunkID: id})
			}
		}
	}

	sort.Slice(orphans, func(i, j int) bool {
		if orphans[i].Category != orphans[j].Category {
			return orphans[i].Category < orphans[j].Category
		}
		return orphans[i].ChunkID < orphans[j].ChunkID
	})
	return orphans, nil
}

// Repair removes the given orphans from the index, returning how many
// were actually deleted. Orphans are grouped by document so removal uses
// the same atomic path as a normal document delete.
func Repair(ctx context.Context, idx Index, orphans []Orphan) (int, error) {
	type docKey struct{ category, documentID string }
	byDoc := make(map[docKey]bool)
	for _, o := range orphans {
		docID, ok := splitChunkID(o.ChunkID)
		if !ok {
			continue
		}
		byDoc[docKey{o.Category, docID}] = true
	}

	removed := 0
	for k := range byDoc {
		n, err := idx.DeleteByDocument(ctx, k.category, k.documentID)
		if err != nil {
			return removed, fmt.Errorf("repairing document %s: %w", k.documentID, err)
		}
		removed += n
	}
	return removed, nil
}

// splitChunkID extracts the document id from a "{document_id}:{index}"
// chunk id.
func splitChunkID(chunkID string) (string, bool) {
	for i := len(chunkID) - 1; i >= 0; i-- {
		if chunkID[i] == ':' {
			return chunkID[:i], i > 0
		}
	}
	return "", false
}
