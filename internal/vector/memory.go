package vector

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Index. Vectors are normalized at insert time so
// search reduces to a dot product. Each category holds an immutable entry
// slice that is replaced wholesale on mutation, which makes
// DeleteByDocument atomic with respect to concurrent searches.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]Entry // entries carry normalized vectors
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]Entry)}
}

// Upsert inserts or replaces entries keyed by chunk id.
func (m *Memory) Upsert(_ context.Context, category string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.collections[category]
	replaced := make(map[string]bool, len(entries))
	for _, e := range entries {
		replaced[e.ChunkID] = true
	}

	next := make([]Entry, 0, len(old)+len(entries))
	for _, e := range old {
		if !replaced[e.ChunkID] {
			next = append(next, e)
		}
	}
	for _, e := range entries {
		e.Vector = normalize(e.Vector)
		next = append(next, e)
	}
	m.collections[category] = next
	return nil
}

// Search scores every entry in the category by cosine similarity and
// returns the topK best, descending. Unknown categories yield an empty
// result.
func (m *Memory) Search(_ context.Context, category string, query []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	entries := m.collections[category]
	m.mu.RUnlock()

	if len(entries) == 0 {
		return nil, nil
	}

	q := normalize(query)
	hits := make([]Hit, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != len(q) {
			return nil, ErrDimensionMismatch
		}
		var dot float32
		for i := range q {
			dot += q[i] * e.Vector[i]
		}
		hits = append(hits, Hit{
			ChunkID:    e.ChunkID,
			DocumentID: e.DocumentID,
			Content:    e.Content,
			Score:      dot,
			Vector:     e.Vector,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteByDocument removes all chunks of a document from the category in a
// single slice swap.
func (m *Memory) DeleteByDocument(_ context.Context, category, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.collections[category]
	if len(old) == 0 {
		return 0, nil
	}

	next := make([]Entry, 0, len(old))
	for _, e := range old {
		if e.DocumentID != documentID {
			next = append(next, e)
		}
	}
	removed := len(old) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if len(next) == 0 {
		delete(m.collections, category)
	} else {
		m.collections[category] = next
	}
	return removed, nil
}

// Categories lists non-empty categories in sorted order.
func (m *Memory) Categories(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.collections))
	for c := range m.collections {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// ChunkIDs lists all chunk ids indexed under a category, sorted.
func (m *Memory) ChunkIDs(_ context.Context, category string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.collections[category]
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ChunkID)
	}
	sort.Strings(out)
	return out, nil
}

var _ Index = (*Memory)(nil)
