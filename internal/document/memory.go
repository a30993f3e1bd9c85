package document

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	documents  map[uuid.UUID]Document
	chunks     map[uuid.UUID][]ChunkRecord // by document id, index order
	categories map[string]map[string]bool  // owner -> explicit slugs
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:  make(map[uuid.UUID]Document),
		chunks:     make(map[uuid.UUID][]ChunkRecord),
		categories: make(map[string]map[string]bool),
	}
}

// Create persists the document and its chunk records.
func (s *MemoryStore) Create(_ context.Context, doc Document, chunks []ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.ChunkCount = len(chunks)
	s.documents[doc.ID] = doc

	// The category stays listed even after its last document is deleted.
	if s.categories[doc.OwnerID] == nil {
		s.categories[doc.OwnerID] = make(map[string]bool)
	}
	s.categories[doc.OwnerID][doc.Category] = true

	cp := make([]ChunkRecord, len(chunks))
	copy(cp, chunks)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Index < cp[j].Index })
	s.chunks[doc.ID] = cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, ownerID string, id uuid.UUID) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok || doc.OwnerID != ownerID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID string, id uuid.UUID) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok || doc.OwnerID != ownerID {
		return Document{}, ErrNotFound
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	return doc, nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	for _, doc := range s.documents {
		if doc.OwnerID == ownerID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) Chunks(_ context.Context, documentID uuid.UUID) ([]ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.chunks[documentID]
	out := make([]ChunkRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemoryStore) ChunkIDsByCategory(_ context.Context, category string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, records := range s.chunks {
		for _, c := range records {
			if c.Category == category {
				out = append(out, c.ID)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) CreateCategory(_ context.Context, ownerID, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.categories[ownerID] == nil {
		s.categories[ownerID] = make(map[string]bool)
	}
	s.categories[ownerID][slug] = true
	return nil
}

// Categories returns explicit categories plus categories of the owner's
// documents, sorted.
func (s *MemoryStore) Categories(_ context.Context, ownerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for slug := range s.categories[ownerID] {
		seen[slug] = true
	}
	for _, doc := range s.documents {
		if doc.OwnerID == ownerID {
			seen[doc.Category] = true
		}
	}

	out := make([]string, 0, len(seen))
	for slug := range seen {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
