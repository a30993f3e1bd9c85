package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]Session
	messages map[uuid.UUID][]Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]Session),
		messages: make(map[uuid.UUID][]Message),
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, ownerID string, id uuid.UUID) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		if sess.OwnerID != ownerID {
			return Session{}, ErrNotFound
		}
		return sess, nil
	}

	now := time.Now()
	sess := Session{ID: id, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
	s.sessions[id] = sess
	return sess, nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID uuid.UUID, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return Message{}, ErrNotFound
	}

	msg.ID = uuid.New()
	msg.SessionID = sessionID
	msg.Sequence = len(s.messages[sessionID])
	msg.CreatedAt = time.Now()
	s.messages[sessionID] = append(s.messages[sessionID], msg)

	sess.UpdatedAt = msg.CreatedAt
	s.sessions[sessionID] = sess
	return msg, nil
}

func (s *MemoryStore) Messages(_ context.Context, sessionID uuid.UUID) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.messages[sessionID]
	out := make([]Message, len(log))
	copy(out, log)
	return out, nil
}

// Reset drops the message log; the session row survives.
func (s *MemoryStore) Reset(_ context.Context, ownerID string, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if sess.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.messages, sessionID)
	sess.UpdatedAt = time.Now()
	s.sessions[sessionID] = sess
	return nil
}

var _ Store = (*MemoryStore)(nil)
