// Package session persists conversations as append-only message logs.
//
// Messages are never mutated after creation; every orchestrator transition
// appends exactly one message, so the log is a total order of the
// interaction. Reset clears the message log only; documents, categories,
// and owner profile data are out of its reach by construction.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the session does not exist or belongs to a
// different owner.
var ErrNotFound = errors.New("session not found")

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Session is a conversation head. The message log hangs off it by id.
type Session struct {
	ID        uuid.UUID
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Metadata carries the structured annotations a transition may attach to
// its message. Serialized as JSONB; zero value marshals to {}.
type Metadata struct {
	Category      string   `json:"category,omitempty"`       // routed category, "" when not routed
	CitedChunkIDs []string `json:"cited_chunk_ids,omitempty"`
	ToolName      string   `json:"tool_name,omitempty"`
	State         string   `json:"state,omitempty"` // orchestrator state that appended this
}

// Message is one append-only log entry.
type Message struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Role      Role
	Content   string
	Metadata  Metadata
	Sequence  int // 0-based position within the session
	CreatedAt time.Time
}

// Store persists sessions and their message logs.
type Store interface {
	// GetOrCreate returns the owner's session, creating it when absent.
	// A session id owned by someone else yields ErrNotFound, not a hijack.
	GetOrCreate(ctx context.Context, ownerID string, id uuid.UUID) (Session, error)

	// Append adds a message to the end of the session's log, assigning
	// the next sequence number, and bumps the session's UpdatedAt.
	Append(ctx context.Context, sessionID uuid.UUID, msg Message) (Message, error)

	// Messages returns the full log in sequence order.
	Messages(ctx context.Context, sessionID uuid.UUID) ([]Message, error)

	// Reset deletes the session's messages. The session row, its owner,
	// and everything else survive. Resetting an unknown session is a
	// no-op.
	Reset(ctx context.Context, ownerID string, sessionID uuid.UUID) error
}
