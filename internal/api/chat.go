package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/deskwise/deskwise/internal/log"
	"github.com/deskwise/deskwise/internal/orchestrator"
)

// TurnRunner executes one chat turn.
type TurnRunner interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Turn, error)
}

// SessionResetter clears a session's message log.
type SessionResetter interface {
	Reset(ctx context.Context, ownerID string, sessionID uuid.UUID) error
}

// ChatHandler serves chat turns and session resets.
type ChatHandler struct {
	runner   TurnRunner
	sessions SessionResetter
	logger   log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(runner TurnRunner, sessions SessionResetter, logger log.Logger) *ChatHandler {
	return &ChatHandler{runner: runner, sessions: sessions, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat", h.chat)
	mux.HandleFunc("POST /api/v1/sessions/{id}/reset", h.reset)
}

// chatRequest is the body of POST /api/v1/chat. An empty session_id
// starts a new session; reset clears the log before this turn runs.
type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	Reset     bool   `json:"reset,omitempty"`
}

// citationJSON is the wire form of a citation.
type citationJSON struct {
	ChunkID string `json:"chunk_id"`
	Snippet string `json:"snippet"`
}

// chatResponse is the wire form of a completed turn.
type chatResponse struct {
	SessionID    string         `json:"session_id"`
	State        string         `json:"state"`
	Answer       string         `json:"answer"`
	Category     string         `json:"category,omitempty"`
	Routed       bool           `json:"routed"`
	Citations    []citationJSON `json:"citations,omitempty"`
	ToolsInvoked []string       `json:"tools_invoked,omitempty"`
	Iterations   int            `json:"iterations"`
}

// chat runs one orchestrated turn.
func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	owner := requireOwner(w, r)
	if owner == "" {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "message is required")
		return
	}
	var sessionID uuid.UUID
	if req.SessionID != "" {
		var err error
		sessionID, err = uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "session_id must be a UUID")
			return
		}
	}

	turn, err := h.runner.Run(r.Context(), orchestrator.Request{
		OwnerID:   owner,
		SessionID: sessionID,
		Message:   req.Message,
		Reset:     req.Reset,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := chatResponse{
		SessionID:    turn.SessionID.String(),
		State:        string(turn.State),
		Answer:       turn.Answer,
		Category:     turn.Category,
		Routed:       turn.Routed,
		ToolsInvoked: turn.ToolsInvoked,
		Iterations:   turn.Iterations,
	}
	for _, c := range turn.Citations {
		resp.Citations = append(resp.Citations, citationJSON{ChunkID: c.ChunkID, Snippet: c.Snippet})
	}
	writeJSON(w, http.StatusOK, resp)
}

// reset clears the session's message log. Documents, categories, and the
// session row itself survive.
func (h *ChatHandler) reset(w http.ResponseWriter, r *http.Request) {
	owner := requireOwner(w, r)
	if owner == "" {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "session id must be a UUID")
		return
	}

	if err := h.sessions.Reset(r.Context(), owner, id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
