package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/deskwise/deskwise/internal/document"
	"github.com/deskwise/deskwise/internal/knowledge"
	"github.com/deskwise/deskwise/internal/log"
)

// maxMultipartMemory bounds the in-memory portion of multipart parsing;
// the service applies its own document size limit afterwards.
const maxMultipartMemory = 8 << 20

// multipartOverhead is slack for boundaries, part headers, and the
// category field when capping the request body at the upload limit.
const multipartOverhead = 16 << 10

// KnowledgeService is the slice of the knowledge layer the API needs.
type KnowledgeService interface {
	Upload(ctx context.Context, in knowledge.UploadInput) (document.Document, error)
	Delete(ctx context.Context, ownerID string, docID uuid.UUID) error
	ListDocuments(ctx context.Context, ownerID string) ([]document.Document, error)
	Categories(ctx context.Context, ownerID string) ([]string, error)
	CreateCategory(ctx context.Context, ownerID, name string) (string, error)
	MaxUploadBytes() int64
}

// DocumentsHandler serves document and category endpoints.
type DocumentsHandler struct {
	svc    KnowledgeService
	logger log.Logger
}

// NewDocumentsHandler creates a documents handler.
func NewDocumentsHandler(svc KnowledgeService, logger log.Logger) *DocumentsHandler {
	return &DocumentsHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.upload)
	mux.HandleFunc("GET /api/v1/documents", h.list)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.delete)
	mux.HandleFunc("GET /api/v1/categories", h.categories)
	mux.HandleFunc("POST /api/v1/categories", h.createCategory)
}

// documentJSON is the wire form of a document record.
type documentJSON struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func toDocumentJSON(d document.Document) documentJSON {
	return documentJSON{
		ID:         d.ID.String(),
		Category:   d.Category,
		Filename:   d.Filename,
		SizeBytes:  d.SizeBytes,
		ChunkCount: d.ChunkCount,
		CreatedAt:  d.CreatedAt,
	}
}

// upload ingests a multipart document. Fields: "file" (the document) and
// "category".
func (h *DocumentsHandler) upload(w http.ResponseWriter, r *http.Request) {
	owner := requireOwner(w, r)
	if owner == "" {
		return
	}

	// Cap the body before parsing so oversized uploads are rejected
	// while streaming, not after buffering the whole request.
	limit := h.svc.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("upload exceeds the %d byte limit", limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_multipart", "expected multipart/form-data with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large",
			fmt.Sprintf("file is %d bytes, limit is %d", header.Size, limit))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable_file", "could not read uploaded file")
		return
	}

	doc, err := h.svc.Upload(r.Context(), knowledge.UploadInput{
		OwnerID:  owner,
		Category: r.FormValue("category"),
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentJSON(doc))
}

// list returns the owner's documents, newest first.
func (h *DocumentsHandler) list(w http.ResponseWriter, r *http.Request) {
	owner := requireOwner(w, r)
	if owner == "" {
		return
	}

	docs, err := h.svc.ListDocuments(r.Context(), owner)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	out := make([]documentJSON, len(docs))
	for i, d := range docs {
		out[i] = toDocumentJSON(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out, "total": len(out)})
}

// delete removes a document, its chunks, and its vectors.
func (h *DocumentsHandler) delete(w http.ResponseWriter, r *http.Request) {
	owner := requireOwner(w, r)
	if owner == "" {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "document id must be a UUID")
		return
	}

	if err := h.svc.Delete(r.Context(), owner, id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// categories lists the owner's known categories, empty ones included.
func (h *DocumentsHandler) categories(w http.ResponseWriter, r *http.Request) {
	owner := requireOwner(w, r)
	if owner == "" {
		return
	}

	cats, err := h.svc.Categories(r.Context(), owner)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// createCategoryRequest is the body of POST /api/v1/categories.
type createCategoryRequest struct {
	Name string `json:"name"`
}

// createCategory registers an empty category ahead of any uploads.
func (h *DocumentsHandler) createCategory(w http.ResponseWriter, r *http.Request) {
	owner := requireOwner(w, r)
	if owner == "" {
		return
	}

	var req createCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	slug, err := h.svc.CreateCategory(r.Context(), owner, req.Name)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"category": slug})
}
