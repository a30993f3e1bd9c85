// Package knowledge owns the ingestion pipeline and document lifecycle:
// validate → extract text → chunk → embed → index + persist, and the
// cascading delete that keeps the vector index and document store
// consistent.
package knowledge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	readability "github.com/go-shiori/go-readability"
	"github.com/google/uuid"

	"github.com/deskwise/deskwise/internal/chunk"
	"github.com/deskwise/deskwise/internal/document"
	"github.com/deskwise/deskwise/internal/log"
	"github.com/deskwise/deskwise/internal/vector"
)

// Validation errors. The API layer maps these to 4xx responses; anything
// else is a 5xx.
var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file exceeds upload size limit")
	ErrEmptyDocument   = errors.New("document contains no extractable text")
	ErrInvalidCategory = errors.New("invalid category name")
)

// DefaultMaxUploadBytes bounds upload size when the service is
// constructed with a zero limit.
const DefaultMaxUploadBytes = 1 << 20

// supportedExtensions maps accepted file extensions to their extraction
// mode.
var supportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
}

// Embedder is the batch-embedding dependency.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// UploadInput carries one upload request.
type UploadInput struct {
	OwnerID  string
	Category string // free-form; normalized to a slug
	Filename string
	Data     []byte
	Chunking chunk.Options // zero values take chunker defaults
}

// Service implements ingestion and document lifecycle.
type Service struct {
	store    document.Store
	index    vector.Index
	embedder Embedder
	maxBytes int64
	chunking chunk.Options
	logger   log.Logger

	// Per-document single-writer locks: concurrent writes to the same
	// document id serialize, different documents proceed in parallel.
	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithChunking sets the chunking parameters used when an upload does not
// carry its own.
func WithChunking(opts chunk.Options) Option {
	return func(s *Service) { s.chunking = opts }
}

// NewService creates a Service. A zero maxBytes takes
// DefaultMaxUploadBytes; a nil logger discards output.
func NewService(store document.Store, index vector.Index, embedder Embedder, maxBytes int64, logger log.Logger, opts ...Option) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Service{
		store:    store,
		index:    index,
		embedder: embedder,
		maxBytes: maxBytes,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload ingests one document: validate, extract, chunk, embed, persist,
// index. On an embedding outage nothing is committed; the caller retries
// the whole upload.
func (s *Service) Upload(ctx context.Context, in UploadInput) (document.Document, error) {
	if int64(len(in.Data)) > s.maxBytes {
		return document.Document{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(in.Data), s.maxBytes)
	}
	ext := strings.ToLower(filepath.Ext(in.Filename))
	if !supportedExtensions[ext] {
		return document.Document{}, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	category, err := Slugify(in.Category)
	if err != nil {
		return document.Document{}, err
	}

	text, err := extractText(ext, in.Data)
	if err != nil {
		return document.Document{}, err
	}

	chunking := in.Chunking
	if chunking == (chunk.Options{}) {
		chunking = s.chunking
	}
	chunks := chunk.Split(text, chunking)
	if len(chunks) == 0 {
		return document.Document{}, ErrEmptyDocument
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return document.Document{}, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	docID := uuid.New()
	doc := document.Document{
		ID:        docID,
		OwnerID:   in.OwnerID,
		Category:  category,
		Filename:  in.Filename,
		SizeBytes: int64(len(in.Data)),
	}

	records := make([]document.ChunkRecord, len(chunks))
	entries := make([]vector.Entry, len(chunks))
	for i, c := range chunks {
		chunkID := fmt.Sprintf("%s:%d", docID, c.Index)
		records[i] = document.ChunkRecord{
			ID:         chunkID,
			DocumentID: docID,
			Category:   category,
			Index:      c.Index,
			Start:      c.Start,
			End:        c.End,
			Content:    c.Text,
		}
		entries[i] = vector.Entry{
			ChunkID:    chunkID,
			DocumentID: docID.String(),
			Index:      c.Index,
			Start:      c.Start,
			End:        c.End,
			Content:    c.Text,
			Vector:     vectors[i],
		}
	}

	unlock := s.lockDocument(docID)
	defer unlock()

	if err := s.store.Create(ctx, doc, records); err != nil {
		return document.Document{}, fmt.Errorf("persisting document: %w", err)
	}
	if err := s.index.Upsert(ctx, category, entries); err != nil {
		// Roll the record back so readers never observe an unindexed
		// document. A failed rollback is caught by the consistency check.
		if _, delErr := s.store.Delete(ctx, in.OwnerID, docID); delErr != nil {
			s.logger.Error("rollback after index failure failed",
				"document", docID, "error", delErr)
		}
		return document.Document{}, fmt.Errorf("indexing document: %w", err)
	}

	doc.ChunkCount = len(chunks)
	s.logger.Info("document ingested",
		"document", docID,
		"owner", in.OwnerID,
		"category", category,
		"chunks", len(chunks),
		"bytes", len(in.Data),
	)
	return doc, nil
}

// Delete cascades: vector entries and the stored record go together. The
// index is cleared first so a crash between the two steps leaves a
// document without vectors (harmless) rather than orphaned vectors.
func (s *Service) Delete(ctx context.Context, ownerID string, docID uuid.UUID) error {
	unlock := s.lockDocument(docID)
	defer unlock()

	doc, err := s.store.Get(ctx, ownerID, docID)
	if err != nil {
		return err
	}
	if _, err := s.index.DeleteByDocument(ctx, doc.Category, docID.String()); err != nil {
		return fmt.Errorf("removing vectors of %s: %w", docID, err)
	}
	if _, err := s.store.Delete(ctx, ownerID, docID); err != nil {
		return fmt.Errorf("removing document %s: %w", docID, err)
	}

	s.logger.Info("document deleted", "document", docID, "owner", ownerID, "category", doc.Category)
	return nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, ownerID string, docID uuid.UUID) (document.Document, error) {
	return s.store.Get(ctx, ownerID, docID)
}

// ListDocuments returns the owner's documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, ownerID string) ([]document.Document, error) {
	return s.store.List(ctx, ownerID)
}

// Categories returns the owner's known category set.
func (s *Service) Categories(ctx context.Context, ownerID string) ([]string, error) {
	return s.store.Categories(ctx, ownerID)
}

// CreateCategory registers an empty category.
func (s *Service) CreateCategory(ctx context.Context, ownerID, name string) (string, error) {
	slug, err := Slugify(name)
	if err != nil {
		return "", err
	}
	if err := s.store.CreateCategory(ctx, ownerID, slug); err != nil {
		return "", err
	}
	return slug, nil
}

// MaxUploadBytes reports the configured upload size limit.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxBytes
}

// CheckConsistency reports vectors with no backing chunk record.
func (s *Service) CheckConsistency(ctx context.Context) ([]vector.Orphan, error) {
	return vector.CheckConsistency(ctx, s.index, s.store)
}

// lockDocument serializes writers of one document id.
func (s *Service) lockDocument(id uuid.UUID) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		if s.locks == nil {
			s.locks = make(map[uuid.UUID]*sync.Mutex)
		}
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// extractText converts file bytes to plain text by extension.
func extractText(ext string, data []byte) (string, error) {
	switch ext {
	case ".txt", ".md":
		return string(data), nil
	case ".html", ".htm":
		// readability resolves relative links against the page URL; a
		// placeholder serves for uploaded files.
		base, _ := url.Parse("https://upload.local/")
		article, err := readability.FromReader(bytes.NewReader(data), base)
		if err != nil {
			return "", fmt.Errorf("extracting html text: %w", err)
		}
		return article.TextContent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
}

// Slugify normalizes a category name to its slug: lowercase, words joined
// by single dashes, everything but letters and digits dropped.
func Slugify(name string) (string, error) {
	var sb strings.Builder
	lastDash := true // suppress leading dashes
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimRight(sb.String(), "-")
	if slug == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, name)
	}
	return slug, nil
}
