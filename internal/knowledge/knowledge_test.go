package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskwise/deskwise/internal/document"
	"github.com/deskwise/deskwise/internal/log"
	"github.com/deskwise/deskwise/internal/vector"
)

// stubEmbedder returns a distinct unit vector per input position.
type stubEmbedder struct {
	calls int
	fail  error
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, 8)
		vec[i%8] = 1
		out[i] = vec
	}
	return out, nil
}

type testEnv struct {
	svc      *Service
	store    *document.MemoryStore
	index    *vector.Memory
	embedder *stubEmbedder
}

func newTestEnv(maxBytes int64) *testEnv {
	store := document.NewMemoryStore()
	index := vector.NewMemory()
	embedder := &stubEmbedder{}
	return &testEnv{
		svc:      NewService(store, index, embedder, maxBytes, log.NewNop()),
		store:    store,
		index:    index,
		embedder: embedder,
	}
}

func TestUpload_Markdown(t *testing.T) {
	e := newTestEnv(0)
	ctx := context.Background()

	text := strings.Repeat("Employees accrue vacation days monthly. ", 30)
	doc, err := e.svc.Upload(ctx, UploadInput{
		OwnerID:  "alice",
		Category: "HR Policies",
		Filename: "handbook.md",
		Data:     []byte(text),
	})
	require.NoError(t, err)

	assert.Equal(t, "hr-policies", doc.Category, "category is slugified")
	assert.Positive(t, doc.ChunkCount)
	assert.Equal(t, int64(len(text)), doc.SizeBytes)

	// Chunk ids in the index follow "{document_id}:{index}".
	ids, err := e.index.ChunkIDs(ctx, "hr-policies")
	require.NoError(t, err)
	require.Len(t, ids, doc.ChunkCount)
	for _, id := range ids {
		assert.True(t, strings.HasPrefix(id, doc.ID.String()+":"), "chunk id %q", id)
	}

	stored, err := e.store.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ChunkCount, stored.ChunkCount)

	cats, err := e.svc.Categories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"hr-policies"}, cats)
}

func TestUpload_HTMLExtraction(t *testing.T) {
	e := newTestEnv(0)

	html := `<html><head><title>VPN Guide</title></head><body>
		<article><p>Install the corporate certificate first.</p>
		<p>Then connect through the gateway with your badge credentials and verify the tunnel is active.</p></article>
		</body></html>`
	doc, err := e.svc.Upload(context.Background(), UploadInput{
		OwnerID:  "alice",
		Category: "it",
		Filename: "vpn.html",
		Data:     []byte(html),
	})
	require.NoError(t, err)
	require.Positive(t, doc.ChunkCount)

	chunks, err := e.store.Chunks(context.Background(), doc.ID)
	require.NoError(t, err)
	joined := ""
	for _, c := range chunks {
		joined += c.Content + " "
	}
	assert.Contains(t, joined, "corporate certificate")
	assert.NotContains(t, joined, "<p>", "markup is stripped")
}

func TestUpload_ValidationErrors(t *testing.T) {
	e := newTestEnv(64)
	ctx := context.Background()

	_, err := e.svc.Upload(ctx, UploadInput{
		OwnerID: "alice", Category: "hr", Filename: "report.pdf", Data: []byte("x"),
	})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = e.svc.Upload(ctx, UploadInput{
		OwnerID: "alice", Category: "hr", Filename: "big.txt",
		Data: []byte(strings.Repeat("a", 100)),
	})
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = e.svc.Upload(ctx, UploadInput{
		OwnerID: "alice", Category: "hr", Filename: "blank.txt", Data: []byte("   \n\t "),
	})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = e.svc.Upload(ctx, UploadInput{
		OwnerID: "alice", Category: "***", Filename: "a.txt", Data: []byte("hello world"),
	})
	assert.ErrorIs(t, err, ErrInvalidCategory)

	assert.Zero(t, e.embedder.calls, "validation failures never reach the embedder")
}

func TestUpload_EmbeddingFailureCommitsNothing(t *testing.T) {
	e := newTestEnv(0)
	e.embedder.fail = errors.New("provider unavailable")
	ctx := context.Background()

	_, err := e.svc.Upload(ctx, UploadInput{
		OwnerID: "alice", Category: "hr", Filename: "a.txt",
		Data: []byte("some policy text here"),
	})
	require.Error(t, err)

	docs, err := e.store.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, docs)

	cats, err := e.index.Categories(ctx)
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestDelete_Cascades(t *testing.T) {
	e := newTestEnv(0)
	ctx := context.Background()

	doc, err := e.svc.Upload(ctx, UploadInput{
		OwnerID: "alice", Category: "hr", Filename: "a.md",
		Data: []byte(strings.Repeat("Vacation policy paragraph. ", 40)),
	})
	require.NoError(t, err)

	require.NoError(t, e.svc.Delete(ctx, "alice", doc.ID))

	_, err = e.store.Get(ctx, "alice", doc.ID)
	assert.ErrorIs(t, err, document.ErrNotFound)

	ids, err := e.index.ChunkIDs(ctx, "hr")
	require.NoError(t, err)
	assert.Empty(t, ids, "all vectors removed with the document")

	// Category stays listed for the owner.
	cats, err := e.svc.Categories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"hr"}, cats)

	assert.ErrorIs(t, e.svc.Delete(ctx, "alice", doc.ID), document.ErrNotFound)
}

func TestDelete_WrongOwnerLeavesEverything(t *testing.T) {
	e := newTestEnv(0)
	ctx := context.Background()

	doc, err := e.svc.Upload(ctx, UploadInput{
		OwnerID: "alice", Category: "hr", Filename: "a.md",
		Data: []byte("Vacation policy paragraph with enough words."),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, e.svc.Delete(ctx, "bob", doc.ID), document.ErrNotFound)

	ids, err := e.index.ChunkIDs(ctx, "hr")
	require.NoError(t, err)
	assert.Len(t, ids, doc.ChunkCount)
}

func TestCreateCategory(t *testing.T) {
	e := newTestEnv(0)
	ctx := context.Background()

	slug, err := e.svc.CreateCategory(ctx, "alice", "Legal & Compliance")
	require.NoError(t, err)
	assert.Equal(t, "legal-compliance", slug)

	cats, err := e.svc.Categories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"legal-compliance"}, cats)

	_, err = e.svc.CreateCategory(ctx, "alice", "  !! ")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestCheckConsistency_CleanAfterLifecycle(t *testing.T) {
	e := newTestEnv(0)
	ctx := context.Background()

	doc, err := e.svc.Upload(ctx, UploadInput{
		OwnerID: "alice", Category: "hr", Filename: "a.md",
		Data: []byte(strings.Repeat("Policy text. ", 50)),
	})
	require.NoError(t, err)

	orphans, err := e.svc.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	require.NoError(t, e.svc.Delete(ctx, "alice", doc.ID))
	orphans, err = e.svc.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

// An orphan appears when vectors survive a record delete; the check must
// surface it.
func TestCheckConsistency_DetectsOrphans(t *testing.T) {
	e := newTestEnv(0)
	ctx := context.Background()

	docID := uuid.New()
	require.NoError(t, e.index.Upsert(ctx, "hr", []vector.Entry{{
		ChunkID: docID.String() + ":0", DocumentID: docID.String(),
		Content: "stray", Vector: []float32{1},
	}}))

	orphans, err := e.svc.CheckConsistency(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "hr", orphans[0].Category)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"HR", "hr", false},
		{"HR Policies", "hr-policies", false},
		{"  Legal & Compliance  ", "legal-compliance", false},
		{"it", "it", false},
		{"a--b", "a-b", false},
		{"2024 Budget", "2024-budget", false},
		{"", "", true},
		{"***", "", true},
	}
	for _, tt := range tests {
		got, err := Slugify(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidCategory, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}
