package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM is a scripted Genkit model. Rules map a substring of the last
// user message to a canned reply, checked in registration order with the
// first match winning. Router tests script JSON routing decisions;
// orchestrator tests script answers and tool requests. Unmatched input
// gets the fallback reply.
//
// Safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	rules    []rule
	fallback string
	calls    []MockCall
}

// rule pairs a lower-cased message substring with its scripted reply and
// any tool requests to emit alongside it.
type rule struct {
	pattern string
	reply   string
	tools   []*ai.ToolRequest
}

// MockCall records one model invocation for assertions on call counts
// and prompts.
type MockCall struct {
	UserMessage string
	Response    string
}

// NewMockLLM creates a scripted model with the given fallback reply.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse scripts a reply for messages containing pattern
// (case-insensitive). Rules are checked in registration order, so script
// the more specific pattern first.
func (m *MockLLM) AddResponse(pattern, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{
		pattern: strings.ToLower(pattern),
		reply:   reply,
	})
}

// AddToolResponse scripts tool requests for messages containing pattern.
// The reply text is carried in the same response, after the tool parts.
func (m *MockLLM) AddToolResponse(pattern string, tools []*ai.ToolRequest, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{
		pattern: strings.ToLower(pattern),
		reply:   reply,
		tools:   tools,
	})
}

// Calls returns a copy of every recorded invocation, oldest first.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// RegisterModel registers the script as the Genkit model
// "mock/test-model". One mock per Genkit instance: tests that need
// independently scripted router and generator models give each its own
// instance.
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
			Media:      false,
		},
	}, m.generate)
}

func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	query := lastUserText(req)

	m.mu.Lock()
	reply := m.fallback
	var toolReqs []*ai.ToolRequest
	lower := strings.ToLower(query)
	for i := range m.rules {
		if strings.Contains(lower, m.rules[i].pattern) {
			reply = m.rules[i].reply
			toolReqs = m.rules[i].tools
			break
		}
	}
	m.calls = append(m.calls, MockCall{UserMessage: query, Response: reply})
	m.mu.Unlock()

	if cb != nil {
		_ = cb(ctx, &ai.ModelResponseChunk{
			Content: []*ai.Part{ai.NewTextPart(reply)},
		})
	}

	// Tool request parts precede the text part, mirroring how providers
	// return tool calls when asked to hand them back unexecuted.
	parts := make([]*ai.Part, 0, len(toolReqs)+1)
	for _, tr := range toolReqs {
		parts = append(parts, &ai.Part{
			Kind:        ai.PartToolRequest,
			ToolRequest: tr,
		})
	}
	parts = append(parts, ai.NewTextPart(reply))

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: parts,
		},
	}, nil
}

// lastUserText returns the text of the most recent user message. Rules
// match only against this, so scripted replies track the turn being
// answered and not the whole transcript.
func lastUserText(req *ai.ModelRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			return req.Messages[i].Text()
		}
	}
	return ""
}

// MockEmbedder is a deterministic Genkit embedder. Unknown content hashes
// to a stable unit vector; SetVector pins chosen inputs so tests control
// the exact cosine similarity between them, which is how dedup and
// ranking scenarios are staged.
//
// Safe for concurrent use.
type MockEmbedder struct {
	mu     sync.Mutex
	pinned map[string][]float32
	dim    int
}

// NewMockEmbedder creates an embedder producing vectors of length dim.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		pinned: make(map[string][]float32),
		dim:    dim,
	}
}

// SetVector pins the vector returned for content. Pin near-parallel
// vectors to make two chunks read as near-duplicates, orthogonal ones to
// keep them distinct.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned[content] = vec
}

// RegisterEmbedder registers the mock as the Genkit embedder
// "mock/test-embedder".
func (e *MockEmbedder) RegisterEmbedder(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/test-embedder", &ai.EmbedderOptions{
		Label:      "Mock Test Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		embeddings[i] = &ai.Embedding{
			Embedding: e.vectorFor(documentText(doc)),
		}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func (e *MockEmbedder) vectorFor(content string) []float32 {
	e.mu.Lock()
	v, ok := e.pinned[content]
	e.mu.Unlock()
	if ok {
		return v
	}
	return deterministicVector(content, e.dim)
}

// documentText concatenates the text parts of a Document.
func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// deterministicVector derives a unit vector from content by chaining
// SHA-256 digests, four bytes per component. Unit length makes cosine
// similarity the plain dot product, which keeps hand-checked test scores
// simple.
func deterministicVector(content string, dim int) []float32 {
	vec := make([]float32, dim)
	digest := sha256.Sum256([]byte(content))
	buf := digest[:]
	for i := range vec {
		if len(buf) < 4 {
			digest = sha256.Sum256(digest[:])
			buf = digest[:]
		}
		bits := binary.LittleEndian.Uint32(buf[:4])
		buf = buf[4:]
		// Spread each component across [-1, 1].
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if n := math.Sqrt(norm); n > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / n)
		}
	}
	return vec
}
