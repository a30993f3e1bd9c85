// Package retrieve turns a routed query into a deduplicated, ranked set of
// chunks with citation metadata.
//
// Pipeline: embed the query, over-fetch candidates from the vector index,
// then suppress near-duplicates: two chunks whose pairwise similarity
// exceeds the threshold are considered the same content, and only the
// higher-ranked one survives. The over-fetch refills topK from the
// next-best unique candidates, so dedup does not shrink the result.
package retrieve

import (
	"context"
	"fmt"

	"github.com/deskwise/deskwise/internal/log"
	"github.com/deskwise/deskwise/internal/vector"
)

// DefaultDuplicateThreshold is the pairwise similarity above which two
// chunks count as near-duplicates. Overlapping chunks of the same
// document typically land around 0.8; verbatim re-uploads exceed 0.98.
const DefaultDuplicateThreshold = 0.95

// overfetchFactor controls how many candidates are pulled per requested
// result so dedup can refill.
const overfetchFactor = 3

// Embedder is the query-embedding dependency.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is one retrieved chunk with its citation metadata.
type Result struct {
	ChunkID    string
	DocumentID string
	Content    string
	Score      float32
}

// Retriever queries one category of the vector index.
type Retriever struct {
	embedder  Embedder
	index     vector.Index
	threshold float32
	logger    log.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithDuplicateThreshold overrides the near-duplicate similarity cutoff.
func WithDuplicateThreshold(t float32) Option {
	return func(r *Retriever) { r.threshold = t }
}

// New creates a Retriever. A nil logger discards output.
func New(embedder Embedder, index vector.Index, logger log.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	r := &Retriever{
		embedder:  embedder,
		index:     index,
		threshold: DefaultDuplicateThreshold,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK deduplicated chunks for the query. An empty
// category or a category with no indexed content yields an empty result,
// not an error.
func (r *Retriever) Retrieve(ctx context.Context, category, query string, topK int) ([]Result, error) {
	if category == "" || topK <= 0 {
		return nil, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	candidates, err := r.index.Search(ctx, category, queryVec, topK*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("searching category %q: %w", category, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	kept, err := r.dedupe(candidates, topK)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("retrieval complete",
		"category", category,
		"candidates", len(candidates),
		"kept", len(kept),
	)

	results := make([]Result, len(kept))
	for i, h := range kept {
		results[i] = Result{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Content:    h.Content,
			Score:      h.Score,
		}
	}
	return results, nil
}

// dedupe walks candidates in rank order, keeping a hit only if it is not a
// near-duplicate of any already-kept hit.
func (r *Retriever) dedupe(candidates []vector.Hit, topK int) ([]vector.Hit, error) {
	kept := make([]vector.Hit, 0, topK)
	for _, cand := range candidates {
		duplicate := false
		for _, k := range kept {
			sim, err := vector.Cosine(cand.Vector, k.Vector)
			if err != nil {
				return nil, fmt.Errorf("comparing %s with %s: %w", cand.ChunkID, k.ChunkID, err)
			}
			if sim > r.threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, cand)
		if len(kept) == topK {
			break
		}
	}
	return kept, nil
}
