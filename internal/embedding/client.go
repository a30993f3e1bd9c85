// Package embedding wraps a Genkit embedder with the retry, rate-limiting,
// and timeout policy the rest of the system relies on.
//
// Provider outages surface as ErrUnavailable after bounded exponential
// backoff. A batch is always retried as a whole; partial results are never
// returned, so callers can treat a successful EmbedBatch as fully committed.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

// ErrUnavailable indicates the embedding provider could not be reached after
// all retries. Callers should treat the operation as retryable later, not as
// a permanent failure of the input.
var ErrUnavailable = errors.New("embedding provider unavailable")

// RetryConfig configures backoff behavior for provider calls.
type RetryConfig struct {
	MaxAttempts     int           // total attempts including the first
	InitialInterval time.Duration // first backoff delay
	MaxInterval     time.Duration // backoff ceiling
}

// DefaultRetryConfig returns sensible defaults for embedding API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// callTimeout bounds a single provider attempt.
const callTimeout = 30 * time.Second

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// NOTE: string matching is used because Genkit and provider SDKs do not
// expose typed errors for transient failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(errStr, sub) {
				return true
			}
		}
	}
	return false
}

// Client embeds text through a Genkit embedder.
// Safe for concurrent use.
type Client struct {
	embedder ai.Embedder
	retry    RetryConfig
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a Client. A nil limiter gets a default of 10 req/s with burst
// 20; a nil logger uses slog.Default(). Zero-value retry uses defaults.
func New(embedder ai.Embedder, retry RetryConfig, limiter *rate.Limiter, logger *slog.Logger) *Client {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}
	if limiter == nil {
		limiter = rate.NewLimiter(10, 20)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		embedder: embedder,
		retry:    retry,
		limiter:  limiter,
		logger:   logger,
	}
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input text, in input order.
// The whole batch is retried on transient failure; on success the result
// always has len(texts) entries.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := make([]*ai.Document, len(texts))
	for i, t := range texts {
		input[i] = ai.DocumentFromText(t, nil)
	}
	req := &ai.EmbedRequest{Input: input}

	var lastErr error
	delay := c.retry.InitialInterval
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		vecs, err := c.embedOnce(ctx, req, len(texts))
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("embedding batch of %d: %w", len(texts), err)
		}
		if attempt == c.retry.MaxAttempts {
			break
		}

		c.logger.Debug("retrying embedding batch",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during embedding retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("%w: %d attempts failed: %v", ErrUnavailable, c.retry.MaxAttempts, lastErr)
}

// embedOnce performs a single provider call with a per-attempt timeout and
// validates the response shape.
func (c *Client) embedOnce(ctx context.Context, req *ai.EmbedRequest, want int) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := c.embedder.Embed(callCtx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != want {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Embeddings), want)
	}

	vecs := make([][]float32, want)
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at position %d", i)
		}
		vecs[i] = e.Embedding
	}
	return vecs, nil
}
