// Package router classifies a free-text query into one of the known
// knowledge categories, or "none" when nothing plausibly matches.
//
// The model must answer with a single JSON object; anything else counts
// as malformed output and is retried once. A second malformed answer
// degrades to "none" with an explanatory rationale rather than an error,
// so a flaky model can never crash a turn.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/deskwise/deskwise/internal/log"
)

// None is the sentinel category for "no category matches".
const None = "none"

// Decision is the routing outcome.
type Decision struct {
	Category   string  // routed category slug; empty when None is true
	None       bool    // no category plausibly matches
	Confidence float64 // model-reported, [0,1]
	Rationale  string
}

// modelAnswer is the JSON contract the model must follow.
type modelAnswer struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

const systemPrompt = `You are a routing classifier for a knowledge base split into categories.
Given a user query and the list of known categories, pick the single category whose documents
should be searched, or "none" if no category plausibly contains the answer.

Respond with exactly one JSON object, no prose, no code fences:
{"category": "<one of the known categories or none>", "confidence": <0.0-1.0>, "rationale": "<one short sentence>"}`

// Router routes queries through an LLM.
type Router struct {
	g      *genkit.Genkit
	model  ai.Model
	logger log.Logger
}

// New creates a Router. A nil logger discards output.
func New(g *genkit.Genkit, model ai.Model, logger log.Logger) *Router {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Router{g: g, model: model, logger: logger}
}

// Route classifies query against known. An empty known set short-circuits
// to None without a model call. The returned category is always drawn
// from known; out-of-set model answers are treated as malformed.
func (r *Router) Route(ctx context.Context, query string, known []string) (Decision, error) {
	if len(known) == 0 {
		return Decision{None: true, Rationale: "no categories exist"}, nil
	}

	knownSet := make(map[string]bool, len(known))
	for _, c := range known {
		knownSet[c] = true
	}

	prompt := fmt.Sprintf("Known categories: %s\n\nQuery: %s", strings.Join(known, ", "), query)

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := genkit.Generate(ctx, r.g,
			ai.WithModel(r.model),
			ai.WithSystem(systemPrompt),
			ai.WithPrompt(prompt),
		)
		if err != nil {
			return Decision{}, fmt.Errorf("routing query: %w", err)
		}

		decision, err := parseAnswer(resp.Text(), knownSet)
		if err == nil {
			r.logger.Debug("query routed",
				"category", decision.Category,
				"none", decision.None,
				"confidence", decision.Confidence,
			)
			return decision, nil
		}
		lastErr = err
		r.logger.Warn("malformed routing answer", "attempt", attempt, "error", err)
	}

	// Degrade rather than fail: an unroutable query behaves like a miss.
	return Decision{
		None:      true,
		Rationale: fmt.Sprintf("router output invalid: %v", lastErr),
	}, nil
}

// parseAnswer decodes the model's JSON and enforces category membership.
func parseAnswer(text string, known map[string]bool) (Decision, error) {
	raw := extractJSON(text)
	if raw == "" {
		return Decision{}, fmt.Errorf("no JSON object in answer %q", truncate(text, 120))
	}

	var ans modelAnswer
	if err := json.Unmarshal([]byte(raw), &ans); err != nil {
		return Decision{}, fmt.Errorf("decoding answer: %w", err)
	}

	category := strings.ToLower(strings.TrimSpace(ans.Category))
	if ans.Confidence < 0 || ans.Confidence > 1 {
		return Decision{}, fmt.Errorf("confidence %v out of range", ans.Confidence)
	}
	if category == None || category == "" {
		return Decision{None: true, Confidence: ans.Confidence, Rationale: ans.Rationale}, nil
	}
	if !known[category] {
		return Decision{}, fmt.Errorf("category %q not in known set", ans.Category)
	}
	return Decision{Category: category, Confidence: ans.Confidence, Rationale: ans.Rationale}, nil
}

// extractJSON returns the first top-level {...} object in text, tolerating
// surrounding prose and markdown fences.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
