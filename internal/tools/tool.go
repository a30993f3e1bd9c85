// Package tools provides the typed tool registry and executor the
// orchestrator invokes on behalf of the model.
//
// Each tool declares a name, a description the model sees, a JSON schema
// derived from its input type, and an idempotency classification. The
// executor enforces the side-effect contract: a side-effecting tool runs
// at most once per orchestrator iteration, with retries replaying the
// recorded result instead of re-invoking the tool.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"
)

// Idempotency classifies a tool's side-effect behavior.
type Idempotency int

const (
	// Idempotent tools are safe to retry; repeated calls with the same
	// input observe the same world.
	Idempotent Idempotency = iota
	// SideEffecting tools mutate external state and must run at most
	// once per orchestrator iteration.
	SideEffecting
)

// Tool is a registered, executable tool.
type Tool struct {
	name        string
	description string
	idempotency Idempotency
	schema      *jsonschema.Resolved
	handler     func(context.Context, any) (any, error)
}

// Name returns the tool's unique identifier.
func (t *Tool) Name() string { return t.name }

// Description returns the text the model sees when deciding whether to
// call the tool.
func (t *Tool) Description() string { return t.description }

// Idempotency returns the tool's side-effect classification.
func (t *Tool) Idempotency() Idempotency { return t.idempotency }

// Execute validates input against the tool's schema and runs the handler.
// Input may be the typed value, a map decoded from model JSON, or raw
// JSON bytes.
func (t *Tool) Execute(ctx context.Context, input any) (any, error) {
	if raw, ok := input.(json.RawMessage); ok {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("tool %s: decoding input: %w", t.name, err)
		}
		input = decoded
	}
	if err := t.schema.Validate(input); err != nil {
		return nil, fmt.Errorf("tool %s: invalid input: %w", t.name, err)
	}
	return t.handler(ctx, input)
}

// Define registers the tool with Genkit so its name and description reach
// the model's tool definitions. Execution still goes through Execute; the
// Genkit handler only exists for completeness when a flow runs tools
// directly.
func (t *Tool) Define(g *genkit.Genkit) ai.Tool {
	return genkit.DefineTool(g, t.name, t.description,
		func(tc *ai.ToolContext, input map[string]any) (any, error) {
			return t.Execute(tc.Context, input)
		})
}

// New creates a typed tool. The input schema is derived from In via
// reflection; handler receives a value decoded and validated against it.
// Panics on schema derivation failure, which is a programming error in
// the input type, not a runtime condition.
func New[In, Out any](name, description string, idempotency Idempotency, handler func(context.Context, In) (Out, error)) *Tool {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		panic(fmt.Sprintf("tool %s: deriving input schema: %v", name, err))
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("tool %s: resolving input schema: %v", name, err))
	}

	erased := func(ctx context.Context, input any) (any, error) {
		if typed, ok := input.(In); ok {
			return handler(ctx, typed)
		}
		// Model output arrives as map[string]any; round-trip through
		// JSON to get the typed value.
		raw, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("marshaling input: %w", err)
		}
		var typed In
		if err := json.Unmarshal(raw, &typed); err != nil {
			return nil, fmt.Errorf("coercing input to %T: %w", typed, err)
		}
		return handler(ctx, typed)
	}

	return &Tool{
		name:        name,
		description: description,
		idempotency: idempotency,
		schema:      resolved,
		handler:     erased,
	}
}
