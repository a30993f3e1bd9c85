package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Text  string `json:"text"`
	Count int    `json:"count,omitempty"`
}

type echoOutput struct {
	Echoed string `json:"echoed"`
}

func newEchoTool() *Tool {
	return New("echo", "Echo the input text.", Idempotent,
		func(_ context.Context, in echoInput) (echoOutput, error) {
			out := in.Text
			for i := 1; i < in.Count; i++ {
				out += " " + in.Text
			}
			return echoOutput{Echoed: out}, nil
		})
}

func TestTool_ExecuteTypedInput(t *testing.T) {
	tool := newEchoTool()
	out, err := tool.Execute(context.Background(), echoInput{Text: "hi", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, echoOutput{Echoed: "hi hi"}, out)
}

func TestTool_ExecuteMapInput(t *testing.T) {
	// Models hand inputs over as decoded JSON maps.
	tool := newEchoTool()
	out, err := tool.Execute(context.Background(), map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, echoOutput{Echoed: "hello"}, out)
}

func TestTool_ExecuteRawJSON(t *testing.T) {
	tool := newEchoTool()
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"text": "raw", "count": 3}`))
	require.NoError(t, err)
	assert.Equal(t, echoOutput{Echoed: "raw raw raw"}, out)
}

func TestTool_SchemaRejectsMissingRequired(t *testing.T) {
	tool := newEchoTool()
	_, err := tool.Execute(context.Background(), map[string]any{"count": 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input")
}

func TestTool_SchemaRejectsWrongType(t *testing.T) {
	tool := newEchoTool()
	_, err := tool.Execute(context.Background(), map[string]any{"text": 42})
	assert.Error(t, err)
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	r.Register(newEchoTool())

	got, err := r.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", got.Name())
	assert.Equal(t, Idempotent, got.Idempotency())

	_, err = r.Get("no-such-tool")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistry_NamesInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, NewMemoryTicketSink())

	assert.Equal(t, []string{ToolConvertCurrency, ToolLookupHolidays, ToolCreateTicket}, r.Names())
}

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry()
	r.Register(newEchoTool())

	out, err := r.Execute(context.Background(), "echo", map[string]any{"text": "x"})
	require.NoError(t, err)
	assert.Equal(t, echoOutput{Echoed: "x"}, out)

	_, err = r.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}
