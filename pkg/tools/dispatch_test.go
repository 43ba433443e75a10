package tools

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestDispatchUnknownTool(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	res := r.Dispatch(context.Background(), "ghost", nil)

	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "not found")
}

func TestDispatchSuccess(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name:    "echo",
		Handler: echoHandler,
	}))

	res := r.Dispatch(context.Background(), "echo", map[string]any{"text": "hello"})
	require.False(t, res.IsError)
	assert.Equal(t, "hello", resultText(t, res))
}

func TestDispatchValidationFailureSkipsHandler(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "strict",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"],
			"additionalProperties": false
		}`),
		Handler: func(context.Context, map[string]any) (string, error) {
			calls.Add(1)
			return "ran", nil
		},
	}))

	tests := []struct {
		name  string
		input map[string]any
	}{
		{"missing required field", map[string]any{}},
		{"wrong type", map[string]any{"path": 42}},
		{"extra property", map[string]any{"path": "a.txt", "bogus": true}},
		{"nil input", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Dispatch(context.Background(), "strict", tt.input)
			require.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), "validation failed")
		})
	}

	assert.Equal(t, int64(0), calls.Load(), "handler must not run on invalid input")

	// The same input with the schema satisfied does run the handler.
	res := r.Dispatch(context.Background(), "strict", map[string]any{"path": "a.txt"})
	require.False(t, res.IsError)
	assert.Equal(t, int64(1), calls.Load())
}

func TestDispatchValidationErrorNamesField(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "named",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"count": {"type": "integer"}},
			"required": ["count"]
		}`),
		Handler: echoHandler,
	}))

	res := r.Dispatch(context.Background(), "named", map[string]any{})
	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "count")
}

func TestDispatchHandlerError(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "failing",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", assert.AnError
		},
	}))

	res := r.Dispatch(context.Background(), "failing", nil)
	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), assert.AnError.Error())
}

func TestDispatchHandlerPanic(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "panicky",
		Handler: func(context.Context, map[string]any) (string, error) {
			panic("boom")
		},
	}))

	res := r.Dispatch(context.Background(), "panicky", nil)
	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "boom")
}
