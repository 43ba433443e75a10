package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, args map[string]any) (string, error) {
	text, _ := args["text"].(string)
	return text, nil
}

func TestRegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name:        "echo",
		Description: "Echo the input back",
		Handler:     echoHandler,
	}))

	def, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", def.Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"echo"}, r.Names())
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	assert.Error(t, r.Register(Definition{Handler: echoHandler}), "empty name")
	assert.Error(t, r.Register(Definition{Name: "no-handler"}), "nil handler")
	assert.Error(t, r.Register(Definition{
		Name:        "bad-schema",
		InputSchema: json.RawMessage(`{"type": 42}`),
		Handler:     echoHandler,
	}), "invalid schema")
}

func TestRegisterReplacesExisting(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name: "dup",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "first", nil
		},
	}))
	require.NoError(t, r.Register(Definition{
		Name: "dup",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "second", nil
		},
	}))

	require.Len(t, r.Names(), 1)

	res := r.Dispatch(context.Background(), "dup", nil)
	require.False(t, res.IsError)
	assert.Equal(t, "second", resultText(t, res))
}

func TestNewSessionServerSubscription(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(Definition{Name: "echo", Handler: echoHandler}))

	srv := r.NewSessionServer("sess-1", "test-server", "0.0.1")
	require.NotNil(t, srv)
	assert.Equal(t, 1, r.SessionCount())

	// Tools registered after the session exists reach it too; the push
	// path is exercised by registering against a live sink.
	require.NoError(t, r.Register(Definition{Name: "late", Handler: echoHandler}))

	r.Unsubscribe("sess-1")
	assert.Equal(t, 0, r.SessionCount())
}
