// Package tools implements the tool registry and the dispatch path that
// validates, invokes and normalizes tool calls.
package tools

import (
	"context"
	"encoding/json"
)

// Handler executes a tool with input that has already passed schema
// validation. It returns a textual result or a failure. Handlers must not
// depend on registry internals so the same handler can serve every session.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Definition describes a registrable capability: a unique name, a
// human-readable description, the JSON schema its input is validated
// against, and the handler invoked with validated input.
type Definition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}
