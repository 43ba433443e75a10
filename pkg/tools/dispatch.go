package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dockhand-sh/dockhand/pkg/logger"
	"github.com/dockhand-sh/dockhand/pkg/telemetry"
)

// Dispatch validates rawInput against the named tool's schema and invokes
// its handler, normalizing the outcome into a call-tool result envelope.
// The handler is never invoked when validation fails; an unknown name
// yields a tool-not-found error envelope. A panicking handler degrades to
// an error envelope instead of taking down the session.
func (r *Registry) Dispatch(ctx context.Context, name string, rawInput map[string]any) *mcp.CallToolResult {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		telemetry.ToolCalls.WithLabelValues(name, telemetry.OutcomeUnknownTool).Inc()
		return mcp.NewToolResultError(fmt.Sprintf("tool %q not found", name))
	}
	return r.invoke(ctx, e, rawInput)
}

// handlerFor wraps an entry's handler with schema validation, panic
// recovery and envelope normalization. This is the handler registered on
// every per-session tool server, so dispatch behaves identically across
// sessions.
func (r *Registry) handlerFor(e *entry) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return r.invoke(ctx, e, req.GetArguments()), nil
	}
}

func (r *Registry) invoke(ctx context.Context, e *entry, rawInput map[string]any) (result *mcp.CallToolResult) {
	name := e.def.Name

	// A misbehaving tool must degrade to a visible error, not crash the
	// session or the server.
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorw("tool handler panicked", "tool", name, "panic", rec)
			telemetry.ToolCalls.WithLabelValues(name, telemetry.OutcomeError).Inc()
			result = mcp.NewToolResultError(fmt.Sprintf("tool %q failed: %v", name, rec))
		}
	}()

	if rawInput == nil {
		rawInput = map[string]any{}
	}

	if e.schema != nil {
		if msg, ok := validateInput(e.schema, rawInput); !ok {
			telemetry.ToolCalls.WithLabelValues(name, telemetry.OutcomeInvalid).Inc()
			return mcp.NewToolResultError(msg)
		}
	}

	out, err := e.def.Handler(ctx, rawInput)
	if err != nil {
		telemetry.ToolCalls.WithLabelValues(name, telemetry.OutcomeError).Inc()
		return mcp.NewToolResultError(err.Error())
	}

	telemetry.ToolCalls.WithLabelValues(name, telemetry.OutcomeSuccess).Inc()
	return mcp.NewToolResultText(out)
}

// validateInput checks args against the compiled schema. On failure it
// returns a message naming the offending fields.
func validateInput(schema *gojsonschema.Schema, args map[string]any) (string, bool) {
	res, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Sprintf("input validation failed: %v", err), false
	}
	if res.Valid() {
		return "", true
	}

	details := make([]string, 0, len(res.Errors()))
	for _, verr := range res.Errors() {
		details = append(details, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}
	return "input validation failed: " + strings.Join(details, "; "), false
}
