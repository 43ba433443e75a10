package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/dockhand-sh/dockhand/pkg/approval"
	"github.com/dockhand-sh/dockhand/pkg/bridge"
)

// cancelledMessage is the benign result returned when the user declines a
// gated operation. It is an ordinary tool result, not a protocol error.
const cancelledMessage = "Operation cancelled by user."

// BuiltinConfig wires the built-in tool catalog to its collaborators.
type BuiltinConfig struct {
	Bridge *bridge.Bridge
	Gate   *approval.Gate
	Mode   approval.Mode
}

// RegisterBuiltins installs the file and terminal tool catalog into the
// registry. Destructive operations route through the approval gate
// according to the configured mode.
func RegisterBuiltins(r *Registry, cfg BuiltinConfig) {
	b := builtins{cfg: cfg}

	r.MustRegister(Definition{
		Name:        bridge.ToolCreateFile,
		Description: "Create a file in the workspace, or overwrite an existing one. Overwrites require user approval.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Workspace-relative file path"},
				"content": {"type": "string", "description": "Full file content to write"}
			},
			"required": ["path", "content"],
			"additionalProperties": false
		}`),
		Handler: b.createFile,
	})

	r.MustRegister(Definition{
		Name:        bridge.ToolUpdateFile,
		Description: "Replace the content of an existing workspace file. Requires user approval.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Workspace-relative file path"},
				"content": {"type": "string", "description": "Full replacement content"}
			},
			"required": ["path", "content"],
			"additionalProperties": false
		}`),
		Handler: b.updateFile,
	})

	r.MustRegister(Definition{
		Name:        bridge.ToolDeleteFile,
		Description: "Delete a workspace file. Requires user approval.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Workspace-relative file path"}
			},
			"required": ["path"],
			"additionalProperties": false
		}`),
		Handler: b.deleteFile,
	})

	r.MustRegister(Definition{
		Name:        bridge.ToolReadFile,
		Description: "Read the content of a workspace file.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Workspace-relative file path"}
			},
			"required": ["path"],
			"additionalProperties": false
		}`),
		Handler: b.passthrough(bridge.ToolReadFile),
	})

	r.MustRegister(Definition{
		Name:        bridge.ToolSearchFiles,
		Description: "Find workspace files whose path contains the query string.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Substring to match against file paths"},
				"max_results": {"type": "integer", "minimum": 1, "description": "Maximum number of matches to return"}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
		Handler: b.passthrough(bridge.ToolSearchFiles),
	})

	r.MustRegister(Definition{
		Name:        bridge.ToolListFiles,
		Description: "List workspace files and whether each can be read with read_file.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"max_results": {"type": "integer", "minimum": 1, "description": "Maximum number of entries to return"}
			},
			"additionalProperties": false
		}`),
		Handler: b.passthrough(bridge.ToolListFiles),
	})

	r.MustRegister(Definition{
		Name:        bridge.ToolRunCommand,
		Description: "Run a shell command in the workspace. Requires user approval.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "Shell command line to execute"},
				"cwd": {"type": "string", "description": "Working directory, defaults to the workspace root"},
				"capture_output": {"type": "boolean", "description": "Wait for the command and return its output"}
			},
			"required": ["command"],
			"additionalProperties": false
		}`),
		Handler: b.runCommand,
	})

	r.MustRegister(Definition{
		Name:        bridge.ToolReadOutput,
		Description: "Read the trailing output of the most recent captured command run.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"max_lines": {"type": "integer", "minimum": 1, "description": "Maximum number of trailing lines to return"}
			},
			"additionalProperties": false
		}`),
		Handler: b.passthrough(bridge.ToolReadOutput),
	})
}

type builtins struct {
	cfg BuiltinConfig
}

// passthrough returns a handler that forwards straight to the bridge with
// no approval step.
func (b builtins) passthrough(toolName string) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		return b.cfg.Bridge.Execute(ctx, toolName, args)
	}
}

// gated asks the approval gate before forwarding. A cancelled decision is
// reported as an ordinary result so the client can relay it verbatim.
func (b builtins) gated(ctx context.Context, toolName, description string, args map[string]any) (string, error) {
	decision, err := b.cfg.Gate.Request(ctx, uuid.NewString(), ownerFromContext(ctx), description)
	if err != nil {
		return "", err
	}
	if decision != approval.Approved {
		return cancelledMessage, nil
	}
	return b.cfg.Bridge.Execute(ctx, toolName, args)
}

func (b builtins) createFile(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)

	op, verb := approval.OpCreate, "Create"
	if b.cfg.Bridge.FileExists(ctx, path) {
		op, verb = approval.OpOverwrite, "Overwrite"
	}
	if !b.cfg.Mode.Requires(op) {
		return b.cfg.Bridge.Execute(ctx, bridge.ToolCreateFile, args)
	}
	return b.gated(ctx, bridge.ToolCreateFile, fmt.Sprintf("%s file %s", verb, path), args)
}

func (b builtins) updateFile(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	if !b.cfg.Mode.Requires(approval.OpUpdate) {
		return b.cfg.Bridge.Execute(ctx, bridge.ToolUpdateFile, args)
	}
	return b.gated(ctx, bridge.ToolUpdateFile, fmt.Sprintf("Update file %s", path), args)
}

func (b builtins) deleteFile(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	if !b.cfg.Mode.Requires(approval.OpDelete) {
		return b.cfg.Bridge.Execute(ctx, bridge.ToolDeleteFile, args)
	}
	return b.gated(ctx, bridge.ToolDeleteFile, fmt.Sprintf("Delete file %s", path), args)
}

func (b builtins) runCommand(ctx context.Context, args map[string]any) (string, error) {
	command, _ := args["command"].(string)
	if !b.cfg.Mode.Requires(approval.OpCommand) {
		return b.cfg.Bridge.Execute(ctx, bridge.ToolRunCommand, args)
	}
	// The proposal carries the literal command so the user approves
	// exactly what will run.
	return b.gated(ctx, bridge.ToolRunCommand, fmt.Sprintf("Run command: %s", command), args)
}

// ownerFromContext ties a pending approval to the protocol session that
// raised it, so closing the session cancels its outstanding requests.
func ownerFromContext(ctx context.Context) string {
	if cs := mcpserver.ClientSessionFromContext(ctx); cs != nil {
		return cs.SessionID()
	}
	return ""
}
