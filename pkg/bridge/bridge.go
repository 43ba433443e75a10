// Package bridge translates validated tool calls into calls against the
// external file and terminal executors. It performs no policy of its own:
// schema validation happens before it and approval gating happens above it,
// and executor failures pass through with their distinguishing kind intact.
package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/dockhand-sh/dockhand/pkg/errors"
)

// Canonical tool names served by the bridge.
const (
	ToolCreateFile  = "create_file"
	ToolUpdateFile  = "update_file"
	ToolDeleteFile  = "delete_file"
	ToolReadFile    = "read_file"
	ToolSearchFiles = "search_files"
	ToolListFiles   = "list_files"
	ToolRunCommand  = "run_command"
	ToolReadOutput  = "read_output"
)

// FileEntry is one workspace file as reported by List.
type FileEntry struct {
	Path     string `json:"path"`
	Readable bool   `json:"readable"`
}

// FileExecutor performs workspace file operations. All paths are relative;
// implementations must reject paths that escape the workspace root.
type FileExecutor interface {
	CreateOrOverwrite(ctx context.Context, path, content string) error
	Update(ctx context.Context, path, content string) error
	Delete(ctx context.Context, path string) error
	Read(ctx context.Context, path string) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
	Search(ctx context.Context, query string, max int) ([]string, error)
	List(ctx context.Context, max int) ([]FileEntry, error)
}

// TerminalExecutor runs shell commands in the workspace.
type TerminalExecutor interface {
	Run(ctx context.Context, command, cwd string, captureOutput bool) (string, error)
	ReadLastOutput(maxLines int) (string, error)
}

// Bridge adapts validated tool input to executor calls.
type Bridge struct {
	files    FileExecutor
	terminal TerminalExecutor
}

// New creates an execution bridge over the given executors.
func New(files FileExecutor, terminal TerminalExecutor) *Bridge {
	return &Bridge{files: files, terminal: terminal}
}

// FileExists reports whether the workspace file at path currently exists.
// Used by the gating layer to distinguish a fresh create from an overwrite,
// so it must not depend on the file being readable: a file too large or too
// restricted to read still exists. When existence cannot be determined at
// all, the answer is "exists" so the operation gets gated rather than
// silently clobbering something.
func (b *Bridge) FileExists(ctx context.Context, path string) bool {
	exists, err := b.files.Exists(ctx, path)
	if err != nil {
		return true
	}
	return exists
}

// Execute routes a validated tool call to the matching executor operation.
func (b *Bridge) Execute(ctx context.Context, toolName string, input map[string]any) (string, error) {
	switch toolName {
	case ToolCreateFile:
		path := strArg(input, "path")
		if err := b.files.CreateOrOverwrite(ctx, path, strArg(input, "content")); err != nil {
			return "", err
		}
		return fmt.Sprintf("Wrote %s", path), nil

	case ToolUpdateFile:
		path := strArg(input, "path")
		if err := b.files.Update(ctx, path, strArg(input, "content")); err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated %s", path), nil

	case ToolDeleteFile:
		path := strArg(input, "path")
		if err := b.files.Delete(ctx, path); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted %s", path), nil

	case ToolReadFile:
		return b.files.Read(ctx, strArg(input, "path"))

	case ToolSearchFiles:
		paths, err := b.files.Search(ctx, strArg(input, "query"), intArg(input, "max_results", 100))
		if err != nil {
			return "", err
		}
		if len(paths) == 0 {
			return "No matching files found.", nil
		}
		return joinLines(paths), nil

	case ToolListFiles:
		entries, err := b.files.List(ctx, intArg(input, "max_results", 200))
		if err != nil {
			return "", err
		}
		lines := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Readable {
				lines = append(lines, e.Path)
			} else {
				lines = append(lines, e.Path+" (not readable)")
			}
		}
		if len(lines) == 0 {
			return "The workspace is empty.", nil
		}
		return joinLines(lines), nil

	case ToolRunCommand:
		return b.terminal.Run(ctx, strArg(input, "command"), strArg(input, "cwd"), boolArg(input, "capture_output", true))

	case ToolReadOutput:
		return b.terminal.ReadLastOutput(intArg(input, "max_lines", 100))

	default:
		return "", errors.NewUnknownToolError(fmt.Sprintf("no executor operation for tool %q", toolName), nil)
	}
}

func strArg(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// intArg reads a numeric argument. JSON numbers decode as float64.
func intArg(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func boolArg(m map[string]any, key string, def bool) bool {
	v, ok := m[key].(bool)
	if !ok {
		return def
	}
	return v
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
