// Package executor provides the local implementations of the file and
// terminal executors the bridge calls into. The core only depends on the
// interfaces in pkg/bridge; this package is what the CLI wires in.
package executor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dockhand-sh/dockhand/pkg/bridge"
	"github.com/dockhand-sh/dockhand/pkg/errors"
)

// maxReadSize caps how much of a file Read will return.
const maxReadSize = 1 << 20 // 1 MB

// skipDirs are never descended into by Search and List.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".idea":        true,
}

// WorkspaceFiles is a FileExecutor rooted at a workspace directory. Every
// path argument is interpreted relative to the root, and paths that would
// escape it are rejected with an out-of-scope error.
type WorkspaceFiles struct {
	root string
}

// NewWorkspaceFiles creates a file executor rooted at root, which must be
// an existing directory.
func NewWorkspaceFiles(root string) (*WorkspaceFiles, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return &WorkspaceFiles{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *WorkspaceFiles) Root() string {
	return w.root
}

// resolve maps a relative path into the workspace, rejecting absolute
// paths and any traversal that would leave the root.
func (w *WorkspaceFiles) resolve(rel string) (string, error) {
	if rel == "" {
		return "", errors.NewOutOfScopePathError("path must not be empty", nil)
	}
	if filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", errors.NewOutOfScopePathError(fmt.Sprintf("path %q escapes the workspace", rel), nil)
	}
	return filepath.Join(w.root, rel), nil
}

// CreateOrOverwrite writes content to path, creating parent directories as
// needed and replacing any existing file.
func (w *WorkspaceFiles) CreateOrOverwrite(_ context.Context, path, content string) error {
	abs, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return mapFSError(path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return mapFSError(path, err)
	}
	return nil
}

// Update replaces the content of an existing file; it fails with a
// not-found error if the file does not exist.
func (w *WorkspaceFiles) Update(_ context.Context, path, content string) error {
	abs, err := w.resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return mapFSError(path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return mapFSError(path, err)
	}
	return nil
}

// Delete removes the file at path.
func (w *WorkspaceFiles) Delete(_ context.Context, path string) error {
	abs, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return mapFSError(path, err)
	}
	return nil
}

// Exists reports whether anything is present at path. The check is a pure
// stat so it holds for files that Read would refuse, such as oversized or
// unreadable ones.
func (w *WorkspaceFiles) Exists(_ context.Context, path string) (bool, error) {
	abs, err := w.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, mapFSError(path, err)
	}
	return true, nil
}

// Read returns the content of the file at path, capped at maxReadSize.
func (w *WorkspaceFiles) Read(_ context.Context, path string) (string, error) {
	abs, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", mapFSError(path, err)
	}
	if info.IsDir() {
		return "", errors.NewFileNotFoundError(fmt.Sprintf("%s is a directory", path), nil)
	}
	if info.Size() > maxReadSize {
		return "", errors.NewPermissionDeniedError(fmt.Sprintf("%s is too large to read (%d bytes)", path, info.Size()), nil)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", mapFSError(path, err)
	}
	return string(data), nil
}

// Search returns up to max workspace-relative paths whose name contains
// query, case-insensitively.
func (w *WorkspaceFiles) Search(ctx context.Context, query string, max int) ([]string, error) {
	if max <= 0 {
		max = 100
	}
	needle := strings.ToLower(query)

	var matches []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		if strings.Contains(strings.ToLower(rel), needle) {
			matches = append(matches, filepath.ToSlash(rel))
			if len(matches) >= max {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// List returns up to max workspace files together with whether each is
// small enough to be read through the read_file tool.
func (w *WorkspaceFiles) List(ctx context.Context, max int) ([]bridge.FileEntry, error) {
	if max <= 0 {
		max = 200
	}

	var entries []bridge.FileEntry
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		readable := false
		if info, infoErr := d.Info(); infoErr == nil {
			readable = info.Mode().IsRegular() && info.Size() <= maxReadSize
		}
		entries = append(entries, bridge.FileEntry{Path: filepath.ToSlash(rel), Readable: readable})
		if len(entries) >= max {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// mapFSError converts os-level failures into the typed executor errors the
// dispatch layer reports upward.
func mapFSError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.NewFileNotFoundError(fmt.Sprintf("file %s does not exist", path), err)
	case os.IsPermission(err):
		return errors.NewPermissionDeniedError(fmt.Sprintf("permission denied for %s", path), err)
	default:
		return errors.NewInternalError(fmt.Sprintf("file operation on %s failed", path), err)
	}
}
