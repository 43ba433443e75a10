package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockhand-sh/dockhand/pkg/errors"
)

func newWorkspace(t *testing.T) *WorkspaceFiles {
	t.Helper()
	w, err := NewWorkspaceFiles(t.TempDir())
	require.NoError(t, err)
	return w
}

func TestNewWorkspaceFilesValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWorkspaceFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = NewWorkspaceFiles(file)
	assert.Error(t, err)
}

func TestCreateUpdateReadDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newWorkspace(t)

	require.NoError(t, w.CreateOrOverwrite(ctx, "sub/dir/a.txt", "first"))

	got, err := w.Read(ctx, "sub/dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	require.NoError(t, w.Update(ctx, "sub/dir/a.txt", "second"))
	got, err = w.Read(ctx, "sub/dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	require.NoError(t, w.Delete(ctx, "sub/dir/a.txt"))
	_, err = w.Read(ctx, "sub/dir/a.txt")
	require.Error(t, err)
	assert.True(t, errors.IsFileNotFound(err))
}

func TestUpdateMissingFile(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	err := w.Update(context.Background(), "nope.txt", "content")
	require.Error(t, err)
	assert.True(t, errors.IsFileNotFound(err))
}

func TestDeleteMissingFile(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	err := w.Delete(context.Background(), "nope.txt")
	require.Error(t, err)
	assert.True(t, errors.IsFileNotFound(err))
}

func TestPathEscapeRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newWorkspace(t)

	tests := []string{
		"../outside.txt",
		"sub/../../outside.txt",
		"/etc/passwd",
		"",
	}
	for _, path := range tests {
		t.Run("path="+path, func(t *testing.T) {
			t.Parallel()

			err := w.CreateOrOverwrite(ctx, path, "x")
			require.Error(t, err)
			assert.True(t, errors.IsOutOfScopePath(err), "got %v", err)

			_, err = w.Read(ctx, path)
			require.Error(t, err)
			assert.True(t, errors.IsOutOfScopePath(err))
		})
	}
}

func TestOverwriteReplacesContent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newWorkspace(t)

	require.NoError(t, w.CreateOrOverwrite(ctx, "a.txt", "old content here"))
	require.NoError(t, w.CreateOrOverwrite(ctx, "a.txt", "new"))

	got, err := w.Read(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newWorkspace(t)

	require.NoError(t, w.CreateOrOverwrite(ctx, "cmd/main.go", "package main"))
	require.NoError(t, w.CreateOrOverwrite(ctx, "pkg/util/util.go", "package util"))
	require.NoError(t, w.CreateOrOverwrite(ctx, "README.md", "# readme"))
	require.NoError(t, w.CreateOrOverwrite(ctx, ".git/config", "[core]"))

	matches, err := w.Search(ctx, ".go", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"cmd/main.go", "pkg/util/util.go"}, matches)

	// Case-insensitive.
	matches, err = w.Search(ctx, "readme", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md"}, matches)

	// .git contents are never reported.
	matches, err = w.Search(ctx, "config", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)

	// The limit bounds the result count.
	matches, err = w.Search(ctx, ".go", 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newWorkspace(t)

	require.NoError(t, w.CreateOrOverwrite(ctx, "a.txt", "hello"))
	require.NoError(t, w.CreateOrOverwrite(ctx, "sub/b.txt", "world"))
	require.NoError(t, w.CreateOrOverwrite(ctx, "node_modules/dep/index.js", "x"))

	entries, err := w.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].Path)
	assert.True(t, entries[0].Readable)
	assert.Equal(t, "sub/b.txt", entries[1].Path)
}

func TestExistsIgnoresReadLimits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newWorkspace(t)

	ok, err := w.Exists(ctx, "absent.bin")
	require.NoError(t, err)
	assert.False(t, ok)

	big := make([]byte, maxReadSize+1)
	require.NoError(t, os.WriteFile(filepath.Join(w.Root(), "big.bin"), big, 0o644))

	_, err = w.Read(ctx, "big.bin")
	require.Error(t, err, "the file is over the read cap")

	ok, err = w.Exists(ctx, "big.bin")
	require.NoError(t, err)
	assert.True(t, ok, "existence must not depend on readability")

	_, err = w.Exists(ctx, "../outside.bin")
	require.Error(t, err)
	assert.True(t, errors.IsOutOfScopePath(err))
}

func TestReadTooLarge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := newWorkspace(t)

	big := make([]byte, maxReadSize+1)
	require.NoError(t, os.WriteFile(filepath.Join(w.Root(), "big.bin"), big, 0o644))

	_, err := w.Read(ctx, "big.bin")
	require.Error(t, err)
	assert.True(t, errors.IsPermissionDenied(err))

	entries, err := w.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Readable)
}
