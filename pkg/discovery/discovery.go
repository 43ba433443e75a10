// Package discovery maintains the server discovery file that editor
// clients read to find running MCP servers. The file is ordinary JSON with
// comments tolerated, shared between processes under a file lock.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/tailscale/hujson"

	"github.com/dockhand-sh/dockhand/pkg/logger"
)

const (
	// FileName is the discovery file name inside the config directory.
	FileName = "servers.json"

	// lockTimeout is the maximum time to wait for the file lock.
	lockTimeout = 1 * time.Second

	serversPathPrefix = "/mcpServers"
)

// HostGatewayAlias is the hostname a containerized peer uses to reach
// services on the host's loopback interface.
const HostGatewayAlias = "host.docker.internal"

// Entry describes one server in the discovery file. ContainerURL is the
// same endpoint addressed through the host-gateway alias, for peers that
// run inside a container and cannot reach the host's loopback directly.
type Entry struct {
	URL          string `json:"url"`
	ContainerURL string `json:"containerUrl,omitempty"`
	Type         string `json:"type,omitempty"`
	PID          int    `json:"pid,omitempty"`
}

// File edits a discovery file in place.
type File struct {
	path string
}

// NewFile creates an editor for the discovery file at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the discovery file location.
func (f *File) Path() string {
	return f.path
}

// Upsert inserts or replaces the entry for serverName.
func (f *File) Upsert(serverName string, entry Entry) error {
	return f.withLock(func() error {
		content, err := os.ReadFile(f.path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read discovery file: %w", err)
		}
		if len(content) == 0 {
			content = []byte(`{"mcpServers":{}}`)
		}

		v, err := hujson.Parse(content)
		if err != nil {
			return fmt.Errorf("failed to parse discovery file: %w", err)
		}

		entryJSON, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal server entry: %w", err)
		}

		patch := fmt.Sprintf(`[{ "op": "add", "path": "%s/%s", "value": %s }]`,
			serversPathPrefix, serverName, entryJSON)
		if err := v.Patch([]byte(patch)); err != nil {
			return fmt.Errorf("failed to patch discovery file: %w", err)
		}

		formatted, err := hujson.Format(v.Pack())
		if err != nil {
			return fmt.Errorf("failed to format discovery file: %w", err)
		}
		if err := atomicWrite(f.path, formatted); err != nil {
			return err
		}

		logger.Debugf("Discovery file updated: %s -> %s", serverName, entry.URL)
		return nil
	})
}

// Remove deletes the entry for serverName. Removing an absent entry is a
// no-op, so shutdown paths can call it unconditionally.
func (f *File) Remove(serverName string) error {
	return f.withLock(func() error {
		content, err := os.ReadFile(f.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to read discovery file: %w", err)
		}
		if len(content) == 0 {
			return nil
		}

		v, err := hujson.Parse(content)
		if err != nil {
			return fmt.Errorf("failed to parse discovery file: %w", err)
		}

		patch := fmt.Sprintf(`[{ "op": "remove", "path": "%s/%s" }]`, serversPathPrefix, serverName)
		if err := v.Patch([]byte(patch)); err != nil {
			if strings.Contains(err.Error(), "value not found") || strings.Contains(err.Error(), "path not found") {
				return nil
			}
			return fmt.Errorf("failed to patch discovery file: %w", err)
		}

		formatted, err := hujson.Format(v.Pack())
		if err != nil {
			return fmt.Errorf("failed to format discovery file: %w", err)
		}
		return atomicWrite(f.path, formatted)
	})
}

// Servers returns the current discovery file contents.
func (f *File) Servers() (map[string]Entry, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read discovery file: %w", err)
	}

	standardized, err := hujson.Standardize(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse discovery file: %w", err)
	}

	var doc struct {
		MCPServers map[string]Entry `json:"mcpServers"`
	}
	if err := json.Unmarshal(standardized, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery file: %w", err)
	}
	if doc.MCPServers == nil {
		doc.MCPServers = map[string]Entry{}
	}
	return doc.MCPServers, nil
}

// withLock runs fn while holding an advisory lock next to the file.
func (f *File) withLock(fn func() error) error {
	lockPath := f.path + ".lock"
	fileLock := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock: timeout after %v", lockTimeout)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			logger.Warnf("Failed to release discovery file lock: %v", err)
		}
	}()

	return fn()
}

// atomicWrite replaces path via a temp file and rename so readers never
// observe a partially written discovery file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".servers-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set temp file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace discovery file: %w", err)
	}
	return nil
}
