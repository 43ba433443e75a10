package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dockhand-sh/dockhand/pkg/errors"
	"github.com/dockhand-sh/dockhand/pkg/logger"
)

const (
	// defaultCommandTimeout bounds a single captured command run.
	defaultCommandTimeout = 2 * time.Minute

	// maxCapturedBytes caps how much combined output a run keeps.
	maxCapturedBytes = 256 << 10 // 256 KB
)

// ShellTerminal runs commands through the system shell inside the
// workspace. Captured runs are serialized so read_output always refers to
// a single, coherent last invocation.
type ShellTerminal struct {
	root    string
	timeout time.Duration

	mu         sync.Mutex
	lastOutput string
	lastCmd    string
}

// NewShellTerminal creates a terminal executor whose default working
// directory is the workspace root.
func NewShellTerminal(root string) *ShellTerminal {
	return &ShellTerminal{root: root, timeout: defaultCommandTimeout}
}

// Run executes command with `sh -c` in cwd (or the workspace root when cwd
// is empty). When captureOutput is true the combined output is returned and
// retained for ReadLastOutput; otherwise the command is fire-and-forget and
// only a confirmation string is returned.
func (t *ShellTerminal) Run(ctx context.Context, command, cwd string, captureOutput bool) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", errors.NewValidationError("command must not be empty", nil)
	}

	dir, err := t.resolveCwd(cwd)
	if err != nil {
		return "", err
	}

	if !captureOutput {
		// Detached run: the command outlives the tool call.
		cmd := exec.Command("sh", "-c", command)
		cmd.Dir = dir
		if err := cmd.Start(); err != nil {
			return "", mapExecError(command, err)
		}
		go func() {
			if err := cmd.Wait(); err != nil {
				logger.Debugf("detached command %q finished with error: %v", command, err)
			}
		}()
		return fmt.Sprintf("Started: %s", command), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()

	if len(out) > maxCapturedBytes {
		out = out[len(out)-maxCapturedBytes:]
	}
	t.lastCmd = command
	t.lastOutput = string(out)

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return t.lastOutput, errors.NewNonZeroExitError(
				fmt.Sprintf("command timed out after %s", t.timeout), err)
		}
		return t.lastOutput, mapExecError(command, err)
	}
	return t.lastOutput, nil
}

// resolveCwd maps the cwd argument into the workspace, under the same
// escape rules WorkspaceFiles applies to file paths. An empty cwd means
// the workspace root.
func (t *ShellTerminal) resolveCwd(cwd string) (string, error) {
	if cwd == "" {
		return t.root, nil
	}
	if filepath.IsAbs(cwd) || !filepath.IsLocal(cwd) {
		return "", errors.NewOutOfScopePathError(fmt.Sprintf("cwd %q escapes the workspace", cwd), nil)
	}
	return filepath.Join(t.root, cwd), nil
}

// ReadLastOutput returns up to maxLines trailing lines from the most
// recent captured run.
func (t *ShellTerminal) ReadLastOutput(maxLines int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastCmd == "" {
		return "", errors.NewFileNotFoundError("no command output captured yet", nil)
	}
	out := t.lastOutput
	if maxLines > 0 {
		lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
		if len(lines) > maxLines {
			lines = lines[len(lines)-maxLines:]
		}
		out = strings.Join(lines, "\n")
	}
	return out, nil
}

// mapExecError converts exec failures into the typed errors surfaced to
// tool callers. A non-zero exit is a distinct kind because it usually means
// the command ran and the output is still worth reading.
func mapExecError(command string, err error) error {
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return errors.NewNonZeroExitError(
			fmt.Sprintf("command exited with status %d", exitErr.ExitCode()), err)
	}
	var execErr *exec.Error
	if stderrors.As(err, &execErr) {
		return errors.NewFileNotFoundError(fmt.Sprintf("command not found: %s", execErr.Name), err)
	}
	return errors.NewInternalError(fmt.Sprintf("failed to run %q", command), err)
}
