package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/thiagokokada/git-dig/internal/dig"
)

type gitCLI struct {
	path  string
	trace Tracer
}

func OpenCLI(repoPath string, trace Tracer) (Backend, error) {
	if err := ensureMinGitVersion(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	tmp := &gitCLI{path: abs}
	root, err := tmp.runGitCommand(context.Background(), []string{"rev-parse", "--show-toplevel"}, false, "git rev-parse")
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("open repository: git rev-parse returned empty root")
	}
	return &gitCLI{path: root, trace: trace}, nil
}

func (g *gitCLI) Kind() Kind { return KindCLI }

func (g *gitCLI) RepoPath() string {
	if g == nil {
		return ""
	}
	return g.path
}

func (g *gitCLI) command(ctx context.Context, args []string) *exec.Cmd {
	cmdArgs := append([]string{"--no-pager", "-C", g.path}, args...)
	if g.trace != nil {
		g.trace(append([]string{"git"}, args...))
	}
	return exec.CommandContext(ctx, "git", cmdArgs...)
}

func (g *gitCLI) runGitCommand(ctx context.Context, args []string, allowExit1 bool, context string) (string, error) {
	if g == nil || g.path == "" {
		return "", fmt.Errorf("repository root not set")
	}
	cmd := g.command(ctx, args)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s: %w", context, ctxErr)
		}
		var exitErr *exec.ExitError
		if allowExit1 && errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && stderr.Len() == 0 {
			// treat as success when git diff signals changes via exit code 1
		} else {
			return "", commandError(context, err, stderr.String())
		}
	}
	return stdout.String(), nil
}

func commandError(context string, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if isMissingPath(stderr) {
		return fmt.Errorf("%s: %w: %s", context, dig.ErrPathNotFound, stderr)
	}
	if stderr != "" {
		return fmt.Errorf("%s: %v: %s", context, err, stderr)
	}
	return fmt.Errorf("%s: %w", context, err)
}

// isMissingPath reports whether git refused a pathspec because the file does
// not exist in the requested revision.
func isMissingPath(stderr string) bool {
	return strings.Contains(stderr, "no such path") || strings.Contains(stderr, "does not exist in '")
}
