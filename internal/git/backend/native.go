package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	format "github.com/go-git/go-git/v5/plumbing/format/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/thiagokokada/git-dig/internal/dig"
)

// native implements Backend on top of go-git, without a git executable.
type native struct {
	repo  *gitlib.Repository
	path  string
	trace Tracer
}

func OpenNative(repoPath string, trace Tracer) (Backend, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return &native{repo: repo, path: wt.Filesystem.Root(), trace: trace}, nil
}

func (n *native) Kind() Kind { return KindNative }

func (n *native) RepoPath() string {
	if n == nil {
		return ""
	}
	return n.path
}

// traceOp reports the git command equivalent to what go-git is about to do.
func (n *native) traceOp(args ...string) {
	if n.trace != nil {
		n.trace(append([]string{"git"}, args...))
	}
}

func (n *native) commit(rev string) (*object.Commit, error) {
	if rev == dig.WorkingTree {
		return nil, fmt.Errorf("%s is not a commit", rev)
	}
	hash, err := n.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rev, err)
	}
	c, err := n.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", rev, err)
	}
	return c, nil
}

func (n *native) Resolve(ctx context.Context, rev string) (string, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" {
		return "", fmt.Errorf("revision not specified")
	}
	if rev == dig.WorkingTree {
		return rev, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n.traceOp("rev-parse", "--verify", rev+"^{commit}")
	c, err := n.commit(rev)
	if err != nil {
		return "", err
	}
	return c.Hash.String(), nil
}

func (n *native) Parents(ctx context.Context, rev string) ([]string, error) {
	if rev == dig.WorkingTree {
		head, err := n.Resolve(ctx, "HEAD")
		if err != nil {
			return nil, err
		}
		return []string{head}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.traceOp("rev-parse", rev+"^@")
	c, err := n.commit(rev)
	if err != nil {
		return nil, err
	}
	parents := make([]string, 0, len(c.ParentHashes))
	for _, h := range c.ParentHashes {
		parents = append(parents, h.String())
	}
	return parents, nil
}

func (n *native) DiffText(ctx context.Context, parent, child string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n.traceOp(diffArgs(parent, child)...)
	from, err := n.commit(parent)
	if err != nil {
		return "", err
	}
	if child == dig.WorkingTree {
		return n.worktreeDiff(from)
	}
	to, err := n.commit(child)
	if err != nil {
		return "", err
	}
	patch, err := from.PatchContext(ctx, to)
	if err != nil {
		return "", fmt.Errorf("diff %s..%s: %w", parent, child, err)
	}
	return encodeUnifiedPatch(patch.FilePatches())
}

func (n *native) Summary(ctx context.Context, rev string) (string, error) {
	if rev == dig.WorkingTree {
		return "Local uncommitted changes", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, err := n.commit(rev)
	if err != nil {
		return "", err
	}
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return c.Hash.String()[:n.abbrevLen()] + " " + strings.TrimSpace(subject), nil
}

const defaultAbbrev = 7

// abbrevLen honors a numeric core.abbrev from the repository or global
// config, like git's %h. Unset or "auto" gives git's minimum of seven; git
// may go longer on large repositories.
func (n *native) abbrevLen() int {
	if cfg, err := n.repo.Config(); err == nil {
		if v, ok := parseAbbrev(cfg.Raw); ok {
			return v
		}
	}
	if cfg, err := gitconfig.LoadConfig(gitconfig.GlobalScope); err == nil {
		if v, ok := parseAbbrev(cfg.Raw); ok {
			return v
		}
	}
	return defaultAbbrev
}

func parseAbbrev(raw *format.Config) (int, bool) {
	if raw == nil || !raw.HasSection("core") {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw.Section("core").Option("abbrev")))
	if err != nil {
		return 0, false
	}
	return min(max(v, 4), 40), true
}

func (n *native) OpenBlame(ctx context.Context, rev, path string) (dig.LineStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.traceOp("blame", "-s", "-l", "--root", rev, "--", path)
	c, err := n.commit(rev)
	if err != nil {
		return nil, err
	}
	if _, err := c.File(path); err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("blame %s: %w: %s", rev, dig.ErrPathNotFound, path)
		}
		return nil, err
	}
	res, err := gitlib.Blame(c, path)
	if err != nil {
		return nil, fmt.Errorf("blame %s -- %s: %w", rev, path, err)
	}
	lines := make([]string, len(res.Lines))
	for i, l := range res.Lines {
		lines[i] = formatBlameLine(l.Hash.String(), i+1, l.Text)
	}
	return &sliceLineStream{lines: lines}, nil
}

// formatBlameLine renders a line the way git blame -s -l does.
func formatBlameLine(hash string, lineNo int, text string) string {
	return fmt.Sprintf("%s %d) %s", hash, lineNo, text)
}

type sliceLineStream struct {
	lines []string
	pos   int
}

func (s *sliceLineStream) Next() (string, error) {
	if s.pos >= len(s.lines) {
		return "", io.EOF
	}
	line := s.lines[s.pos]
	s.pos++
	return line, nil
}

func (s *sliceLineStream) Close() error {
	s.pos = len(s.lines)
	return nil
}
