package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/thiagokokada/git-dig/internal/dig"
)

func (g *gitCLI) Resolve(ctx context.Context, rev string) (string, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" {
		return "", fmt.Errorf("revision not specified")
	}
	if strings.HasPrefix(rev, "-") {
		return "", fmt.Errorf("invalid revision %q", rev)
	}
	if rev == dig.WorkingTree {
		return rev, nil
	}
	out, err := g.runGitCommand(ctx, []string{"rev-parse", "--verify", rev + "^{commit}"}, false, "git rev-parse")
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(out)
	if hash == "" {
		return "", fmt.Errorf("git rev-parse: %q did not resolve to a commit", rev)
	}
	return hash, nil
}

func (g *gitCLI) Parents(ctx context.Context, rev string) ([]string, error) {
	if rev == dig.WorkingTree {
		head, err := g.Resolve(ctx, "HEAD")
		if err != nil {
			return nil, err
		}
		return []string{head}, nil
	}
	out, err := g.runGitCommand(ctx, []string{"rev-parse", rev + "^@"}, false, "git rev-parse")
	if err != nil {
		return nil, err
	}
	return parseRevList(out), nil
}

func parseRevList(out string) []string {
	var revs []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			revs = append(revs, line)
		}
	}
	return revs
}

// diffArgs pins the options that change the shape of the unified diff so user
// configuration such as diff.noprefix or diff.external cannot leak in.
func diffArgs(parent, child string) []string {
	args := []string{
		"diff",
		"--no-color",
		"--no-ext-diff",
		"--no-textconv",
		"-U3",
		"--src-prefix=a/",
		"--dst-prefix=b/",
		"-M",
		parent,
	}
	if child != dig.WorkingTree {
		args = append(args, child)
	}
	return append(args, "--")
}

func (g *gitCLI) DiffText(ctx context.Context, parent, child string) (string, error) {
	parent = strings.TrimSpace(parent)
	child = strings.TrimSpace(child)
	if parent == "" || child == "" {
		return "", fmt.Errorf("diff needs both revisions (got %q..%q)", parent, child)
	}
	return g.runGitCommand(ctx, diffArgs(parent, child), true, "git diff")
}

func (g *gitCLI) Summary(ctx context.Context, rev string) (string, error) {
	if rev == dig.WorkingTree {
		return "Local uncommitted changes", nil
	}
	out, err := g.runGitCommand(
		ctx,
		[]string{"log", "-1", "--no-color", "--no-decorate", "--format=%h %s", rev, "--"},
		false,
		"git log",
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *gitCLI) OpenBlame(ctx context.Context, rev, path string) (dig.LineStream, error) {
	if rev == "" || path == "" {
		return nil, fmt.Errorf("blame needs a revision and a path")
	}
	// --root keeps root commits from being reported as boundaries, -l prints
	// full hashes and -s keeps the author column out of the way of the parser.
	args := []string{"blame", "-s", "-l", "--root", rev, "--", path}
	stream, err := g.startLineStream(ctx, args, "git blame")
	if err != nil {
		return nil, err
	}
	return stream, nil
}
