package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/thiagokokada/git-dig/internal/dig"
)

type testRepo struct {
	t    *testing.T
	dir  string
	repo *gitlib.Repository
	wt   *gitlib.Worktree
	when time.Time
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()

	dir := t.TempDir()
	repo, err := gitlib.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repository: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	return &testRepo{
		t:    t,
		dir:  dir,
		repo: repo,
		wt:   wt,
		when: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func (r *testRepo) write(path, content string) {
	r.t.Helper()

	full := filepath.Join(r.dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		r.t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		r.t.Fatalf("write %s: %v", path, err)
	}
}

// commit writes files and commits them, returning the full hash.
func (r *testRepo) commit(msg string, files map[string]string) string {
	r.t.Helper()

	for path, content := range files {
		r.write(path, content)
		if _, err := r.wt.Add(path); err != nil {
			r.t.Fatalf("add %s: %v", path, err)
		}
	}
	r.when = r.when.Add(time.Minute)
	hash, err := r.wt.Commit(msg, &gitlib.CommitOptions{
		Author: &object.Signature{Name: "Alice", Email: "alice@example.com", When: r.when},
	})
	if err != nil {
		r.t.Fatalf("commit: %v", err)
	}
	return hash.String()
}

// move renames a tracked file and stages the rename, like git mv.
func (r *testRepo) move(from, to string) {
	r.t.Helper()

	if _, err := r.wt.Move(from, to); err != nil {
		r.t.Fatalf("move %s to %s: %v", from, to, err)
	}
}

// numbered returns a file body of n lines named after their position, with
// the lines in overrides replaced.
func numbered(n int, overrides map[int]string) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		line, ok := overrides[i]
		if !ok {
			line = fmt.Sprintf("line %d", i)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func forEachBackend(t *testing.T, dir string, fn func(t *testing.T, b Backend)) {
	t.Helper()

	for _, kind := range []Kind{KindCLI, KindNative} {
		t.Run(kind.String(), func(t *testing.T) {
			if kind == KindCLI {
				if _, err := exec.LookPath("git"); err != nil {
					t.Skip("git executable not available")
				}
			}
			b, err := Open(kind, dir, nil)
			if err != nil {
				t.Fatalf("Open(%s): %v", kind, err)
			}
			if b.Kind() != kind {
				t.Fatalf("Kind() = %s, want %s", b.Kind(), kind)
			}
			fn(t, b)
		})
	}
}

func drain(s dig.LineStream) ([]string, error) {
	defer s.Close()
	var lines []string
	for {
		line, err := s.Next()
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
	}
}

func blameRevs(t *testing.T, b Backend, rev, path string) []string {
	t.Helper()

	s, err := b.OpenBlame(context.Background(), rev, path)
	if err != nil {
		t.Fatalf("OpenBlame(%s, %s): %v", rev, path, err)
	}
	lines, err := drain(s)
	if err != nil {
		t.Fatalf("read blame: %v", err)
	}
	revs := make([]string, len(lines))
	for i, line := range lines {
		pl, err := dig.ParseProvenanceLine(line)
		if err != nil {
			t.Fatalf("parse %q: %v", line, err)
		}
		if pl.Line != i+1 {
			t.Fatalf("line %d numbered %d", i+1, pl.Line)
		}
		revs[i] = pl.Rev
	}
	return revs
}
