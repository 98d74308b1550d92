package dig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

type fakeSource struct {
	parents map[string][]string
	// diffs is keyed by "parent..child".
	diffs map[string]string
	// blames is keyed by "rev:path".
	blames map[string][]string

	openBlameFunc func(rev, path string) (LineStream, error)
	parentsFunc   func(rev string) ([]string, error)

	mu           sync.Mutex
	parentsCalls map[string]int
	blameCalls   []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		parents:      map[string][]string{},
		diffs:        map[string]string{},
		blames:       map[string][]string{},
		parentsCalls: map[string]int{},
	}
}

func (f *fakeSource) Parents(_ context.Context, rev string) ([]string, error) {
	f.mu.Lock()
	f.parentsCalls[rev]++
	f.mu.Unlock()
	if f.parentsFunc != nil {
		return f.parentsFunc(rev)
	}
	parents, ok := f.parents[rev]
	if !ok {
		return nil, fmt.Errorf("unexpected Parents(%q) call", rev)
	}
	return parents, nil
}

func (f *fakeSource) DiffText(_ context.Context, parent, child string) (string, error) {
	text, ok := f.diffs[parent+".."+child]
	if !ok {
		return "", fmt.Errorf("unexpected DiffText(%q, %q) call", parent, child)
	}
	return text, nil
}

func (f *fakeSource) OpenBlame(_ context.Context, rev, path string) (LineStream, error) {
	f.mu.Lock()
	f.blameCalls = append(f.blameCalls, rev+":"+path)
	f.mu.Unlock()
	if f.openBlameFunc != nil {
		return f.openBlameFunc(rev, path)
	}
	lines, ok := f.blames[rev+":"+path]
	if !ok {
		return nil, fmt.Errorf("unexpected OpenBlame(%q, %q) call", rev, path)
	}
	return &sliceStream{lines: lines}, nil
}

func (f *fakeSource) parentsCallCount(rev string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parentsCalls[rev]
}

type sliceStream struct {
	lines []string
	pos   int
	// err is returned instead of io.EOF once lines are exhausted.
	err    error
	closed bool
}

func (s *sliceStream) Next() (string, error) {
	if s.pos >= len(s.lines) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	line := s.lines[s.pos]
	s.pos++
	return line, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// blameOf renders blame -s style lines, one per revision, numbered from 1.
func blameOf(revs ...string) []string {
	lines := make([]string, len(revs))
	for i, rev := range revs {
		lines[i] = fmt.Sprintf("%s %d) line %d", rev, i+1, i+1)
	}
	return lines
}

// repeatRev returns n copies of rev.
func repeatRev(rev string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = rev
	}
	return out
}

// hunkText renders a hunk header followed by a body that removes oldCount
// lines and adds newCount lines.
func hunkText(oldStart, oldCount, newStart, newCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
	for i := range oldCount {
		fmt.Fprintf(&b, "-old %d\n", i)
	}
	for i := range newCount {
		fmt.Fprintf(&b, "+new %d\n", i)
	}
	return b.String()
}

// fileDiff renders a git style diff of path made of the given hunks.
func fileDiff(path string, hunks ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	b.WriteString("index 1111111..2222222 100644\n")
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", path, path)
	for _, h := range hunks {
		b.WriteString(h)
	}
	return b.String()
}

var errBoom = errors.New("boom")
