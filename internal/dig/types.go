package dig

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// WorkingTree names the uncommitted state of the checkout. Its only parent is HEAD.
const WorkingTree = "WORKING"

// BoundaryPrefix marks revisions at the edge of the available history, as
// printed by git blame for shallow or grafted commits.
const BoundaryPrefix = "^"

// IsBoundary reports whether rev denotes the edge of the available history.
func IsBoundary(rev string) bool {
	return strings.HasPrefix(rev, BoundaryPrefix)
}

// Source supplies the three read operations the walker needs from a repository.
type Source interface {
	// Parents returns the parents of rev in order. An empty result means rev is a root.
	Parents(ctx context.Context, rev string) ([]string, error)
	// DiffText returns a unified diff between parent and child. child may be WorkingTree.
	DiffText(ctx context.Context, parent, child string) (string, error)
	// OpenBlame streams the per-line provenance of path as it exists at rev.
	OpenBlame(ctx context.Context, rev, path string) (LineStream, error)
}

// LineStream is a forward-only stream of text lines without trailing newlines.
// Next returns io.EOF once the stream is exhausted.
type LineStream interface {
	Next() (string, error)
	Close() error
}

// Range is a 1-based line span; Count may be zero for a pure insertion or deletion.
type Range struct {
	Start int
	Count int
}

func (r Range) String() string {
	return fmt.Sprintf("%d,%d", r.Start, r.Count)
}

// End returns the last line covered by r, or Start-1 when r is empty.
func (r Range) End() int {
	return r.Start + r.Count - 1
}

// Hunk is one changed block of a file between Parent and Child. Deps collects
// the revisions its old lines were last changed in.
type Hunk struct {
	Parent  string
	Child   string
	Path    string
	OldPath string
	Old     Range
	New     Range
	Hint    string
	Header  string

	Deps map[string]struct{}
}

func (h *Hunk) addDep(rev string) {
	if h.Deps == nil {
		h.Deps = make(map[string]struct{})
	}
	h.Deps[rev] = struct{}{}
}

// DepList returns the hunk dependencies sorted.
func (h *Hunk) DepList() []string {
	return sortedKeys(h.Deps)
}

func (h *Hunk) String() string {
	return fmt.Sprintf("%s..%s %s -%s +%s", shortRev(h.Parent), shortRev(h.Child), h.Path, h.Old, h.New)
}

// blamePath is the path the parent side of the hunk is known by.
func (h *Hunk) blamePath() string {
	if h.OldPath != "" {
		return h.OldPath
	}
	return h.Path
}

// ProvenanceLine is one parsed line of blame output.
type ProvenanceLine struct {
	Rev  string
	Line int
}

// Dependency is a revision found by the walker.
type Dependency struct {
	Rev   string
	Depth int
	// Seen is set when Rev was already followed earlier in the same walk.
	Seen bool
	// From is the revision whose expansion produced Rev.
	From string
}

// State tracks a revision through the walk.
type State uint8

const (
	StatePending State = iota
	StateExpanded
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExpanded:
		return "expanded"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// PartialGroup identifies a provenance stream that ended before all hunks were correlated.
type PartialGroup struct {
	Rev  string
	Path string
}

// Result is what Walk found.
type Result struct {
	Dependencies []Dependency
	Partial      []PartialGroup
	// Expanded counts revisions whose hunks were computed.
	Expanded int
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func shortRev(rev string) string {
	if len(rev) > 10 && !strings.ContainsAny(rev, "~^:/") {
		return rev[:10]
	}
	return rev
}
