package dig

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

const DefaultMaxDepth = 1

// Options controls a walk.
type Options struct {
	// MaxDepth bounds the recursion; zero emits nothing.
	MaxDepth int
	// Context is the ReduceContext margin; zero disables reduction.
	Context int
	// Jobs bounds how many provenance streams are read at once.
	Jobs int
}

func DefaultOptions() Options {
	return Options{MaxDepth: DefaultMaxDepth, Context: DefaultContext, Jobs: runtime.NumCPU()}
}

// Hooks receive walk events. All hooks are optional and are called from the
// goroutine running Walk.
type Hooks struct {
	// Dependency is called for every emitted dependency. Returning an error stops the walk.
	Dependency func(Dependency) error
	// Hunk is called for every correlated hunk.
	Hunk func(*Hunk)
	// Transition is called whenever a revision changes state.
	Transition func(rev string, depth int, state State)
}

// Walker follows the dependencies of revisions read from a Source.
type Walker struct {
	src   Source
	opts  Options
	hooks Hooks
}

// NewWalker returns a Walker over src. Jobs below one is treated as one.
func NewWalker(src Source, opts Options, hooks Hooks) *Walker {
	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}
	return &Walker{src: src, opts: opts, hooks: hooks}
}

type walkItem struct {
	rev   string
	depth int
	from  string
}

// Walk expands base and follows its dependencies depth first. Dependencies are
// emitted in pre-order so that indenting by depth renders a tree.
//
// Inconsistent input streams abort the walk. Other failures abort only the
// expansion of the revision they occurred in and are returned joined once the
// rest of the walk completed. A failure expanding base is returned immediately.
func (w *Walker) Walk(ctx context.Context, base string) (*Result, error) {
	res := &Result{}
	if w.opts.MaxDepth <= 0 {
		return res, nil
	}
	visited := map[string]struct{}{}
	var errs []error

	deps, err := w.expandAt(ctx, base, 0, res)
	if err != nil {
		return res, err
	}
	stack := w.push(nil, deps, 0, base)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		_, seen := visited[item.rev]
		dep := Dependency{Rev: item.rev, Depth: item.depth, Seen: seen, From: item.from}
		res.Dependencies = append(res.Dependencies, dep)
		if w.hooks.Dependency != nil {
			if err := w.hooks.Dependency(dep); err != nil {
				return res, err
			}
		}
		if seen {
			continue
		}
		visited[item.rev] = struct{}{}

		next := item.depth + 1
		if next >= w.opts.MaxDepth {
			w.transition(item.rev, next, StateTerminal)
			continue
		}
		deps, err := w.expandAt(ctx, item.rev, next, res)
		if err != nil {
			if IsFatal(err) || ctx.Err() != nil {
				return res, err
			}
			slog.Warn("skipping revision", slog.String("rev", item.rev), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		stack = w.push(stack, deps, next, item.rev)
	}
	return res, errors.Join(errs...)
}

// push appends deps so that the first one is popped first.
func (w *Walker) push(stack []walkItem, deps []string, depth int, from string) []walkItem {
	for i := len(deps) - 1; i >= 0; i-- {
		stack = append(stack, walkItem{rev: deps[i], depth: depth, from: from})
		w.transition(deps[i], depth, StatePending)
	}
	return stack
}

func (w *Walker) expandAt(ctx context.Context, rev string, depth int, res *Result) ([]string, error) {
	deps, partial, err := w.Expand(ctx, rev)
	res.Partial = append(res.Partial, partial...)
	if err != nil {
		return nil, &ExpandError{Rev: rev, Err: err}
	}
	res.Expanded++
	w.transition(rev, depth, StateExpanded)
	if len(deps) == 0 {
		w.transition(rev, depth, StateTerminal)
	}
	return deps, nil
}

func (w *Walker) transition(rev string, depth int, state State) {
	if w.hooks.Transition != nil {
		w.hooks.Transition(rev, depth, state)
	}
}

// Expand computes the hunks of rev against each of its parents, correlates
// them and returns the sorted revisions they depend on. Boundary revisions and
// rev itself are left out.
func (w *Walker) Expand(ctx context.Context, rev string) ([]string, []PartialGroup, error) {
	hunks, err := w.Hunks(ctx, rev)
	if err != nil {
		return nil, nil, err
	}
	partial, err := w.correlateAll(ctx, hunks)
	if err != nil {
		return nil, partial, err
	}
	deps := map[string]struct{}{}
	for _, h := range hunks {
		if w.hooks.Hunk != nil {
			w.hooks.Hunk(h)
		}
		for dep := range h.Deps {
			if dep == rev || IsBoundary(dep) {
				continue
			}
			deps[dep] = struct{}{}
		}
	}
	return sortedKeys(deps), partial, nil
}

// Hunks returns the context-reduced hunks of rev against each of its parents.
// The working tree is compared with HEAD.
func (w *Walker) Hunks(ctx context.Context, rev string) ([]*Hunk, error) {
	var parents []string
	if rev == WorkingTree {
		parents = []string{"HEAD"}
	} else {
		var err error
		parents, err = w.src.Parents(ctx, rev)
		if err != nil {
			return nil, fmt.Errorf("list parents: %w", err)
		}
	}
	var hunks []*Hunk
	for _, parent := range parents {
		text, err := w.src.DiffText(ctx, parent, rev)
		if err != nil {
			return nil, fmt.Errorf("diff %s..%s: %w", shortRev(parent), shortRev(rev), err)
		}
		parsed, err := ParseHunks(parent, rev, text)
		if err != nil {
			return nil, fmt.Errorf("diff %s..%s: %w", shortRev(parent), shortRev(rev), err)
		}
		hunks = append(hunks, parsed...)
	}
	for _, h := range hunks {
		reduceHunk(h, w.opts.Context)
	}
	slog.Debug("hunks computed",
		slog.String("rev", rev),
		slog.Int("parents", len(parents)),
		slog.Int("hunks", len(hunks)),
	)
	return hunks, nil
}

type groupKey struct {
	rev  string
	path string
}

type hunkGroup struct {
	key   groupKey
	hunks []*Hunk
}

// groupHunks groups hunks by parent revision and blamed path, keeping the
// order in which groups first appear.
func groupHunks(hunks []*Hunk) []*hunkGroup {
	index := map[groupKey]*hunkGroup{}
	var groups []*hunkGroup
	for _, h := range hunks {
		key := groupKey{rev: h.Parent, path: h.blamePath()}
		g, ok := index[key]
		if !ok {
			g = &hunkGroup{key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.hunks = append(g.hunks, h)
	}
	for _, g := range groups {
		slices.SortStableFunc(g.hunks, func(a, b *Hunk) int {
			return cmp.Compare(a.Old.Start, b.Old.Start)
		})
	}
	return groups
}

func (w *Walker) correlateAll(ctx context.Context, hunks []*Hunk) ([]PartialGroup, error) {
	groups := groupHunks(hunks)
	var (
		mu      sync.Mutex
		partial []PartialGroup
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Jobs)
	for _, group := range groups {
		if !group.needsProvenance() {
			continue
		}
		g.Go(func() error {
			cut, err := w.correlateGroup(gctx, group)
			if err != nil {
				return err
			}
			if cut {
				slog.Warn("provenance ended early; dependencies may be incomplete",
					slog.String("rev", group.key.rev),
					slog.String("path", group.key.path),
				)
				mu.Lock()
				partial = append(partial, PartialGroup{Rev: group.key.rev, Path: group.key.path})
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	slices.SortFunc(partial, func(a, b PartialGroup) int {
		return cmp.Or(cmp.Compare(a.Rev, b.Rev), cmp.Compare(a.Path, b.Path))
	})
	return partial, err
}

func (g *hunkGroup) needsProvenance() bool {
	for _, h := range g.hunks {
		if h.Old.Count > 0 {
			return true
		}
	}
	return false
}

func (w *Walker) correlateGroup(ctx context.Context, group *hunkGroup) (partial bool, err error) {
	rev, path := group.key.rev, group.key.path
	stream, err := w.src.OpenBlame(ctx, rev, path)
	if err != nil {
		if errors.Is(err, ErrPathNotFound) {
			slog.Debug("no provenance for path", slog.String("rev", rev), slog.String("path", path))
			return false, nil
		}
		return false, fmt.Errorf("blame %s at %s: %w", path, shortRev(rev), err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			slog.Debug("provenance stream close", slog.String("path", path), slog.Any("error", cerr))
		}
	}()
	partial, err = Correlate(NewCursor(stream, rev, path), group.hunks)
	if err != nil {
		if errors.Is(err, ErrPathNotFound) {
			return false, nil
		}
		if IsFatal(err) {
			return false, err
		}
		return false, fmt.Errorf("blame %s at %s: %w", path, shortRev(rev), err)
	}
	return partial, nil
}
