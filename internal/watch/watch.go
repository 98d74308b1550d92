// Package watch re-runs a function whenever a repository's working tree or
// current commit changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/thiagokokada/git-dig/internal/debounce"
)

const DefaultDelay = 350 * time.Millisecond

const gitDir = ".git"

type Watcher struct {
	root    string
	delay   time.Duration
	fsw     *fsnotify.Watcher
	ignore  gitignore.Matcher
	pending *debounce.Debouncer
	changed chan struct{}
}

// New watches the working tree rooted at root, skipping ignored directories,
// together with the refs that decide what HEAD points to.
func New(root string, delay time.Duration) (*Watcher, error) {
	if root == "" {
		return nil, fmt.Errorf("repository root not set")
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil {
		slog.Debug("read ignore patterns", slog.Any("error", err))
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &Watcher{
		root:    root,
		delay:   delay,
		fsw:     fsw,
		ignore:  gitignore.NewMatcher(patterns),
		changed: make(chan struct{}, 1),
	}
	for path := range watchPaths(root, root, w.ignore) {
		slog.Debug("adding path to FS watcher", slog.String("path", path))
		if err := fsw.Add(path); err != nil {
			err := errors.Join(err, fsw.Close())
			return nil, fmt.Errorf("watch %s: %w", path, err)
		}
	}
	return w, nil
}

func (w *Watcher) Close() error {
	if w.pending != nil {
		w.pending.Stop()
	}
	return w.fsw.Close()
}

// Run calls fn once and then again each time changes settle for the watcher's
// delay, until ctx is done. Errors from fn are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context) error) error {
	pending := debounce.Ensure(&w.pending, w.delay, func() {
		select {
		case w.changed <- struct{}{}:
		default:
		}
	})
	runOnce := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			slog.Error("run failed", slog.Any("error", err))
		}
	}
	runOnce()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.changed:
			slog.Debug("change settled, running again")
			runOnce()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				pending.Trigger()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

// handle reports whether ev should schedule a run. New directories in the
// working tree are added to the watch list.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	isDir := false
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if !relevantPath(w.root, ev.Name, isDir, w.ignore) {
		return false
	}
	slog.Debug("fsnotify event",
		slog.String("op", ev.Op.String()),
		slog.String("path", ev.Name),
	)
	if isDir {
		for path := range watchPaths(w.root, ev.Name, w.ignore) {
			if err := w.fsw.Add(path); err != nil {
				slog.Warn("watch new directory", slog.String("path", path), slog.Any("error", err))
			}
		}
	}
	return true
}

// relevantPath filters out churn that cannot change the result: lock files,
// ignored files and git's own bookkeeping other than HEAD and refs.
func relevantPath(root, name string, isDir bool, ignore gitignore.Matcher) bool {
	if shouldIgnoreWatchPath(name) {
		return false
	}
	rel, err := filepath.Rel(root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if parts[0] == gitDir {
		if len(parts) < 2 {
			return false
		}
		return parts[1] == "HEAD" || parts[1] == "packed-refs" || parts[1] == "refs"
	}
	return ignore == nil || !ignore.Match(parts, isDir)
}

func shouldIgnoreWatchPath(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".lock" || ext == ".ipc" {
		return true
	}
	return false
}

// watchPaths yields every directory to watch under start: working tree
// directories that are not ignored relative to root, plus .git and its refs.
func watchPaths(root, start string, ignore gitignore.Matcher) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			name := d.Name()
			if name == gitDir {
				if !yield(path) {
					return filepath.SkipAll
				}
				refs := filepath.Join(path, "refs")
				if info, err := os.Stat(refs); err == nil && info.IsDir() {
					for ref := range watchPaths(refs, refs, nil) {
						if !yield(ref) {
							return filepath.SkipAll
						}
					}
				}
				return filepath.SkipDir
			}
			if path != root && ignore != nil && ignore.Match(splitPath(root, path), true) {
				return filepath.SkipDir
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func splitPath(root, path string) []string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil
	}
	return strings.Split(filepath.ToSlash(rel), "/")
}
