package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/thiagokokada/git-dig/internal/dig"
)

const (
	indentUnit = "    "
	seenSuffix = " (already followed)"
)

// Summarizer returns the one line description of a revision.
type Summarizer interface {
	Summary(ctx context.Context, rev string) (string, error)
}

// Printer renders walk results. Dependencies go to out as an indented tree,
// verbose traces of git commands and hunks go to trace.
type Printer struct {
	out       io.Writer
	trace     io.Writer
	summaries Summarizer
	hl        *Highlighter
	verbose   bool

	mu    sync.Mutex
	cache map[string]string
}

func NewPrinter(out, trace io.Writer, summaries Summarizer, hl *Highlighter, verbose bool) *Printer {
	return &Printer{
		out:       out,
		trace:     trace,
		summaries: summaries,
		hl:        hl,
		verbose:   verbose,
		cache:     map[string]string{},
	}
}

// FormatDependency renders one line of the dependency tree.
func FormatDependency(d dig.Dependency, summary string) string {
	line := strings.Repeat(indentUnit, d.Depth) + summary
	if d.Seen {
		line += seenSuffix
	}
	return line
}

func (p *Printer) summary(ctx context.Context, rev string) (string, error) {
	p.mu.Lock()
	s, ok := p.cache[rev]
	p.mu.Unlock()
	if ok {
		return s, nil
	}
	s, err := p.summaries.Summary(ctx, rev)
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", rev, err)
	}
	p.mu.Lock()
	p.cache[rev] = s
	p.mu.Unlock()
	return s, nil
}

// Dependency prints d. It is meant to be used as the walker's dependency hook.
func (p *Printer) Dependency(ctx context.Context, d dig.Dependency) error {
	s, err := p.summary(ctx, d.Rev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = fmt.Fprintln(p.out, FormatDependency(d, s))
	return err
}

// Command traces a git command line when verbose.
func (p *Printer) Command(args []string) {
	if !p.verbose || p.trace == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.hl.Write(p.trace, "bash", "$ "+shellJoin(args)+"\n"); err != nil {
		slog.Debug("trace command", slog.Any("error", err))
	}
}

// Hunk traces a correlated hunk and the revisions it depends on when verbose.
func (p *Printer) Hunk(h *dig.Hunk) {
	if !p.verbose || p.trace == nil {
		return
	}
	header := h.Header
	if header == "" {
		header = fmt.Sprintf("@@ -%s +%s @@", h.Old, h.New)
	}
	deps := h.DepList()
	for i, rev := range deps {
		deps[i] = shortHash(rev)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.hl.Write(p.trace, "diff", fmt.Sprintf("%s %s\n", header, h.Path)); err != nil {
		slog.Debug("trace hunk", slog.Any("error", err))
		return
	}
	if len(deps) > 0 {
		fmt.Fprintf(p.trace, "%s-> %s\n", indentUnit, strings.Join(deps, " "))
	}
}

// Transition logs the walker's progress at debug level.
func (p *Printer) Transition(rev string, depth int, state dig.State) {
	slog.Debug("revision",
		slog.String("rev", shortHash(rev)),
		slog.Int("depth", depth),
		slog.String("state", state.String()),
	)
}

func shortHash(rev string) string {
	if len(rev) == 40 && !strings.ContainsAny(rev, "~^:/") {
		return rev[:10]
	}
	return rev
}

// shellJoin quotes args so the traced command can be pasted into a shell.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n'\"\\$`*?[]{}()<>|&;#~") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
