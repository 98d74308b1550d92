package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/thiagokokada/git-dig/internal/buildinfo"
	"github.com/thiagokokada/git-dig/internal/config"
	"github.com/thiagokokada/git-dig/internal/dig"
	"github.com/thiagokokada/git-dig/internal/git/backend"
	"github.com/thiagokokada/git-dig/internal/report"
	"github.com/thiagokokada/git-dig/internal/watch"
)

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := config.Default()
	flags := config.NewFlags("git-dig", &cfg)
	flags.SetOutput(stderr)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.Version {
		gitVersion, err := backend.GitVersion()
		if err != nil {
			slog.Debug("git version", slog.Any("error", err))
		}
		fmt.Fprintln(stdout, buildinfo.Describe(gitVersion))
		return nil
	}
	if err := flags.Resolve(); err != nil {
		return err
	}
	if err := cfg.LoadGitConfig(cfg.RepoPath, flags.Changed); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	// The backend traces commands while opening, before the printer exists.
	var printer *report.Printer
	b, err := backend.Open(cfg.Backend, cfg.RepoPath, func(args []string) {
		if printer != nil {
			printer.Command(args)
		}
	})
	if err != nil {
		return err
	}
	hl := report.NewHighlighter(cfg.Color.Enabled(stderr), cfg.Theme)
	printer = report.NewPrinter(stdout, stderr, b, hl, cfg.Verbose)
	slog.Debug("repository",
		slog.String("path", b.RepoPath()),
		slog.String("backend", b.Kind().String()),
	)

	d := &digger{cfg: cfg, backend: b, printer: printer, out: stdout}
	if !cfg.Watch {
		return d.run(ctx)
	}
	w, err := watch.New(b.RepoPath(), watch.DefaultDelay)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx, d.run)
}

// digger performs one walk from the configured base and prints it.
type digger struct {
	cfg     config.Config
	backend backend.Backend
	printer *report.Printer
	out     io.Writer
	runs    int
}

func (d *digger) run(ctx context.Context) error {
	if d.runs > 0 {
		fmt.Fprintln(d.out)
	}
	d.runs++

	base, err := d.backend.Resolve(ctx, d.cfg.Base)
	if err != nil {
		return err
	}
	w := dig.NewWalker(d.backend, d.cfg.WalkOptions(), dig.Hooks{
		Dependency: func(dep dig.Dependency) error {
			return d.printer.Dependency(ctx, dep)
		},
		Hunk:       d.printer.Hunk,
		Transition: d.printer.Transition,
	})
	res, err := w.Walk(ctx, base)
	for _, p := range res.Partial {
		slog.Warn("blame ended early, dependencies may be incomplete",
			slog.String("rev", p.Rev),
			slog.String("path", p.Path),
		)
	}
	if err != nil {
		return err
	}
	slog.Debug("walk done",
		slog.Int("dependencies", len(res.Dependencies)),
		slog.Int("expanded", res.Expanded),
	)
	return nil
}
