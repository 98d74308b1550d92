package config

import (
	"github.com/spf13/pflag"

	"github.com/thiagokokada/git-dig/internal/dig"
	"github.com/thiagokokada/git-dig/internal/git/backend"
	"github.com/thiagokokada/git-dig/internal/report"
)

// Flags binds the command line to a Config. Typed settings are kept as text
// until Resolve so that parse errors name the flag.
type Flags struct {
	*pflag.FlagSet
	cfg *Config

	backend string
	color   string
	mode    string

	Version bool
}

func NewFlags(name string, cfg *Config) *Flags {
	f := &Flags{
		FlagSet: pflag.NewFlagSet(name, pflag.ContinueOnError),
		cfg:     cfg,
		backend: cfg.Backend.String(),
		color:   cfg.Color.String(),
		mode:    cfg.Theme.String(),
	}
	fs := f.FlagSet
	fs.SortFlags = false
	fs.StringVarP(&cfg.Base, "base", "b", cfg.Base, "revision to dig from ("+dig.WorkingTree+" means uncommitted changes)")
	fs.IntVarP(&cfg.MaxDepth, "max-depth", "m", cfg.MaxDepth, "number of dependency levels to follow (git config dig.maxDepth)")
	fs.IntVarP(&cfg.Context, "context", "c", cfg.Context, "context lines trimmed from each side of a hunk, 0 keeps them (git config dig.context)")
	fs.IntVarP(&cfg.Jobs, "jobs", "j", cfg.Jobs, "files blamed concurrently (git config dig.jobs)")
	fs.StringVar(&f.backend, "backend", f.backend, "git backend: cli or native (git config dig.backend)")
	fs.StringVar(&f.color, "color", f.color, "highlight verbose output: auto, always, or never")
	fs.StringVar(&f.mode, "mode", f.mode, "color mode: auto, light, or dark")
	fs.BoolVarP(&cfg.Watch, "watch", "w", cfg.Watch, "run again whenever the working tree changes")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "trace git commands and hunks, enable debug logging")
	fs.BoolVar(&f.Version, "version", false, "print version information and exit")
	return f
}

// Resolve stores the explicitly set text flags into the Config and takes the
// repository path from the remaining arguments.
func (f *Flags) Resolve() error {
	var err error
	if f.Changed("backend") {
		if f.cfg.Backend, err = backend.ParseKind(f.backend); err != nil {
			return err
		}
	}
	if f.Changed("color") {
		if f.cfg.Color, err = report.ParseColorMode(f.color); err != nil {
			return err
		}
	}
	if f.Changed("mode") {
		if f.cfg.Theme, err = report.ParseThemePreference(f.mode); err != nil {
			return err
		}
	}
	if remaining := f.Args(); len(remaining) > 0 {
		f.cfg.RepoPath = remaining[len(remaining)-1]
	}
	return nil
}
