// Package config holds the settings of a git-dig run. Values come from the
// built-in defaults, then the dig section of git config, then command line
// flags.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/thiagokokada/git-dig/internal/dig"
	"github.com/thiagokokada/git-dig/internal/git/backend"
	"github.com/thiagokokada/git-dig/internal/report"
)

type Config struct {
	RepoPath string
	Base     string
	MaxDepth int
	Context  int
	Jobs     int
	Backend  backend.Kind
	Color    report.ColorMode
	Theme    report.ThemePreference
	Watch    bool
	Verbose  bool
}

func Default() Config {
	return Config{
		RepoPath: ".",
		Base:     dig.WorkingTree,
		MaxDepth: dig.DefaultMaxDepth,
		Context:  dig.DefaultContext,
		Jobs:     runtime.NumCPU(),
		Backend:  backend.KindCLI,
		Color:    report.ColorAuto,
		Theme:    report.ThemeAuto,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Base) == "" {
		return fmt.Errorf("base revision not specified")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative (got %d)", c.MaxDepth)
	}
	if c.Context < 0 {
		return fmt.Errorf("context must not be negative (got %d)", c.Context)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1 (got %d)", c.Jobs)
	}
	if _, err := backend.ParseKind(c.Backend.String()); err != nil {
		return err
	}
	return nil
}

func (c Config) WalkOptions() dig.Options {
	return dig.Options{MaxDepth: c.MaxDepth, Context: c.Context, Jobs: c.Jobs}
}
