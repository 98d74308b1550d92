package config

import (
	"errors"
	"fmt"
	"strconv"

	gitlib "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	format "github.com/go-git/go-git/v5/plumbing/format/config"

	"github.com/thiagokokada/git-dig/internal/git/backend"
	"github.com/thiagokokada/git-dig/internal/report"
)

const section = "dig"

// gitKey ties a key of the dig section to the flag that overrides it.
type gitKey struct {
	name  string
	flag  string
	apply func(c *Config, value string) error
}

var gitKeys = []gitKey{
	{name: "maxDepth", flag: "max-depth", apply: intSetter(func(c *Config) *int { return &c.MaxDepth })},
	{name: "context", flag: "context", apply: intSetter(func(c *Config) *int { return &c.Context })},
	{name: "jobs", flag: "jobs", apply: intSetter(func(c *Config) *int { return &c.Jobs })},
	{name: "backend", flag: "backend", apply: func(c *Config, v string) (err error) {
		c.Backend, err = backend.ParseKind(v)
		return err
	}},
	{name: "color", flag: "color", apply: func(c *Config, v string) (err error) {
		c.Color, err = report.ParseColorMode(v)
		return err
	}},
	{name: "mode", flag: "mode", apply: func(c *Config, v string) (err error) {
		c.Theme, err = report.ParseThemePreference(v)
		return err
	}},
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not a number: %q", v)
		}
		*field(c) = n
		return nil
	}
}

// LoadGitConfig applies the dig section of the global and then the repository
// git configuration. Keys whose flag is reported as set by explicit are left
// alone. A repoPath outside any repository only reads the global scope.
func (c *Config) LoadGitConfig(repoPath string, explicit func(flag string) bool) error {
	global, err := gitconfig.LoadConfig(gitconfig.GlobalScope)
	if err != nil {
		return fmt.Errorf("read global git config: %w", err)
	}
	if err := c.applyRaw(global.Raw, "global", explicit); err != nil {
		return err
	}
	repo, err := gitlib.PlainOpenWithOptions(repoPath, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, gitlib.ErrRepositoryNotExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	local, err := repo.Config()
	if err != nil {
		return fmt.Errorf("read repository git config: %w", err)
	}
	return c.applyRaw(local.Raw, "repository", explicit)
}

func (c *Config) applyRaw(raw *format.Config, scope string, explicit func(flag string) bool) error {
	if raw == nil || !raw.HasSection(section) {
		return nil
	}
	s := raw.Section(section)
	for _, key := range gitKeys {
		if !s.HasOption(key.name) {
			continue
		}
		if explicit != nil && explicit(key.flag) {
			continue
		}
		if err := key.apply(c, s.Option(key.name)); err != nil {
			return fmt.Errorf("%s.%s in %s git config: %w", section, key.name, scope, err)
		}
	}
	return nil
}
