package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	gitlib "github.com/go-git/go-git/v5"
	format "github.com/go-git/go-git/v5/plumbing/format/config"

	"github.com/thiagokokada/git-dig/internal/dig"
	"github.com/thiagokokada/git-dig/internal/git/backend"
	"github.com/thiagokokada/git-dig/internal/report"
)

func rawConfig(opts map[string]string) *format.Config {
	raw := format.New()
	for k, v := range opts {
		raw.AddOption(section, format.NoSubsection, k, v)
	}
	return raw
}

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()
	if c.Base != dig.WorkingTree || c.MaxDepth != 1 || c.Context != 2 || c.Backend != backend.KindCLI {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Jobs < 1 {
		t.Fatalf("jobs = %d", c.Jobs)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	opts := c.WalkOptions()
	if opts.MaxDepth != c.MaxDepth || opts.Context != c.Context || opts.Jobs != c.Jobs {
		t.Fatalf("WalkOptions() = %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty_base", mutate: func(c *Config) { c.Base = " " }},
		{name: "negative_depth", mutate: func(c *Config) { c.MaxDepth = -1 }},
		{name: "negative_context", mutate: func(c *Config) { c.Context = -2 }},
		{name: "no_jobs", mutate: func(c *Config) { c.Jobs = 0 }},
		{name: "bad_backend", mutate: func(c *Config) { c.Backend = "svn" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error for %+v", c)
			}
		})
	}
}

func TestApplyRaw(t *testing.T) {
	t.Parallel()

	c := Default()
	raw := rawConfig(map[string]string{
		"maxdepth": "3",
		"context":  "0",
		"jobs":     "4",
		"backend":  "native",
		"color":    "never",
		"mode":     "dark",
	})
	if err := c.applyRaw(raw, "test", nil); err != nil {
		t.Fatalf("applyRaw() error = %v", err)
	}
	want := Default()
	want.MaxDepth, want.Context, want.Jobs = 3, 0, 4
	want.Backend, want.Color, want.Theme = backend.KindNative, report.ColorNever, report.ThemeDark
	if c != want {
		t.Fatalf("config = %+v, want %+v", c, want)
	}
}

func TestApplyRawSkipsExplicitFlags(t *testing.T) {
	t.Parallel()

	c := Default()
	c.MaxDepth = 7
	explicit := func(flag string) bool { return flag == "max-depth" }
	if err := c.applyRaw(rawConfig(map[string]string{"maxDepth": "3", "jobs": "2"}), "test", explicit); err != nil {
		t.Fatalf("applyRaw() error = %v", err)
	}
	if c.MaxDepth != 7 || c.Jobs != 2 {
		t.Fatalf("MaxDepth = %d, Jobs = %d", c.MaxDepth, c.Jobs)
	}
}

func TestApplyRawInvalid(t *testing.T) {
	t.Parallel()

	for key, value := range map[string]string{"maxDepth": "deep", "backend": "svn", "color": "rainbow", "mode": "sepia"} {
		c := Default()
		err := c.applyRaw(rawConfig(map[string]string{key: value}), "repository", nil)
		if err == nil {
			t.Fatalf("expected error for dig.%s = %q", key, value)
		}
		if !strings.Contains(err.Error(), "dig."+key) || !strings.Contains(err.Error(), "repository") {
			t.Fatalf("error should name the key and scope: %v", err)
		}
	}
}

func TestApplyRawWithoutSection(t *testing.T) {
	t.Parallel()

	c := Default()
	raw := format.New()
	raw.AddOption("core", format.NoSubsection, "bare", "false")
	if err := c.applyRaw(raw, "test", nil); err != nil {
		t.Fatalf("applyRaw() error = %v", err)
	}
	if c != Default() {
		t.Fatalf("config changed without a dig section: %+v", c)
	}
	if err := c.applyRaw(nil, "test", nil); err != nil {
		t.Fatalf("applyRaw(nil) error = %v", err)
	}
}

func TestLoadGitConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	if err := os.WriteFile(filepath.Join(home, ".gitconfig"), []byte("[dig]\n\tmaxDepth = 4\n\tbackend = native\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if _, err := gitlib.PlainInit(dir, false); err != nil {
		t.Fatalf("init repository: %v", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, ".git", "config"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("[dig]\n\tmaxDepth = 6\n\tcontext = 1\n"); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	c := Default()
	if err := c.LoadGitConfig(sub, nil); err != nil {
		t.Fatalf("LoadGitConfig() error = %v", err)
	}
	if c.MaxDepth != 6 || c.Context != 1 || c.Backend != backend.KindNative {
		t.Fatalf("repository config should win over global: %+v", c)
	}

	outside := Default()
	if err := outside.LoadGitConfig(t.TempDir(), nil); err != nil {
		t.Fatalf("LoadGitConfig() outside a repository error = %v", err)
	}
	if outside.MaxDepth != 4 || outside.Backend != backend.KindNative {
		t.Fatalf("global config not applied: %+v", outside)
	}
}

func TestFlags(t *testing.T) {
	t.Parallel()

	c := Default()
	f := NewFlags("git-dig", &c)
	if err := f.Parse([]string{"-m", "3", "--context=0", "--backend", "native", "--color", "always", "-v", "-w", "repo"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := f.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if c.MaxDepth != 3 || c.Context != 0 || c.Backend != backend.KindNative || c.Color != report.ColorAlways {
		t.Fatalf("flags not applied: %+v", c)
	}
	if !c.Verbose || !c.Watch || c.RepoPath != "repo" || c.Base != dig.WorkingTree {
		t.Fatalf("flags not applied: %+v", c)
	}
	if !f.Changed("max-depth") || f.Changed("jobs") {
		t.Fatal("unexpected Changed() result")
	}
}

func TestFlagsInvalid(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"--mode", "sepia"},
		{"--backend", "svn"},
		{"--color", "rainbow"},
	} {
		c := Default()
		f := NewFlags("git-dig", &c)
		if err := f.Parse(args); err != nil {
			t.Fatalf("Parse(%v) error = %v", args, err)
		}
		if err := f.Resolve(); err == nil {
			t.Fatalf("Resolve() should reject %v", args)
		}
	}
}
