package backend

import (
	"context"
	"fmt"

	"github.com/thiagokokada/git-dig/internal/dig"
)

// Backend gives the dependency walker access to repository history.
//
// The default implementation shells out to the git executable, but the interface
// allows alternative implementations (e.g. pure-Go) without changing callers.
type Backend interface {
	dig.Source

	Kind() Kind
	RepoPath() string

	// Resolve turns a revision expression into a full commit hash. The
	// working tree pseudo revision resolves to itself.
	Resolve(ctx context.Context, rev string) (string, error)
	// Summary returns the one line description printed for a dependency.
	Summary(ctx context.Context, rev string) (string, error)
}

// Tracer observes the git commands a backend runs.
type Tracer func(args []string)

// Open returns the backend of the given kind rooted at repoPath.
func Open(kind Kind, repoPath string, trace Tracer) (Backend, error) {
	switch kind {
	case KindCLI:
		return OpenCLI(repoPath, trace)
	case KindNative:
		return OpenNative(repoPath, trace)
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}
