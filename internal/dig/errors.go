package dig

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDiff reports a diff stream that violates the unified diff layout.
	ErrMalformedDiff = errors.New("malformed diff")
	// ErrMalformedProvenance reports a blame line without a revision or line number.
	ErrMalformedProvenance = errors.New("malformed provenance line")
	// ErrPathNotFound is returned by a Source when the path does not exist at the
	// requested revision. The correlator treats it as an empty provenance stream.
	ErrPathNotFound = errors.New("path not found")
)

// ConsistencyError reports diff and provenance streams that disagree about line
// numbering, which means they were not computed against the same file state.
type ConsistencyError struct {
	Rev      string
	Path     string
	Expected int
	Got      int
	Reason   string
}

func (e *ConsistencyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("provenance of %s at %s: %s", e.Path, shortRev(e.Rev), e.Reason)
	}
	return fmt.Sprintf("provenance of %s at %s: expected line %d, got %d", e.Path, shortRev(e.Rev), e.Expected, e.Got)
}

// ExpandError wraps a failure while expanding a single revision.
type ExpandError struct {
	Rev string
	Err error
}

func (e *ExpandError) Error() string {
	return fmt.Sprintf("expand %s: %v", shortRev(e.Rev), e.Err)
}

func (e *ExpandError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err means the input streams are inconsistent, in
// which case the whole walk must stop.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var consistency *ConsistencyError
	return errors.As(err, &consistency) ||
		errors.Is(err, ErrMalformedDiff) ||
		errors.Is(err, ErrMalformedProvenance)
}
