package dig

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseProvenanceLine extracts the revision and line number from one line of
// blame output. The revision is the text before the first space; the line
// number is the last whitespace separated token before a ')'. Earlier names
// of the file may contain ')' themselves, so the first ')' preceded by a
// valid line number wins.
//
//	4f1e0b6f21 12) text
//	4f1e0b6f21 (Alice 2024-01-02 10:00:00 +0100 12) text
//	4f1e0b6f21 old/name.go 12) text
//	4f1e0b6f21 notes (old).txt 12) text
func ParseProvenanceLine(line string) (ProvenanceLine, error) {
	rev, rest, ok := strings.Cut(line, " ")
	if !ok || rev == "" {
		return ProvenanceLine{}, fmt.Errorf("%w: no revision in %q", ErrMalformedProvenance, line)
	}
	if !strings.Contains(rest, ")") {
		return ProvenanceLine{}, fmt.Errorf("%w: no line number in %q", ErrMalformedProvenance, line)
	}
	for i, r := range rest {
		if r != ')' {
			continue
		}
		if number, ok := lineNumberBefore(rest[:i]); ok {
			return ProvenanceLine{Rev: rev, Line: number}, nil
		}
	}
	return ProvenanceLine{}, fmt.Errorf("%w: bad line number in %q", ErrMalformedProvenance, line)
}

func lineNumberBefore(meta string) (int, bool) {
	fields := strings.Fields(meta)
	if len(fields) == 0 {
		return 0, false
	}
	number, err := strconv.Atoi(strings.TrimPrefix(fields[len(fields)-1], "("))
	if err != nil || number < 1 {
		return 0, false
	}
	return number, true
}

// Cursor reads provenance lines in order, checking that line numbers advance
// by exactly one from line 1. It never rewinds.
type Cursor struct {
	stream LineStream
	rev    string
	path   string
	// last is the number of the last line read.
	last int
}

func NewCursor(stream LineStream, rev, path string) *Cursor {
	return &Cursor{stream: stream, rev: rev, path: path}
}

// Last returns the number of the last line read, 0 before the first read.
func (c *Cursor) Last() int {
	return c.last
}

// Next reads the next line. It returns io.EOF at the end of the stream.
func (c *Cursor) Next() (ProvenanceLine, error) {
	raw, err := c.stream.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ProvenanceLine{}, io.EOF
		}
		return ProvenanceLine{}, fmt.Errorf("read provenance of %s: %w", c.path, err)
	}
	pl, err := ParseProvenanceLine(raw)
	if err != nil {
		return ProvenanceLine{}, fmt.Errorf("%s at %s: %w", c.path, shortRev(c.rev), err)
	}
	if pl.Line != c.last+1 {
		return ProvenanceLine{}, &ConsistencyError{Rev: c.rev, Path: c.path, Expected: c.last + 1, Got: pl.Line}
	}
	c.last = pl.Line
	return pl, nil
}

// Skip discards n lines and returns the last one discarded. Skipping zero lines
// returns the zero ProvenanceLine.
func (c *Cursor) Skip(n int) (ProvenanceLine, error) {
	if n < 0 {
		return ProvenanceLine{}, &ConsistencyError{
			Rev:    c.rev,
			Path:   c.path,
			Reason: fmt.Sprintf("cannot rewind from line %d by %d", c.last, -n),
		}
	}
	var pl ProvenanceLine
	for range n {
		var err error
		pl, err = c.Next()
		if err != nil {
			return ProvenanceLine{}, err
		}
	}
	return pl, nil
}
