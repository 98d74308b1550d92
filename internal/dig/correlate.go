package dig

import (
	"errors"
	"io"
	"log/slog"
)

// DefaultContext is the number of lines trimmed from each end of a hunk range
// before blaming, so unchanged context lines do not become dependencies.
const DefaultContext = 2

// minReducedCount is the smallest count ReduceContext shrinks a range to.
const minReducedCount = 2

// ReduceContext shrinks r symmetrically by margin lines on both ends. The count
// never drops below two, and ranges already that small are left alone.
func ReduceContext(r Range, margin int) Range {
	if margin <= 0 {
		return r
	}
	floor := min(r.Count, minReducedCount)
	count := max(floor, r.Count-2*margin)
	return Range{Start: r.Start + (r.Count-count)/2, Count: count}
}

// reduceHunk applies ReduceContext to both ranges of h in place.
func reduceHunk(h *Hunk, margin int) {
	before := *h
	h.Old = ReduceContext(h.Old, margin)
	h.New = ReduceContext(h.New, margin)
	if before.Old != h.Old || before.New != h.New {
		slog.Debug("hunk context reduced",
			slog.String("path", h.Path),
			slog.String("old", before.Old.String()+" -> "+h.Old.String()),
			slog.String("new", before.New.String()+" -> "+h.New.String()),
		)
	}
}

// Correlate reads the provenance of one (revision, path) pair through cursor
// and fills the Deps of every hunk in hunks. Hunks must belong to the same
// parent and path and be sorted by old start line.
//
// Hunk old ranges are inclusive: lines Start..Start+Count-1 are blamed. When
// the stream ends before the last hunk is satisfied, Correlate stops and
// reports partial=true without error.
func Correlate(cursor *Cursor, hunks []*Hunk) (partial bool, err error) {
	for _, h := range hunks {
		if h.Old.Count == 0 {
			continue
		}
		if _, err := cursor.Skip(h.Old.Start - 1 - cursor.Last()); err != nil {
			return exhausted(err)
		}
		for range h.Old.Count {
			pl, err := cursor.Next()
			if err != nil {
				return exhausted(err)
			}
			h.addDep(pl.Rev)
		}
	}
	return false, nil
}

func exhausted(err error) (bool, error) {
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
