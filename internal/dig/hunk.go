package dig

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	oldFilePrefix = "--- "
	newFilePrefix = "+++ "
	hunkPrefix    = "@@ -"
	devNull       = "/dev/null"
)

// ParseHunks turns the unified diff between parent and child into hunks, in
// stream order. A diff without hunks yields an empty slice.
func ParseHunks(parent, child, diffText string) ([]*Hunk, error) {
	var (
		hunks   []*Hunk
		oldPath string
		path    string
		lastOld = -1
		// lines of the current hunk body still expected on each side
		oldLeft, newLeft int
	)
	for i, rawLine := range strings.Split(diffText, "\n") {
		line := strings.TrimRight(rawLine, "\r")
		if oldLeft > 0 || newLeft > 0 {
			inBody := true
			switch {
			case strings.HasPrefix(line, "\\"):
				// "\ No newline at end of file"
			case strings.HasPrefix(line, "-"):
				oldLeft--
			case strings.HasPrefix(line, "+"):
				newLeft--
			case strings.HasPrefix(line, " "), line == "":
				oldLeft--
				newLeft--
			default:
				// short body; let the header cases below see the line
				oldLeft, newLeft = 0, 0
				inBody = false
			}
			if inBody {
				continue
			}
		}
		switch {
		case strings.HasPrefix(line, "diff --git "):
			oldPath, path = "", ""
			lastOld = -1
		case strings.HasPrefix(line, oldFilePrefix):
			oldPath = diffHeaderPath(line[len(oldFilePrefix):], "a/")
		case strings.HasPrefix(line, newFilePrefix):
			path = diffHeaderPath(line[len(newFilePrefix):], "b/")
			if path == "" {
				// deleted file: only the old side names it
				path = oldPath
			}
			lastOld = -1
		case strings.HasPrefix(line, hunkPrefix):
			if path == "" {
				return nil, fmt.Errorf("%w: line %d: hunk header before file header: %q", ErrMalformedDiff, i+1, line)
			}
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedDiff, i+1, err)
			}
			if h.Old.Start <= lastOld {
				return nil, fmt.Errorf("%w: line %d: hunk at old line %d does not follow line %d in %s",
					ErrMalformedDiff, i+1, h.Old.Start, lastOld, path)
			}
			lastOld = h.Old.Start
			oldLeft, newLeft = h.Old.Count, h.New.Count
			h.Parent = parent
			h.Child = child
			h.Path = path
			h.OldPath = path
			if oldPath != "" {
				h.OldPath = oldPath
			}
			hunks = append(hunks, h)
		}
	}
	return hunks, nil
}

// parseHunkHeader parses "@@ -a[,b] +c[,d] @@ hint".
func parseHunkHeader(line string) (*Hunk, error) {
	body := strings.TrimPrefix(line, "@@ ")
	ranges, hint, ok := strings.Cut(body, " @@")
	if !ok {
		return nil, fmt.Errorf("unterminated hunk header %q", line)
	}
	fields := strings.Fields(ranges)
	if len(fields) != 2 || !strings.HasPrefix(fields[0], "-") || !strings.HasPrefix(fields[1], "+") {
		return nil, fmt.Errorf("unexpected hunk ranges %q", ranges)
	}
	oldRange, err := parseHunkRange(fields[0][1:])
	if err != nil {
		return nil, err
	}
	newRange, err := parseHunkRange(fields[1][1:])
	if err != nil {
		return nil, err
	}
	return &Hunk{
		Old:    oldRange,
		New:    newRange,
		Hint:   strings.TrimSpace(hint),
		Header: line,
	}, nil
}

// parseHunkRange parses "start[,count]"; a missing count means one line.
func parseHunkRange(field string) (Range, error) {
	startStr, countStr, hasCount := strings.Cut(field, ",")
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range start %q", field)
	}
	count := 1
	if hasCount {
		count, err = strconv.Atoi(countStr)
		if err != nil {
			return Range{}, fmt.Errorf("invalid range count %q", field)
		}
	}
	if start < 0 || count < 0 || (start == 0 && count != 0) {
		return Range{}, fmt.Errorf("invalid range %q", field)
	}
	return Range{Start: start, Count: count}, nil
}

// diffHeaderPath extracts the path from the text after "--- " or "+++ ".
// It returns "" for /dev/null.
func diffHeaderPath(raw string, prefix string) string {
	raw = strings.TrimSpace(raw)
	// git appends a tab and a timestamp on some external diff outputs
	if tab := strings.IndexByte(raw, '\t'); tab >= 0 {
		raw = raw[:tab]
	}
	if raw == devNull {
		return ""
	}
	if strings.HasPrefix(raw, `"`) {
		if unquoted, err := strconv.Unquote(raw); err == nil {
			raw = unquoted
		}
	}
	return strings.TrimPrefix(raw, prefix)
}
