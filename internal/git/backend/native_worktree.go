package backend

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"
)

// renameThreshold is git's default similarity for -M, in percent.
const renameThreshold = 50

// localChange is one tracked file whose working tree copy differs from the
// base commit. A nil side means the file is absent there. oldPath is set when
// the file was renamed from another path of the base commit.
type localChange struct {
	path    string
	oldPath string
	from    *object.File
	to      []byte
}

func (ch localChange) fromPath() string {
	if ch.oldPath != "" {
		return ch.oldPath
	}
	return ch.path
}

// worktreeDiff renders the equivalent of `git diff <base>` for tracked files:
// staged and unstaged edits together, untracked files left out.
func (n *native) worktreeDiff(base *object.Commit) (string, error) {
	wt, err := n.repo.Worktree()
	if err != nil {
		return "", err
	}
	status, err := wt.Status()
	if err != nil {
		return "", err
	}
	tree, err := base.Tree()
	if err != nil {
		return "", err
	}
	var paths []string
	for path, st := range status {
		if st.Staging == gitlib.Untracked || st.Worktree == gitlib.Untracked {
			continue
		}
		if st.Staging != gitlib.Unmodified || st.Worktree != gitlib.Unmodified {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	var changes []localChange
	for _, path := range paths {
		from, err := fileFromTree(tree, path)
		if err != nil {
			return "", err
		}
		to, err := fileFromDisk(n.path, path)
		if err != nil {
			return "", err
		}
		if from == nil && to == nil {
			continue
		}
		changes = append(changes, localChange{path: path, from: from, to: to})
	}
	changes, err = detectRenames(changes)
	if err != nil {
		return "", err
	}
	return renderLocalDiff(changes)
}

// detectRenames pairs deleted files with added ones the way git diff -M does:
// identical content first, then the most similar text at or above
// renameThreshold. Paired changes are merged into one keyed by the new path.
func detectRenames(changes []localChange) ([]localChange, error) {
	var deleted, added []int
	for i, ch := range changes {
		switch {
		case ch.from != nil && ch.to == nil:
			deleted = append(deleted, i)
		case ch.from == nil && ch.to != nil:
			added = append(added, i)
		}
	}
	if len(deleted) == 0 || len(added) == 0 {
		return changes, nil
	}
	pairs := map[int]int{} // added index -> deleted index
	used := map[int]bool{}
	for _, d := range deleted {
		for _, a := range added {
			if _, taken := pairs[a]; taken {
				continue
			}
			if plumbing.ComputeHash(plumbing.BlobObject, changes[a].to) == changes[d].from.Hash {
				pairs[a] = d
				used[d] = true
				break
			}
		}
	}
	for _, d := range deleted {
		if used[d] {
			continue
		}
		fromLines, err := fileLines(changes[d].from)
		if err != nil {
			return nil, err
		}
		best, bestScore := -1, 0
		for _, a := range added {
			if _, taken := pairs[a]; taken {
				continue
			}
			m := difflib.NewMatcher(fromLines, diskLines(changes[a].to))
			if score := int(m.Ratio() * 100); score >= renameThreshold && score > bestScore {
				best, bestScore = a, score
			}
		}
		if best >= 0 {
			pairs[best] = d
			used[d] = true
		}
	}
	merged := make([]localChange, 0, len(changes))
	for i, ch := range changes {
		if used[i] {
			continue
		}
		if d, ok := pairs[i]; ok {
			ch.oldPath = changes[d].path
			ch.from = changes[d].from
		}
		merged = append(merged, ch)
	}
	return merged, nil
}

func fileFromTree(tree *object.Tree, path string) (*object.File, error) {
	if tree == nil {
		return nil, nil
	}
	f, err := tree.File(path)
	if err == object.ErrFileNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func fileFromDisk(root, path string) ([]byte, error) {
	if root == "" {
		return nil, fmt.Errorf("repository root not set")
	}
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

func renderLocalDiff(changes []localChange) (string, error) {
	var b strings.Builder
	for _, ch := range changes {
		isBinary, err := binaryChange(ch)
		if err != nil {
			return "", err
		}
		if isBinary {
			fmt.Fprintf(&b, "diff --git a/%s b/%s\n", ch.fromPath(), ch.path)
			fmt.Fprintf(&b, "Binary files a/%s and b/%s differ\n", ch.fromPath(), ch.path)
			continue
		}
		fromLines, err := fileLines(ch.from)
		if err != nil {
			return "", err
		}
		ud := difflib.UnifiedDiff{
			A:        fromLines,
			B:        diskLines(ch.to),
			FromFile: "a/" + ch.fromPath(),
			ToFile:   "b/" + ch.path,
			Context:  diff.DefaultContextLines,
		}
		if ch.from == nil {
			ud.FromFile = "/dev/null"
		}
		if ch.to == nil {
			ud.ToFile = "/dev/null"
		}
		diffText, err := difflib.GetUnifiedDiffString(ud)
		if err != nil {
			return "", err
		}
		if diffText == "" {
			continue
		}
		fmt.Fprintf(&b, "diff --git a/%s b/%s\n", ch.fromPath(), ch.path)
		if ch.oldPath != "" {
			fmt.Fprintf(&b, "rename from %s\nrename to %s\n", ch.oldPath, ch.path)
		}
		b.WriteString(diffText)
		if !strings.HasSuffix(diffText, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func binaryChange(ch localChange) (bool, error) {
	if ch.from != nil {
		bin, err := ch.from.IsBinary()
		if err != nil {
			return false, err
		}
		if bin {
			return true, nil
		}
	}
	// Same heuristic as git: a NUL byte in the first 8000 bytes.
	head := ch.to
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0, nil
}

func fileLines(f *object.File) ([]string, error) {
	if f == nil {
		return []string{}, nil
	}
	content, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return splitLines(content), nil
}

func diskLines(data []byte) []string {
	if data == nil {
		return []string{}
	}
	return splitLines(string(data))
}

// splitLines is difflib.SplitLines without the phantom empty line it appends
// after a trailing newline, so line counts match git's.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := difflib.SplitLines(s)
	if strings.HasSuffix(s, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func encodeUnifiedPatch(filePatches []diff.FilePatch) (string, error) {
	var buf bytes.Buffer
	enc := diff.NewUnifiedEncoder(&buf, diff.DefaultContextLines)
	if err := enc.Encode(filePatchSet{patches: filePatches}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type filePatchSet struct {
	patches []diff.FilePatch
}

func (f filePatchSet) FilePatches() []diff.FilePatch { return f.patches }
func (filePatchSet) Message() string                 { return "" }
