// Package policy implements Gate2: the automated policy barrier evaluated
// against a PatchSet's combined unified diff (§4.3).
package policy

import (
	"strconv"
	"strings"
)

// FileDiff is one file's record within a parsed unified diff.
type FileDiff struct {
	Path       string
	OldPath    string
	IsNew      bool
	IsDeleted  bool
	IsRename   bool
	Additions  int
	Deletions  int
	AddedLines []AddedLine
}

// AddedLine is a single added line (a "+" line, excluding the "+++"
// header) together with the file it belongs to and its line number within
// that file, so secret findings can report a location.
type AddedLine struct {
	File string
	Line int
	Text string
}

// TouchedPaths returns every path this file record touches. For renames
// both the old and new path are touched, per §4.3 step 1.
func (f FileDiff) TouchedPaths() []string {
	if f.IsRename && f.OldPath != "" && f.OldPath != f.Path {
		return []string{f.OldPath, f.Path}
	}
	return []string{f.Path}
}

// ParseDiff parses a git-style unified diff (possibly concatenating
// several "diff --git" sections, as PatchSet.CombinedDiff produces) into
// per-file records. It is the single source of "which files were
// touched" for the rest of the policy engine.
func ParseDiff(diff string) []FileDiff {
	var files []FileDiff
	var cur *FileDiff
	lineInFile := 0

	flush := func() {
		if cur != nil {
			files = append(files, *cur)
		}
		cur = nil
	}

	lines := strings.Split(diff, "\n")
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			a, b := parseDiffGitLine(line)
			cur = &FileDiff{Path: b, OldPath: a}
			lineInFile = 0
		case cur == nil:
			continue
		case strings.HasPrefix(line, "new file mode"):
			cur.IsNew = true
		case strings.HasPrefix(line, "deleted file mode"):
			cur.IsDeleted = true
		case strings.HasPrefix(line, "rename from "):
			cur.IsRename = true
			cur.OldPath = strings.TrimPrefix(line, "rename from ")
		case strings.HasPrefix(line, "rename to "):
			cur.IsRename = true
			cur.Path = strings.TrimPrefix(line, "rename to ")
		case strings.HasPrefix(line, "--- "):
			// a/path or /dev/null; authoritative path comes from +++/diff --git.
		case strings.HasPrefix(line, "+++ "):
			p := strings.TrimPrefix(line, "+++ ")
			if p != "/dev/null" {
				cur.Path = trimGitPrefix(p)
			}
		case strings.HasPrefix(line, "@@ "):
			lineInFile = parseHunkStart(line)
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			cur.Additions++
			cur.AddedLines = append(cur.AddedLines, AddedLine{File: cur.Path, Line: lineInFile, Text: strings.TrimPrefix(line, "+")})
			lineInFile++
		case strings.HasPrefix(line, "-"):
			cur.Deletions++
		default:
			lineInFile++
		}
	}
	flush()
	return files
}

func parseDiffGitLine(line string) (a, b string) {
	// "diff --git a/path/to/file b/path/to/file"
	rest := strings.TrimPrefix(line, "diff --git ")
	idx := strings.Index(rest, " b/")
	if idx < 0 {
		return rest, rest
	}
	a = trimGitPrefix(rest[:idx])
	b = trimGitPrefix(rest[idx+1:])
	return a, b
}

func trimGitPrefix(p string) string {
	p = strings.TrimPrefix(p, "a/")
	p = strings.TrimPrefix(p, "b/")
	return p
}

// parseHunkStart extracts the new-file starting line number from a hunk
// header "@@ -a,b +c,d @@".
func parseHunkStart(header string) int {
	idx := strings.Index(header, "+")
	if idx < 0 {
		return 1
	}
	rest := header[idx+1:]
	end := strings.IndexAny(rest, ", @")
	if end < 0 {
		end = len(rest)
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 1
	}
	return n
}
