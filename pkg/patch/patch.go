// Package patch validates, repairs, and parses unified diff patches
// produced by a language model.
package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Kind classifies a format defect or application failure.
type Kind string

const (
	KindGenerationFailure Kind = "generation_failure"
	KindMissingFileHeader Kind = "missing_file_header"
	KindMissingHunk       Kind = "missing_hunk"
	KindHunkCountMismatch Kind = "hunk_count_mismatch"
	KindCRLFLineEndings   Kind = "crlf_line_endings"
	KindTrailingGarbage   Kind = "trailing_garbage"
	KindDiffParse         Kind = "diff_parse"
	KindPathEscape        Kind = "path_escape"
	KindApplyConflict     Kind = "apply_conflict"
)

// Defect describes one problem found in a candidate patch.
type Defect struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
}

// Verdict is the outcome of validating one candidate patch against a
// checkout. A patch is usable only when Applicable is true.
type Verdict struct {
	Applicable bool     `json:"applicable"`
	Repaired   bool     `json:"repaired"`
	Defects    []Defect `json:"defects,omitempty"`
}

var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// headerPrefixes are line openings the unified diff grammar allows outside
// hunk bodies.
var headerPrefixes = []string{
	"diff ",
	"index ",
	"--- ",
	"+++ ",
	"---",
	"+++",
	"new file",
	"deleted file",
	"old mode",
	"new mode",
	"similarity",
	"dissimilarity",
	"rename ",
	"copy ",
	"Binary files",
}

// Check inspects a candidate patch for format defects without modifying it.
// An empty result means the patch is structurally sound.
func Check(patch string) []Defect {
	if strings.TrimSpace(patch) == "" {
		return []Defect{{Kind: KindGenerationFailure, Message: "patch is empty"}}
	}

	var defects []Defect

	if !strings.HasPrefix(patch, "diff --git") && !strings.HasPrefix(patch, "--- ") {
		defects = append(defects, Defect{
			Kind:    KindMissingFileHeader,
			Message: "patch does not start with a diff --git or --- header",
		})
	} else if !strings.Contains(patch, "\n---") && !strings.HasPrefix(patch, "--- ") {
		defects = append(defects, Defect{
			Kind:    KindMissingFileHeader,
			Message: "patch has no --- / +++ file markers",
		})
	}

	if !strings.Contains(patch, "@@") {
		defects = append(defects, Defect{Kind: KindMissingHunk, Message: "patch contains no hunks"})
	}

	if strings.Contains(patch, "\r\n") {
		defects = append(defects, Defect{
			Kind:    KindCRLFLineEndings,
			Message: "patch contains CRLF line endings",
		})
	}

	defects = append(defects, checkHunkCounts(patch)...)
	defects = append(defects, checkGarbage(patch)...)

	return defects
}

// checkHunkCounts verifies each hunk header's declared line counts against
// its body.
func checkHunkCounts(patch string) []Defect {
	var defects []Defect

	lines := strings.Split(patch, "\n")
	i := 0
	for i < len(lines) {
		m := hunkHeaderPattern.FindStringSubmatch(lines[i])
		if m == nil {
			i++
			continue
		}

		declaredOld := parseCount(m[2])
		declaredNew := parseCount(m[4])

		i++
		start := i
		for i < len(lines) && isHunkBodyLine(lines[i]) && !strings.HasPrefix(lines[i], "@@") {
			i++
		}

		oldCount, newCount := countHunkBody(lines[start:i])
		if oldCount != declaredOld || newCount != declaredNew {
			defects = append(defects, Defect{
				Kind: KindHunkCountMismatch,
				Message: fmt.Sprintf("hunk header declares -%d/+%d lines but body has -%d/+%d",
					declaredOld, declaredNew, oldCount, newCount),
			})
		}
	}

	return defects
}

// checkGarbage flags lines that belong to neither the diff grammar nor a
// hunk body, typically prose the model appended after the patch.
func checkGarbage(patch string) []Defect {
	inBody := false
	for _, line := range strings.Split(patch, "\n") {
		if hunkHeaderPattern.MatchString(line) {
			inBody = true
			continue
		}
		if isHeaderLine(line) {
			inBody = false
			continue
		}
		if line == "" {
			continue
		}
		if inBody && isHunkBodyLine(line) {
			continue
		}

		return []Defect{{
			Kind:    KindTrailingGarbage,
			Message: "patch contains non-diff content: " + truncate(line, 60),
		}}
	}
	return nil
}

// Parse reads a structurally sound patch into per-file diffs.
func Parse(patch string) ([]*diff.FileDiff, error) {
	return diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
}

// TargetPath resolves the repository-relative path a file diff touches,
// stripping the a/ b/ prefixes git adds.
func TargetPath(fd *diff.FileDiff) string {
	path := fd.NewName
	if path == "" || path == "/dev/null" {
		path = fd.OrigName
	}
	path = strings.TrimPrefix(path, "a/")
	path = strings.TrimPrefix(path, "b/")
	return path
}

func isHeaderLine(line string) bool {
	for _, prefix := range headerPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func isHunkBodyLine(line string) bool {
	if line == "" {
		return true
	}
	switch line[0] {
	case ' ', '+', '-', '\\':
		return true
	}
	return false
}

// countHunkBody tallies old-side and new-side lines. Empty lines are
// context lines that lost their leading space; they count for nothing here,
// which is what surfaces them as a count mismatch.
func countHunkBody(body []string) (oldCount, newCount int) {
	for _, line := range body {
		if line == "" {
			continue
		}
		switch line[0] {
		case '-':
			if !strings.HasPrefix(line, "---") {
				oldCount++
			}
		case '+':
			if !strings.HasPrefix(line, "+++") {
				newCount++
			}
		case ' ':
			oldCount++
			newCount++
		}
	}
	return oldCount, newCount
}

func parseCount(s string) int {
	if s == "" {
		return 1
	}
	n, _ := strconv.Atoi(s)
	return n
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
