package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/odvcencio/miser/pkg/errors"
	"github.com/odvcencio/miser/pkg/patch"
)

// DryRun checks whether a patch would apply cleanly to the checkout. It
// only reads the working tree; the checkout is untouched regardless of the
// outcome.
func (c *Checkout) DryRun(patchText string) []patch.Defect {
	fileDiffs, err := patch.Parse(patchText)
	if err != nil {
		return []patch.Defect{{
			Kind:    patch.KindDiffParse,
			Message: fmt.Sprintf("cannot parse diff: %v", err),
		}}
	}
	if len(fileDiffs) == 0 {
		return []patch.Defect{{
			Kind:    patch.KindDiffParse,
			Message: "patch contains no file diffs",
		}}
	}

	var defects []patch.Defect
	for _, fd := range fileDiffs {
		target := patch.TargetPath(fd)
		if !isLocalPath(target) {
			defects = append(defects, patch.Defect{
				Kind:    patch.KindPathEscape,
				Message: "patch targets a path outside the repository",
				File:    target,
			})
			continue
		}

		if _, _, err := c.applyFileDiff(fd); err != nil {
			defects = append(defects, toDefect(err, target))
		}
	}

	return defects
}

// Apply writes a patch to the working tree. Callers are expected to have
// run DryRun first; a conflict here still leaves already-written files
// behind, so the checkout should be Reset on error.
func (c *Checkout) Apply(patchText string) error {
	fileDiffs, err := patch.Parse(patchText)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeApplyConflict, "cannot parse diff")
	}

	for _, fd := range fileDiffs {
		target := patch.TargetPath(fd)
		if !isLocalPath(target) {
			return errors.New(errors.ErrCodePathEscape, "patch targets a path outside the repository").
				WithContext("path", target)
		}

		content, deleted, err := c.applyFileDiff(fd)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeApplyConflict, "applying patch").
				WithContext("file", target)
		}

		abs := filepath.Join(c.Dir, target)
		if deleted {
			if err := os.Remove(abs); err != nil {
				return errors.Wrap(err, errors.ErrCodeApplyConflict, "deleting file").
					WithContext("file", target)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return errors.Wrap(err, errors.ErrCodeApplyConflict, "creating directory")
		}
		if err := os.WriteFile(abs, content, 0644); err != nil {
			return errors.Wrap(err, errors.ErrCodeApplyConflict, "writing file").
				WithContext("file", target)
		}
	}

	return nil
}

// conflictError reports a hunk that does not match the working tree.
type conflictError struct {
	file       string
	line       int
	message    string
	similarity float64
}

func (e *conflictError) Error() string {
	if e.similarity > 0 {
		return fmt.Sprintf("%s:%d: %s (closest match %.0f%% similar)",
			e.file, e.line, e.message, e.similarity*100)
	}
	return fmt.Sprintf("%s:%d: %s", e.file, e.line, e.message)
}

func toDefect(err error, target string) patch.Defect {
	return patch.Defect{
		Kind:    patch.KindApplyConflict,
		Message: err.Error(),
		File:    target,
	}
}

// applyFileDiff computes the post-patch content of one file, verifying
// every context and removed line against the working tree. Nothing is
// written.
func (c *Checkout) applyFileDiff(fd *godiff.FileDiff) (content []byte, deleted bool, err error) {
	target := patch.TargetPath(fd)
	abs := filepath.Join(c.Dir, target)

	if fd.NewName == "/dev/null" {
		if _, statErr := os.Stat(abs); statErr != nil {
			return nil, false, &conflictError{file: target, message: "cannot delete a file that does not exist"}
		}
		return nil, true, nil
	}

	if fd.OrigName == "/dev/null" {
		if _, statErr := os.Stat(abs); statErr == nil {
			return nil, false, &conflictError{file: target, message: "new file already exists"}
		}
		var lines []string
		for _, hunk := range fd.Hunks {
			for _, line := range hunkBodyLines(hunk) {
				if strings.HasPrefix(line, "+") {
					lines = append(lines, line[1:])
				}
			}
		}
		return []byte(strings.Join(lines, "\n") + "\n"), false, nil
	}

	original, readErr := os.ReadFile(abs)
	if readErr != nil {
		return nil, false, &conflictError{file: target, message: "file does not exist in the repository"}
	}

	origLines := strings.Split(string(original), "\n")
	var newLines []string
	origIdx := 0

	for _, hunk := range fd.Hunks {
		hunkStart := int(hunk.OrigStartLine) - 1
		if hunkStart < origIdx || hunkStart > len(origLines) {
			return nil, false, &conflictError{
				file:    target,
				line:    int(hunk.OrigStartLine),
				message: "hunk start is outside the file",
			}
		}

		for origIdx < hunkStart {
			newLines = append(newLines, origLines[origIdx])
			origIdx++
		}

		for _, line := range hunkBodyLines(hunk) {
			var marker byte = ' '
			text := ""
			if line != "" {
				marker = line[0]
				text = line[1:]
			}

			switch marker {
			case '+':
				newLines = append(newLines, text)
			case '-', ' ':
				if origIdx >= len(origLines) {
					return nil, false, &conflictError{
						file:    target,
						line:    origIdx + 1,
						message: "hunk extends past end of file",
					}
				}
				if !linesMatch(origLines[origIdx], text) {
					return nil, false, &conflictError{
						file:       target,
						line:       origIdx + 1,
						message:    fmt.Sprintf("expected %q, found %q", text, origLines[origIdx]),
						similarity: similarity(origLines[origIdx], text),
					}
				}
				if marker == ' ' {
					newLines = append(newLines, origLines[origIdx])
				}
				origIdx++
			case '\\':
				// "\ No newline at end of file"
			}
		}
	}

	for origIdx < len(origLines) {
		newLines = append(newLines, origLines[origIdx])
		origIdx++
	}

	return []byte(strings.Join(newLines, "\n")), false, nil
}

// hunkBodyLines splits a hunk body, dropping the empty artifact a trailing
// newline produces.
func hunkBodyLines(hunk *godiff.Hunk) []string {
	lines := strings.Split(string(hunk.Body), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// linesMatch compares a working tree line against a patch line, tolerating
// a CRLF working tree.
func linesMatch(fileLine, patchLine string) bool {
	return strings.TrimRight(fileLine, "\r") == strings.TrimRight(patchLine, "\r")
}

func similarity(a, b string) float64 {
	matcher := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return matcher.Ratio()
}
