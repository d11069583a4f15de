package patch

import (
	"fmt"
	"strings"
)

// Repair fixes the mechanical defects Check reports: CRLF line endings,
// hunk headers whose counts disagree with their bodies, context lines that
// lost their leading space, prose appended outside the diff, and a missing
// trailing newline. A patch with no defects is returned byte-identical.
//
// Structural defects like a missing file header cannot be repaired; Check
// on the result reports whatever remains.
func Repair(patch string) (string, bool) {
	if len(Check(patch)) == 0 {
		return patch, false
	}

	repaired := strings.ReplaceAll(patch, "\r\n", "\n")
	repaired = rebuildHunks(cleanLines(repaired))

	if !strings.HasSuffix(repaired, "\n") {
		repaired += "\n"
	}

	return repaired, repaired != patch
}

// cleanLines drops non-diff prose and restores the leading space on empty
// context lines.
func cleanLines(patch string) []string {
	lines := strings.Split(patch, "\n")

	var out []string
	inBody := false
	for idx, line := range lines {
		switch {
		case hunkHeaderPattern.MatchString(line):
			inBody = true
			out = append(out, line)
		case isHeaderLine(line):
			inBody = false
			out = append(out, line)
		case line == "":
			// Keep the final-newline artifact; restore lost context
			// spaces inside hunk bodies.
			if inBody && idx != len(lines)-1 {
				out = append(out, " ")
			} else if idx == len(lines)-1 {
				out = append(out, line)
			}
		case inBody && isHunkBodyLine(line):
			out = append(out, line)
		default:
			// Prose outside the diff grammar; drop it.
		}
	}
	return out
}

// rebuildHunks recomputes each hunk header's line counts from its body.
func rebuildHunks(lines []string) string {
	var out []string

	i := 0
	for i < len(lines) {
		m := hunkHeaderPattern.FindStringSubmatch(lines[i])
		if m == nil {
			out = append(out, lines[i])
			i++
			continue
		}

		headerIdx := len(out)
		out = append(out, lines[i])
		i++

		start := i
		for i < len(lines) && isHunkBodyLine(lines[i]) && !strings.HasPrefix(lines[i], "@@") {
			out = append(out, lines[i])
			i++
		}

		oldCount, newCount := countHunkBody(lines[start:i])
		out[headerIdx] = fmt.Sprintf("@@ -%s,%d +%s,%d @@%s", m[1], oldCount, m[3], newCount, m[5])
	}

	return strings.Join(out, "\n")
}
