package solver

import (
	"github.com/odvcencio/miser/pkg/patch"
)

// Workspace is the checkout surface the validation pipeline needs. A dry
// run must never modify the working tree.
type Workspace interface {
	DryRun(patchText string) []patch.Defect
}

// Pipeline runs a candidate patch through format checking, bounded repair,
// and a dry-run application against a workspace.
type Pipeline struct {
	workspace Workspace
}

// NewPipeline builds a validation pipeline over a workspace.
func NewPipeline(workspace Workspace) *Pipeline {
	return &Pipeline{workspace: workspace}
}

// Validate returns the candidate text to use (repaired if repair ran) and
// the verdict. A defect-free input passes through byte-identical.
func (p *Pipeline) Validate(patchText string) (string, patch.Verdict) {
	verdict := patch.Verdict{}

	formatDefects := patch.Check(patchText)
	if len(formatDefects) > 0 {
		repaired, changed := patch.Repair(patchText)
		verdict.Repaired = changed
		patchText = repaired

		if remaining := patch.Check(patchText); len(remaining) > 0 {
			verdict.Defects = remaining
			return patchText, verdict
		}
	}

	if defects := p.workspace.DryRun(patchText); len(defects) > 0 {
		verdict.Defects = defects
		return patchText, verdict
	}

	verdict.Applicable = true
	return patchText, verdict
}
