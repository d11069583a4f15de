package solver

// SelectionStrategy picks the winning candidate from those that validated
// as applicable.
type SelectionStrategy interface {
	Name() string
	Select(candidates []Candidate) *Candidate
}

// FirstApplicable returns the earliest applicable candidate. With early
// stop enabled the generation loop never runs past it, so the two
// compose into "stop at the first usable patch".
type FirstApplicable struct{}

func (FirstApplicable) Name() string { return "first_applicable" }

func (FirstApplicable) Select(candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	return &candidates[0]
}

// LongestPatch returns the longest applicable candidate. Used by the fixed
// baseline, which always exhausts its budget and then picks the most
// substantial patch.
type LongestPatch struct{}

func (LongestPatch) Name() string { return "longest_patch" }

func (LongestPatch) Select(candidates []Candidate) *Candidate {
	var best *Candidate
	for i := range candidates {
		if best == nil || len(candidates[i].Patch) > len(best.Patch) {
			best = &candidates[i]
		}
	}
	return best
}
