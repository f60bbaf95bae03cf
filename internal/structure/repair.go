package structure

import "sort"

// validateAndRepair checks unit ranges against cueCount and the strict
// non-overlap rule, repairing touching/crossing overlaps by pulling the
// earlier unit's end back to just before the next unit's start. Ranges that
// repair collapses to nothing are dropped. It returns ok=false when the
// unit list is empty, any range is out of bounds or inverted, or no range
// survives repair; gaps in cue coverage are not checked.
func validateAndRepair(units []UnitSpec, cueCount int) ([]UnitSpec, bool) {
	if len(units) == 0 {
		return nil, false
	}

	out := make([]UnitSpec, len(units))
	copy(out, units)
	sort.Slice(out, func(i, j int) bool { return out[i].StartIndex < out[j].StartIndex })

	for i := range out {
		if out[i].StartIndex < 0 || out[i].EndIndex >= cueCount || out[i].StartIndex > out[i].EndIndex {
			return nil, false
		}
	}

	repaired := out[:0:0]
	for i, u := range out {
		if i > 0 {
			prev := &repaired[len(repaired)-1]
			if prev.EndIndex >= u.StartIndex {
				prev.EndIndex = u.StartIndex - 1
			}
		}
		repaired = append(repaired, u)
	}

	// Drop degenerate ranges left behind by repair.
	final := repaired[:0:0]
	for _, u := range repaired {
		if u.StartIndex > u.EndIndex {
			continue
		}
		final = append(final, u)
	}
	if len(final) == 0 {
		return nil, false
	}
	return final, true
}
