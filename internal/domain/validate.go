package domain

import "fmt"

type Verdict string

const (
	VerdictNotYetEvaluated Verdict = ""
	VerdictPassed          Verdict = "passed"
	VerdictFailed          Verdict = "failed"
)

func (v Verdict) String() string {
	switch v {
	case VerdictPassed:
		return "Passed"
	case VerdictFailed:
		return "Failed"
	default:
		return "NotYetEvaluated"
	}
}

// Validate passes only when the selection equals the set of cells holding
// the target marker. Cells are checked in index order and the scan stops at
// the first mismatch.
func Validate(ch *Challenge, rs ResponseSet) (Verdict, error) {
	if ch == nil {
		return VerdictNotYetEvaluated, fmt.Errorf("validate without challenge: %w", ErrConfiguration)
	}
	if len(rs) != ch.Grid.Len() {
		return VerdictNotYetEvaluated, fmt.Errorf("%d responses for %d cells: %w", len(rs), ch.Grid.Len(), ErrConfiguration)
	}

	for i, selected := range rs {
		m := ch.Grid.Cells[i]
		isTarget := !m.IsNone() && m == ch.Target
		if selected != isTarget {
			return VerdictFailed, nil
		}
	}
	return VerdictPassed, nil
}
