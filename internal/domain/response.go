package domain

import "fmt"

// ResponseSet holds one selection flag per grid cell.
type ResponseSet []bool

func NewResponseSet(cellCount int) ResponseSet {
	return make(ResponseSet, cellCount)
}

// Toggle returns a copy with cell i flipped. The receiver is never modified.
func (rs ResponseSet) Toggle(i int) (ResponseSet, error) {
	if i < 0 || i >= len(rs) {
		return rs, fmt.Errorf("toggle cell %d of %d: %w", i, len(rs), ErrIndexOutOfRange)
	}
	out := rs.Clone()
	out[i] = !out[i]
	return out, nil
}

func (rs ResponseSet) Clone() ResponseSet {
	if rs == nil {
		return nil
	}
	out := make(ResponseSet, len(rs))
	copy(out, rs)
	return out
}

func (rs ResponseSet) Selected() []int {
	var idx []int
	for i, v := range rs {
		if v {
			idx = append(idx, i)
		}
	}
	return idx
}
