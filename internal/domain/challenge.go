package domain

import (
	"fmt"
	"math/rand"
)

const (
	DefaultRows        = 5
	DefaultCols        = 5
	DefaultMarkedCells = 12
)

type Grid struct {
	Rows  int      `json:"rows"`
	Cols  int      `json:"cols"`
	Cells []Marker `json:"cells"`
}

func (g Grid) Len() int {
	return len(g.Cells)
}

// At returns the marker in cell i, MarkerNone when the index is out of range.
func (g Grid) At(i int) Marker {
	if i < 0 || i >= len(g.Cells) {
		return MarkerNone
	}
	return g.Cells[i]
}

// Challenge is immutable once generated. The target is drawn independently of
// the grid, so it may not appear in any cell; then only an empty selection passes.
type Challenge struct {
	Grid   Grid   `json:"grid"`
	Target Marker `json:"target"`
}

func (c *Challenge) Prompt() string {
	return "Select " + c.Target.Plural()
}

// TargetCells is the ground-truth indicator vector: true where the cell holds
// the target marker.
func (c *Challenge) TargetCells() []bool {
	out := make([]bool, c.Grid.Len())
	for i, m := range c.Grid.Cells {
		out[i] = !m.IsNone() && m == c.Target
	}
	return out
}

func (c *Challenge) MarkedCount() int {
	n := 0
	for _, m := range c.Grid.Cells {
		if !m.IsNone() {
			n++
		}
	}
	return n
}

// GenerateChallenge marks k distinct cells of a rows×cols grid with markers
// drawn from vocab and picks a target marker.
func GenerateChallenge(rows, cols int, vocab Vocabulary, k int, r *rand.Rand) (*Challenge, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("grid %dx%d: %w", rows, cols, ErrConfiguration)
	}
	total := rows * cols
	if k < 0 || k >= total {
		return nil, fmt.Errorf("%d marked cells in %d-cell grid: %w", k, total, ErrConfiguration)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("empty marker vocabulary: %w", ErrConfiguration)
	}

	cells := make([]Marker, total)
	for _, idx := range sampleIndices(total, k, r) {
		cells[idx] = vocab[r.Intn(len(vocab))]
	}

	return &Challenge{
		Grid: Grid{
			Rows:  rows,
			Cols:  cols,
			Cells: cells,
		},
		Target: vocab[r.Intn(len(vocab))],
	}, nil
}

// sampleIndices picks k distinct indices from [0, n) with a partial
// Fisher–Yates shuffle: exactly k swaps regardless of how close k is to n.
func sampleIndices(n, k int, r *rand.Rand) []int {
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + r.Intn(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}
