package world

import (
	"cmp"
	"slices"
)

// FrontierCell is an unoccupied cell orthogonally adjacent to the occupied
// region, with the derived scores of the most recent scoring pass.
type FrontierCell struct {
	Coord     Coord `json:"coord"`
	Adjacency int   `json:"adjacency"` // occupied neighbours, 0-4
	Distance  int   `json:"distance"`  // closeness to the seed, ~0-10
	Noise     int   `json:"noise,omitempty"`

	// Closeness is the unrounded normalized distance, kept for renderers.
	Closeness float64 `json:"closeness"`
}

// Score is the total desirability of the cell.
func (fc FrontierCell) Score() int {
	return fc.Adjacency + fc.Distance + fc.Noise
}

// Frontier is the set of tracked border cells.
type Frontier struct {
	cells map[Coord]*FrontierCell
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{cells: make(map[Coord]*FrontierCell)}
}

// Ensure tracks c, creating it with zero scores if new. Reports whether
// the cell was created.
func (f *Frontier) Ensure(c Coord) bool {
	if _, ok := f.cells[c]; ok {
		return false
	}
	f.cells[c] = &FrontierCell{Coord: c}
	return true
}

// Remove stops tracking c.
func (f *Frontier) Remove(c Coord) {
	delete(f.cells, c)
}

// Get returns the tracked cell at c, or nil.
func (f *Frontier) Get(c Coord) *FrontierCell {
	return f.cells[c]
}

// Contains reports whether c is tracked.
func (f *Frontier) Contains(c Coord) bool {
	_, ok := f.cells[c]
	return ok
}

// Len returns the number of tracked cells.
func (f *Frontier) Len() int {
	return len(f.cells)
}

// Each calls fn for every tracked cell in unspecified order. fn may mutate
// the cell's scores.
func (f *Frontier) Each(fn func(*FrontierCell)) {
	for _, fc := range f.cells {
		fn(fc)
	}
}

// Sorted returns copies of all cells by descending score. Equal scores are
// ordered row-major by coordinate so the result is reproducible.
func (f *Frontier) Sorted() []FrontierCell {
	out := make([]FrontierCell, 0, len(f.cells))
	for _, fc := range f.cells {
		out = append(out, *fc)
	}
	slices.SortFunc(out, func(a, b FrontierCell) int {
		if c := cmp.Compare(b.Score(), a.Score()); c != 0 {
			return c
		}
		if a.Coord.Less(b.Coord) {
			return -1
		}
		if b.Coord.Less(a.Coord) {
			return 1
		}
		return 0
	})
	return out
}

// Clear removes every tracked cell.
func (f *Frontier) Clear() {
	clear(f.cells)
}
