package world

import (
	"errors"
	"fmt"
	"math"
)

// Blocked is the reserved field value marking a permanently occupied cell.
// No real score can take this value.
const Blocked = math.MinInt

var (
	// ErrCellOccupied is returned when occupying a cell that already holds Blocked.
	ErrCellOccupied = errors.New("cell already occupied")
	// ErrScoreOnOccupied is returned when scoring a cell that holds Blocked.
	ErrScoreOnOccupied = errors.New("cannot score an occupied cell")
)

// Field maps cells to either Blocked or a desirability score.
// A missing key means "unscored": free for legality, zero for scoring.
type Field struct {
	cells    map[Coord]int
	occupied int
}

// NewField creates an empty field.
func NewField() *Field {
	return &Field{cells: make(map[Coord]int)}
}

// Occupy marks c as Blocked.
func (f *Field) Occupy(c Coord) error {
	if v, ok := f.cells[c]; ok && v == Blocked {
		return fmt.Errorf("occupy %s: %w", c, ErrCellOccupied)
	}
	f.cells[c] = Blocked
	f.occupied++
	return nil
}

// SetScore stores a score for an unoccupied cell, replacing any prior score.
func (f *Field) SetScore(c Coord, score int) error {
	if v, ok := f.cells[c]; ok && v == Blocked {
		return fmt.Errorf("score %s: %w", c, ErrScoreOnOccupied)
	}
	f.cells[c] = score
	return nil
}

// Score returns the stored score of c. ok is false for unscored and
// occupied cells; occupied cells report score 0.
func (f *Field) Score(c Coord) (score int, ok bool) {
	v, ok := f.cells[c]
	if !ok || v == Blocked {
		return 0, false
	}
	return v, true
}

// IsOccupied reports whether c holds Blocked.
func (f *Field) IsOccupied(c Coord) bool {
	v, ok := f.cells[c]
	return ok && v == Blocked
}

// OccupiedCount returns how many cells are Blocked.
func (f *Field) OccupiedCount() int {
	return f.occupied
}

// Empty reports whether no cell has been occupied.
func (f *Field) Empty() bool {
	return f.occupied == 0
}

// Occupied returns every Blocked cell in unspecified order.
func (f *Field) Occupied() []Coord {
	out := make([]Coord, 0, f.occupied)
	for c, v := range f.cells {
		if v == Blocked {
			out = append(out, c)
		}
	}
	return out
}

// Clear removes every entry.
func (f *Field) Clear() {
	clear(f.cells)
	f.occupied = 0
}
