package shape

import (
	"fmt"

	"github.com/talgya/kluring/internal/world"
)

// Permutation selects one of up to eight orientations of a shape:
// Rotation quarter turns counter-clockwise, then an optional mirror.
type Permutation struct {
	ShapeID  int   `json:"shape_id"`
	Rotation uint8 `json:"rotation"` // 0-3
	Flipped  bool  `json:"flipped"`
}

func (p Permutation) String() string {
	flip := ""
	if p.Flipped {
		flip = " flipped"
	}
	return fmt.Sprintf("shape %d rot %d%s", p.ShapeID, p.Rotation*90, flip)
}

// Apply transforms cells: rotate, then negate x if flipped. The result is
// not re-normalized.
func (p Permutation) Apply(cells []world.Coord) []world.Coord {
	out := Rotate(cells, p.Rotation)
	if p.Flipped {
		flipInPlace(out)
	}
	return out
}

// Identity returns the unrotated, unflipped permutation of a shape.
func Identity(shapeID int) Permutation {
	return Permutation{ShapeID: shapeID}
}

// Permutations returns all eight orientations of a shape, identity first.
// Symmetric shapes yield duplicates; they are not removed.
func Permutations(shapeID int) []Permutation {
	out := make([]Permutation, 0, 8)
	for _, flipped := range []bool{false, true} {
		for r := range uint8(4) {
			out = append(out, Permutation{ShapeID: shapeID, Rotation: r, Flipped: flipped})
		}
	}
	return out
}

// quarterTurn is the integer matrix for a 90° counter-clockwise rotation.
var quarterTurn = [2][2]int{
	{0, -1},
	{1, 0},
}

func transform(m [2][2]int, c world.Coord) world.Coord {
	return world.Coord{
		X: m[0][0]*c.X + m[0][1]*c.Y,
		Y: m[1][0]*c.X + m[1][1]*c.Y,
	}
}

// Rotate returns a copy of cells turned r quarter turns counter-clockwise.
func Rotate(cells []world.Coord, r uint8) []world.Coord {
	out := make([]world.Coord, len(cells))
	copy(out, cells)
	for range r % 4 {
		for i, c := range out {
			out[i] = transform(quarterTurn, c)
		}
	}
	return out
}

// Flip returns a copy of cells mirrored across the y axis.
func Flip(cells []world.Coord) []world.Coord {
	out := make([]world.Coord, len(cells))
	copy(out, cells)
	flipInPlace(out)
	return out
}

func flipInPlace(cells []world.Coord) {
	for i := range cells {
		cells[i].X = -cells[i].X
	}
}

// Place translates the permuted footprint so its local origin sits at anchor.
func Place(cells []world.Coord, anchor world.Coord) []world.Coord {
	out := make([]world.Coord, len(cells))
	for i, c := range cells {
		out[i] = anchor.Add(c)
	}
	return out
}
