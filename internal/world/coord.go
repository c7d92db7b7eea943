// Package world provides the unbounded cell lattice the tiler grows on:
// coordinates, occupancy and score bookkeeping, bounds, and the frontier.
package world

import "fmt"

// Coord identifies one cell on the unbounded integer lattice.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Origin is the cell at (0, 0).
var Origin = Coord{}

// Add returns c translated by d.
func (c Coord) Add(d Coord) Coord {
	return Coord{X: c.X + d.X, Y: c.Y + d.Y}
}

// Sub returns c - d.
func (c Coord) Sub(d Coord) Coord {
	return Coord{X: c.X - d.X, Y: c.Y - d.Y}
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// NeighborDirections defines the four orthogonal neighbour offsets.
var NeighborDirections = [4]Coord{
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
	{X: 0, Y: -1},
}

// Neighbors returns the four orthogonally adjacent coordinates.
func (c Coord) Neighbors() [4]Coord {
	var result [4]Coord
	for i, dir := range NeighborDirections {
		result[i] = c.Add(dir)
	}
	return result
}

// Less orders coordinates row-major (Y, then X). Used as a stable tie-break.
func (c Coord) Less(d Coord) bool {
	if c.Y != d.Y {
		return c.Y < d.Y
	}
	return c.X < d.X
}
