// Package shape holds the polyomino catalog, the rotation/flip permutations
// applied to shapes, and the bag that limits how many of each may be placed.
package shape

import (
	"strings"
	"unicode"

	"github.com/talgya/kluring/internal/world"
)

// Shape is an immutable polyomino footprint. Cells are offsets from the
// shape's local origin (x = mask column, y = mask line).
type Shape struct {
	ID     int           `json:"id"`
	Name   string        `json:"name"`
	Cells  []world.Coord `json:"cells"`
	Width  int           `json:"width"`  // mask columns
	Height int           `json:"height"` // mask lines
}

// Mask is an ASCII-art shape definition. Any non-whitespace character is a cell.
type Mask struct {
	Name string
	Art  string
}

// ParseMask builds a shape from ASCII art.
func ParseMask(id int, name, art string) Shape {
	s := Shape{ID: id, Name: name}
	for y, line := range strings.Split(art, "\n") {
		x := 0
		for _, ch := range line {
			if !unicode.IsSpace(ch) {
				s.Cells = append(s.Cells, world.Coord{X: x, Y: y})
			}
			x++
		}
		s.Width = max(s.Width, x)
		s.Height = y + 1
	}
	return s
}

// Size returns the number of cells in the footprint.
func (s Shape) Size() int {
	return len(s.Cells)
}

// Catalog is the ordered, fixed set of shapes. A shape's ID is its index.
type Catalog []Shape

// NewCatalog parses masks in order, assigning IDs 0..n-1.
func NewCatalog(masks ...Mask) Catalog {
	c := make(Catalog, len(masks))
	for i, m := range masks {
		c[i] = ParseMask(i, m.Name, m.Art)
	}
	return c
}

// Get returns the shape with the given ID.
func (c Catalog) Get(id int) (Shape, bool) {
	if id < 0 || id >= len(c) {
		return Shape{}, false
	}
	return c[id], true
}

// DefaultMasks are the six hand-authored shapes.
var DefaultMasks = []Mask{
	{Name: "spine", Art: "X\nX\nX\nXX\nX\nXX"},
	{Name: "stair", Art: " XXX\nXX\n XX\n  X"},
	{Name: "hook", Art: " XXX\nXX\nX\nXX"},
	{Name: "cross", Art: " X\nXXXX\n X\n X\n X"},
	{Name: "zigzag", Art: "XXX\n  X\n  XXX\n  X"},
	{Name: "comet", Art: "  X\nXXX\n XXX\n  X"},
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() Catalog {
	return NewCatalog(DefaultMasks...)
}
