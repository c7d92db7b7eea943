package world

import "math"

// Bounds is the minimal axis-aligned rectangle covering every occupied cell.
// A fresh Bounds is in the default (empty) state until the first Expand.
type Bounds struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// NewBounds returns bounds in the default state (min = +inf, max = -inf).
func NewBounds() Bounds {
	return Bounds{
		MinX: math.MaxInt,
		MinY: math.MaxInt,
		MaxX: math.MinInt,
		MaxY: math.MinInt,
	}
}

// IsDefault reports whether nothing has been added since NewBounds.
func (b Bounds) IsDefault() bool {
	return b.MinX == math.MaxInt && b.MinY == math.MaxInt &&
		b.MaxX == math.MinInt && b.MaxY == math.MinInt
}

// Expand grows the rectangle to include c. It never shrinks.
func (b *Bounds) Expand(c Coord) {
	b.MinX = min(b.MinX, c.X)
	b.MinY = min(b.MinY, c.Y)
	b.MaxX = max(b.MaxX, c.X)
	b.MaxY = max(b.MaxY, c.Y)
}

// Width is the number of columns covered, 0 in the default state.
func (b Bounds) Width() int {
	if b.IsDefault() {
		return 0
	}
	return b.MaxX - b.MinX + 1
}

// Height is the number of rows covered, 0 in the default state.
func (b Bounds) Height() int {
	if b.IsDefault() {
		return 0
	}
	return b.MaxY - b.MinY + 1
}

// Area returns Width * Height.
func (b Bounds) Area() int {
	return b.Width() * b.Height()
}

// Diagonal returns sqrt(width² + height²).
func (b Bounds) Diagonal() float64 {
	w, h := float64(b.Width()), float64(b.Height())
	return math.Sqrt(w*w + h*h)
}

// ContainsCoord reports whether c lies inside the rectangle.
func (b Bounds) ContainsCoord(c Coord) bool {
	return c.X >= b.MinX && c.X <= b.MaxX && c.Y >= b.MinY && c.Y <= b.MaxY
}
