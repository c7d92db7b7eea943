package shape

import (
	"errors"
	"iter"
	"math/rand/v2"
)

// ErrBagDepleted signals a consume of a shape with no remaining units.
var ErrBagDepleted = errors.New("shape bag depleted")

// Bag tracks how many units of each catalog shape may still be placed.
type Bag struct {
	catalog   Catalog
	remaining []int
}

// NewBag creates a bag holding count units of every shape.
func NewBag(catalog Catalog, count int) *Bag {
	b := &Bag{
		catalog:   catalog,
		remaining: make([]int, len(catalog)),
	}
	b.Reset(count)
	return b
}

// Catalog returns the shapes the bag draws from.
func (b *Bag) Catalog() Catalog {
	return b.catalog
}

// Shape returns the catalog shape with the given ID.
func (b *Bag) Shape(id int) (Shape, bool) {
	return b.catalog.Get(id)
}

// AvailableShapes yields shapes with remaining > 0 in catalog order.
func (b *Bag) AvailableShapes() iter.Seq[Shape] {
	return func(yield func(Shape) bool) {
		for i, s := range b.catalog {
			if b.remaining[i] <= 0 {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// TryConsume takes one unit of the shape. Returns false, leaving the count
// untouched, if none remain or the ID is unknown.
func (b *Bag) TryConsume(id int) bool {
	if id < 0 || id >= len(b.remaining) || b.remaining[id] <= 0 {
		return false
	}
	b.remaining[id]--
	return true
}

// RandomPermutation draws a shape uniformly from the whole catalog and a
// uniform orientation. The draw ignores availability: if the drawn shape
// has nothing left the result is false even when other shapes remain.
func (b *Bag) RandomPermutation(rng *rand.Rand) (Permutation, bool) {
	if len(b.catalog) == 0 {
		return Permutation{}, false
	}
	p := Permutation{
		ShapeID:  rng.IntN(len(b.catalog)),
		Rotation: uint8(rng.IntN(4)),
		Flipped:  rng.IntN(2) == 1,
	}
	if b.remaining[p.ShapeID] <= 0 {
		return Permutation{}, false
	}
	return p, true
}

// Reset sets every shape's remaining count. Negative counts are stored as 0.
func (b *Bag) Reset(count int) {
	count = max(count, 0)
	for i := range b.remaining {
		b.remaining[i] = count
	}
}

// Remaining returns the units left for a shape (0 for unknown IDs).
func (b *Bag) Remaining(id int) int {
	if id < 0 || id >= len(b.remaining) {
		return 0
	}
	return b.remaining[id]
}

// Counts returns a copy of the remaining counts indexed by shape ID.
func (b *Bag) Counts() []int {
	out := make([]int, len(b.remaining))
	copy(out, b.remaining)
	return out
}

// Total returns the units left across all shapes.
func (b *Bag) Total() int {
	total := 0
	for _, n := range b.remaining {
		total += n
	}
	return total
}
