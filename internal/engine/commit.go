package engine

import (
	"fmt"

	"github.com/talgya/kluring/internal/shape"
	"github.com/talgya/kluring/internal/world"
)

// commit occupies the candidate's cells, grows the bounds and frontier, and
// takes the shape from the bag. Any disagreement with the search is fatal.
func (s *Simulation) commit(c candidate) Placement {
	for _, cell := range c.cells {
		if err := s.field.Occupy(cell); err != nil {
			violate("commit", err)
		}
		s.bounds.Expand(cell)
		s.frontier.Remove(cell)
	}

	border := make(map[world.Coord]struct{}, len(c.cells)*2)
	for _, cell := range c.cells {
		for _, n := range cell.Neighbors() {
			border[n] = struct{}{}
		}
	}
	for n := range border {
		if !s.field.IsOccupied(n) {
			s.frontier.Ensure(n)
		}
	}

	if !s.bag.TryConsume(c.perm.ShapeID) {
		violate("commit", fmt.Errorf("shape %d: %w", c.perm.ShapeID, shape.ErrBagDepleted))
	}

	s.placements++
	p := Placement{
		Tick:        s.lastTick,
		Seq:         s.placements,
		Permutation: c.perm,
		Anchor:      c.anchor,
		Cells:       c.cells,
		Score:       c.score,
	}
	s.observers.PlacementCommitted(p)
	return p
}
