package engine

import (
	"github.com/talgya/kluring/internal/shape"
	"github.com/talgya/kluring/internal/world"
)

// candidate is a legal placement found by the search.
type candidate struct {
	perm   shape.Permutation
	anchor world.Coord
	cells  []world.Coord // anchored footprint
	score  int
}

// search picks the best legal placement for this step.
//
// An empty board bootstraps with a random permutation at the seed. Otherwise
// every available shape, in each searched orientation, is aligned so that
// each of its cells lands on each frontier cell in turn; anchors that
// overlap the occupied region are discarded and the rest are scored by the
// field. The highest score wins; on ties the last candidate found wins.
func (s *Simulation) search() (candidate, bool) {
	if s.field.Empty() {
		perm, ok := s.bag.RandomPermutation(s.rng)
		if !ok {
			return candidate{}, false
		}
		sh, _ := s.bag.Shape(perm.ShapeID)
		return candidate{
			perm:   perm,
			anchor: s.cfg.Seed,
			cells:  shape.Place(perm.Apply(sh.Cells), s.cfg.Seed),
		}, true
	}

	border := s.frontier.Sorted()

	var best candidate
	found := false
	for sh := range s.bag.AvailableShapes() {
		for _, perm := range s.orientations(sh.ID) {
			offsets := perm.Apply(sh.Cells)
			for _, fc := range border {
				for _, off := range offsets {
					anchor := fc.Coord.Sub(off)
					s.attempts++

					score, ok := s.placementScore(offsets, anchor)
					if !ok {
						continue
					}
					if !found || score >= best.score {
						best = candidate{perm: perm, anchor: anchor, score: score}
						found = true
					}
				}
			}
		}
	}
	if !found {
		return candidate{}, false
	}

	sh, _ := s.bag.Shape(best.perm.ShapeID)
	best.cells = shape.Place(best.perm.Apply(sh.Cells), best.anchor)
	return best, true
}

func (s *Simulation) orientations(shapeID int) []shape.Permutation {
	if s.cfg.AllOrientations {
		return shape.Permutations(shapeID)
	}
	return []shape.Permutation{shape.Identity(shapeID)}
}

// placementScore sums the field scores under the anchored footprint.
// Unscored cells count as zero; any occupied cell makes it illegal.
func (s *Simulation) placementScore(offsets []world.Coord, anchor world.Coord) (int, bool) {
	total := 0
	for _, off := range offsets {
		c := anchor.Add(off)
		if s.field.IsOccupied(c) {
			return 0, false
		}
		score, _ := s.field.Score(c)
		total += score
	}
	return total, true
}
