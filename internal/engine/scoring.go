package engine

import (
	"math"

	"github.com/talgya/kluring/internal/world"
)

// MaxDistanceScore is the distance score of a cell sitting on the seed.
const MaxDistanceScore = 10

// scoreFrontier recomputes every frontier cell's adjacency and distance
// scores and writes their totals into the field. It does nothing until the
// bounds hold at least one cell.
func (s *Simulation) scoreFrontier() {
	if s.bounds.IsDefault() {
		return
	}
	diagonal := s.bounds.Diagonal()

	s.frontier.Each(func(fc *world.FrontierCell) {
		fc.Adjacency = s.adjacency(fc.Coord)
		fc.Closeness = closeness(fc.Coord, s.cfg.Seed, diagonal)
		fc.Distance = int(math.Round(MaxDistanceScore * fc.Closeness))
		fc.Noise = s.noiseAt(fc.Coord)

		if err := s.field.SetScore(fc.Coord, fc.Score()); err != nil {
			violate("score", err)
		}
		s.observers.FrontierUpdated(FrontierUpdate{Tick: s.lastTick, Cell: *fc})
	})
}

// adjacency counts occupied orthogonal neighbours.
func (s *Simulation) adjacency(c world.Coord) int {
	n := 0
	for _, nb := range c.Neighbors() {
		if s.field.IsOccupied(nb) {
			n++
		}
	}
	return n
}

// closeness is (diagonal - dist) / diagonal where dist is the euclidean
// distance from ref to c.
func closeness(c, ref world.Coord, diagonal float64) float64 {
	dist := math.Hypot(float64(c.X-ref.X), float64(c.Y-ref.Y))
	return (diagonal - dist) / diagonal
}

func (s *Simulation) noiseAt(c world.Coord) int {
	if s.noise == nil || s.cfg.NoiseWeight == 0 {
		return 0
	}
	v := s.noise.Eval2(float64(c.X)*s.cfg.NoiseScale, float64(c.Y)*s.cfg.NoiseScale)
	return int(math.Round(s.cfg.NoiseWeight * v))
}
