package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/kluring/internal/shape"
	"github.com/talgya/kluring/internal/world"
)

type recorder struct {
	placements []Placement
	frontier   []FrontierUpdate
	restarts   []Restart
}

func (r *recorder) PlacementCommitted(p Placement)   { r.placements = append(r.placements, p) }
func (r *recorder) FrontierUpdated(u FrontierUpdate) { r.frontier = append(r.frontier, u) }
func (r *recorder) Restarted(rs Restart)             { r.restarts = append(r.restarts, rs) }

func testConfig(restock int) Config {
	cfg := DefaultConfig()
	cfg.Restock = restock
	cfg.RandSeed = 42
	return cfg
}

var squareCatalog = shape.NewCatalog(shape.Mask{Name: "square", Art: "X"})

// expectInvariant runs fn and asserts it panics with an InvariantError
// wrapping target.
func expectInvariant(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		var inv *InvariantError
		assert.True(t, errors.As(err, &inv))
		assert.ErrorIs(t, err, target)
	}()
	fn()
}

func TestFirstStepBootstrapsAtSeed(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig(1)
	cfg.Seed = world.Coord{X: 32, Y: 32}
	sim := NewSimulation(cfg, shape.DefaultCatalog(), rec)
	require.Len(t, rec.restarts, 1)

	p, ok := sim.Step()
	require.True(t, ok)
	assert.Equal(t, cfg.Seed, p.Anchor)
	assert.Equal(t, uint64(1), p.Seq)
	require.Len(t, rec.placements, 1)

	snap := sim.Snapshot()
	total := 0
	for id, n := range snap.Remaining {
		total += n
		if id == p.Permutation.ShapeID {
			assert.Zero(t, n)
		} else {
			assert.Equal(t, 1, n)
		}
	}
	assert.Equal(t, 5, total)

	sh, _ := shape.DefaultCatalog().Get(p.Permutation.ShapeID)
	assert.Equal(t, sh.Size(), snap.Occupied)
	assert.Len(t, p.Cells, sh.Size())
}

func TestSingleSquareFrontier(t *testing.T) {
	sim := NewSimulation(testConfig(1), squareCatalog)

	p, ok := sim.Step()
	require.True(t, ok)
	assert.Equal(t, []world.Coord{world.Origin}, p.Cells)

	cells := sim.Frontier()
	require.Len(t, cells, 4)
	var coords []world.Coord
	for _, fc := range cells {
		coords = append(coords, fc.Coord)
		assert.Equal(t, 1, fc.Adjacency)
		// diagonal sqrt(2), distance 1: round(10 * 0.2929) = 3
		assert.Equal(t, 3, fc.Distance)
	}
	assert.ElementsMatch(t, []world.Coord{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}, coords)
}

func TestStepStallsWhenBagEmpty(t *testing.T) {
	sim := NewSimulation(testConfig(1), squareCatalog)
	_, ok := sim.Step()
	require.True(t, ok)

	_, ok = sim.Step()
	assert.False(t, ok)
	snap := sim.Snapshot()
	assert.True(t, snap.Stalled)
	assert.Equal(t, 1, snap.Occupied)
	assert.Equal(t, uint64(1), snap.Placements)
}

func TestAttemptsCounter(t *testing.T) {
	sim := NewSimulation(testConfig(2), squareCatalog)
	sim.Step()
	assert.Zero(t, sim.Snapshot().Attempts)

	sim.Step()
	// one shape, one cell, four frontier cells
	assert.Equal(t, uint64(4), sim.Snapshot().Attempts)

	cfg := testConfig(2)
	cfg.AllOrientations = true
	sim = NewSimulation(cfg, squareCatalog)
	sim.Step()
	sim.Step()
	assert.Equal(t, uint64(32), sim.Snapshot().Attempts)
}

func TestDepletedShapeNeverPlaced(t *testing.T) {
	catalog := shape.NewCatalog(
		shape.Mask{Name: "square", Art: "X"},
		shape.Mask{Name: "domino", Art: "XX"},
	)
	sim := NewSimulation(testConfig(4), catalog)
	for sim.bag.TryConsume(1) {
	}
	require.Zero(t, sim.bag.Remaining(1))

	for s := range sim.bag.AvailableShapes() {
		assert.NotEqual(t, 1, s.ID)
	}

	placed := 0
	for range 100 {
		p, ok := sim.Step()
		if !ok {
			continue
		}
		placed++
		assert.Equal(t, 0, p.Permutation.ShapeID)
	}
	assert.Equal(t, 4, placed)
	assert.Zero(t, sim.bag.Total())
}

func TestPlacementsNeverOverlapAndBoundsGrow(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig(4)
	cfg.AllOrientations = true
	sim := NewSimulation(cfg, shape.DefaultCatalog(), rec)

	occupied := make(map[world.Coord]bool)
	prev := sim.Snapshot().Bounds
	for range 30 {
		p, ok := sim.Step()
		if !ok {
			continue
		}
		for _, c := range p.Cells {
			assert.False(t, occupied[c], "cell %s placed twice", c)
			occupied[c] = true
		}

		snap := sim.Snapshot()
		assert.True(t, prev.IsDefault() || (snap.Bounds.MinX <= prev.MinX && snap.Bounds.MaxX >= prev.MaxX &&
			snap.Bounds.MinY <= prev.MinY && snap.Bounds.MaxY >= prev.MaxY), "bounds shrank")
		for c := range occupied {
			assert.True(t, snap.Bounds.ContainsCoord(c))
		}
		prev = snap.Bounds

		for _, fc := range sim.Frontier() {
			assert.False(t, occupied[fc.Coord], "occupied cell %s on frontier", fc.Coord)
			assert.GreaterOrEqual(t, fc.Adjacency, 0)
			assert.LessOrEqual(t, fc.Adjacency, 4)
		}
	}
	assert.Equal(t, len(occupied), sim.Snapshot().Occupied)
	assert.NotEmpty(t, rec.placements)
	assert.NotEmpty(t, rec.frontier)
}

func TestSearchPrefersHighestScore(t *testing.T) {
	catalog := shape.NewCatalog(shape.Mask{Name: "domino", Art: "XX"})
	sim := NewSimulation(testConfig(1), catalog)

	require.NoError(t, sim.field.Occupy(world.Origin))
	sim.bounds.Expand(world.Origin)
	for _, n := range world.Origin.Neighbors() {
		sim.frontier.Ensure(n)
	}
	require.NoError(t, sim.field.SetScore(world.Coord{X: -1}, 5))
	require.NoError(t, sim.field.SetScore(world.Coord{X: -2}, 5))

	c, ok := sim.search()
	require.True(t, ok)
	assert.Equal(t, world.Coord{X: -2}, c.anchor)
	assert.Equal(t, 10, c.score)
	assert.Equal(t, []world.Coord{{-2, 0}, {-1, 0}}, c.cells)
}

func TestOverlappingPlacementIsExcluded(t *testing.T) {
	catalog := shape.NewCatalog(shape.Mask{Name: "bar", Art: "XXX"})
	sim := NewSimulation(testConfig(1), catalog)

	require.NoError(t, sim.field.Occupy(world.Origin))
	sim.bounds.Expand(world.Origin)
	for _, n := range world.Origin.Neighbors() {
		sim.frontier.Ensure(n)
	}
	// Huge scores on both sides of the occupied cell: a bar through the
	// origin would collect both but must never be a candidate.
	require.NoError(t, sim.field.SetScore(world.Coord{X: -1}, 100))
	require.NoError(t, sim.field.SetScore(world.Coord{X: 1}, 100))

	_, ok := sim.placementScore(catalog[0].Cells, world.Coord{X: -1})
	assert.False(t, ok)

	c, ok := sim.search()
	require.True(t, ok)
	assert.NotContains(t, c.cells, world.Origin)
	assert.Equal(t, 100, c.score)
}

func TestResetClearsEverything(t *testing.T) {
	rec := &recorder{}
	sim := NewSimulation(testConfig(3), shape.DefaultCatalog(), rec)
	for range 5 {
		sim.Step()
	}
	require.NotZero(t, sim.Snapshot().Occupied)

	sim.Reset(5)
	snap := sim.Snapshot()
	assert.Zero(t, snap.Occupied)
	assert.Zero(t, snap.Frontier)
	assert.True(t, snap.Bounds.IsDefault())
	assert.Zero(t, snap.Attempts)
	assert.Zero(t, snap.Placements)
	assert.Equal(t, "running", snap.Phase)
	assert.Equal(t, 5, snap.Restock)
	for _, n := range snap.Remaining {
		assert.Equal(t, 5, n)
	}
	assert.Empty(t, sim.Frontier())
	require.Len(t, rec.restarts, 2)
	assert.Equal(t, 5, rec.restarts[1].Count)
	assert.Equal(t, "Area: 0 (0 * 0) (0 attempts)", snap.Status)
}

func TestRequestRestartRunsOnNextTick(t *testing.T) {
	sim := NewSimulation(testConfig(2), shape.DefaultCatalog())
	sim.Tick(1)
	sim.Tick(2)
	require.NotZero(t, sim.Snapshot().Occupied)

	assert.Equal(t, 1, sim.RequestRestart("not a number"))
	assert.Equal(t, 7, sim.RequestRestart("7"))
	// still untouched until the next tick
	require.NotZero(t, sim.Snapshot().Occupied)

	sim.Tick(3)
	snap := sim.Snapshot()
	assert.Zero(t, snap.Occupied, "restart tick must not also place")
	assert.Equal(t, uint64(3), snap.Tick)
	assert.Equal(t, 7, snap.Restock)
	for _, n := range snap.Remaining {
		assert.Equal(t, 7, n)
	}

	sim.Tick(4)
	assert.NotZero(t, sim.Snapshot().Occupied)
}

func TestParseRestockCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 1},
		{"5", 5},
		{" 12 ", 12},
		{"0", 0},
		{"-3", 1},
		{"abc", 1},
		{"70000", 1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRestockCount(tt.in))
		})
	}
}

func TestCommitOntoOccupiedCellPanics(t *testing.T) {
	sim := NewSimulation(testConfig(1), squareCatalog)
	require.NoError(t, sim.field.Occupy(world.Origin))

	expectInvariant(t, world.ErrCellOccupied, func() {
		sim.commit(candidate{perm: shape.Identity(0), cells: []world.Coord{world.Origin}})
	})
}

func TestCommitDepletedShapePanics(t *testing.T) {
	sim := NewSimulation(testConfig(0), squareCatalog)

	expectInvariant(t, shape.ErrBagDepleted, func() {
		sim.commit(candidate{perm: shape.Identity(0), cells: []world.Coord{world.Origin}})
	})
}

func TestScoringOccupiedCellPanics(t *testing.T) {
	sim := NewSimulation(testConfig(1), squareCatalog)
	_, ok := sim.Step()
	require.True(t, ok)

	sim.frontier.Ensure(world.Origin)
	expectInvariant(t, world.ErrScoreOnOccupied, func() {
		sim.scoreFrontier()
	})
}

func TestScoringIsNoopOnDefaultBounds(t *testing.T) {
	rec := &recorder{}
	sim := NewSimulation(testConfig(1), squareCatalog, rec)
	sim.frontier.Ensure(world.Coord{X: 4})
	sim.scoreFrontier()
	assert.Empty(t, rec.frontier)
	_, ok := sim.field.Score(world.Coord{X: 4})
	assert.False(t, ok)
}

func TestNoiseTermIsBounded(t *testing.T) {
	cfg := testConfig(3)
	cfg.NoiseWeight = 3
	cfg.NoiseSeed = 9
	sim := NewSimulation(cfg, shape.DefaultCatalog())
	for range 6 {
		sim.Step()
	}
	for _, fc := range sim.Frontier() {
		assert.GreaterOrEqual(t, fc.Noise, 0)
		assert.LessOrEqual(t, fc.Noise, 3)
		assert.Equal(t, fc.Adjacency+fc.Distance+fc.Noise, fc.Score())
	}
}

func TestChunkView(t *testing.T) {
	sim := NewSimulation(testConfig(1), squareCatalog)
	sim.Step()

	tiles := sim.Chunk(world.Coord{})
	occupied, frontier := 0, 0
	for _, tile := range tiles {
		if tile.Occupied {
			occupied++
			assert.Equal(t, world.Origin, tile.Global)
		} else {
			frontier++
			require.NotNil(t, tile.Frontier)
		}
	}
	assert.Equal(t, 1, occupied)
	// (-1,0) and (0,-1) fall in neighbouring chunks
	assert.Equal(t, 2, frontier)
	assert.Len(t, sim.Chunk(world.Coord{X: -1}), 1)
}

func TestChunkViewIsRowMajor(t *testing.T) {
	sim := NewSimulation(testConfig(3), squareCatalog)
	for range 3 {
		sim.Step()
	}
	var all []ChunkTile
	for _, c := range []world.Coord{{X: -1, Y: -1}, {X: 0, Y: -1}, {X: -1, Y: 0}, {X: 0, Y: 0}} {
		tiles := sim.Chunk(c)
		for i := 1; i < len(tiles); i++ {
			assert.True(t, tiles[i-1].Global.Less(tiles[i].Global))
		}
		all = append(all, tiles...)
	}
	snap := sim.Snapshot()
	assert.Len(t, all, snap.Occupied+snap.Frontier)
}

func TestChunkOutOfRangeReturnsPromptly(t *testing.T) {
	sim := NewSimulation(testConfig(2), squareCatalog)
	sim.Step()

	done := make(chan []ChunkTile, 1)
	go func() {
		done <- sim.Chunk(world.Coord{X: 0, Y: math.MaxInt / world.DefaultChunkSize})
	}()
	select {
	case tiles := <-done:
		assert.Empty(t, tiles)
	case <-time.After(3 * time.Second):
		t.Fatal("Chunk did not return")
	}

	// The lock was released: the simulation still steps.
	_, ok := sim.Step()
	assert.True(t, ok)
}
