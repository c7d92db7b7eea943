// Simulation owns the board state and runs one placement step per tick.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/kluring/internal/shape"
	"github.com/talgya/kluring/internal/world"
)

// Phase is the reset controller state.
type Phase uint8

const (
	PhaseRunning Phase = iota
	PhaseResetting
)

func (p Phase) String() string {
	if p == PhaseResetting {
		return "resetting"
	}
	return "running"
}

// Simulation holds the bag, field, frontier and bounds, and serializes every
// operation on them behind one lock.
type Simulation struct {
	mu sync.Mutex

	cfg      Config
	bag      *shape.Bag
	field    *world.Field
	frontier *world.Frontier
	bounds   world.Bounds

	attempts   uint64 // anchor candidates evaluated this run
	placements uint64 // shapes committed this run
	restarts   uint64
	restock    int // per-shape count of the current run
	lastTick   uint64
	stalled    bool

	phase          Phase
	pendingRestart *int

	rng       *rand.Rand
	noise     opensimplex.Noise
	observers observers
}

// NewSimulation creates a simulation and performs the initial reset with
// cfg.Restock. Observers receive that initial Restarted notification.
func NewSimulation(cfg Config, catalog shape.Catalog, obs ...Observer) *Simulation {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = world.DefaultChunkSize
	}
	seed := cfg.RandSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	s := &Simulation{
		cfg:       cfg,
		bag:       shape.NewBag(catalog, cfg.Restock),
		field:     world.NewField(),
		frontier:  world.NewFrontier(),
		bounds:    world.NewBounds(),
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		observers: obs,
	}
	if cfg.NoiseWeight != 0 {
		s.noise = opensimplex.NewNormalized(cfg.NoiseSeed)
	}
	s.reset(cfg.Restock)
	return s
}

// Step runs one search, commit and scoring pass. It returns false when no
// legal placement exists (the board has stalled).
func (s *Simulation) Step() (Placement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step()
}

// Tick is the engine callback: it runs a pending restart if one was
// requested, otherwise one placement step. The two never share a tick.
func (s *Simulation) Tick(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTick = tick
	if s.pendingRestart != nil {
		count := *s.pendingRestart
		s.pendingRestart = nil
		s.reset(count)
		return
	}
	s.step()
}

func (s *Simulation) step() (Placement, bool) {
	c, ok := s.search()
	if !ok {
		if !s.stalled && !s.field.Empty() {
			slog.Info("growth stalled",
				"tick", s.lastTick,
				"placements", s.placements,
				"attempts", humanize.Comma(int64(s.attempts)),
				"bag_remaining", s.bag.Total(),
			)
		}
		s.stalled = true
		return Placement{}, false
	}
	s.stalled = false
	p := s.commit(c)
	s.scoreFrontier()
	return p, true
}

// Reset clears the board immediately and refills the bag with count units
// of every shape.
func (s *Simulation) Reset(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(count)
}

// RequestRestart schedules a reset for the next tick. input is the raw
// restock count; malformed input falls back to DefaultRestock. Returns the
// count that will be used.
func (s *Simulation) RequestRestart(input string) int {
	count := ParseRestockCount(input)
	s.mu.Lock()
	s.pendingRestart = &count
	s.mu.Unlock()
	return count
}

func (s *Simulation) reset(count int) {
	s.phase = PhaseResetting

	s.field.Clear()
	s.frontier.Clear()
	s.bounds = world.NewBounds()
	s.bag.Reset(count)
	s.restock = max(count, 0)
	s.attempts = 0
	s.placements = 0
	s.stalled = false
	s.restarts++

	slog.Info("board reset", "tick", s.lastTick, "restock", count, "shapes", len(s.bag.Catalog()))
	s.observers.Restarted(Restart{Tick: s.lastTick, Count: count})

	s.phase = PhaseRunning
}

// Snapshot is a read-only view of the simulation counters.
type Snapshot struct {
	Tick       uint64       `json:"tick"`
	Phase      string       `json:"phase"`
	Bounds     world.Bounds `json:"bounds"`
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	Area       int          `json:"area"`
	Attempts   uint64       `json:"attempts"`
	Placements uint64       `json:"placements"`
	Occupied   int          `json:"occupied"`
	Frontier   int          `json:"frontier"`
	Remaining  []int        `json:"remaining"`
	Restarts   uint64       `json:"restarts"`
	Restock    int          `json:"restock"`
	Stalled    bool         `json:"stalled"`
	Status     string       `json:"status"`
}

// Snapshot returns the current counters.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Tick:       s.lastTick,
		Phase:      s.phase.String(),
		Bounds:     s.bounds,
		Width:      s.bounds.Width(),
		Height:     s.bounds.Height(),
		Area:       s.bounds.Area(),
		Attempts:   s.attempts,
		Placements: s.placements,
		Occupied:   s.field.OccupiedCount(),
		Frontier:   s.frontier.Len(),
		Remaining:  s.bag.Counts(),
		Restarts:   s.restarts,
		Restock:    s.restock,
		Stalled:    s.stalled,
	}
	if s.bounds.IsDefault() {
		snap.Attempts = 0
	}
	snap.Status = StatusText(snap)
	return snap
}

// StatusText renders the one-line board summary shown to users.
func StatusText(snap Snapshot) string {
	return fmt.Sprintf("Area: %d (%d * %d) (%d attempts)", snap.Area, snap.Width, snap.Height, snap.Attempts)
}

// Frontier returns the frontier cells by descending score.
func (s *Simulation) Frontier() []world.FrontierCell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frontier.Sorted()
}

// BagEntry pairs a catalog shape with its remaining count.
type BagEntry struct {
	Shape     shape.Shape `json:"shape"`
	Remaining int         `json:"remaining"`
}

// Bag returns every catalog shape with its remaining count.
func (s *Simulation) Bag() []BagEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]BagEntry, 0, len(s.bag.Catalog()))
	for _, sh := range s.bag.Catalog() {
		out = append(out, BagEntry{Shape: sh, Remaining: s.bag.Remaining(sh.ID)})
	}
	return out
}

// ChunkTile is one non-empty cell of a chunk view.
type ChunkTile struct {
	Local    world.Coord         `json:"local"`
	Global   world.Coord         `json:"global"`
	Occupied bool                `json:"occupied"`
	Frontier *world.FrontierCell `json:"frontier,omitempty"`
}

// Chunk returns the occupied and frontier cells of one renderer chunk in
// row-major order. Chunks outside the representable range are empty.
func (s *Simulation) Chunk(chunk world.Coord) []ChunkTile {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.cfg.ChunkSize
	if !world.ValidChunk(chunk, size) {
		return nil
	}
	b := world.ChunkBounds(chunk, size)

	var tiles []ChunkTile
	for _, c := range s.field.Occupied() {
		if b.ContainsCoord(c) {
			_, local := world.ToChunk(c, size)
			tiles = append(tiles, ChunkTile{Local: local, Global: c, Occupied: true})
		}
	}
	s.frontier.Each(func(fc *world.FrontierCell) {
		if b.ContainsCoord(fc.Coord) {
			_, local := world.ToChunk(fc.Coord, size)
			cell := *fc
			tiles = append(tiles, ChunkTile{Local: local, Global: fc.Coord, Frontier: &cell})
		}
	})
	slices.SortFunc(tiles, func(x, y ChunkTile) int {
		switch {
		case x.Global.Less(y.Global):
			return -1
		case y.Global.Less(x.Global):
			return 1
		}
		return 0
	})
	return tiles
}

// ChunkSize returns the renderer chunk side length.
func (s *Simulation) ChunkSize() int {
	return s.cfg.ChunkSize
}

// Report logs a periodic summary.
func (s *Simulation) Report(tick uint64) {
	snap := s.Snapshot()
	slog.Info("board report",
		"tick", tick,
		"area", humanize.Comma(int64(snap.Area)),
		"width", snap.Width,
		"height", snap.Height,
		"occupied", humanize.Comma(int64(snap.Occupied)),
		"frontier", snap.Frontier,
		"placements", snap.Placements,
		"attempts", humanize.Comma(int64(snap.Attempts)),
		"stalled", snap.Stalled,
	)
}
