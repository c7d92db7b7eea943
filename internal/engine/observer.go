package engine

import (
	"github.com/talgya/kluring/internal/shape"
	"github.com/talgya/kluring/internal/world"
)

// Placement is a committed shape.
type Placement struct {
	Tick        uint64            `json:"tick"`
	Seq         uint64            `json:"seq"` // 1-based within the current run
	Permutation shape.Permutation `json:"permutation"`
	Anchor      world.Coord       `json:"anchor"`
	Cells       []world.Coord     `json:"cells"`
	Score       int               `json:"score"`
}

// FrontierUpdate reports a frontier cell's scores after a scoring pass.
type FrontierUpdate struct {
	Tick uint64             `json:"tick"`
	Cell world.FrontierCell `json:"cell"`
}

// Restart reports that the board was cleared and the bag refilled.
type Restart struct {
	Tick  uint64 `json:"tick"`
	Count int    `json:"count"`
}

// Observer receives simulation notifications. Methods are called while the
// simulation holds its lock: implementations must not block and must not
// call back into the Simulation.
type Observer interface {
	PlacementCommitted(p Placement)
	FrontierUpdated(u FrontierUpdate)
	Restarted(r Restart)
}

type observers []Observer

func (obs observers) PlacementCommitted(p Placement) {
	for _, o := range obs {
		o.PlacementCommitted(p)
	}
}

func (obs observers) FrontierUpdated(u FrontierUpdate) {
	for _, o := range obs {
		o.FrontierUpdated(u)
	}
}

func (obs observers) Restarted(r Restart) {
	for _, o := range obs {
		o.Restarted(r)
	}
}
