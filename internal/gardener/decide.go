package gardener

import "fmt"

// Decision thresholds.
const (
	// GoodCoverage is the occupied share of the bounds above which a finished
	// board is considered dense enough to grow it further next run.
	GoodCoverage = 0.75
	MaxRestock   = 64
	MinRestock   = 1
)

// Decision is the steward's verdict for one cycle.
type Decision struct {
	Action    string // "none" or "restart"
	Restock   int
	Rationale string
}

// Decide picks an action from the board's health. Growing and idle boards are
// left alone. A depleted board restarts with double the restock when it came
// out dense, the same restock otherwise. A stalled board restarts with half
// the restock, since more units did not help.
func Decide(h *BoardHealth) Decision {
	switch h.Level {
	case LevelDepleted:
		if h.Coverage >= GoodCoverage {
			next := clampRestock(h.Restock * 2)
			return Decision{
				Action:    "restart",
				Restock:   next,
				Rationale: fmt.Sprintf("bag depleted at %.0f%% coverage, growing restock %d -> %d", h.Coverage*100, h.Restock, next),
			}
		}
		next := clampRestock(h.Restock)
		return Decision{
			Action:    "restart",
			Restock:   next,
			Rationale: fmt.Sprintf("bag depleted at %.0f%% coverage, retrying restock %d", h.Coverage*100, next),
		}
	case LevelStalled:
		next := clampRestock(h.Restock / 2)
		return Decision{
			Action:    "restart",
			Restock:   next,
			Rationale: fmt.Sprintf("stalled with %d units left, shrinking restock %d -> %d", h.BagUnits, h.Restock, next),
		}
	}
	return Decision{Action: "none", Restock: h.Restock, Rationale: "board " + h.Level}
}

func clampRestock(n int) int {
	return min(max(n, MinRestock), MaxRestock)
}
