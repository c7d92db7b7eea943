package gardener

// Board condition levels, most urgent first.
const (
	LevelStalled  = "STALLED"  // no legal placement with units still in the bag
	LevelDepleted = "DEPLETED" // the bag ran dry
	LevelGrowing  = "GROWING"
	LevelIdle     = "IDLE" // nothing placed yet
)

// BoardHealth holds derived diagnostic signals computed from a BoardSnapshot.
type BoardHealth struct {
	Level      string
	BagUnits   int     // units left across all shapes
	Coverage   float64 // occupied / bounds area
	Efficiency float64 // placements per thousand attempts
	Restock    int
	Placements uint64
	Restarts   uint64
	Tick       uint64
}

// Triage computes a BoardHealth from the snapshot's data.
func Triage(snap *BoardSnapshot) *BoardHealth {
	st := snap.Status
	h := &BoardHealth{
		Restock:    st.Restock,
		Placements: st.Placements,
		Restarts:   st.Restarts,
		Tick:       st.Tick,
	}

	for _, e := range snap.Bag {
		h.BagUnits += e.Remaining
	}
	if st.Area > 0 {
		h.Coverage = float64(st.Occupied) / float64(st.Area)
	}
	if st.Attempts > 0 {
		h.Efficiency = float64(st.Placements) * 1000 / float64(st.Attempts)
	}

	switch {
	case st.Occupied == 0:
		h.Level = LevelIdle
	case h.BagUnits == 0:
		h.Level = LevelDepleted
	case st.Stalled:
		h.Level = LevelStalled
	default:
		h.Level = LevelGrowing
	}
	return h
}
