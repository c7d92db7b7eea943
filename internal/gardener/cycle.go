package gardener

import (
	"context"
	"fmt"
	"log/slog"
)

// Gardener runs observe, decide and act cycles against one tiler.
type Gardener struct {
	Observer *Observer
	Actor    *Actor
	Memory   *CycleMemory

	// restarts seen when the last restart was requested; a board is not
	// restarted again until that counter moves.
	requestedAt *uint64
}

// New creates a Gardener for the API at baseURL.
func New(baseURL, adminKey string, mem *CycleMemory) *Gardener {
	if mem == nil {
		mem = &CycleMemory{}
	}
	return &Gardener{
		Observer: NewObserver(baseURL),
		Actor:    NewActor(baseURL, adminKey),
		Memory:   mem,
	}
}

// Cycle executes one observe, decide, act pass and returns the decision taken.
func (g *Gardener) Cycle(ctx context.Context) (Decision, error) {
	snap, err := g.Observer.Observe(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("observe: %w", err)
	}
	h := Triage(snap)
	slog.Info("observation complete",
		"level", h.Level,
		"status", snap.Status.Status,
		"bag_units", h.BagUnits,
		"coverage", fmt.Sprintf("%.2f", h.Coverage),
	)

	d := Decide(h)
	if d.Action == "restart" && g.requestedAt != nil && *g.requestedAt == h.Restarts {
		d = Decision{Action: "none", Restock: h.Restock, Rationale: "restart already pending"}
	}

	rec := CycleRecord{
		Tick:       h.Tick,
		Action:     d.Action,
		Level:      h.Level,
		Coverage:   h.Coverage,
		Placements: h.Placements,
		Restock:    d.Restock,
		Rationale:  d.Rationale,
	}
	defer func() {
		g.Memory.Record(rec)
		g.Memory.Save()
	}()

	if d.Action != "restart" {
		slog.Info("gardener cycle complete, no action", "rationale", d.Rationale)
		return d, nil
	}

	res, err := g.Actor.Restart(ctx, d.Restock)
	if err != nil {
		rec.Action = "failed"
		return d, fmt.Errorf("restart: %w", err)
	}
	restarts := h.Restarts
	g.requestedAt = &restarts
	slog.Info("restart requested", "restock", res.Restock, "rationale", d.Rationale)
	return d, nil
}
