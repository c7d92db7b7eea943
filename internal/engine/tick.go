// Package engine provides the placement engine and the tick-based loop
// that drives it.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TicksPerReport is how often OnReport fires.
const TicksPerReport = 200

// Engine drives the simulation forward, one callback per tick.
type Engine struct {
	Interval time.Duration // Base tick interval at speed 1

	// Callbacks, populated during setup.
	OnTick   func(tick uint64) // Every tick
	OnReport func(tick uint64) // Every TicksPerReport ticks

	mu    sync.RWMutex
	tick  uint64
	speed float64

	running atomic.Bool
	stop    chan struct{}
}

// NewEngine creates an engine ticking every interval at speed 1.
func NewEngine(interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Engine{
		Interval: interval,
		speed:    1.0,
		stop:     make(chan struct{}),
	}
}

// Run ticks until ctx is done or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed(), "interval", e.Interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "tick", e.Tick())
			return ctx.Err()
		case <-e.stop:
			slog.Info("simulation engine stopped", "tick", e.Tick())
			return nil
		case <-timer.C:
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused.
			timer.Reset(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.Step()

		target := time.Duration(float64(e.Interval) / speed)
		wait := target - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Stop halts Run. Safe to call more than once.
func (e *Engine) Stop() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// Step advances one tick and fires the callbacks.
func (e *Engine) Step() {
	e.mu.Lock()
	e.tick++
	tick := e.tick
	e.mu.Unlock()

	if e.OnTick != nil {
		e.OnTick(tick)
	}
	if tick%TicksPerReport == 0 && e.OnReport != nil {
		e.OnReport(tick)
	}
}

// Tick returns the current tick counter.
func (e *Engine) Tick() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tick
}

// Speed returns the speed multiplier. 0 means paused.
func (e *Engine) Speed() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.speed
}

// SetSpeed changes the speed multiplier.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}
