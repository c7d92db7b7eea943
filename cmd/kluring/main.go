// Command kluring grows a polyomino tiling one placement per tick and
// serves it to renderers over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/kluring/internal/api"
	"github.com/talgya/kluring/internal/engine"
	"github.com/talgya/kluring/internal/persistence"
	"github.com/talgya/kluring/internal/shape"
)

func main() {
	cfg := loadSettings()

	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, nil)
	if cfg.Dev || isatty.IsTerminal(os.Stderr.Fd()) {
		level := slog.LevelInfo
		if cfg.Dev {
			level = slog.LevelDebug
		}
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	}
	slog.SetDefault(slog.New(handler))

	if err := run(cfg); err != nil {
		slog.Error("kluring exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg settings) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ── Journal ───────────────────────────────────────────────────────
	var db *persistence.Journal
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		var err error
		db, err = persistence.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if last, err := db.GetMeta("last_tick"); err == nil {
			slog.Info("journal opened", "path", cfg.DBPath, "previous_last_tick", last)
		} else {
			slog.Info("journal opened", "path", cfg.DBPath)
		}
	} else {
		slog.Warn("KLURING_DB empty, placements will not be journaled")
	}

	// ── Simulation ────────────────────────────────────────────────────
	hub := engine.NewBroadcaster()
	observers := []engine.Observer{hub}
	if db != nil {
		observers = append(observers, db)
	}
	catalog := shape.DefaultCatalog()
	sim := engine.NewSimulation(cfg.Engine, catalog, observers...)
	slog.Info("board ready",
		"shapes", len(catalog),
		"restock", cfg.Engine.Restock,
		"seed", cfg.Engine.Seed,
		"all_orientations", cfg.Engine.AllOrientations,
		"noise_weight", cfg.Engine.NoiseWeight,
	)

	eng := engine.NewEngine(cfg.Tick)
	eng.OnTick = sim.Tick
	eng.OnReport = func(tick uint64) {
		sim.Report(tick)
		if db == nil {
			return
		}
		if err := db.Flush(); err != nil {
			slog.Error("journal flush failed", "error", err)
		}
		if err := db.SaveMeta("last_tick", strconv.FormatUint(tick, 10)); err != nil {
			slog.Error("save meta failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("KLURING_ADMIN_KEY not set, control endpoints disabled")
	}
	srv := &api.Server{
		Sim:      sim,
		Eng:      eng,
		Hub:      hub,
		DB:       db,
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
		Origins:  cfg.Origins,
	}

	// ── Start ─────────────────────────────────────────────────────────
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gCtx) })
	g.Go(func() error { return srv.Run(gCtx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	// Final flush on shutdown.
	if db != nil {
		if ferr := db.Flush(); ferr != nil {
			slog.Error("final flush failed", "error", ferr)
		}
		if merr := db.SaveMeta("last_tick", strconv.FormatUint(eng.Tick(), 10)); merr != nil {
			slog.Error("save meta failed", "error", merr)
		}
	}
	slog.Info("kluring stopped", "status", sim.Snapshot().Status)
	return err
}
