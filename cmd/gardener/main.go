// Command gardener runs the autonomous board steward for kluring.
// It observes the board, decides whether a finished or stalled board should
// be restarted, and acts via the admin restart API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/talgya/kluring/internal/gardener"
)

func main() {
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, nil)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = tint.NewHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(handler))

	// Configuration from environment.
	apiURL := envOrDefault("KLURING_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("KLURING_ADMIN_KEY")
	intervalSec := envIntOrDefault("GARDENER_INTERVAL", 30)
	memoryPath := envOrDefault("GARDENER_MEMORY", "gardener_memory.json")

	if adminKey == "" {
		slog.Error("KLURING_ADMIN_KEY is required")
		os.Exit(1)
	}

	interval := time.Duration(intervalSec) * time.Second

	slog.Info("kluring gardener starting",
		"api_url", apiURL,
		"interval", interval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g := gardener.New(apiURL, adminKey, gardener.LoadMemory(memoryPath))

	slog.Info("waiting for kluring API...")
	if err := waitForAPI(ctx, g.Observer); err != nil {
		slog.Error("API never became ready", "error", err)
		os.Exit(1)
	}

	// Run first cycle immediately.
	runCycle(ctx, g)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCycle(ctx, g)
		case <-ctx.Done():
			slog.Info("shutting down")
			if s := g.Memory.Summary(); s != "" {
				fmt.Print(s)
			}
			fmt.Println("Gardener stopped.")
			return
		}
	}
}

func runCycle(ctx context.Context, g *gardener.Gardener) {
	d, err := g.Cycle(ctx)
	if err != nil {
		slog.Error("gardener cycle failed", "error", err)
		return
	}
	slog.Debug("gardener cycle done", "action", d.Action, "restock", d.Restock)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Gives up after 5 minutes.
func waitForAPI(ctx context.Context, o *gardener.Observer) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		if o.Ready(ctx) {
			slog.Info("kluring API is ready")
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("not ready within 5 minutes")
		}
		slog.Info("kluring not ready, retrying...", "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
