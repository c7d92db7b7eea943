// Package api provides the HTTP surface renderers and control panels use
// to observe and steer the tiler.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/talgya/kluring/internal/engine"
	"github.com/talgya/kluring/internal/persistence"
	"github.com/talgya/kluring/internal/world"
)

const maxStreamConns = 8

// DefaultOrigins are always allowed by CORS (local renderer dev servers).
var DefaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:4173",
	"http://localhost:3000",
}

// Server serves the simulation over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Hub      *engine.Broadcaster
	DB       *persistence.Journal // optional
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	Origins  []string

	// RestartLimiter throttles restart requests. Nil uses 10 per minute.
	RestartLimiter *RateLimiter

	streamConns chan struct{}
	upgrader    websocket.Upgrader
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	if s.RestartLimiter == nil {
		s.RestartLimiter = NewRateLimiter(10, time.Minute)
	}
	origins := append(append([]string{}, DefaultOrigins...), s.Origins...)
	s.streamConns = make(chan struct{}, maxStreamConns)
	s.upgrader = websocket.Upgrader{
		CheckOrigin: allowOrigin(origins),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/frontier", s.handleFrontier)
	mux.HandleFunc("/api/v1/bag", s.handleBag)
	mux.HandleFunc("/api/v1/chunk/", s.handleChunk)
	mux.HandleFunc("/api/v1/runs", s.handleRunRoutes)
	mux.HandleFunc("/api/v1/runs/", s.handleRunRoutes)

	// Streaming endpoints for renderers.
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	mux.HandleFunc("/api/v1/ws", s.handleWebSocket)

	// Control endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/restart", s.adminOnly(RateLimitMiddleware(s.RestartLimiter, s.handleRestart)))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return requestLogger(c.Handler(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "", "journal", s.DB != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Debug("handled request",
			"method", r.Method,
			"uri", r.URL.RequestURI(),
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// allowOrigin admits websocket handshakes without an Origin header (non-browser
// clients), from the same host, or from one of the CORS origins.
func allowOrigin(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(origins, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "control endpoints disabled (no KLURING_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	status := map[string]any{
		"name":       "kluring",
		"tick":       s.Eng.Tick(),
		"speed":      s.Eng.Speed(),
		"running":    s.Eng.Running(),
		"phase":      snap.Phase,
		"bounds":     snap.Bounds,
		"area":       snap.Area,
		"width":      snap.Width,
		"height":     snap.Height,
		"attempts":   snap.Attempts,
		"placements": snap.Placements,
		"occupied":   snap.Occupied,
		"frontier":   snap.Frontier,
		"remaining":  snap.Remaining,
		"restarts":   snap.Restarts,
		"restock":    snap.Restock,
		"stalled":    snap.Stalled,
		"status":     snap.Status,
	}
	if snap.Bounds.IsDefault() {
		status["bounds"] = nil
	}
	writeJSON(w, status)
}

func (s *Server) handleFrontier(w http.ResponseWriter, r *http.Request) {
	cells := s.Sim.Frontier()
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(cells) {
		cells = cells[:limit]
	}
	writeJSON(w, map[string]any{
		"count": len(cells),
		"cells": cells,
	})
}

func (s *Server) handleBag(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Bag())
}

// handleChunk returns the non-empty tiles of one chunk: GET /api/v1/chunk/:cx/:cy.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/chunk/"), "/"), "/")
	if len(parts) != 2 {
		http.Error(w, "expected /api/v1/chunk/{cx}/{cy}", http.StatusBadRequest)
		return
	}
	cx, errX := strconv.Atoi(parts[0])
	cy, errY := strconv.Atoi(parts[1])
	if errX != nil || errY != nil {
		http.Error(w, "invalid chunk coordinates", http.StatusBadRequest)
		return
	}

	chunk := world.Coord{X: cx, Y: cy}
	if !world.ValidChunk(chunk, s.Sim.ChunkSize()) {
		http.Error(w, "chunk coordinates out of range", http.StatusBadRequest)
		return
	}
	tiles := s.Sim.Chunk(chunk)
	if tiles == nil {
		tiles = []engine.ChunkTile{}
	}
	writeJSON(w, map[string]any{
		"chunk": chunk,
		"size":  s.Sim.ChunkSize(),
		"tiles": tiles,
	})
}

// handleRunRoutes dispatches between run listing (GET /api/v1/runs) and a
// run's placements (GET /api/v1/runs/:id/placements).
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/runs"), "/")
	if path == "" {
		runs, err := s.DB.Runs(queryInt(r, "limit", 20))
		if err != nil {
			slog.Error("list runs failed", "error", err)
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []persistence.Run{}
		}
		writeJSON(w, runs)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	if rest != "placements" {
		http.NotFound(w, r)
		return
	}
	rows, err := s.DB.Placements(id, queryInt(r, "limit", 1000))
	if err != nil {
		slog.Error("list placements failed", "run", id, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []persistence.PlacementRow{}
	}
	writeJSON(w, rows)
}

// handleRestart schedules a board reset for the next tick. The count is
// taken as raw text (a JSON string or number); malformed or missing input
// restocks with 1.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Count json.RawMessage `json:"count"`
	}
	input := ""
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		input = strings.Trim(string(req.Count), `"`)
	}

	count := s.Sim.RequestRestart(input)
	slog.Info("restart requested", "restock", count, "input", input)

	writeJSON(w, map[string]any{
		"restock": count,
		"message": "restart scheduled",
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
