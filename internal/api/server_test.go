package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/kluring/internal/engine"
	"github.com/talgya/kluring/internal/persistence"
	"github.com/talgya/kluring/internal/shape"
)

const testKey = "secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := engine.NewBroadcaster()
	cfg := engine.DefaultConfig()
	cfg.Restock = 3
	cfg.RandSeed = 11
	catalog := shape.NewCatalog(shape.Mask{Name: "square", Art: "X"})
	sim := engine.NewSimulation(cfg, catalog, hub, db)

	return &Server{
		Sim:      sim,
		Eng:      engine.NewEngine(time.Millisecond),
		Hub:      hub,
		DB:       db,
		AdminKey: testKey,
	}
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestStatus(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	var status map[string]any
	decode(t, do(t, h, http.MethodGet, "/api/v1/status", "", ""), &status)
	assert.Equal(t, "Area: 0 (0 * 0) (0 attempts)", status["status"])
	assert.Nil(t, status["bounds"])

	s.Sim.Step()
	s.Sim.Step()
	decode(t, do(t, h, http.MethodGet, "/api/v1/status", "", ""), &status)
	assert.EqualValues(t, 2, status["occupied"])
	assert.EqualValues(t, 2, status["placements"])
	assert.EqualValues(t, 2, status["area"])
	assert.Contains(t, status["status"], "Area: 2 (")
	assert.Contains(t, status["status"], "(4 attempts)")
}

func TestRestartRequiresToken(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/restart", `{"count":"4"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/restart", `{"count":"4"}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.AdminKey = ""
	rec = do(t, s.Handler(), http.MethodPost, "/api/v1/restart", `{"count":"4"}`, testKey)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRestartParsesCount(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"string", `{"count":"4"}`, 4},
		{"number", `{"count":5}`, 5},
		{"garbage", `{"count":"lots"}`, 1},
		{"negative", `{"count":-2}`, 1},
		{"missing", `{}`, 1},
		{"not json", `count=9`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			h := s.Handler()
			s.Sim.Step()

			var resp map[string]any
			rec := do(t, h, http.MethodPost, "/api/v1/restart", tt.body, testKey)
			require.Equal(t, http.StatusOK, rec.Code)
			decode(t, rec, &resp)
			assert.EqualValues(t, tt.want, resp["restock"])

			s.Sim.Tick(1)
			snap := s.Sim.Snapshot()
			assert.Zero(t, snap.Occupied)
			assert.Equal(t, []int{tt.want}, snap.Remaining)
		})
	}
}

func TestRestartRateLimited(t *testing.T) {
	s := newTestServer(t)
	s.RestartLimiter = NewRateLimiter(1, time.Hour)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/restart", `{}`, testKey).Code)
	rec := do(t, h, http.MethodPost, "/api/v1/restart", `{}`, testKey)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestSpeed(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	var resp map[string]float64
	decode(t, do(t, h, http.MethodGet, "/api/v1/speed", "", ""), &resp)
	assert.Equal(t, 1.0, resp["speed"])

	decode(t, do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":4}`, testKey), &resp)
	assert.Equal(t, 4.0, resp["speed"])
	assert.Equal(t, 4.0, s.Eng.Speed())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/speed", `{"speed":-1}`, testKey).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/speed", `nope`, testKey).Code)
}

func TestFrontierAndBag(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	s.Sim.Step()

	var frontier struct {
		Count int `json:"count"`
		Cells []struct {
			Adjacency int `json:"adjacency"`
		} `json:"cells"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/v1/frontier", "", ""), &frontier)
	assert.Equal(t, 4, frontier.Count)
	for _, c := range frontier.Cells {
		assert.Equal(t, 1, c.Adjacency)
	}

	decode(t, do(t, h, http.MethodGet, "/api/v1/frontier?limit=2", "", ""), &frontier)
	assert.Equal(t, 2, frontier.Count)

	var bag []engine.BagEntry
	decode(t, do(t, h, http.MethodGet, "/api/v1/bag", "", ""), &bag)
	require.Len(t, bag, 1)
	assert.Equal(t, 2, bag[0].Remaining)
	assert.Equal(t, "square", bag[0].Shape.Name)
}

func TestChunk(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	s.Sim.Step()

	var resp struct {
		Size  int                `json:"size"`
		Tiles []engine.ChunkTile `json:"tiles"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/v1/chunk/0/0", "", ""), &resp)
	assert.Equal(t, 64, resp.Size)
	assert.Len(t, resp.Tiles, 3)

	decode(t, do(t, h, http.MethodGet, "/api/v1/chunk/5/5", "", ""), &resp)
	assert.Empty(t, resp.Tiles)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/chunk/a/0", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/chunk/0", "", "").Code)
}

func TestChunkOutOfRange(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	s.Sim.Step()

	for _, path := range []string{
		"/api/v1/chunk/0/144115188075855871",
		"/api/v1/chunk/144115188075855871/0",
		"/api/v1/chunk/-144115188075855873/0",
	} {
		done := make(chan int, 1)
		go func() { done <- do(t, h, http.MethodGet, path, "", "").Code }()
		select {
		case code := <-done:
			assert.Equal(t, http.StatusBadRequest, code, path)
		case <-time.After(3 * time.Second):
			t.Fatalf("%s did not return", path)
		}
	}

	var status map[string]any
	decode(t, do(t, h, http.MethodGet, "/api/v1/status", "", ""), &status)
	assert.EqualValues(t, 1, status["occupied"])
}

func TestRuns(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	s.Sim.Step()
	s.Sim.Step()
	require.NoError(t, s.DB.Flush())

	var runs []persistence.Run
	decode(t, do(t, h, http.MethodGet, "/api/v1/runs", "", ""), &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Placed)
	assert.Equal(t, 3, runs[0].Restock)

	var rows []persistence.PlacementRow
	decode(t, do(t, h, http.MethodGet, "/api/v1/runs/"+runs[0].ID+"/placements", "", ""), &rows)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(1), rows[0].Seq)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/runs/x/other", "", "").Code)

	s.DB = nil
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s.Handler(), http.MethodGet, "/api/v1/runs", "", "").Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)
	s.Origins = []string{"https://tiles.example.com"}
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://tiles.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://tiles.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSSEStream(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	s.Sim.Step()

	sc := bufio.NewScanner(resp.Body)
	var kinds []string
	for sc.Scan() {
		line := sc.Text()
		if kind, ok := strings.CutPrefix(line, "event: "); ok {
			kinds = append(kinds, kind)
			if kind == engine.KindPlacement {
				break
			}
		}
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, engine.KindRestart, kinds[0])
	assert.Equal(t, engine.KindPlacement, kinds[len(kinds)-1])
}

func TestWebSocketStream(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?frontier=1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first engine.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, engine.KindRestart, first.Kind)

	s.Sim.Step()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	seen := map[string]bool{}
	for !seen[engine.KindPlacement] || !seen[engine.KindFrontier] {
		var e engine.Event
		require.NoError(t, conn.ReadJSON(&e))
		seen[e.Kind] = true
	}
}

func TestWebSocketOriginCheck(t *testing.T) {
	s := newTestServer(t)
	s.Origins = []string{"https://tiles.example.com"}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"no origin", "", true},
		{"allowed", "https://tiles.example.com", true},
		{"default dev origin", "http://localhost:5173", true},
		{"same host", ts.URL, true},
		{"foreign", "https://evil.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if !tt.ok {
				require.ErrorIs(t, err, websocket.ErrBadHandshake)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				return
			}
			require.NoError(t, err)
			conn.Close()
		})
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Equal(t, 60, rl.RetryAfter("a"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))
	assert.Zero(t, rl.RetryAfter("unknown"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", clientIP(req))
}
