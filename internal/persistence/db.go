// Package persistence provides an SQLite journal of simulation runs and the
// placements committed in each.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/kluring/internal/engine"
	"github.com/talgya/kluring/internal/world"
)

// DefaultMaxPending caps the rows kept in memory while writes keep failing.
const DefaultMaxPending = 10000

// Journal records runs and placements. It implements engine.Observer by
// buffering in memory; Flush writes the buffer in one transaction.
type Journal struct {
	conn *sqlx.DB

	// MaxPending bounds the retained buffer after a failed Flush; the oldest
	// rows are dropped beyond it. Zero or less keeps everything.
	MaxPending int

	mu      sync.Mutex
	runID   string
	pending []pendingRow
	dropped int
}

// pendingRow is either a new run or a placement within the current run.
type pendingRow struct {
	run       *Run
	placement *PlacementRow
}

// Run is one board lifetime between resets.
type Run struct {
	ID        string `db:"id" json:"id"`
	StartedAt int64  `db:"started_at" json:"started_at"` // unix millis
	StartTick uint64 `db:"start_tick" json:"start_tick"`
	Restock   int    `db:"restock" json:"restock"`
	Placed    int    `db:"placed" json:"placed"`
}

// PlacementRow is a journaled placement.
type PlacementRow struct {
	RunID     string        `db:"run_id" json:"run_id"`
	Seq       uint64        `db:"seq" json:"seq"`
	Tick      uint64        `db:"tick" json:"tick"`
	ShapeID   int           `db:"shape_id" json:"shape_id"`
	Rotation  uint8         `db:"rotation" json:"rotation"`
	Flipped   bool          `db:"flipped" json:"flipped"`
	AnchorX   int           `db:"anchor_x" json:"anchor_x"`
	AnchorY   int           `db:"anchor_y" json:"anchor_y"`
	Score     int           `db:"score" json:"score"`
	CellsJSON string        `db:"cells_json" json:"-"`
	Cells     []world.Coord `db:"-" json:"cells"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Journal, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	j := &Journal{conn: conn, MaxPending: DefaultMaxPending}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		start_tick INTEGER NOT NULL,
		restock INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS placements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		shape_id INTEGER NOT NULL,
		rotation INTEGER NOT NULL,
		flipped INTEGER NOT NULL,
		anchor_x INTEGER NOT NULL,
		anchor_y INTEGER NOT NULL,
		score INTEGER NOT NULL,
		cells_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_placements_run ON placements(run_id, seq);
	`
	_, err := j.conn.Exec(schema)
	return err
}

// CurrentRun returns the ID of the run being recorded, or "" before the
// first restart notification.
func (j *Journal) CurrentRun() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runID
}

// Restarted starts a new run.
func (j *Journal) Restarted(r engine.Restart) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.runID = uuid.NewString()
	j.pending = append(j.pending, pendingRow{run: &Run{
		ID:        j.runID,
		StartedAt: time.Now().UnixMilli(),
		StartTick: r.Tick,
		Restock:   r.Count,
	}})
}

// PlacementCommitted buffers a placement for the current run.
func (j *Journal) PlacementCommitted(p engine.Placement) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.runID == "" {
		return
	}
	j.pending = append(j.pending, pendingRow{placement: &PlacementRow{
		RunID:    j.runID,
		Seq:      p.Seq,
		Tick:     p.Tick,
		ShapeID:  p.Permutation.ShapeID,
		Rotation: p.Permutation.Rotation,
		Flipped:  p.Permutation.Flipped,
		AnchorX:  p.Anchor.X,
		AnchorY:  p.Anchor.Y,
		Score:    p.Score,
		Cells:    p.Cells,
	}})
}

// FrontierUpdated is ignored; frontier scores are recomputed every step.
func (j *Journal) FrontierUpdated(engine.FrontierUpdate) {}

// Pending returns how many rows are waiting for Flush.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Dropped returns how many rows were discarded because the buffer was full.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Flush writes buffered runs and placements in a single transaction. On
// failure the buffer is kept for the next attempt, up to MaxPending rows.
func (j *Journal) Flush() error {
	j.mu.Lock()
	rows := j.pending
	j.pending = nil
	j.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}

	if err := j.write(rows); err != nil {
		j.mu.Lock()
		j.pending = append(rows, j.pending...)
		if over := len(j.pending) - j.MaxPending; j.MaxPending > 0 && over > 0 {
			j.pending = j.pending[over:]
			j.dropped += over
			slog.Error("journal backlog full, dropping oldest rows", "dropped", over, "kept", len(j.pending), "error", err)
		}
		j.mu.Unlock()
		return err
	}

	slog.Debug("journal flushed", "rows", len(rows))
	return nil
}

func (j *Journal) write(rows []pendingRow) error {
	tx, err := j.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO placements
		(run_id, seq, tick, shape_id, rotation, flipped, anchor_x, anchor_y, score, cells_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if r := row.run; r != nil {
			_, err := tx.Exec(
				"INSERT INTO runs (id, started_at, start_tick, restock) VALUES (?, ?, ?, ?)",
				r.ID, r.StartedAt, r.StartTick, r.Restock,
			)
			if err != nil {
				return fmt.Errorf("insert run %s: %w", r.ID, err)
			}
			continue
		}

		p := row.placement
		cellsJSON, _ := json.Marshal(p.Cells)
		flipped := 0
		if p.Flipped {
			flipped = 1
		}
		_, err := stmt.Exec(
			p.RunID, p.Seq, p.Tick, p.ShapeID, p.Rotation, flipped,
			p.AnchorX, p.AnchorY, p.Score, string(cellsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert placement %s/%d: %w", p.RunID, p.Seq, err)
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair.
func (j *Journal) SaveMeta(key, value string) error {
	_, err := j.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (j *Journal) GetMeta(key string) (string, error) {
	var value string
	err := j.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// Runs returns the most recent runs, newest first, with placement counts.
func (j *Journal) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := j.conn.Select(&runs, `
		SELECT r.id, r.started_at, r.start_tick, r.restock, COUNT(p.id) AS placed
		FROM runs r LEFT JOIN placements p ON p.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.start_tick DESC
		LIMIT ?`, limit)
	return runs, err
}

// Placements returns a run's placements in commit order.
func (j *Journal) Placements(runID string, limit int) ([]PlacementRow, error) {
	var rows []PlacementRow
	err := j.conn.Select(&rows, `
		SELECT run_id, seq, tick, shape_id, rotation, flipped, anchor_x, anchor_y, score, cells_json
		FROM placements WHERE run_id = ? ORDER BY seq LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if err := json.Unmarshal([]byte(rows[i].CellsJSON), &rows[i].Cells); err != nil {
			return nil, fmt.Errorf("decode cells of %s/%d: %w", runID, rows[i].Seq, err)
		}
	}
	return rows, nil
}
