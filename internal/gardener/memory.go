package gardener

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	maxRecords     = 10
	summaryRecords = 5 // how many recent records the cycle log summary shows
)

// CycleRecord captures what happened in a single gardener cycle.
type CycleRecord struct {
	Tick       uint64  `json:"tick"`
	Action     string  `json:"action"`
	Level      string  `json:"level"`
	Coverage   float64 `json:"coverage"`
	Placements uint64  `json:"placements"`
	Restock    int     `json:"restock"`
	Rationale  string  `json:"rationale,omitempty"`
}

// CycleMemory manages a ring of recent gardener cycle records.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`

	path string
}

// LoadMemory reads the memory file from disk. Returns empty memory if not
// found. An empty path keeps memory in process only.
func LoadMemory(path string) *CycleMemory {
	if path == "" {
		return &CycleMemory{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &CycleMemory{path: path}
	}
	var mem CycleMemory
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("gardener memory corrupted, starting fresh", "error", err)
		return &CycleMemory{path: path}
	}
	mem.path = path
	return &mem
}

// Save writes the memory to disk.
func (m *CycleMemory) Save() {
	if m.path == "" {
		return
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.Error("failed to marshal gardener memory", "error", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		slog.Error("failed to write gardener memory", "error", err)
	}
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// BestRun returns the restarted record with the most placements, if any.
func (m *CycleMemory) BestRun() (CycleRecord, bool) {
	var best CycleRecord
	found := false
	for _, r := range m.Records {
		if r.Action != "restart" {
			continue
		}
		if !found || r.Placements > best.Placements {
			best, found = r, true
		}
	}
	return best, found
}

// Summary returns the last few cycles, one per line.
func (m *CycleMemory) Summary() string {
	if len(m.Records) == 0 {
		return ""
	}

	var b strings.Builder
	start := max(len(m.Records)-summaryRecords, 0)
	for _, r := range m.Records[start:] {
		fmt.Fprintf(&b, "tick %d: action=%s level=%s coverage=%.2f placements=%d restock=%d\n",
			r.Tick, r.Action, r.Level, r.Coverage, r.Placements, r.Restock)
	}
	return b.String()
}
