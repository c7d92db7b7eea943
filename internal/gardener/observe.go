// Package gardener implements the autonomous board steward.
// It observes the tiler via the API, decides whether the board needs a
// restart, and acts via the admin restart endpoint.
package gardener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BoardSnapshot holds all data collected during an observation cycle.
type BoardSnapshot struct {
	Status BoardStatus `json:"status"`
	Bag    []BagEntry  `json:"bag"`
}

// BoardStatus mirrors GET /api/v1/status.
type BoardStatus struct {
	Name       string  `json:"name"`
	Tick       uint64  `json:"tick"`
	Speed      float64 `json:"speed"`
	Running    bool    `json:"running"`
	Phase      string  `json:"phase"`
	Area       int     `json:"area"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Attempts   uint64  `json:"attempts"`
	Placements uint64  `json:"placements"`
	Occupied   int     `json:"occupied"`
	Frontier   int     `json:"frontier"`
	Remaining  []int   `json:"remaining"`
	Restarts   uint64  `json:"restarts"`
	Restock    int     `json:"restock"`
	Stalled    bool    `json:"stalled"`
	Status     string  `json:"status"`
}

// BagEntry mirrors items from GET /api/v1/bag.
type BagEntry struct {
	Shape struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"shape"`
	Remaining int `json:"remaining"`
}

// Observer fetches board state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status and bag and returns a BoardSnapshot.
func (o *Observer) Observe(ctx context.Context) (*BoardSnapshot, error) {
	snap := &BoardSnapshot{}

	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/bag", &snap.Bag); err != nil {
		return nil, fmt.Errorf("fetch bag: %w", err)
	}

	return snap, nil
}

// Ready reports whether the status endpoint answers 200.
func (o *Observer) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/v1/status", nil)
	if err != nil {
		return false
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
