package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/kluring/internal/engine"
)

const (
	heartbeatInterval = 15 * time.Second
	writeWait         = 10 * time.Second
)

// acquireStream reserves a stream slot. Returns false when all are taken.
func (s *Server) acquireStream() bool {
	select {
	case s.streamConns <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) releaseStream() {
	<-s.streamConns
}

func wantsFrontier(r *http.Request) bool {
	v := r.URL.Query().Get("frontier")
	return v == "1" || v == "true"
}

// handleStream provides an SSE endpoint for real-time events.
// ?frontier=1 includes per-cell frontier updates.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	if !s.acquireStream() {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.releaseStream()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.Hub.Subscribe(wantsFrontier(r))
	defer s.Hub.Unsubscribe(subID)

	// Catch-up with recent placements and restarts.
	for _, e := range s.Hub.Recent() {
		writeSSEEvent(w, e)
	}
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, e)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, e engine.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
}

// handleWebSocket streams the same events as handleStream over a websocket,
// one JSON object per message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.acquireStream() {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.releaseStream()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID, ch := s.Hub.Subscribe(wantsFrontier(r))
	defer s.Hub.Unsubscribe(subID)
	slog.Info("websocket client connected", "sub_id", subID)

	// Reader: drain control frames and notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for _, e := range s.Hub.Recent() {
		if err := writeWSEvent(conn, e); err != nil {
			return
		}
	}

	ping := time.NewTicker(heartbeatInterval)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeWSEvent(conn, e); err != nil {
				slog.Info("websocket write failed", "sub_id", subID, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			slog.Info("websocket client disconnected", "sub_id", subID)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeWSEvent(conn *websocket.Conn, e engine.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}
