package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"vox/agent/internal/latency"
)

type Handlers struct {
	tracker  *latency.Tracker
	upgrader websocket.Upgrader

	// StatsPushInterval is how often /ws/stats pushes a snapshot.
	StatsPushInterval time.Duration
}

func NewHandlers(tracker *latency.Tracker) *Handlers {
	return &Handlers{
		tracker:           tracker,
		upgrader:          websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		StatsPushInterval: 2 * time.Second,
	}
}

func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.tracker.Stats())
}

func (h *Handlers) HandleCalls(w http.ResponseWriter, r *http.Request) {
	ids := h.tracker.ActiveIDs()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"active_calls": len(ids),
		"call_ids":     ids,
	})
}

// HandleStatsWS streams rolling stats snapshots to dashboard clients until
// they disconnect.
func (h *Handlers) HandleStatsWS(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] stats ws upgrade: %v", err)
		return
	}
	defer c.Close()

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.StatsPushInterval)
	defer ticker.Stop()

	// First snapshot goes out immediately.
	for {
		snap := map[string]any{
			"active_calls": h.tracker.ActiveCount(),
			"stats":        h.tracker.Stats(),
			"ts":           time.Now().UTC().Format(time.RFC3339),
		}
		if err := c.WriteJSON(snap); err != nil {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
