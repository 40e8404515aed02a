package api

import (
	"net/http"
)

func NewRouter(h *Handlers, callWS http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandleStats(w, r)
	})

	mux.HandleFunc("/calls", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandleCalls(w, r)
	})

	mux.HandleFunc("/ws/stats", h.HandleStatsWS)

	if callWS != nil {
		mux.HandleFunc("/ws/call", callWS)
	}

	return mux
}
