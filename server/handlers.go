package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handlers holds dependencies for the HTTP handlers.
type Handlers struct {
	status StatusSource
}

// HandleHealthz responds to liveness probes. The process serving HTTP is the
// liveness signal; connection health is a readiness concern.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probes: ready once both sides of the
// bridge are connected and relaying.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()
	if !st.Ready {
		http.Error(w, "bridge not ready: swarm "+st.SwarmState, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleStatus returns a JSON snapshot of the bridge state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.status.Status()); err != nil {
		slog.Warn("failed to encode status", slog.Any("err", err))
	}
}
