package api

import (
	"encoding/json"
	"net/http"

	"driftwatch/internal/monitor"
)

type API struct {
	manager *monitor.Manager
}

// New builds the HTTP status surface over the monitor manager.
func New(manager *monitor.Manager) http.Handler {
	api := &API{manager: manager}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", api.handleHealth)
	mux.HandleFunc("GET /streams", api.handleStreams)
	mux.HandleFunc("GET /streams/{streamId}", api.handleStream)

	return mux
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (a *API) handleStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.manager.Statuses())
}

func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	streamId := r.PathValue("streamId")
	mon, found := a.manager.GetMonitor(streamId)
	if !found {
		http.Error(w, "Stream not found: "+streamId, http.StatusNotFound)
		return
	}
	writeJSON(w, mon.Status())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
