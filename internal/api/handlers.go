package api

import (
	"net/http"
	"strings"

	"bookingsync/internal/models"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"network": s.deps.Network.CurrentStatus(),
	})
}

func (s *HTTPServer) handleGetNetwork(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": s.deps.Network.CurrentStatus()})
}

func (s *HTTPServer) handleSetNetwork(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.NetworkStatus `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Status != models.NetworkOnline && body.Status != models.NetworkOffline {
		writeError(w, http.StatusBadRequest, "status must be online or offline")
		return
	}
	changed := s.deps.Network.Set(body.Status)
	writeJSON(w, http.StatusOK, map[string]any{"status": s.deps.Network.CurrentStatus(), "changed": changed})
}

// handleProbe checks reachability of the booking server and records the result.
func (s *HTTPServer) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.deps.ProbeURL == "" {
		writeError(w, http.StatusNotImplemented, "no probe url configured")
		return
	}
	status, err := s.deps.Network.Probe(r.Context(), s.deps.ProbeURL)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	changed := s.deps.Network.Set(status)
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "changed": changed})
}

func (s *HTTPServer) handleListQueue(w http.ResponseWriter, r *http.Request) {
	var statuses []models.QueueStatus
	for _, raw := range splitCSV(r.URL.Query().Get("status")) {
		st := models.QueueStatus(raw)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status: "+raw)
			return
		}
		statuses = append(statuses, st)
	}

	entries, err := s.deps.Queue.List(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	stats, err := s.deps.Queue.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "counts": stats})
}

func (s *HTTPServer) handleGetQueueEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.deps.Queue.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Sync.Drain(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.deps.Queue.Cleanup(r.Context(), s.deps.Now())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"slots": models.SlotsByPeriod()})
}

func (s *HTTPServer) handleLandmarkCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": models.LandmarkCategories})
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
