package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"farmwatch/internal/config"
	"farmwatch/internal/model"
)

const defaultReadingLimit = 100

// handleSensors lists sensors known to the document store, falling back to
// those the engine has seen since start.
func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sensors != nil {
		if res := s.deps.Sensors.Sensors(r.Context()); res.Available() {
			writeResult(w, res)
			return
		}
	}
	if s.deps.Metrics == nil {
		writeResult(w, notConfigured([]string{}))
		return
	}
	writeResult(w, model.Rows(s.deps.Metrics.Sensors()))
}

func (s *Server) handleSensorReadings(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultReadingLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if s.deps.Readings == nil {
		writeResult(w, notConfigured([]model.SensorReading{}))
		return
	}
	writeResult(w, s.deps.Readings.RecentReadings(r.Context(), chi.URLParam(r, "id"), limit))
}

func (s *Server) handleSensorStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		writeError(w, http.StatusNotFound, "no statistics")
		return
	}
	id := chi.URLParam(r, "id")
	stats, updated, ok := s.deps.Metrics.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown sensor")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sensor_id":  id,
		"updated_at": updated.Format(time.RFC3339Nano),
		"stats":      stats,
	})
}

// handleResetStats drops rolling statistics and duplicate history. Stored
// readings and alerts are kept.
func (s *Server) handleResetStats(w http.ResponseWriter, _ *http.Request) {
	switch {
	case s.deps.Engine != nil:
		s.deps.Engine.Reset()
	case s.deps.Metrics != nil:
		s.deps.Metrics.Clear()
	}
	s.logger.Info("statistics reset")
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, _ *http.Request) {
	th := s.deps.Config.Get().Monitor.Thresholds
	if s.deps.Monitor != nil {
		th = s.deps.Monitor.Thresholds()
	}
	writeJSON(w, http.StatusOK, map[string]any{"thresholds": th})
}

// handleSetThresholds replaces the whole threshold table, persists it through
// the config manager and applies it to the running monitor.
func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Thresholds map[string]config.Range `json:"thresholds"`
	}
	if !decodeBody(w, r, &req, false) {
		return
	}
	if len(req.Thresholds) == 0 {
		writeError(w, http.StatusBadRequest, "thresholds required")
		return
	}
	if err := config.ValidateThresholds(req.Thresholds); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	next := *s.deps.Config.Get()
	next.Monitor.Thresholds = req.Thresholds
	if err := s.deps.Config.Update(&next); err != nil {
		s.logger.Error("config update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "config update failed")
		return
	}
	switch {
	case s.deps.Engine != nil:
		s.deps.Engine.UpdateConfig(&next)
	case s.deps.Monitor != nil:
		_ = s.deps.Monitor.SetThresholds(req.Thresholds)
	}
	s.logger.Info("thresholds updated", "metrics", len(req.Thresholds))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
