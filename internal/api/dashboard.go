package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"farmwatch/internal/model"
)

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dashboard == nil {
		writeResult(w, notConfigured(model.KPIs{}))
		return
	}
	writeResult(w, s.deps.Dashboard.KPIs(r.Context()))
}

func (s *Server) handleHarvestTrends(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dashboard == nil {
		writeResult(w, notConfigured([]model.HarvestTrend{}))
		return
	}
	writeResult(w, s.deps.Dashboard.HarvestTrends(r.Context()))
}

func (s *Server) handleResourceStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dashboard == nil {
		writeResult(w, notConfigured([]model.StatusCount{}))
		return
	}
	writeResult(w, s.deps.Dashboard.ResourceStatus(r.Context()))
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dashboard == nil {
		writeResult(w, notConfigured([]model.Issue{}))
		return
	}
	writeResult(w, s.deps.Dashboard.IssueLocations(r.Context()))
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dashboard == nil {
		writeResult(w, notConfigured([]model.InventoryItem{}))
		return
	}
	writeResult(w, s.deps.Dashboard.Inventory(r.Context()))
}

const defaultStationWindow = 24 * time.Hour

func (s *Server) handleEquipment(w http.ResponseWriter, r *http.Request) {
	if s.deps.Equipment == nil {
		writeResult(w, notConfigured([]model.EquipmentStatus{}))
		return
	}
	writeResult(w, s.deps.Equipment.Equipment(r.Context()))
}

func (s *Server) handleEquipmentHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultReadingLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if s.deps.Equipment == nil {
		writeResult(w, notConfigured([]model.EquipmentStatus{}))
		return
	}
	writeResult(w, s.deps.Equipment.EquipmentHistory(r.Context(), chi.URLParam(r, "id"), limit))
}

func (s *Server) handleEquipmentStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Equipment == nil {
		writeError(w, http.StatusServiceUnavailable, "equipment tracking not configured")
		return
	}
	var st model.EquipmentStatus
	if !decodeBody(w, r, &st, false) {
		return
	}
	if st.Status == "" {
		writeError(w, http.StatusBadRequest, "status required")
		return
	}
	st.EquipmentID = chi.URLParam(r, "id")
	if st.Timestamp.IsZero() {
		st.Timestamp = time.Now().UTC()
	}
	if err := s.deps.Equipment.UpdateEquipment(r.Context(), st); err != nil {
		s.logger.Error("equipment update failed", "equipment_id", st.EquipmentID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "equipment store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleStationHistory takes ?hours= to widen or narrow the default day.
func (s *Server) handleStationHistory(w http.ResponseWriter, r *http.Request) {
	hours, ok := queryInt(r, "hours", int(defaultStationWindow/time.Hour))
	if !ok || hours == 0 {
		writeError(w, http.StatusBadRequest, "hours must be a positive integer")
		return
	}
	if s.deps.Equipment == nil {
		writeResult(w, notConfigured([]model.StationLog{}))
		return
	}
	writeResult(w, s.deps.Equipment.StationHistory(r.Context(), chi.URLParam(r, "id"), time.Duration(hours)*time.Hour))
}

func (s *Server) handleStationLog(w http.ResponseWriter, r *http.Request) {
	if s.deps.Equipment == nil {
		writeError(w, http.StatusServiceUnavailable, "weather station logging not configured")
		return
	}
	var l model.StationLog
	if !decodeBody(w, r, &l, false) {
		return
	}
	l.StationID = chi.URLParam(r, "id")
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	if err := s.deps.Equipment.LogStation(r.Context(), l); err != nil {
		s.logger.Error("station log failed", "station_id", l.StationID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "station store unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, l)
}
