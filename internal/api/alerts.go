package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"farmwatch/internal/alerts"
	"farmwatch/internal/model"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", alerts.DefaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	list, err := s.deps.Alerts.List(r.Context(), unread, limit)
	if err != nil {
		s.alertStoreError(w, "list", err)
		return
	}
	if list == nil {
		list = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

type createAlertRequest struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
	Source   string `json:"source"`
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	id, err := s.deps.Alerts.Create(r.Context(), alerts.Draft{
		Title:    req.Title,
		Message:  req.Message,
		Priority: model.Priority(req.Priority),
		Source:   req.Source,
	})
	if err != nil {
		s.alertStoreError(w, "create", err)
		return
	}
	a, err := s.deps.Alerts.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Alerts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.alertStoreError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Alerts.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.alertStoreError(w, "mark read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"resolution_note"`
	}
	if !decodeBody(w, r, &req, true) {
		return
	}
	if err := s.deps.Alerts.Resolve(r.Context(), chi.URLParam(r, "id"), req.Note); err != nil {
		s.alertStoreError(w, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) alertStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, alerts.ErrNotFound):
		writeError(w, http.StatusNotFound, "alert not found")
	case errors.Is(err, alerts.ErrTitleRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("alert store error", "op", op, "error", err)
		writeError(w, http.StatusServiceUnavailable, "alert store unavailable")
	}
}
