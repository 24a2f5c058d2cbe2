package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"farmwatch/internal/weather"
)

type chatRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat not configured")
		return
	}
	var req chatRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Chat.Respond(r.Context(), req.Message, req.Context))
}

// handleWeather takes ?city= or ?lat=&lon=; neither means the default city.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if s.deps.Weather == nil {
		writeResult(w, notConfigured(weather.Mock(time.Now().UTC())))
		return
	}
	q := r.URL.Query()
	query := weather.Query{City: q.Get("city")}
	if lat, lon := q.Get("lat"), q.Get("lon"); lat != "" || lon != "" {
		var errLat, errLon error
		query.Lat, errLat = strconv.ParseFloat(lat, 64)
		query.Lon, errLon = strconv.ParseFloat(lon, 64)
		if errLat != nil || errLon != nil {
			writeError(w, http.StatusBadRequest, "lat and lon must both be numbers")
			return
		}
		query.HasCoords = true
	}
	writeResult(w, s.deps.Weather.Current(r.Context(), query))
}
