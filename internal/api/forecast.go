package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"farmwatch/internal/forecast"
	"farmwatch/internal/model"
)

const maxForecastMonths = 36

// handleForecast returns the baseline forecast, or a scenario forecast when
// a crop is given.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if s.deps.Estimator == nil {
		writeError(w, http.StatusServiceUnavailable, "forecasting not configured")
		return
	}
	months, ok := queryInt(r, "months", s.deps.Config.Get().Forecast.DefaultMonths)
	if !ok || months > maxForecastMonths {
		writeError(w, http.StatusBadRequest, "months must be between 0 and 36")
		return
	}
	q := r.URL.Query()
	crop := q.Get("crop")
	if crop == "" {
		points := s.deps.Estimator.Predict(months)
		if points == nil {
			points = []model.ForecastPoint{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"trained":  s.deps.Estimator.Trained(),
			"forecast": points,
		})
		return
	}

	sc := forecast.Scenario{Crop: crop, Weather: q.Get("weather")}
	if v := q.Get("soil"); v != "" {
		soil, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "soil must be a number")
			return
		}
		sc.Soil = &soil
	}
	points, err := s.deps.Estimator.PredictScenario(months, sc)
	switch {
	case errors.Is(err, forecast.ErrNotTrained):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, forecast.ErrUnknownCrop):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		s.logger.Error("scenario forecast failed", "error", err)
		writeError(w, http.StatusInternalServerError, "forecast failed")
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"trained":  true,
			"scenario": sc,
			"forecast": points,
		})
	}
}

func (s *Server) handleForecastStatus(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Estimator == nil {
		writeError(w, http.StatusServiceUnavailable, "forecasting not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Estimator.Status())
}

// handleTrain fits the estimator. With observations in the body it imports
// them into history when a history store is configured and trains on them;
// with an empty body it trains on the stored history.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	if s.deps.Estimator == nil {
		writeError(w, http.StatusServiceUnavailable, "forecasting not configured")
		return
	}
	var req struct {
		Observations []model.Observation `json:"observations"`
	}
	if !decodeBody(w, r, &req, true) {
		return
	}

	for i, o := range req.Observations {
		if err := o.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("observation %d: %v", i, err))
			return
		}
	}

	var trained bool
	if len(req.Observations) > 0 {
		if s.deps.History != nil {
			n, err := s.deps.History.ImportHistory(r.Context(), req.Observations)
			switch {
			case errors.Is(err, model.ErrInvalidObservation):
				writeError(w, http.StatusBadRequest, err.Error())
				return
			case err != nil:
				s.logger.Error("history import failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "history store unavailable")
				return
			}
			s.logger.Info("history imported", "rows", n)
		}
		trained = s.deps.Estimator.Fit(req.Observations)
	} else {
		if s.deps.History == nil {
			writeError(w, http.StatusServiceUnavailable, "no history store configured")
			return
		}
		var err error
		trained, err = s.deps.Estimator.TrainFrom(r.Context(), s.deps.History)
		if err != nil {
			s.logger.Error("training history unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "history unavailable")
			return
		}
	}
	status := http.StatusOK
	if !trained {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]any{
		"trained": trained,
		"status":  s.deps.Estimator.Status(),
	})
}
