// Package forecast trains a yield regressor on historical harvest rows and
// turns it into a short monthly forecast.
package forecast

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"farmwatch/internal/features"
	"farmwatch/internal/forest"
	"farmwatch/internal/model"
)

const (
	// MinRows is the smallest prepared batch Fit will train on.
	MinRows      = 10
	TestFraction = 0.2
	SplitSeed    = 42

	Step       = 30 * 24 * time.Hour
	Confidence = 0.8

	baselineCrop    = 0
	baselineWeather = 0.7
	baselineSoil    = 0.75
)

var (
	ErrNotTrained  = errors.New("forecast: estimator is not trained")
	ErrUnknownCrop = errors.New("forecast: crop not in training encoding")
)

// Scenario pins the categorical inputs of a forecast. A nil Soil uses the
// baseline soil score.
type Scenario struct {
	Crop    string   `json:"crop_type"`
	Weather string   `json:"weather_condition"`
	Soil    *float64 `json:"soil_quality_score,omitempty"`
}

type Status struct {
	Trained   bool      `json:"trained"`
	Rows      int       `json:"rows"`
	MAE       float64   `json:"mae"`
	TrainedAt time.Time `json:"trained_at,omitempty"`
	Crops     []string  `json:"crops,omitempty"`
}

type Option func(*Estimator)

func WithClock(now func() time.Time) Option {
	return func(e *Estimator) { e.now = now }
}

func WithParams(p forest.Params) Option {
	return func(e *Estimator) { e.params = p }
}

// Estimator is safe for concurrent use. A Fit swaps the model and its crop
// encoding together, so a Predict never sees one without the other.
type Estimator struct {
	mu     sync.RWMutex
	model  *forest.Regressor
	enc    features.Encoding
	status Status

	params forest.Params
	now    func() time.Time
	logger *slog.Logger
}

func New(logger *slog.Logger, opts ...Option) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Estimator{
		params: forest.DefaultParams(),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fit trains on batch and reports whether the estimator is now trained on
// it. A failed Fit leaves any previous model in place.
func (e *Estimator) Fit(batch []model.Observation) bool {
	if len(batch) == 0 {
		e.logger.Warn("forecast fit skipped", "reason", "empty batch")
		return false
	}
	rows, enc, err := features.Prepare(batch)
	if err != nil {
		e.logger.Warn("forecast fit skipped", "reason", "feature preparation failed", "error", err)
		return false
	}
	if len(rows) < MinRows {
		e.logger.Warn("forecast fit skipped", "reason", "not enough rows", "rows", len(rows), "min", MinRows)
		return false
	}

	train, test := forest.TrainTestSplit(len(rows), TestFraction, SplitSeed)
	X, y := columns(rows, train)
	reg := forest.New(e.params)
	if err := reg.Fit(X, y); err != nil {
		e.logger.Error("forecast fit failed", "error", err)
		return false
	}
	vX, vy := columns(rows, test)
	pred, err := reg.PredictAll(vX)
	if err != nil {
		e.logger.Error("forecast validation failed", "error", err)
		return false
	}
	mae := forest.MeanAbsoluteError(vy, pred)
	e.logger.Info("forecast model trained", "rows", len(rows), "train", len(train), "validation", len(test), "mae", mae)

	e.mu.Lock()
	e.model = reg
	e.enc = enc
	e.status = Status{
		Trained:   true,
		Rows:      len(rows),
		MAE:       mae,
		TrainedAt: e.now(),
		Crops:     crops(enc),
	}
	e.mu.Unlock()
	return true
}

func (e *Estimator) Trained() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model != nil
}

func (e *Estimator) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	s.Crops = append([]string(nil), s.Crops...)
	return s
}

// Encoding returns a copy of the crop encoding the current model was
// trained with.
func (e *Estimator) Encoding() features.Encoding {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(features.Encoding, len(e.enc))
	for k, v := range e.enc {
		out[k] = v
	}
	return out
}

// Predict returns n points 30 days apart starting one step after now. Every
// point uses the current month and baseline crop, weather and soil inputs.
// An untrained estimator returns nil.
func (e *Estimator) Predict(n int) []model.ForecastPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil || n <= 0 {
		return nil
	}
	now := e.now()
	x := []float64{float64(now.Month()), baselineCrop, baselineWeather, baselineSoil}
	out := make([]model.ForecastPoint, 0, n)
	for k := 1; k <= n; k++ {
		v, err := e.model.Predict(x)
		if err != nil {
			e.logger.Error("forecast predict failed", "error", err)
			return nil
		}
		out = append(out, point(now.Add(time.Duration(k)*Step), v))
	}
	return out
}

// PredictScenario forecasts for a specific crop and weather, using each
// target period's own month. The crop must be in the encoding of the batch
// the model was trained on.
func (e *Estimator) PredictScenario(n int, s Scenario) ([]model.ForecastPoint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return nil, ErrNotTrained
	}
	idx, ok := e.enc.Index(s.Crop)
	if !ok {
		return nil, ErrUnknownCrop
	}
	soil := baselineSoil
	if s.Soil != nil && !math.IsNaN(*s.Soil) {
		soil = *s.Soil
	}
	weather := features.WeatherScore(s.Weather)

	now := e.now()
	out := make([]model.ForecastPoint, 0, max(n, 0))
	for k := 1; k <= n; k++ {
		period := now.Add(time.Duration(k) * Step)
		v, err := e.model.Predict([]float64{float64(period.Month()), float64(idx), weather, soil})
		if err != nil {
			return nil, err
		}
		out = append(out, point(period, v))
	}
	return out, nil
}

func point(period time.Time, v float64) model.ForecastPoint {
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	return model.ForecastPoint{Period: period, Predicted: v, Confidence: Confidence}
}

func columns(rows []features.Row, idx []int) ([][]float64, []float64) {
	X := make([][]float64, 0, len(idx))
	y := make([]float64, 0, len(idx))
	for _, i := range idx {
		x := rows[i].X
		X = append(X, x[:])
		y = append(y, rows[i].Y)
	}
	return X, y
}

func crops(enc features.Encoding) []string {
	out := make([]string, len(enc))
	for crop, idx := range enc {
		out[idx] = crop
	}
	return out
}
