// Package monitor checks single sensor readings against per-metric
// acceptable ranges and raises alerts for readings outside them.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync/atomic"

	"farmwatch/internal/alerts"
	"farmwatch/internal/config"
	"farmwatch/internal/model"
)

type Monitor struct {
	store      alerts.Store
	thresholds atomic.Pointer[map[string]config.Range]
	logger     *slog.Logger
}

// Emission is the outcome of processing one reading that breached its range.
type Emission struct {
	AlertID string
	Draft   alerts.Draft
}

func New(store alerts.Store, thresholds map[string]config.Range, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if thresholds == nil {
		thresholds = config.DefaultThresholds()
	}
	m := &Monitor{store: store, logger: logger}
	th := normalizeKeys(thresholds)
	m.thresholds.Store(&th)
	return m
}

func (m *Monitor) Thresholds() map[string]config.Range {
	return maps.Clone(*m.thresholds.Load())
}

// SetThresholds swaps the whole table. Readings already being evaluated keep
// the table they started with.
func (m *Monitor) SetThresholds(th map[string]config.Range) error {
	if err := config.ValidateThresholds(th); err != nil {
		return err
	}
	next := normalizeKeys(th)
	m.thresholds.Store(&next)
	return nil
}

func normalizeKeys(th map[string]config.Range) map[string]config.Range {
	out := make(map[string]config.Range, len(th))
	for k, v := range th {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// Evaluate decides whether r needs an alert. Metrics without a range never
// alert, and values equal to a bound are in range.
func (m *Monitor) Evaluate(r model.SensorReading) (alerts.Draft, bool) {
	return Evaluate(*m.thresholds.Load(), r)
}

// Process evaluates r and, when it is out of range, stores exactly one alert.
func (m *Monitor) Process(ctx context.Context, r model.SensorReading) (Emission, bool, error) {
	d, ok := m.Evaluate(r)
	if !ok {
		return Emission{}, false, nil
	}
	id, err := m.store.Create(ctx, d)
	if err != nil {
		m.logger.Error("alert create failed", "sensor_id", r.SensorID, "metric", r.Metric, "error", err)
		return Emission{}, false, fmt.Errorf("create alert for %s: %w", r.SensorID, err)
	}
	m.logger.Warn("sensor threshold alert",
		"alert_id", id,
		"sensor_id", r.SensorID,
		"metric", r.Metric,
		"value", r.Value,
		"title", d.Title,
	)
	return Emission{AlertID: id, Draft: d}, true, nil
}

func Evaluate(th map[string]config.Range, r model.SensorReading) (alerts.Draft, bool) {
	metric := strings.ToLower(strings.TrimSpace(r.Metric))
	rng, ok := th[metric]
	if !ok {
		return alerts.Draft{}, false
	}
	switch {
	case r.Value < rng.Min:
		return alerts.Draft{
			Title:    "Low " + metric,
			Message:  fmt.Sprintf("Sensor %s: %s is %s (below minimum %s)", r.SensorID, metric, num(r.Value), num(rng.Min)),
			Priority: model.PriorityHigh,
			Source:   r.SensorID,
		}, true
	case r.Value > rng.Max:
		return alerts.Draft{
			Title:    "High " + metric,
			Message:  fmt.Sprintf("Sensor %s: %s is %s (above maximum %s)", r.SensorID, metric, num(r.Value), num(rng.Max)),
			Priority: model.PriorityHigh,
			Source:   r.SensorID,
		}, true
	}
	return alerts.Draft{}, false
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
