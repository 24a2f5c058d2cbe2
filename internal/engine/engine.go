// Package engine consumes normalized readings: it drops duplicates, fixes
// implausible timestamps, keeps rolling statistics, persists readings and
// hands them to the threshold monitor and notifier.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"farmwatch/internal/config"
	"farmwatch/internal/metrics"
	"farmwatch/internal/model"
	"farmwatch/internal/monitor"
	"farmwatch/internal/notify"
)

// ReadingSink persists accepted readings.
type ReadingSink interface {
	SaveReadings(ctx context.Context, readings []model.SensorReading) error
}

// AlertReader fetches a stored alert for notification.
type AlertReader interface {
	Get(ctx context.Context, id string) (model.Alert, error)
}

type Deps struct {
	Monitor  *monitor.Monitor
	Alerts   AlertReader
	Notifier *notify.Notifier
	Metrics  *metrics.Store
	Sinks    []ReadingSink
}

type Engine struct {
	logger  *slog.Logger
	deps    Deps
	cfg     atomic.Pointer[config.Config]
	sensors map[string]*SensorState
	mu      sync.Mutex
	deDupe  *DedupeCache
	now     func() time.Time
}

type SensorState struct {
	id      string
	windows map[string]map[int]*WindowState
}

// Outcome describes what happened to one reading.
type Outcome struct {
	Reading  model.SensorReading
	Stats    []model.SensorStats
	Alert    *model.Alert
	Notified bool
}

func NewEngine(cfg *config.Config, logger *slog.Logger, deps Deps) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewStore(cfg.Stats.StoreLimit)
	}
	e := &Engine{
		logger:  logger.With("component", "engine"),
		deps:    deps,
		sensors: make(map[string]*SensorState),
		deDupe:  NewDedupeCache(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	e.cfg.Store(cfg)
	return e
}

// UpdateConfig applies a reloaded config, thresholds included.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	if e.deps.Monitor != nil {
		if err := e.deps.Monitor.SetThresholds(cfg.Monitor.Thresholds); err != nil {
			e.logger.Error("threshold update rejected", "error", err)
		}
	}
}

func (e *Engine) config() *config.Config {
	if c := e.cfg.Load(); c != nil {
		return c
	}
	return config.DefaultConfig()
}

func (e *Engine) Metrics() *metrics.Store {
	return e.deps.Metrics
}

// Start processes readings from in until ctx ends or in is closed. The
// returned channel closes when the loop has exited.
func (e *Engine) Start(ctx context.Context, in <-chan model.SensorReading) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case r, ok := <-in:
				if !ok {
					return
				}
				e.ProcessReading(ctx, r)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// ProcessReading runs one reading through the pipeline. It returns false
// when the reading was dropped as a duplicate.
func (e *Engine) ProcessReading(ctx context.Context, r model.SensorReading) (Outcome, bool) {
	cfg := e.config()
	now := e.now()
	r.Timestamp = clampTimestamp(r.Timestamp, now, cfg.Monitor.MaxClockSkew, cfg.Monitor.MaxFutureSkew)

	if e.isDuplicate(r, now, cfg.Monitor.DedupeWindow) {
		e.logger.Debug("duplicate reading dropped", "sensor_id", r.SensorID, "metric", r.Metric)
		return Outcome{}, false
	}

	out := Outcome{Reading: r}
	sensor := e.getSensor(r.SensorID)
	e.mu.Lock()
	windows := sensor.windowsFor(r.Metric, cfg.Stats.Windows)
	for _, w := range windows {
		w.Evict(r.Timestamp.Add(-w.duration))
		w.Add(r.Timestamp, r.Value)
		out.Stats = append(out.Stats, w.Stats(r.Metric))
	}
	e.mu.Unlock()
	e.deps.Metrics.Update(r.SensorID, out.Stats)

	batch := []model.SensorReading{r}
	for _, sink := range e.deps.Sinks {
		if err := sink.SaveReadings(ctx, batch); err != nil {
			e.logger.Error("persist reading failed", "sensor_id", r.SensorID, "error", err)
		}
	}

	if e.deps.Monitor == nil {
		return out, true
	}
	em, breached, err := e.deps.Monitor.Process(ctx, r)
	if err != nil {
		e.logger.Error("threshold alert not stored", "sensor_id", r.SensorID, "metric", r.Metric, "error", err)
		return out, true
	}
	if !breached {
		return out, true
	}
	a := e.storedAlert(ctx, em, now)
	out.Alert = &a
	out.Notified = e.deps.Notifier.Notify(ctx, a)
	return out, true
}

func (e *Engine) storedAlert(ctx context.Context, em monitor.Emission, now time.Time) model.Alert {
	if e.deps.Alerts != nil {
		if a, err := e.deps.Alerts.Get(ctx, em.AlertID); err == nil {
			return a
		}
	}
	return model.Alert{
		ID:        em.AlertID,
		Title:     em.Draft.Title,
		Message:   em.Draft.Message,
		Priority:  em.Draft.Priority,
		Source:    em.Draft.Source,
		CreatedAt: now,
	}
}

// Reset drops rolling statistics and duplicate history. Stored readings and
// alerts are untouched.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.sensors = make(map[string]*SensorState)
	e.mu.Unlock()
	e.deDupe.Clear()
	e.deps.Metrics.Clear()
}

func (e *Engine) getSensor(sensorID string) *SensorState {
	if sensorID == "" {
		sensorID = "unknown"
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sensors[sensorID]; ok {
		return s
	}
	s := &SensorState{id: sensorID, windows: make(map[string]map[int]*WindowState)}
	e.sensors[sensorID] = s
	return s
}

// windowsFor returns the metric's windows in ascending duration, creating
// any that a config reload added. Callers hold e.mu.
func (s *SensorState) windowsFor(metric string, durations []time.Duration) []*WindowState {
	m, ok := s.windows[metric]
	if !ok {
		m = make(map[int]*WindowState)
		s.windows[metric] = m
	}
	for _, d := range durations {
		sec := int(d.Seconds())
		if _, exists := m[sec]; !exists {
			m[sec] = NewWindowState(d)
		}
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]*WindowState, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func (e *Engine) isDuplicate(r model.SensorReading, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return e.deDupe.Seen(readingKey(r), now, window)
}

func clampTimestamp(ts, now time.Time, maxPast, maxFuture time.Duration) time.Time {
	if ts.IsZero() {
		return now
	}
	if maxPast > 0 && now.Sub(ts) > maxPast {
		return now
	}
	if maxFuture > 0 && ts.Sub(now) > maxFuture {
		return now
	}
	return ts
}
