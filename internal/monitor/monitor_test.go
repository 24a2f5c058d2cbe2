package monitor

import (
	"context"
	"errors"
	"math"
	"testing"

	"farmwatch/internal/alerts"
	"farmwatch/internal/config"
	"farmwatch/internal/logging"
	"farmwatch/internal/model"
)

func newMonitor(t *testing.T) (*Monitor, *alerts.MemoryStore) {
	t.Helper()
	store, err := alerts.NewMemoryStore(1)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	return New(store, config.DefaultThresholds(), logging.Discard()), store
}

func reading(metric string, v float64) model.SensorReading {
	return model.SensorReading{SensorID: "field-7", Metric: metric, Value: v}
}

func TestBoundariesDoNotAlert(t *testing.T) {
	m, store := newMonitor(t)
	cases := []model.SensorReading{
		reading("soil_moisture", 20),
		reading("soil_moisture", 80),
		reading("temperature", 5),
		reading("temperature", 35),
		reading("humidity", 30),
		reading("humidity", 90),
		reading("ph_level", 6.0),
		reading("ph_level", 7.5),
		reading("soil_moisture", 50),
	}
	for _, r := range cases {
		if _, ok, err := m.Process(context.Background(), r); ok || err != nil {
			t.Fatalf("expected no alert for %s=%v, got ok=%v err=%v", r.Metric, r.Value, ok, err)
		}
	}
	list, _ := store.List(context.Background(), false, 0)
	if len(list) != 0 {
		t.Fatalf("expected empty store, got %d alerts", len(list))
	}
}

func TestLowSoilMoistureAlertsOnce(t *testing.T) {
	m, store := newMonitor(t)
	em, ok, err := m.Process(context.Background(), reading("soil_moisture", 19.9))
	if err != nil || !ok {
		t.Fatalf("expected alert, got ok=%v err=%v", ok, err)
	}
	list, _ := store.List(context.Background(), false, 0)
	if len(list) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(list))
	}
	a := list[0]
	if a.ID != em.AlertID {
		t.Fatalf("expected id %s, got %s", em.AlertID, a.ID)
	}
	if a.Title != "Low soil_moisture" {
		t.Fatalf("unexpected title %q", a.Title)
	}
	if a.Priority != model.PriorityHigh {
		t.Fatalf("expected high priority, got %s", a.Priority)
	}
	if a.Message != "Sensor field-7: soil_moisture is 19.9 (below minimum 20)" {
		t.Fatalf("unexpected message %q", a.Message)
	}
	if a.Source != "field-7" {
		t.Fatalf("unexpected source %q", a.Source)
	}
}

func TestHighSoilMoistureAlertsOnce(t *testing.T) {
	m, store := newMonitor(t)
	if _, ok, _ := m.Process(context.Background(), reading("soil_moisture", 80.1)); !ok {
		t.Fatalf("expected alert")
	}
	list, _ := store.List(context.Background(), false, 0)
	if len(list) != 1 || list[0].Title != "High soil_moisture" {
		t.Fatalf("unexpected alerts %+v", list)
	}
	if list[0].Message != "Sensor field-7: soil_moisture is 80.1 (above maximum 80)" {
		t.Fatalf("unexpected message %q", list[0].Message)
	}
}

func TestUnknownMetricNeverAlerts(t *testing.T) {
	m, _ := newMonitor(t)
	for _, v := range []float64{-1e9, 0, 1e9, math.Inf(1)} {
		if _, ok := m.Evaluate(reading("wind_speed", v)); ok {
			t.Fatalf("unexpected alert for unknown metric at %v", v)
		}
	}
}

func TestMetricNameIsCaseInsensitive(t *testing.T) {
	m, _ := newMonitor(t)
	d, ok := m.Evaluate(reading(" PH_Level ", 5.5))
	if !ok || d.Title != "Low ph_level" {
		t.Fatalf("unexpected decision ok=%v draft=%+v", ok, d)
	}
}

func TestSetThresholds(t *testing.T) {
	m, _ := newMonitor(t)
	if err := m.SetThresholds(map[string]config.Range{"temperature": {Min: 10, Max: 5}}); err == nil {
		t.Fatalf("expected inverted range to be rejected")
	}
	if _, ok := m.Evaluate(reading("temperature", 40)); !ok {
		t.Fatalf("rejected update must keep previous table")
	}
	if err := m.SetThresholds(map[string]config.Range{"Temperature": {Min: 0, Max: 50}}); err != nil {
		t.Fatalf("set thresholds: %v", err)
	}
	if _, ok := m.Evaluate(reading("temperature", 40)); ok {
		t.Fatalf("expected 40 to be in the widened range")
	}
	if _, ok := m.Evaluate(reading("soil_moisture", 0)); ok {
		t.Fatalf("metrics dropped from the table must not alert")
	}
	got := m.Thresholds()
	got["temperature"] = config.Range{Min: 100, Max: 200}
	if m.Thresholds()["temperature"].Max != 50 {
		t.Fatalf("Thresholds must return a copy")
	}
}

type failingStore struct{ alerts.Store }

func (failingStore) Create(context.Context, alerts.Draft) (string, error) {
	return "", errors.New("store down")
}

func TestProcessReportsStoreFailure(t *testing.T) {
	m := New(failingStore{}, nil, logging.Discard())
	_, ok, err := m.Process(context.Background(), reading("humidity", 10))
	if ok || err == nil {
		t.Fatalf("expected failure, got ok=%v err=%v", ok, err)
	}
}
