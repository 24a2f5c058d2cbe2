package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"farmwatch/internal/alerts"
	"farmwatch/internal/config"
	"farmwatch/internal/logging"
	"farmwatch/internal/metrics"
	"farmwatch/internal/model"
	"farmwatch/internal/monitor"
	"farmwatch/internal/notify"
)

var base = time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Stats.Windows = []time.Duration{time.Minute, time.Hour}
	cfg.Monitor.DedupeWindow = 0
	cfg.Monitor.MaxClockSkew = 0
	cfg.Monitor.MaxFutureSkew = 0
	return cfg
}

type memorySink struct {
	mu   sync.Mutex
	got  []model.SensorReading
	fail bool
}

func (s *memorySink) SaveReadings(_ context.Context, rs []model.SensorReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	s.got = append(s.got, rs...)
	return nil
}

type countingPublisher struct {
	mu  sync.Mutex
	got []model.Alert
}

func (p *countingPublisher) Name() string { return "count" }

func (p *countingPublisher) Publish(_ context.Context, a model.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, a)
	return nil
}

type harness struct {
	eng   *Engine
	store *alerts.MemoryStore
	sink  *memorySink
	pub   *countingPublisher
}

func newHarness(t *testing.T, cfg *config.Config) harness {
	t.Helper()
	store, err := alerts.NewMemoryStore(1)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	sink := &memorySink{}
	pub := &countingPublisher{}
	eng := NewEngine(cfg, logging.Discard(), Deps{
		Monitor:  monitor.New(store, cfg.Monitor.Thresholds, logging.Discard()),
		Alerts:   store,
		Notifier: notify.New(cfg.Notify.Cooldown, logging.Discard(), pub),
		Metrics:  metrics.NewStore(100),
		Sinks:    []ReadingSink{sink},
	})
	eng.now = func() time.Time { return base.Add(time.Hour) }
	return harness{eng: eng, store: store, sink: sink, pub: pub}
}

func reading(sensor, metric string, v float64, at time.Time) model.SensorReading {
	return model.SensorReading{SensorID: sensor, Metric: metric, Value: v, Timestamp: at}
}

func TestInRangeReadingsRaiseNothing(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		out, ok := h.eng.ProcessReading(ctx, reading("s1", "soil_moisture", 20+float64(i)*15, base.Add(time.Duration(i)*time.Second)))
		if !ok {
			t.Fatalf("reading %d dropped", i)
		}
		if out.Alert != nil {
			t.Fatalf("unexpected alert at %d: %+v", i, out.Alert)
		}
	}
	if len(h.sink.got) != 5 {
		t.Fatalf("persisted: %d", len(h.sink.got))
	}
	list, _ := h.store.List(ctx, false, 0)
	if len(list) != 0 {
		t.Fatalf("alerts stored: %d", len(list))
	}
}

func TestLowReadingStoresAndNotifies(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	out, _ := h.eng.ProcessReading(ctx, reading("field-3", "soil_moisture", 15, base))
	if out.Alert == nil {
		t.Fatalf("expected alert")
	}
	if out.Alert.Title != "Low soil_moisture" || out.Alert.Priority != model.PriorityHigh || out.Alert.Source != "field-3" {
		t.Fatalf("alert: %+v", out.Alert)
	}
	if out.Alert.Message != "Sensor field-3: soil_moisture is 15 (below minimum 20)" {
		t.Fatalf("message: %q", out.Alert.Message)
	}
	if !out.Notified || len(h.pub.got) != 1 {
		t.Fatalf("expected one notification, got %d", len(h.pub.got))
	}
	stored, err := h.store.Get(ctx, out.Alert.ID)
	if err != nil || stored.Read {
		t.Fatalf("stored alert: %+v %v", stored, err)
	}
}

func TestNotificationCooldownStillStoresAlerts(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.Cooldown = time.Minute
	h := newHarness(t, cfg)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		h.eng.ProcessReading(ctx, reading("s1", "temperature", 40+float64(i), base.Add(time.Duration(i)*time.Second)))
	}
	list, _ := h.store.List(ctx, false, 0)
	if len(list) != 3 {
		t.Fatalf("stored alerts: %d", len(list))
	}
	if len(h.pub.got) != 1 {
		t.Fatalf("notifications: %d", len(h.pub.got))
	}
}

func TestRollingStats(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	values := []float64{10, 20, 30}
	for i, v := range values {
		h.eng.ProcessReading(ctx, reading("s1", "humidity", 40+v, base.Add(time.Duration(i)*20*time.Second)))
	}
	out, _ := h.eng.ProcessReading(ctx, reading("s1", "humidity", 100, base.Add(85*time.Second)))
	if len(out.Stats) != 2 {
		t.Fatalf("stats: %+v", out.Stats)
	}
	minute, hour := out.Stats[0], out.Stats[1]
	if minute.WindowSec != 60 || minute.Count != 2 || minute.Min != 70 || minute.Max != 100 || minute.Mean != 85 {
		t.Fatalf("minute window: %+v", minute)
	}
	if hour.Count != 4 || hour.Mean != 70 || hour.Last != 100 {
		t.Fatalf("hour window: %+v", hour)
	}
	if math.Abs(hour.Variance-350) > 1e-9 {
		t.Fatalf("variance: %v", hour.Variance)
	}
	got, _, ok := h.eng.Metrics().Get("s1")
	if !ok || len(got) != 2 {
		t.Fatalf("metrics store: %+v", got)
	}
}

func TestDuplicateSuppression(t *testing.T) {
	cfg := testConfig()
	cfg.Monitor.DedupeWindow = time.Minute
	h := newHarness(t, cfg)
	ctx := context.Background()
	r := reading("s1", "ph_level", 5.0, base)
	if _, ok := h.eng.ProcessReading(ctx, r); !ok {
		t.Fatalf("first copy dropped")
	}
	if _, ok := h.eng.ProcessReading(ctx, r); ok {
		t.Fatalf("second copy should be dropped")
	}
	list, _ := h.store.List(ctx, false, 0)
	if len(list) != 1 {
		t.Fatalf("alerts: %d", len(list))
	}
}

func TestResetClearsStatsAndDuplicates(t *testing.T) {
	cfg := testConfig()
	cfg.Monitor.DedupeWindow = time.Minute
	h := newHarness(t, cfg)
	ctx := context.Background()
	r := reading("s1", "temperature", 20, base)
	if _, ok := h.eng.ProcessReading(ctx, r); !ok {
		t.Fatalf("first copy dropped")
	}
	h.eng.Reset()
	if got := h.eng.Metrics().Sensors(); len(got) != 0 {
		t.Fatalf("stats survived reset: %v", got)
	}
	out, ok := h.eng.ProcessReading(ctx, r)
	if !ok {
		t.Fatalf("reading after reset treated as duplicate")
	}
	if out.Stats[0].Count != 1 {
		t.Fatalf("window count after reset: %d", out.Stats[0].Count)
	}
}

func TestResetDuringProcessing(t *testing.T) {
	cfg := testConfig()
	cfg.Monitor.DedupeWindow = time.Minute
	h := newHarness(t, cfg)
	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.eng.ProcessReading(ctx, reading("s1", "temperature", float64(i%30), base.Add(time.Duration(i)*time.Second)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			h.eng.Reset()
		}
	}()
	wg.Wait()
}

func TestTimestampClamp(t *testing.T) {
	now := base
	if got := clampTimestamp(time.Time{}, now, 0, 0); !got.Equal(now) {
		t.Fatalf("zero timestamp: %v", got)
	}
	if got := clampTimestamp(now.Add(-2*time.Hour), now, time.Hour, 0); !got.Equal(now) {
		t.Fatalf("old timestamp: %v", got)
	}
	if got := clampTimestamp(now.Add(time.Minute), now, 0, time.Second); !got.Equal(now) {
		t.Fatalf("future timestamp: %v", got)
	}
	past := now.Add(-time.Minute)
	if got := clampTimestamp(past, now, time.Hour, time.Second); !got.Equal(past) {
		t.Fatalf("valid timestamp changed: %v", got)
	}
}

func TestSinkFailureDoesNotStopMonitoring(t *testing.T) {
	h := newHarness(t, testConfig())
	h.sink.fail = true
	out, _ := h.eng.ProcessReading(context.Background(), reading("s1", "temperature", 2, base))
	if out.Alert == nil {
		t.Fatalf("alert expected despite sink failure")
	}
}

func TestUpdateConfigSwapsThresholds(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg)
	next := testConfig()
	next.Monitor.Thresholds = map[string]config.Range{"temperature": {Min: 0, Max: 50}}
	h.eng.UpdateConfig(next)
	out, _ := h.eng.ProcessReading(context.Background(), reading("s1", "temperature", 40, base))
	if out.Alert != nil {
		t.Fatalf("40 is within the reloaded range")
	}
}

func TestStartDrainsChannel(t *testing.T) {
	h := newHarness(t, testConfig())
	in := make(chan model.SensorReading, 4)
	in <- reading("s1", "humidity", 95, base)
	in <- reading("s2", "humidity", 50, base)
	close(in)
	<-h.eng.Start(context.Background(), in)
	if len(h.sink.got) != 2 {
		t.Fatalf("processed: %d", len(h.sink.got))
	}
	list, _ := h.store.List(context.Background(), false, 0)
	if len(list) != 1 || list[0].Title != "High humidity" {
		t.Fatalf("alerts: %+v", list)
	}
}
