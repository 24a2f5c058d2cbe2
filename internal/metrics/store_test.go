package metrics

import (
	"testing"
	"time"

	"farmwatch/internal/model"
)

func TestUpdateReplacesPerMetricWindow(t *testing.T) {
	s := NewStore(10)
	s.Update("s1", []model.SensorStats{
		{Metric: "temperature", WindowSec: 3600, Count: 1, Mean: 20},
		{Metric: "humidity", WindowSec: 300, Count: 1, Mean: 50},
		{Metric: "temperature", WindowSec: 300, Count: 1, Mean: 20},
	})
	s.Update("s1", []model.SensorStats{{Metric: "temperature", WindowSec: 300, Count: 2, Mean: 21}})

	got, _, ok := s.Get("s1")
	if !ok || len(got) != 3 {
		t.Fatalf("stats: %+v", got)
	}
	if got[0].Metric != "humidity" || got[1].WindowSec != 300 || got[2].WindowSec != 3600 {
		t.Fatalf("order: %+v", got)
	}
	if got[1].Count != 2 || got[1].Mean != 21 {
		t.Fatalf("replaced entry: %+v", got[1])
	}
	if _, _, ok := s.Get("nope"); ok {
		t.Fatalf("unknown sensor should miss")
	}
	s.Update("", []model.SensorStats{{Metric: "x"}})
	if len(s.Sensors()) != 1 {
		t.Fatalf("empty sensor id must be ignored")
	}
}

func TestEvictsLeastRecentlyUpdated(t *testing.T) {
	s := NewStore(2)
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { now = now.Add(time.Second); return now }

	s.Update("a", []model.SensorStats{{Metric: "temperature"}})
	s.Update("b", []model.SensorStats{{Metric: "temperature"}})
	s.Update("a", []model.SensorStats{{Metric: "humidity"}})
	s.Update("c", []model.SensorStats{{Metric: "temperature"}})

	ids := s.Sensors()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Fatalf("sensors after eviction: %v", ids)
	}
	s.Clear()
	if len(s.GetAll()) != 0 {
		t.Fatalf("clear left data behind")
	}
}
