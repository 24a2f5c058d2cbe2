// Package metrics keeps the latest rolling statistics per sensor for the API.
package metrics

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"farmwatch/internal/model"
)

type Store struct {
	mu        sync.RWMutex
	bySensor  map[string]map[string]model.SensorStats
	updatedAt map[string]time.Time
	limit     int
	now       func() time.Time
}

// NewStore keeps at most limit sensors, evicting the least recently updated.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		bySensor:  make(map[string]map[string]model.SensorStats),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func statsKey(s model.SensorStats) string {
	return s.Metric + "|" + strconv.Itoa(s.WindowSec)
}

func (s *Store) Update(sensorID string, stats []model.SensorStats) {
	if sensorID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.bySensor[sensorID]
	if !ok {
		m = make(map[string]model.SensorStats)
		s.bySensor[sensorID] = m
	}
	for _, st := range stats {
		m[statsKey(st)] = st
	}
	s.updatedAt[sensorID] = s.now()
	if len(s.bySensor) > s.limit {
		s.evictOldest()
	}
}

// Get returns the sensor's stats ordered by metric then window.
func (s *Store) Get(sensorID string) ([]model.SensorStats, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.bySensor[sensorID]
	if !ok {
		return nil, time.Time{}, false
	}
	return sorted(m), s.updatedAt[sensorID], true
}

func (s *Store) GetAll() map[string][]model.SensorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]model.SensorStats, len(s.bySensor))
	for id, m := range s.bySensor {
		out[id] = sorted(m)
	}
	return out
}

// Sensors lists known sensor ids in order.
func (s *Store) Sensors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.bySensor))
	for id := range s.bySensor {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sorted(m map[string]model.SensorStats) []model.SensorStats {
	out := make([]model.SensorStats, 0, len(m))
	for _, st := range m {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Metric != out[j].Metric {
			return out[i].Metric < out[j].Metric
		}
		return out[i].WindowSec < out[j].WindowSec
	})
	return out
}

func (s *Store) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, ts := range s.updatedAt {
		if oldestID == "" || ts.Before(oldest) {
			oldestID = id
			oldest = ts
		}
	}
	if oldestID != "" {
		delete(s.bySensor, oldestID)
		delete(s.updatedAt, oldestID)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySensor = make(map[string]map[string]model.SensorStats)
	s.updatedAt = make(map[string]time.Time)
}
