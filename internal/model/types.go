package model

import (
	"errors"
	"time"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority maps free text onto a Priority. Unknown or empty values
// become PriorityMedium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(s)
	}
	return PriorityMedium
}

// Urgent reports whether the priority warrants a push notification.
func (p Priority) Urgent() bool {
	return p == PriorityHigh || p == PriorityCritical
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type SensorReading struct {
	ID        string    `json:"id,omitempty"`
	SensorID  string    `json:"sensor_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Location  *Location `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

type Alert struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Priority       Priority   `json:"priority"`
	Source         string     `json:"source,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Read           bool       `json:"read"`
	Resolved       bool       `json:"resolved"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Observation is one historical harvest row used to train the yield estimator.
// Nil pointers are missing values.
type Observation struct {
	Period    time.Time `json:"period"`
	Target    *float64  `json:"target,omitempty"`
	Crop      string    `json:"crop_type"`
	Weather   string    `json:"weather_condition"`
	SoilScore *float64  `json:"soil_quality_score,omitempty"`
}

var ErrInvalidObservation = errors.New("observation needs a period and a crop_type")

// Validate reports whether o can be stored as history.
func (o Observation) Validate() error {
	if o.Period.IsZero() || o.Crop == "" {
		return ErrInvalidObservation
	}
	return nil
}

type ForecastPoint struct {
	Period     time.Time `json:"period"`
	Predicted  float64   `json:"predicted"`
	Confidence float64   `json:"confidence"`
}

type SensorStats struct {
	WindowSec int     `json:"window_sec"`
	Metric    string  `json:"metric"`
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Variance  float64 `json:"variance"`
	Last      float64 `json:"last"`
}
