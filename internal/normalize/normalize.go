// Package normalize turns loosely keyed sensor fields from any ingest source
// into SensorReadings with canonical metric names and UTC timestamps.
package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"farmwatch/internal/config"
	"farmwatch/internal/model"
)

var ErrNoValue = errors.New("reading has no numeric value")

type ReadingFields struct {
	Timestamp string
	SensorID  string
	Metric    string
	Value     string
	Unit      string
	Lat       string
	Lng       string
	Extras    map[string]string
	Raw       string
}

var metricAliases = map[string]string{
	"soil_moisture": "soil_moisture",
	"soilmoisture":  "soil_moisture",
	"moisture":      "soil_moisture",
	"soil":          "soil_moisture",
	"temperature":   "temperature",
	"temp":          "temperature",
	"humidity":      "humidity",
	"hum":           "humidity",
	"rh":            "humidity",
	"ph_level":      "ph_level",
	"ph":            "ph_level",
	"phlevel":       "ph_level",
}

// CanonicalMetric maps a metric name or one of its aliases to the name used
// by thresholds. Unknown names are lowercased and returned as is.
func CanonicalMetric(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	n = strings.ReplaceAll(n, " ", "_")
	if c, ok := metricAliases[n]; ok {
		return c
	}
	return n
}

// Normalize builds readings from fields. A record naming a metric yields one
// reading. A record without one yields a reading per known metric column,
// so {"sensor_id":"s1","temp":21,"soil":40} gives two.
func Normalize(fields ReadingFields, cfg *config.Config) ([]model.SensorReading, error) {
	sensor := strings.TrimSpace(fields.SensorID)
	if sensor == "" {
		sensor = cfg.Ingest.Parser.DefaultSensorID
	}

	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		}
	}
	var ts time.Time
	if fields.Timestamp != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, loc)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = parsed.UTC()
	}

	var location *model.Location
	if fields.Lat != "" && fields.Lng != "" {
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(fields.Lat), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(fields.Lng), 64)
		if errLat == nil && errLng == nil {
			location = &model.Location{Lat: lat, Lng: lng}
		}
	}

	base := model.SensorReading{
		SensorID:  sensor,
		Unit:      strings.TrimSpace(fields.Unit),
		Location:  location,
		Timestamp: ts,
	}

	if strings.TrimSpace(fields.Metric) != "" {
		v, err := parseValue(fields.Value)
		if err != nil {
			return nil, err
		}
		r := base
		r.Metric = CanonicalMetric(fields.Metric)
		r.Value = v
		return []model.SensorReading{r}, nil
	}

	keys := make([]string, 0, len(fields.Extras))
	for k := range fields.Extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []model.SensorReading
	seen := make(map[string]bool)
	for _, k := range keys {
		metric, ok := metricAliases[strings.ToLower(k)]
		if !ok || seen[metric] {
			continue
		}
		v, err := parseValue(fields.Extras[k])
		if err != nil {
			continue
		}
		seen[metric] = true
		r := base
		r.Metric = metric
		r.Value = v
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, ErrNoValue
	}
	return out, nil
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrNoValue
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse value %q: %w", s, err)
	}
	return v, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

// parseUnix treats 13 or more digits as milliseconds.
func parseUnix(value string) (time.Time, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if len(value) >= 13 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}
