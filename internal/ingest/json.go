package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"farmwatch/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.ReadingFields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

// ParseJSONMap flattens one JSON object. A nested "location" object
// contributes lat and lng.
func ParseJSONMap(obj map[string]any) *normalize.ReadingFields {
	extras := make(map[string]string, len(obj))
	for key, val := range obj {
		key = strings.ToLower(key)
		if loc, ok := val.(map[string]any); ok && key == "location" {
			for k, v := range loc {
				extras[strings.ToLower(k)] = fmt.Sprint(v)
			}
			continue
		}
		if val == nil {
			continue
		}
		extras[key] = fmt.Sprint(val)
	}
	return fieldsFrom(extras)
}

func fieldsFrom(kv map[string]string) *normalize.ReadingFields {
	return &normalize.ReadingFields{
		Timestamp: firstNonEmpty(kv, "timestamp", "time", "ts"),
		SensorID:  firstNonEmpty(kv, "sensor_id", "sensor", "sensorid", "device", "node"),
		Metric:    firstNonEmpty(kv, "metric", "sensor_type", "type"),
		Value:     firstNonEmpty(kv, "value", "reading", "val"),
		Unit:      firstNonEmpty(kv, "unit", "units"),
		Lat:       firstNonEmpty(kv, "lat", "latitude"),
		Lng:       firstNonEmpty(kv, "lng", "lon", "longitude"),
		Extras:    kv,
	}
}
