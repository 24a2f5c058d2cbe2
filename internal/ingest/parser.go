package ingest

import (
	"encoding/csv"
	"regexp"
	"strings"

	"farmwatch/internal/normalize"
)

var (
	reTimestamp = regexp.MustCompile(`^\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[ T][0-9:.+\-Z]+)`)
	reKV        = regexp.MustCompile(`([a-zA-Z_]+)=([^\s,;]+)`)
)

// Parser accepts JSON objects, CSV rows (with or without a header line) and
// free text carrying key=value pairs. It keeps CSV header state, so use one
// Parser per stream.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

// ParseLine returns nil fields and nil error for blank lines and CSV headers.
func (p *Parser) ParseLine(line string) (*normalize.ReadingFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if strings.HasPrefix(trim, "{") {
		if fields, err := ParseJSONBytes([]byte(trim)); err == nil {
			fields.Raw = line
			return fields, nil
		}
	}
	if strings.Contains(trim, ",") && !strings.Contains(trim, "=") {
		fields, err := p.csv.Parse(trim)
		if err == nil {
			if fields == nil {
				return nil, nil
			}
			fields.Raw = line
			return fields, nil
		}
	}
	fields := parsePlain(trim)
	fields.Raw = line
	return fields, nil
}

// parsePlain reads "2024-06-15 08:00:00 field-3 metric=soil value=17" or
// "field-3 soil=17 temp=21". A bare leading token names the sensor.
func parsePlain(line string) *normalize.ReadingFields {
	ts, rest := extractTimestamp(line)
	kv := map[string]string{}
	for _, match := range reKV.FindAllStringSubmatch(rest, -1) {
		kv[strings.ToLower(match[1])] = match[2]
	}
	fields := fieldsFrom(kv)
	if fields.Timestamp == "" {
		fields.Timestamp = ts
	}
	if fields.SensorID == "" {
		if tokens := strings.Fields(rest); len(tokens) > 0 && !strings.Contains(tokens[0], "=") {
			fields.SensorID = tokens[0]
		}
	}
	return fields
}

func extractTimestamp(line string) (string, string) {
	m := reTimestamp.FindStringSubmatchIndex(line)
	if len(m) >= 4 {
		return strings.TrimSpace(line[m[2]:m[3]]), strings.TrimSpace(line[m[3]:])
	}
	return "", line
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

type CSVParser struct {
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse maps a row by header when one was seen, otherwise by position:
// timestamp, sensor_id, metric, value, unit.
func (p *CSVParser) Parse(line string) (*normalize.ReadingFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	kv := map[string]string{}
	if p.header != nil {
		for i, name := range p.header {
			if i >= len(record) {
				break
			}
			kv[name] = strings.TrimSpace(record[i])
		}
	} else {
		for i, name := range []string{"timestamp", "sensor_id", "metric", "value", "unit"} {
			if i < len(record) {
				kv[name] = strings.TrimSpace(record[i])
			}
		}
	}
	return fieldsFrom(kv), nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "timestamp", "time", "ts", "sensor", "sensor_id", "metric", "sensor_type", "value", "unit":
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}
