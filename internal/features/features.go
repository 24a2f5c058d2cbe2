// Package features turns historical harvest observations into the fixed-width
// numeric vectors consumed by the yield regressor.
package features

import (
	"errors"
	"math"
	"strings"

	"farmwatch/internal/model"
)

// Arity is the number of columns in every Vector.
const Arity = 4

const (
	ColMonth = iota
	ColCrop
	ColWeather
	ColSoil
)

// DefaultWeatherScore is used for conditions missing from the weather table.
const DefaultWeatherScore = 0.5

var ErrNoSoilScores = errors.New("features: no soil quality scores in batch")

var weatherScores = map[string]float64{
	"sunny":         0.9,
	"partly_cloudy": 0.7,
	"cloudy":        0.5,
	"rainy":         0.3,
	"stormy":        0.1,
	"drought":       0.1,
}

type Vector [Arity]float64

type Row struct {
	X Vector
	Y float64
}

// Encoding maps crop categories to the index they were given in one batch.
// Indices are positional by first appearance, so two batches may encode the
// same crop differently; a model must only be queried with the encoding of
// the batch it was trained on.
type Encoding map[string]int

func (e Encoding) Index(crop string) (int, bool) {
	idx, ok := e[crop]
	return idx, ok
}

// WeatherScore maps a weather condition onto its fixed score.
func WeatherScore(condition string) float64 {
	if s, ok := weatherScores[strings.ToLower(strings.TrimSpace(condition))]; ok {
		return s
	}
	return DefaultWeatherScore
}

// Prepare encodes a batch. An empty batch yields no rows and no error. When
// some soil scores are missing they are replaced by the mean of the present
// ones; when all are missing Prepare fails with ErrNoSoilScores.
func Prepare(batch []model.Observation) ([]Row, Encoding, error) {
	enc := Encoding{}
	if len(batch) == 0 {
		return nil, enc, nil
	}

	var soilSum float64
	var soilN int
	for _, obs := range batch {
		if obs.SoilScore != nil && !math.IsNaN(*obs.SoilScore) {
			soilSum += *obs.SoilScore
			soilN++
		}
	}
	if soilN == 0 {
		return nil, enc, ErrNoSoilScores
	}
	soilMean := soilSum / float64(soilN)

	rows := make([]Row, 0, len(batch))
	for _, obs := range batch {
		idx, ok := enc[obs.Crop]
		if !ok {
			idx = len(enc)
			enc[obs.Crop] = idx
		}
		soil := soilMean
		if obs.SoilScore != nil && !math.IsNaN(*obs.SoilScore) {
			soil = *obs.SoilScore
		}
		var month float64
		if !obs.Period.IsZero() {
			month = float64(obs.Period.Month())
		}
		var y float64
		if obs.Target != nil && !math.IsNaN(*obs.Target) {
			y = *obs.Target
		}
		rows = append(rows, Row{
			X: sanitize(Vector{month, float64(idx), WeatherScore(obs.Weather), soil}),
			Y: y,
		})
	}
	return rows, enc, nil
}

func sanitize(v Vector) Vector {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v[i] = 0
		}
	}
	return v
}
