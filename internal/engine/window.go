package engine

import (
	"math"
	"time"

	"farmwatch/internal/model"
)

type sample struct {
	at    time.Time
	value float64
}

// WindowState holds the samples of one metric seen within a trailing
// duration. Samples are expected in roughly increasing time order; late ones
// are kept until they fall behind the cutoff.
type WindowState struct {
	duration time.Duration
	samples  []sample
	head     int
}

func NewWindowState(duration time.Duration) *WindowState {
	return &WindowState{
		duration: duration,
		samples:  make([]sample, 0, 64),
	}
}

func (w *WindowState) Add(at time.Time, value float64) {
	w.samples = append(w.samples, sample{at: at, value: value})
}

func (w *WindowState) Evict(cutoff time.Time) {
	for w.head < len(w.samples) && w.samples[w.head].at.Before(cutoff) {
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.samples) {
		w.samples = append([]sample{}, w.samples[w.head:]...)
		w.head = 0
	}
}

// Stats summarises the live samples with a single Welford pass. Variance is
// the population variance.
func (w *WindowState) Stats(metric string) model.SensorStats {
	st := model.SensorStats{
		WindowSec: int(w.duration.Seconds()),
		Metric:    metric,
	}
	live := w.samples[w.head:]
	if len(live) == 0 {
		return st
	}
	var mean, m2 float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, s := range live {
		n := float64(i + 1)
		d := s.value - mean
		mean += d / n
		m2 += d * (s.value - mean)
		lo = math.Min(lo, s.value)
		hi = math.Max(hi, s.value)
	}
	st.Count = len(live)
	st.Mean = mean
	st.Min = lo
	st.Max = hi
	st.Variance = m2 / float64(len(live))
	st.Last = live[len(live)-1].value
	return st
}
