package forecast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmwatch/internal/forest"
	"farmwatch/internal/logging"
	"farmwatch/internal/model"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func fp(v float64) *float64 { return &v }

func history(n int) []model.Observation {
	crops := []string{"corn", "wheat", "soybeans"}
	weather := []string{"sunny", "rainy", "cloudy", "partly_cloudy"}
	out := make([]model.Observation, 0, n)
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		out = append(out, model.Observation{
			Period:    start.AddDate(0, i, 0),
			Target:    fp(100 + float64(i%12)*10),
			Crop:      crops[i%len(crops)],
			Weather:   weather[i%len(weather)],
			SoilScore: fp(0.5 + float64(i%5)/10),
		})
	}
	return out
}

func newTestEstimator() *Estimator {
	return New(logging.Discard(), WithClock(func() time.Time { return fixedNow }), WithParams(forest.Params{Trees: 10, Seed: 42, Bootstrap: true}))
}

func TestFitRejectsSmallBatches(t *testing.T) {
	e := newTestEstimator()
	for _, n := range []int{0, 1, 5, 9} {
		assert.False(t, e.Fit(history(n)), "rows=%d", n)
		assert.False(t, e.Trained())
	}
	assert.Nil(t, e.Predict(3))
}

func TestFitRejectsAllMissingSoil(t *testing.T) {
	e := newTestEstimator()
	batch := history(12)
	for i := range batch {
		batch[i].SoilScore = nil
	}
	assert.False(t, e.Fit(batch))
	assert.False(t, e.Trained())
}

func TestPredictAfterFit(t *testing.T) {
	e := newTestEstimator()
	require.True(t, e.Fit(history(24)))
	require.True(t, e.Trained())

	points := e.Predict(6)
	require.Len(t, points, 6)
	for k, p := range points {
		assert.GreaterOrEqual(t, p.Predicted, 0.0)
		assert.Equal(t, 0.8, p.Confidence)
		assert.Equal(t, fixedNow.Add(time.Duration(k+1)*30*24*time.Hour), p.Period)
	}
	// Constant inputs give a constant forecast.
	for _, p := range points[1:] {
		assert.Equal(t, points[0].Predicted, p.Predicted)
	}
	assert.Empty(t, e.Predict(0))
}

func TestPredictFloorsAtZero(t *testing.T) {
	e := newTestEstimator()
	batch := history(12)
	for i := range batch {
		batch[i].Target = fp(-50)
	}
	require.True(t, e.Fit(batch))
	for _, p := range e.Predict(3) {
		assert.Equal(t, 0.0, p.Predicted)
	}
}

func TestPredictScenario(t *testing.T) {
	e := newTestEstimator()
	_, err := e.PredictScenario(3, Scenario{Crop: "corn"})
	assert.ErrorIs(t, err, ErrNotTrained)

	require.True(t, e.Fit(history(24)))
	assert.Equal(t, []string{"corn", "wheat", "soybeans"}, e.Status().Crops)

	points, err := e.PredictScenario(3, Scenario{Crop: "wheat", Weather: "sunny", Soil: fp(0.9)})
	require.NoError(t, err)
	require.Len(t, points, 3)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Predicted, 0.0)
		assert.Equal(t, Confidence, p.Confidence)
	}

	_, err = e.PredictScenario(3, Scenario{Crop: "barley"})
	assert.ErrorIs(t, err, ErrUnknownCrop)
}

func TestFailedFitKeepsPreviousModel(t *testing.T) {
	e := newTestEstimator()
	require.True(t, e.Fit(history(12)))
	before := e.Status()
	assert.False(t, e.Fit(history(3)))
	assert.True(t, e.Trained())
	assert.Equal(t, before.Rows, e.Status().Rows)
}

func TestConcurrentFitAndPredict(t *testing.T) {
	e := newTestEstimator()
	require.True(t, e.Fit(history(12)))
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.Fit(history(12))
		}()
		go func() {
			defer wg.Done()
			assert.Len(t, e.Predict(2), 2)
		}()
	}
	wg.Wait()
}

type stubHistory struct {
	res model.Result[[]model.Observation]
}

func (s stubHistory) HistoricalYields(context.Context) model.Result[[]model.Observation] {
	return s.res
}

func TestTrainFrom(t *testing.T) {
	e := newTestEstimator()
	ok, err := e.TrainFrom(context.Background(), stubHistory{res: model.OK(history(12))})
	require.NoError(t, err)
	assert.True(t, ok)

	down := errors.New("db down")
	ok, err = e.TrainFrom(context.Background(), stubHistory{res: model.Unavailable[[]model.Observation](nil, down)})
	assert.ErrorIs(t, err, down)
	assert.False(t, ok)

	ok, err = e.TrainFrom(context.Background(), stubHistory{res: model.Empty[[]model.Observation](nil)})
	require.NoError(t, err)
	assert.False(t, ok)
}
