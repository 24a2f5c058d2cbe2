package forecast

import (
	"context"
	"fmt"

	"farmwatch/internal/model"
)

// HistorySource supplies historical harvest rows, typically the relational
// store.
type HistorySource interface {
	HistoricalYields(ctx context.Context) model.Result[[]model.Observation]
}

// TrainFrom loads history and fits on it. It returns an error only when the
// source is unavailable; a batch too small to train on is reported through
// the boolean.
func (e *Estimator) TrainFrom(ctx context.Context, src HistorySource) (bool, error) {
	res := src.HistoricalYields(ctx)
	if !res.Available() {
		return false, fmt.Errorf("load historical yields: %w", res.Err)
	}
	return e.Fit(res.Value), nil
}
