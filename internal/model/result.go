package model

// Status tells a caller why a Result holds what it holds.
type Status string

const (
	StatusOK          Status = "ok"
	StatusEmpty       Status = "empty"
	StatusUnavailable Status = "unavailable"
)

// Result carries a value read from an external source together with whether
// the source answered. An unavailable Result still holds a usable default so
// dashboards can render something, but callers can tell it apart from a
// source that answered with no rows.
type Result[T any] struct {
	Status Status `json:"status"`
	Value  T      `json:"value"`
	Err    error  `json:"-"`
}

func OK[T any](v T) Result[T] {
	return Result[T]{Status: StatusOK, Value: v}
}

func Empty[T any](v T) Result[T] {
	return Result[T]{Status: StatusEmpty, Value: v}
}

func Unavailable[T any](fallback T, err error) Result[T] {
	return Result[T]{Status: StatusUnavailable, Value: fallback, Err: err}
}

// Rows picks OK or Empty depending on whether any rows were read.
func Rows[T any](rows []T) Result[[]T] {
	if len(rows) == 0 {
		return Empty(rows)
	}
	return OK(rows)
}

func (r Result[T]) Available() bool {
	return r.Status != StatusUnavailable
}
