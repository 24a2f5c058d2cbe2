package storage

import "time"

type dialect struct {
	name       string
	driverName string
	defaultDSN string
	schema     []string
	// numbered dialects use $1, $2 placeholders instead of ?.
	numbered     bool
	maxOpenConns int
	timeArg      func(time.Time) any
	dateArg      func(time.Time) any
	monthTrunc   func(col string) string
}
