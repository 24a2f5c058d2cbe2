// Package ingest reads sensor readings from REST, Kafka, TCP and tailed
// files and pushes them onto the engine channel.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"farmwatch/internal/config"
	"farmwatch/internal/model"
	"farmwatch/internal/normalize"
)

func SendNonBlocking(ctx context.Context, out chan<- model.SensorReading, r model.SensorReading, logger *slog.Logger) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("reading channel full, dropping reading", "sensor_id", r.SensorID, "metric", r.Metric)
		}
		return false
	}
}

// Emit normalizes fields, stamps each reading with an id and source, and
// sends them on. It returns how many readings were queued.
func Emit(ctx context.Context, fields normalize.ReadingFields, cfg *config.Config, source string, out chan<- model.SensorReading, logger *slog.Logger) (int, error) {
	readings, err := normalize.Normalize(fields, cfg)
	if err != nil {
		if logger != nil {
			logger.Warn(source+" normalize error", "err", err)
		}
		return 0, err
	}
	sent := 0
	for _, r := range readings {
		r.ID = uuid.NewString()
		r.Source = source
		if SendNonBlocking(ctx, out, r, logger) {
			sent++
		}
	}
	return sent, nil
}

// lineCounts tallies what a streaming source did with its raw lines.
// Accepted counts queued readings, so one wide line can add several.
type lineCounts struct {
	Accepted int
	Rejected int
}

// emitLine parses and emits one line. fallbackSensor fills a missing
// sensor id, as the Kafka message key does.
func (c *lineCounts) emitLine(ctx context.Context, parser *Parser, line, fallbackSensor string, cfg *config.Config, source string, out chan<- model.SensorReading, logger *slog.Logger) {
	fields, err := parser.ParseLine(line)
	if err != nil || fields == nil {
		return
	}
	if fields.SensorID == "" && fallbackSensor != "" {
		fields.SensorID = fallbackSensor
	}
	n, err := Emit(ctx, *fields, cfg, source, out, logger)
	if err != nil {
		c.Rejected++
		return
	}
	c.Accepted += n
}

func (c lineCounts) log(logger *slog.Logger, msg string, args ...any) {
	if logger == nil {
		return
	}
	args = append(args, "accepted", c.Accepted, "rejected", c.Rejected)
	if c.Rejected > 0 {
		logger.Warn(msg, args...)
		return
	}
	logger.Info(msg, args...)
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
