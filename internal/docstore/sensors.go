package docstore

import (
	"context"
	"slices"

	"github.com/redis/go-redis/v9"

	"farmwatch/internal/model"
)

// SaveReadings appends each reading to its sensor's stream in one pipeline.
func (s *Store) SaveReadings(ctx context.Context, readings []model.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, r := range readings {
			args, err := s.addArgs(s.key("sensors", r.SensorID), r)
			if err != nil {
				return err
			}
			p.XAdd(ctx, args)
			p.SAdd(ctx, s.key("sensors", "index"), r.SensorID)
		}
		return nil
	})
	return err
}

// RecentReadings returns the last n readings of one sensor, newest first.
func (s *Store) RecentReadings(ctx context.Context, sensorID string, n int) model.Result[[]model.SensorReading] {
	if n <= 0 {
		n = 100
	}
	msgs, err := s.rdb.XRevRangeN(ctx, s.key("sensors", sensorID), "+", "-", int64(n)).Result()
	if err != nil {
		return unavailable[model.SensorReading](s, "recent_readings", err)
	}
	out, err := decodeAll[model.SensorReading](msgs)
	if err != nil {
		return unavailable[model.SensorReading](s, "recent_readings", err)
	}
	return model.Rows(out)
}

// Sensors lists every sensor id that has reported, sorted.
func (s *Store) Sensors(ctx context.Context) model.Result[[]string] {
	ids, err := s.rdb.SMembers(ctx, s.key("sensors", "index")).Result()
	if err != nil {
		return unavailable[string](s, "sensors", err)
	}
	slices.Sort(ids)
	return model.Rows(ids)
}

func unavailable[T any](s *Store, query string, err error) model.Result[[]T] {
	s.logger.Error("query failed", "query", query, "error", err)
	return model.Unavailable([]T{}, err)
}
