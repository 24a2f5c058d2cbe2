package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"farmwatch/internal/model"
)

// UpdateEquipment replaces the current status of one machine and appends it
// to that machine's history.
func (s *Store) UpdateEquipment(ctx context.Context, st model.EquipmentStatus) error {
	st.EquipmentID = strings.TrimSpace(st.EquipmentID)
	if st.EquipmentID == "" {
		return errors.New("docstore: equipment id required")
	}
	if st.Timestamp.IsZero() {
		st.Timestamp = s.now()
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	args, err := s.addArgs(s.key("equipment", st.EquipmentID, "history"), st)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key("equipment", st.EquipmentID), payloadField, string(payload))
		p.XAdd(ctx, args)
		p.SAdd(ctx, s.key("equipment", "index"), st.EquipmentID)
		return nil
	})
	return err
}

// Equipment returns the current status of every known machine, by id.
func (s *Store) Equipment(ctx context.Context) model.Result[[]model.EquipmentStatus] {
	ids, err := s.rdb.SMembers(ctx, s.key("equipment", "index")).Result()
	if err != nil {
		return unavailable[model.EquipmentStatus](s, "equipment", err)
	}
	slices.Sort(ids)
	cmds := make([]*redis.StringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGet(ctx, s.key("equipment", id), payloadField)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return unavailable[model.EquipmentStatus](s, "equipment", err)
	}
	out := make([]model.EquipmentStatus, 0, len(ids))
	for _, cmd := range cmds {
		raw, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return unavailable[model.EquipmentStatus](s, "equipment", err)
		}
		var st model.EquipmentStatus
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return unavailable[model.EquipmentStatus](s, "equipment", err)
		}
		out = append(out, st)
	}
	return model.Rows(out)
}

func (s *Store) EquipmentHistory(ctx context.Context, id string, n int) model.Result[[]model.EquipmentStatus] {
	if n <= 0 {
		n = 50
	}
	msgs, err := s.rdb.XRevRangeN(ctx, s.key("equipment", id, "history"), "+", "-", int64(n)).Result()
	if err != nil {
		return unavailable[model.EquipmentStatus](s, "equipment_history", err)
	}
	out, err := decodeAll[model.EquipmentStatus](msgs)
	if err != nil {
		return unavailable[model.EquipmentStatus](s, "equipment_history", err)
	}
	return model.Rows(out)
}

// LogStation appends one weather-station observation.
func (s *Store) LogStation(ctx context.Context, l model.StationLog) error {
	l.StationID = strings.TrimSpace(l.StationID)
	if l.StationID == "" {
		return errors.New("docstore: station id required")
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = s.now()
	}
	args, err := s.addArgs(s.key("stations", l.StationID), l)
	if err != nil {
		return err
	}
	return s.rdb.XAdd(ctx, args).Err()
}

// StationHistory returns a station's logs written within the last window,
// oldest first. Stream ids carry their insertion time in milliseconds, so
// the cutoff is a range start rather than a scan.
func (s *Store) StationHistory(ctx context.Context, stationID string, window time.Duration) model.Result[[]model.StationLog] {
	if window <= 0 {
		window = 24 * time.Hour
	}
	start := strconv.FormatInt(s.now().Add(-window).UnixMilli(), 10)
	msgs, err := s.rdb.XRange(ctx, s.key("stations", stationID), start, "+").Result()
	if err != nil {
		return unavailable[model.StationLog](s, "station_history", err)
	}
	out, err := decodeAll[model.StationLog](msgs)
	if err != nil {
		return unavailable[model.StationLog](s, "station_history", err)
	}
	return model.Rows(out)
}
