package storage

import (
	"context"
	"database/sql"

	"farmwatch/internal/model"
)

// SaveReadings writes a batch in one transaction.
func (s *Store) SaveReadings(ctx context.Context, readings []model.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, s.q(
		`INSERT INTO sensor_readings (reading_id, sensor_id, metric, value, unit, latitude, longitude, ts, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range readings {
		var lat, lng sql.NullFloat64
		if r.Location != nil {
			lat = sql.NullFloat64{Float64: r.Location.Lat, Valid: true}
			lng = sql.NullFloat64{Float64: r.Location.Lng, Valid: true}
		}
		ts := r.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		if _, err := stmt.ExecContext(ctx,
			nullString(r.ID),
			r.SensorID,
			r.Metric,
			r.Value,
			nullString(r.Unit),
			lat,
			lng,
			s.d.timeArg(ts),
			nullString(r.Source),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RecentReadings returns up to limit readings for one sensor, newest first.
func (s *Store) RecentReadings(ctx context.Context, sensorID string, limit int) model.Result[[]model.SensorReading] {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT reading_id, sensor_id, metric, value, unit, latitude, longitude, ts, source
		FROM sensor_readings WHERE sensor_id = ? ORDER BY ts DESC, id DESC LIMIT ?`), sensorID, limit)
	if err != nil {
		return s.unavailableReadings("recent_readings", err)
	}
	defer rows.Close()
	out := make([]model.SensorReading, 0)
	for rows.Next() {
		var (
			r                model.SensorReading
			id, unit, source sql.NullString
			lat, lng         sql.NullFloat64
			ts               dbTime
		)
		if err := rows.Scan(&id, &r.SensorID, &r.Metric, &r.Value, &unit, &lat, &lng, &ts, &source); err != nil {
			return s.unavailableReadings("recent_readings", err)
		}
		r.ID, r.Unit, r.Source = id.String, unit.String, source.String
		r.Timestamp = ts.Time
		if lat.Valid && lng.Valid {
			r.Location = &model.Location{Lat: lat.Float64, Lng: lng.Float64}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return s.unavailableReadings("recent_readings", err)
	}
	return model.Rows(out)
}

func (s *Store) unavailableReadings(query string, err error) model.Result[[]model.SensorReading] {
	s.logger.Error("query failed", "query", query, "error", err)
	return model.Unavailable([]model.SensorReading{}, err)
}
