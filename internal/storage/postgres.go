package storage

import (
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresDialect = dialect{
	name:       "postgres",
	driverName: "pgx",
	defaultDSN: "postgres://localhost:5432/farmwatch?sslmode=disable",
	numbered:   true,
	timeArg:    func(t time.Time) any { return t.UTC() },
	dateArg:    func(t time.Time) any { return t.UTC() },
	monthTrunc: func(col string) string { return "DATE_TRUNC('month', " + col + ")" },
	schema: []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			priority TEXT NOT NULL,
			source TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			resolution_note TEXT,
			resolved_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at)`,
		`CREATE TABLE IF NOT EXISTS sensor_readings (
			id BIGSERIAL PRIMARY KEY,
			reading_id TEXT,
			sensor_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			unit TEXT,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			ts TIMESTAMPTZ NOT NULL,
			source TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_sensor_ts ON sensor_readings(sensor_id, ts)`,
		`CREATE TABLE IF NOT EXISTS harvests (
			id BIGSERIAL PRIMARY KEY,
			harvest_date DATE NOT NULL,
			crop_type TEXT NOT NULL,
			harvest_amount DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS livestock (
			id BIGSERIAL PRIMARY KEY,
			animal_type TEXT NOT NULL,
			livestock_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS resource_requests (
			id BIGSERIAL PRIMARY KEY,
			resource TEXT NOT NULL,
			request_status TEXT NOT NULL,
			requested_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS historical_harvests (
			id BIGSERIAL PRIMARY KEY,
			harvest_date DATE NOT NULL,
			crop_type TEXT NOT NULL,
			harvest_amount DOUBLE PRECISION,
			weather_condition TEXT,
			soil_quality_score DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS farm_issues (
			issue_id BIGSERIAL PRIMARY KEY,
			issue_title TEXT NOT NULL,
			issue_type TEXT NOT NULL,
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			created_date TIMESTAMPTZ NOT NULL,
			assigned_to TEXT,
			image_url TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			item_code TEXT PRIMARY KEY,
			item_name TEXT NOT NULL,
			category TEXT NOT NULL,
			current_stock DOUBLE PRECISION NOT NULL,
			min_required DOUBLE PRECISION NOT NULL,
			unit_price DOUBLE PRECISION NOT NULL
		)`,
	},
}
