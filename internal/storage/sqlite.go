package storage

import (
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// sqlite allows a single writer; one connection also keeps :memory:
// databases from splitting across the pool.
var sqliteDialect = dialect{
	name:         "sqlite",
	driverName:   "sqlite",
	defaultDSN:   "file:farmwatch.db?_pragma=busy_timeout(5000)",
	maxOpenConns: 1,
	timeArg:      func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
	dateArg:      func(t time.Time) any { return t.UTC().Format("2006-01-02") },
	monthTrunc:   func(col string) string { return "strftime('%Y-%m-01', " + col + ")" },
	schema: []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			priority TEXT NOT NULL,
			source TEXT,
			created_at TEXT NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0,
			resolved INTEGER NOT NULL DEFAULT 0,
			resolution_note TEXT,
			resolved_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at)`,
		`CREATE TABLE IF NOT EXISTS sensor_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reading_id TEXT,
			sensor_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			unit TEXT,
			latitude REAL,
			longitude REAL,
			ts TEXT NOT NULL,
			source TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_sensor_ts ON sensor_readings(sensor_id, ts)`,
		`CREATE TABLE IF NOT EXISTS harvests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			harvest_date TEXT NOT NULL,
			crop_type TEXT NOT NULL,
			harvest_amount REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS livestock (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			animal_type TEXT NOT NULL,
			livestock_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS resource_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource TEXT NOT NULL,
			request_status TEXT NOT NULL,
			requested_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS historical_harvests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			harvest_date TEXT NOT NULL,
			crop_type TEXT NOT NULL,
			harvest_amount REAL,
			weather_condition TEXT,
			soil_quality_score REAL
		)`,
		`CREATE TABLE IF NOT EXISTS farm_issues (
			issue_id INTEGER PRIMARY KEY AUTOINCREMENT,
			issue_title TEXT NOT NULL,
			issue_type TEXT NOT NULL,
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			created_date TEXT NOT NULL,
			assigned_to TEXT,
			image_url TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			item_code TEXT PRIMARY KEY,
			item_name TEXT NOT NULL,
			category TEXT NOT NULL,
			current_stock REAL NOT NULL,
			min_required REAL NOT NULL,
			unit_price REAL NOT NULL
		)`,
	},
}
