// Package storage is the relational side of farmwatch: alerts, raw sensor
// readings and the dashboard aggregates, on sqlite or postgres.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"farmwatch/internal/config"
)

type Store struct {
	db     *sql.DB
	d      dialect
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the configured database. It returns nil, nil when
// storage is disabled.
func Open(cfg config.StorageConfig, logger *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return open(sqliteDialect, cfg.DSN, logger)
	case "postgres", "postgresql":
		return open(postgresDialect, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func OpenSQLite(dsn string, logger *slog.Logger) (*Store, error) {
	return open(sqliteDialect, dsn, logger)
}

func OpenPostgres(dsn string, logger *slog.Logger) (*Store, error) {
	return open(postgresDialect, dsn, logger)
}

func open(d dialect, dsn string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = d.defaultDSN
	}
	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, err
	}
	if d.maxOpenConns > 0 {
		db.SetMaxOpenConns(d.maxOpenConns)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		d:      d,
		logger: logger.With("component", "storage", "driver", d.name),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Init creates the schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s schema: %w", s.d.name, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Driver() string {
	return s.d.name
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// q rewrites ? placeholders for dialects that number them.
func (s *Store) q(query string) string {
	if !s.d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// dbTime scans timestamps stored either natively or as text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *dbTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = x.UTC(), true
		return nil
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	}
	return fmt.Errorf("storage: cannot scan %T into time", v)
}

func (t *dbTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = ts.UTC(), true
			return nil
		}
	}
	return errors.New("storage: unrecognised time " + strconv.Quote(s))
}
