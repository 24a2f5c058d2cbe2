package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"farmwatch/internal/alerts"
	"farmwatch/internal/model"
)

// AlertStore implements alerts.Store on the alerts table. Ids come from the
// table's own sequence.
type AlertStore struct {
	s *Store
}

func NewAlertStore(s *Store) *AlertStore {
	return &AlertStore{s: s}
}

const alertColumns = `id, title, message, priority, source, created_at, is_read, resolved, resolution_note, resolved_at`

func (a *AlertStore) Create(ctx context.Context, d alerts.Draft) (string, error) {
	d, err := alerts.Normalize(d)
	if err != nil {
		return "", err
	}
	var id int64
	err = a.s.db.QueryRowContext(ctx, a.s.q(
		`INSERT INTO alerts (title, message, priority, source, created_at, is_read, resolved)
		VALUES (?, ?, ?, ?, ?, FALSE, FALSE) RETURNING id`),
		d.Title,
		d.Message,
		string(d.Priority),
		nullString(d.Source),
		a.s.d.timeArg(a.s.now()),
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (a *AlertStore) Get(ctx context.Context, id string) (model.Alert, error) {
	n, ok := parseID(id)
	if !ok {
		return model.Alert{}, alerts.ErrNotFound
	}
	row := a.s.db.QueryRowContext(ctx, a.s.q(`SELECT `+alertColumns+` FROM alerts WHERE id = ?`), n)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Alert{}, alerts.ErrNotFound
	}
	return alert, err
}

func (a *AlertStore) List(ctx context.Context, unreadOnly bool, limit int) ([]model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	if unreadOnly {
		query += ` WHERE is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := a.s.db.QueryContext(ctx, a.s.q(query), alerts.Limit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

func (a *AlertStore) MarkRead(ctx context.Context, id string) error {
	n, ok := parseID(id)
	if !ok {
		return alerts.ErrNotFound
	}
	res, err := a.s.db.ExecContext(ctx, a.s.q(`UPDATE alerts SET is_read = TRUE WHERE id = ?`), n)
	return affected(res, err)
}

// Resolve keeps the note and timestamp of the first resolution.
func (a *AlertStore) Resolve(ctx context.Context, id, note string) error {
	n, ok := parseID(id)
	if !ok {
		return alerts.ErrNotFound
	}
	res, err := a.s.db.ExecContext(ctx, a.s.q(
		`UPDATE alerts SET
			is_read = TRUE,
			resolution_note = CASE WHEN resolved THEN resolution_note ELSE ? END,
			resolved_at = CASE WHEN resolved THEN resolved_at ELSE ? END,
			resolved = TRUE
		WHERE id = ?`),
		nullString(note),
		a.s.d.timeArg(a.s.now()),
		n,
	)
	return affected(res, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(r rowScanner) (model.Alert, error) {
	var (
		id         int64
		alert      model.Alert
		priority   string
		source     sql.NullString
		note       sql.NullString
		createdAt  dbTime
		resolvedAt dbTime
	)
	if err := r.Scan(&id, &alert.Title, &alert.Message, &priority, &source, &createdAt,
		&alert.Read, &alert.Resolved, &note, &resolvedAt); err != nil {
		return model.Alert{}, err
	}
	alert.ID = strconv.FormatInt(id, 10)
	alert.Priority = model.ParsePriority(priority)
	alert.Source = source.String
	alert.ResolutionNote = note.String
	alert.CreatedAt = createdAt.Time
	if resolvedAt.Valid {
		ts := resolvedAt.Time
		alert.ResolvedAt = &ts
	}
	return alert, nil
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return alerts.ErrNotFound
	}
	return nil
}

func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil && n > 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
