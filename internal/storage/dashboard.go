package storage

import (
	"context"
	"database/sql"
	"fmt"

	"farmwatch/internal/model"
)

const (
	trendMonths  = 24
	historyYears = 3
)

// Every dashboard query answers with a Result: a failed query logs, returns
// the zero-filled default and marks it unavailable.

func (s *Store) KPIs(ctx context.Context) model.Result[model.KPIs] {
	var k model.KPIs
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT
			(SELECT COALESCE(SUM(harvest_amount), 0) FROM harvests),
			(SELECT COALESCE(SUM(livestock_count), 0) FROM livestock),
			(SELECT COUNT(*) FROM resource_requests WHERE request_status = 'pending'),
			(SELECT COUNT(*) FROM resource_requests WHERE request_status = 'delivered')`),
	).Scan(&k.TotalHarvest, &k.TotalLivestock, &k.PendingRequests, &k.DeliveredRequests)
	if err != nil {
		s.logger.Error("query failed", "query", "kpis", "error", err)
		return model.Unavailable(model.KPIs{}, err)
	}
	return model.OK(k)
}

// HarvestTrends groups the last 24 months of harvests by month and crop,
// newest month first.
func (s *Store) HarvestTrends(ctx context.Context) model.Result[[]model.HarvestTrend] {
	month := s.d.monthTrunc("harvest_date")
	cutoff := s.now().AddDate(0, -trendMonths, 0)
	return collect(s, ctx, "harvest_trends",
		`SELECT `+month+` AS month, crop_type, SUM(harvest_amount), AVG(harvest_amount)
		FROM harvests
		WHERE harvest_date >= ?
		GROUP BY `+month+`, crop_type
		ORDER BY month DESC, crop_type`,
		[]any{s.d.dateArg(cutoff)},
		func(rows *sql.Rows) (model.HarvestTrend, error) {
			var t model.HarvestTrend
			var m dbTime
			err := rows.Scan(&m, &t.Crop, &t.Total, &t.Average)
			t.Month = m.Time
			return t, err
		})
}

func (s *Store) ResourceStatus(ctx context.Context) model.Result[[]model.StatusCount] {
	return collect(s, ctx, "resource_status",
		`SELECT request_status, COUNT(*) FROM resource_requests GROUP BY request_status ORDER BY request_status`,
		nil,
		func(rows *sql.Rows) (model.StatusCount, error) {
			var c model.StatusCount
			err := rows.Scan(&c.Status, &c.Count)
			return c, err
		})
}

// IssueLocations lists issues that can be placed on a map.
func (s *Store) IssueLocations(ctx context.Context) model.Result[[]model.Issue] {
	return collect(s, ctx, "issue_locations",
		`SELECT issue_id, issue_title, issue_type, priority, status, latitude, longitude, created_date, assigned_to, image_url
		FROM farm_issues
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY created_date DESC, issue_id DESC`,
		nil,
		func(rows *sql.Rows) (model.Issue, error) {
			var i model.Issue
			var created dbTime
			var assigned, image sql.NullString
			err := rows.Scan(&i.ID, &i.Title, &i.Type, &i.Priority, &i.Status,
				&i.Location.Lat, &i.Location.Lng, &created, &assigned, &image)
			i.CreatedAt = created.Time
			i.AssignedTo, i.ImageURL = assigned.String, image.String
			return i, err
		})
}

// Inventory reports every item with a stock status. Empty stock is reported
// as out of stock even when the minimum is also zero.
func (s *Store) Inventory(ctx context.Context) model.Result[[]model.InventoryItem] {
	return collect(s, ctx, "inventory",
		`SELECT item_code, item_name, category, current_stock, min_required, unit_price,
			CASE
				WHEN current_stock <= 0 THEN 'Out of Stock'
				WHEN current_stock <= min_required THEN 'Low Stock'
				ELSE 'In Stock'
			END
		FROM inventory
		ORDER BY item_name`,
		nil,
		func(rows *sql.Rows) (model.InventoryItem, error) {
			var it model.InventoryItem
			err := rows.Scan(&it.Code, &it.Name, &it.Category, &it.Stock, &it.MinRequired, &it.UnitPrice, &it.Status)
			return it, err
		})
}

// HistoricalYields returns the last three years of harvest history, oldest
// first, in the shape the yield estimator trains on.
func (s *Store) HistoricalYields(ctx context.Context) model.Result[[]model.Observation] {
	cutoff := s.now().AddDate(-historyYears, 0, 0)
	return collect(s, ctx, "historical_yields",
		`SELECT harvest_date, harvest_amount, crop_type, weather_condition, soil_quality_score
		FROM historical_harvests
		WHERE harvest_date >= ?
		ORDER BY harvest_date, id`,
		[]any{s.d.dateArg(cutoff)},
		func(rows *sql.Rows) (model.Observation, error) {
			var (
				o       model.Observation
				period  dbTime
				amount  sql.NullFloat64
				weather sql.NullString
				soil    sql.NullFloat64
			)
			err := rows.Scan(&period, &amount, &o.Crop, &weather, &soil)
			o.Period = period.Time
			o.Weather = weather.String
			if amount.Valid {
				v := amount.Float64
				o.Target = &v
			}
			if soil.Valid {
				v := soil.Float64
				o.SoilScore = &v
			}
			return o, err
		})
}

// ImportHistory appends historical harvest rows.
func (s *Store) ImportHistory(ctx context.Context, batch []model.Observation) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, s.q(
		`INSERT INTO historical_harvests (harvest_date, crop_type, harvest_amount, weather_condition, soil_quality_score)
		VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	for i, o := range batch {
		if err := o.Validate(); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		var amount, soil sql.NullFloat64
		if o.Target != nil {
			amount = sql.NullFloat64{Float64: *o.Target, Valid: true}
		}
		if o.SoilScore != nil {
			soil = sql.NullFloat64{Float64: *o.SoilScore, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, s.d.dateArg(o.Period), o.Crop, amount, nullString(o.Weather), soil); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(batch), nil
}

func collect[T any](s *Store, ctx context.Context, name, query string, args []any, scan func(*sql.Rows) (T, error)) model.Result[[]T] {
	fail := func(err error) model.Result[[]T] {
		s.logger.Error("query failed", "query", name, "error", err)
		return model.Unavailable([]T{}, err)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return fail(err)
	}
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return fail(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return fail(err)
	}
	return model.Rows(out)
}
