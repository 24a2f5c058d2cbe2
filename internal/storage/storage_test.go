package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmwatch/internal/alerts"
	"farmwatch/internal/alerts/alertstest"
	"farmwatch/internal/config"
	"farmwatch/internal/logging"
	"farmwatch/internal/model"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Init(context.Background()))
	return s
}

func exec(t *testing.T, s *Store, query string, args ...any) {
	t.Helper()
	_, err := s.db.ExecContext(context.Background(), s.q(query), args...)
	require.NoError(t, err)
}

func fp(v float64) *float64 { return &v }

func TestSQLiteAlertStoreContract(t *testing.T) {
	alertstest.Run(t, func(t *testing.T) alerts.Store {
		return NewAlertStore(newSQLite(t))
	})
}

func TestPostgresAlertStoreContract(t *testing.T) {
	dsn := os.Getenv("FARMWATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FARMWATCH_TEST_POSTGRES_DSN not set")
	}
	alertstest.Run(t, func(t *testing.T) alerts.Store {
		s, err := OpenPostgres(dsn, logging.Discard())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		require.NoError(t, s.Init(context.Background()))
		exec(t, s, `TRUNCATE alerts RESTART IDENTITY`)
		return NewAlertStore(s)
	})
}

func TestOpenSelectsDriver(t *testing.T) {
	s, err := Open(config.StorageConfig{Enabled: false}, nil)
	assert.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(config.StorageConfig{Enabled: true, Driver: "oracle"}, nil)
	assert.Error(t, err)

	s, err = Open(config.StorageConfig{Enabled: true, Driver: "SQLite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "sqlite", s.Driver())
}

func TestPlaceholderRewrite(t *testing.T) {
	pg := &Store{d: postgresDialect}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.q("SELECT a FROM t WHERE x = ? AND y = ?"))
	lite := &Store{d: sqliteDialect}
	assert.Equal(t, "x = ?", lite.q("x = ?"))
}

func TestSaveAndReadReadings(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	base := testNow.Add(-time.Hour)
	batch := []model.SensorReading{
		{ID: "r1", SensorID: "s-1", Metric: "soil_moisture", Value: 41, Unit: "%", Timestamp: base, Source: "rest"},
		{ID: "r2", SensorID: "s-1", Metric: "soil_moisture", Value: 42, Unit: "%", Timestamp: base.Add(time.Minute),
			Location: &model.Location{Lat: -1.95, Lng: 30.06}},
		{ID: "r3", SensorID: "s-2", Metric: "temperature", Value: 18, Timestamp: base},
	}
	require.NoError(t, s.SaveReadings(ctx, batch))
	require.NoError(t, s.SaveReadings(ctx, nil))

	res := s.RecentReadings(ctx, "s-1", 10)
	require.Equal(t, model.StatusOK, res.Status)
	require.Len(t, res.Value, 2)
	assert.Equal(t, "r2", res.Value[0].ID)
	assert.True(t, base.Add(time.Minute).Equal(res.Value[0].Timestamp))
	require.NotNil(t, res.Value[0].Location)
	assert.Equal(t, -1.95, res.Value[0].Location.Lat)
	assert.Nil(t, res.Value[1].Location)
	assert.Equal(t, "rest", res.Value[1].Source)

	empty := s.RecentReadings(ctx, "nobody", 10)
	assert.Equal(t, model.StatusEmpty, empty.Status)
}

func TestKPIs(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	res := s.KPIs(ctx)
	require.Equal(t, model.StatusOK, res.Status)
	assert.Equal(t, model.KPIs{}, res.Value)

	exec(t, s, `INSERT INTO harvests (harvest_date, crop_type, harvest_amount) VALUES ('2024-05-01', 'corn', 10.5), ('2024-05-02', 'wheat', 4.5)`)
	exec(t, s, `INSERT INTO livestock (animal_type, livestock_count) VALUES ('cattle', 12), ('pigs', 8)`)
	exec(t, s, `INSERT INTO resource_requests (resource, request_status) VALUES ('seed', 'pending'), ('feed', 'pending'), ('fuel', 'delivered'), ('tools', 'cancelled')`)

	res = s.KPIs(ctx)
	require.Equal(t, model.StatusOK, res.Status)
	assert.Equal(t, model.KPIs{TotalHarvest: 15, TotalLivestock: 20, PendingRequests: 2, DeliveredRequests: 1}, res.Value)
}

func TestQueriesReportUnavailableWhenClosed(t *testing.T) {
	s := newSQLite(t)
	require.NoError(t, s.Close())
	ctx := context.Background()

	kpis := s.KPIs(ctx)
	assert.Equal(t, model.StatusUnavailable, kpis.Status)
	assert.Error(t, kpis.Err)
	assert.Equal(t, model.KPIs{}, kpis.Value)

	inv := s.Inventory(ctx)
	assert.Equal(t, model.StatusUnavailable, inv.Status)
	assert.NotNil(t, inv.Value)
	assert.Empty(t, inv.Value)
}

func TestHarvestTrends(t *testing.T) {
	s := newSQLite(t)
	s.now = func() time.Time { return testNow }
	exec(t, s, `INSERT INTO harvests (harvest_date, crop_type, harvest_amount) VALUES
		('2024-05-03', 'corn', 10),
		('2024-05-20', 'corn', 20),
		('2024-04-01', 'wheat', 5),
		('2021-01-01', 'corn', 100)`)

	res := s.HarvestTrends(context.Background())
	require.Equal(t, model.StatusOK, res.Status)
	require.Len(t, res.Value, 2)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), res.Value[0].Month)
	assert.Equal(t, "corn", res.Value[0].Crop)
	assert.Equal(t, 30.0, res.Value[0].Total)
	assert.Equal(t, 15.0, res.Value[0].Average)
	assert.Equal(t, "wheat", res.Value[1].Crop)
}

func TestResourceStatusAndIssues(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	exec(t, s, `INSERT INTO resource_requests (resource, request_status) VALUES ('seed', 'pending'), ('feed', 'pending'), ('fuel', 'delivered')`)
	status := s.ResourceStatus(ctx)
	require.Equal(t, model.StatusOK, status.Status)
	assert.Equal(t, []model.StatusCount{{Status: "delivered", Count: 1}, {Status: "pending", Count: 2}}, status.Value)

	exec(t, s, `INSERT INTO farm_issues (issue_title, issue_type, priority, status, latitude, longitude, created_date, assigned_to)
		VALUES ('Broken fence', 'infrastructure', 'high', 'open', -1.9, 30.1, '2024-06-01', 'amina'),
		       ('Leaking tank', 'water', 'medium', 'open', NULL, NULL, '2024-06-02', NULL),
		       ('Blight', 'disease', 'high', 'open', -1.8, 30.2, '2024-06-03', NULL)`)
	issues := s.IssueLocations(ctx)
	require.Equal(t, model.StatusOK, issues.Status)
	require.Len(t, issues.Value, 2)
	assert.Equal(t, "Blight", issues.Value[0].Title)
	assert.Equal(t, "", issues.Value[0].AssignedTo)
	assert.Equal(t, "amina", issues.Value[1].AssignedTo)
	assert.Equal(t, model.Location{Lat: -1.9, Lng: 30.1}, issues.Value[1].Location)
}

func TestInventoryStatus(t *testing.T) {
	s := newSQLite(t)
	exec(t, s, `INSERT INTO inventory (item_code, item_name, category, current_stock, min_required, unit_price) VALUES
		('F1', 'Fertilizer', 'inputs', 3, 5, 20),
		('D1', 'Diesel', 'fuel', 0, 0, 1.5),
		('S1', 'Seed', 'inputs', 40, 10, 2)`)
	res := s.Inventory(context.Background())
	require.Equal(t, model.StatusOK, res.Status)
	got := map[string]string{}
	for _, it := range res.Value {
		got[it.Name] = it.Status
	}
	assert.Equal(t, map[string]string{"Diesel": "Out of Stock", "Fertilizer": "Low Stock", "Seed": "In Stock"}, got)
	assert.Equal(t, "Diesel", res.Value[0].Name)
}

func TestImportAndLoadHistory(t *testing.T) {
	s := newSQLite(t)
	s.now = func() time.Time { return testNow }
	ctx := context.Background()

	n, err := s.ImportHistory(ctx, []model.Observation{
		{Period: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), Target: fp(120), Crop: "corn", Weather: "sunny", SoilScore: fp(0.8)},
		{Period: time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), Crop: "wheat"},
		{Period: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), Target: fp(1), Crop: "corn"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = s.ImportHistory(ctx, []model.Observation{{Crop: "corn"}})
	assert.ErrorIs(t, err, model.ErrInvalidObservation)

	res := s.HistoricalYields(ctx)
	require.Equal(t, model.StatusOK, res.Status)
	require.Len(t, res.Value, 2)
	first := res.Value[0]
	assert.Equal(t, "wheat", first.Crop)
	assert.Nil(t, first.Target)
	assert.Nil(t, first.SoilScore)
	assert.Equal(t, "", first.Weather)
	second := res.Value[1]
	require.NotNil(t, second.Target)
	assert.Equal(t, 120.0, *second.Target)
	assert.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), second.Period)
}

func TestDBTimeScan(t *testing.T) {
	var ts dbTime
	require.NoError(t, ts.Scan("2024-06-15T12:00:00.000000000Z"))
	assert.True(t, ts.Valid)
	assert.Equal(t, testNow, ts.Time)

	require.NoError(t, ts.Scan([]byte("2024-06-15")))
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), ts.Time)

	require.NoError(t, ts.Scan(nil))
	assert.False(t, ts.Valid)

	assert.Error(t, ts.Scan("yesterday"))
	assert.Error(t, ts.Scan(42))
}
