package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultThresholdTable(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, Range{Min: 20, Max: 80}, cfg.Monitor.Thresholds["soil_moisture"])
	assert.Equal(t, Range{Min: 5, Max: 35}, cfg.Monitor.Thresholds["temperature"])
	assert.Equal(t, Range{Min: 30, Max: 90}, cfg.Monitor.Thresholds["humidity"])
	assert.Equal(t, Range{Min: 6.0, Max: 7.5}, cfg.Monitor.Thresholds["ph_level"])
	assert.Equal(t, 10*time.Second, cfg.Weather.Timeout)
	assert.NoError(t, Validate(cfg))
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "farmwatch.yaml", `
log_level: debug
monitor:
  thresholds:
    soil_moisture: {min: 25, max: 70}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, Range{Min: 25, Max: 70}, cfg.Monitor.Thresholds["soil_moisture"])
	assert.Equal(t, ":8081", cfg.API.Addr)
	assert.Equal(t, "memory", cfg.Alerts.Backend)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "farmwatch.json", `{"alerts": {"backend": "memory"}, "forecast": {"default_months": 3}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Forecast.DefaultMonths)
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := writeConfig(t, "empty.yaml", "   \n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsInvertedRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Monitor.Thresholds["humidity"] = Range{Min: 90, Max: 30}
	assert.Error(t, Validate(cfg))
}

func TestValidateBackendNeedsStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alerts.Backend = "sql"
	assert.Error(t, Validate(cfg))
	cfg.Storage.Enabled = true
	assert.NoError(t, Validate(cfg))

	cfg.Alerts.Backend = "couchdb"
	assert.Error(t, Validate(cfg))
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("WEATHER_API_KEY", "wx-test")
	t.Setenv("DATABASE_URL", "postgres://farm@localhost/farm")
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Chat.APIKey)
	assert.Equal(t, "wx-test", cfg.Weather.APIKey)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.True(t, cfg.Storage.Enabled)
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("WEATHER_API_KEY=from-file\n"), 0o644))
	t.Setenv("WEATHER_API_KEY", "from-env")
	LoadDotEnv(envPath)
	assert.Equal(t, "from-env", os.Getenv("WEATHER_API_KEY"))
}

func TestManagerUpdatePersists(t *testing.T) {
	path := writeConfig(t, "farmwatch.yaml", "log_level: info\n")
	m, err := NewManager(path)
	require.NoError(t, err)

	next := *m.Get()
	next.Monitor.Thresholds = map[string]Range{"temperature": {Min: 0, Max: 40}}
	require.NoError(t, m.Update(&next))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Range{Min: 0, Max: 40}, reloaded.Monitor.Thresholds["temperature"])
}

func TestStaticManagerKeepsUpdatesInMemory(t *testing.T) {
	m := NewStaticManager(nil)
	next := *m.Get()
	next.LogLevel = "warn"
	require.NoError(t, m.Update(&next))
	assert.Equal(t, "warn", m.Get().LogLevel)
	needs, err := m.NeedsReload()
	require.NoError(t, err)
	assert.False(t, needs)
}
