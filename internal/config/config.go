package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Monitor   MonitorConfig   `json:"monitor" yaml:"monitor"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Redis     RedisConfig     `json:"redis" yaml:"redis"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
	Notify    NotifyConfig    `json:"notify" yaml:"notify"`
	Stats     StatsConfig     `json:"stats" yaml:"stats"`
	Chat      ChatConfig      `json:"chat" yaml:"chat"`
	Weather   WeatherConfig   `json:"weather" yaml:"weather"`
	Forecast  ForecastConfig  `json:"forecast" yaml:"forecast"`
	Snowflake SnowflakeConfig `json:"snowflake" yaml:"snowflake"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	Parser        ParserConfig    `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type ParserConfig struct {
	Timezone        string `json:"timezone" yaml:"timezone"`
	DefaultSensorID string `json:"default_sensor_id" yaml:"default_sensor_id"`
}

// Range is an inclusive acceptable band for one metric.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

type MonitorConfig struct {
	Thresholds    map[string]Range `json:"thresholds" yaml:"thresholds"`
	DedupeWindow  time.Duration    `json:"dedupe_window" yaml:"dedupe_window"`
	MaxClockSkew  time.Duration    `json:"max_clock_skew" yaml:"max_clock_skew"`
	MaxFutureSkew time.Duration    `json:"max_future_skew" yaml:"max_future_skew"`
}

type APIConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	Addr         string  `json:"addr" yaml:"addr"`
	RateLimitRPS float64 `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateBurst    int     `json:"rate_burst" yaml:"rate_burst"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type RedisConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
}

type AlertsConfig struct {
	// Backend is one of memory, sql, redis.
	Backend string `json:"backend" yaml:"backend"`
}

type NotifyConfig struct {
	Kafka     KafkaConfig   `json:"kafka" yaml:"kafka"`
	WebSocket bool          `json:"websocket" yaml:"websocket"`
	Cooldown  time.Duration `json:"cooldown" yaml:"cooldown"`
}

type StatsConfig struct {
	Windows    []time.Duration `json:"windows" yaml:"windows"`
	StoreLimit int             `json:"store_limit" yaml:"store_limit"`
}

type ChatConfig struct {
	APIKey      string        `json:"api_key" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Model       string        `json:"model" yaml:"model"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `json:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

type WeatherConfig struct {
	APIKey      string        `json:"api_key" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	DefaultCity string        `json:"default_city" yaml:"default_city"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	CacheTTL    time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

type ForecastConfig struct {
	DefaultMonths int  `json:"default_months" yaml:"default_months"`
	TrainOnStart  bool `json:"train_on_start" yaml:"train_on_start"`
}

type SnowflakeConfig struct {
	NodeID int64 `json:"node_id" yaml:"node_id"`
}

func DefaultThresholds() map[string]Range {
	return map[string]Range{
		"soil_moisture": {Min: 20, Max: 80},
		"temperature":   {Min: 5, Max: 35},
		"humidity":      {Min: 30, Max: 90},
		"ph_level":      {Min: 6.0, Max: 7.5},
	}
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
			Parser:        ParserConfig{Timezone: "UTC", DefaultSensorID: "unknown"},
		},
		Monitor: MonitorConfig{
			Thresholds:    DefaultThresholds(),
			DedupeWindow:  0,
			MaxClockSkew:  0,
			MaxFutureSkew: 2 * time.Second,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081", RateLimitRPS: 50, RateBurst: 100},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:farmwatch.db?_pragma=busy_timeout(5000)"},
		Redis:   RedisConfig{Enabled: false, URL: "redis://localhost:6379/0"},
		Alerts:  AlertsConfig{Backend: "memory"},
		Notify: NotifyConfig{
			Kafka:     KafkaConfig{Enabled: false, Topic: "farm_alerts"},
			WebSocket: true,
			Cooldown:  time.Minute,
		},
		Stats: StatsConfig{
			Windows:    []time.Duration{5 * time.Minute, time.Hour, 24 * time.Hour},
			StoreLimit: 5000,
		},
		Chat: ChatConfig{
			Model:       "gpt-3.5-turbo",
			MaxTokens:   300,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		},
		Weather: WeatherConfig{
			BaseURL:     "http://api.openweathermap.org/data/2.5",
			DefaultCity: "Kigali",
			Timeout:     10 * time.Second,
			CacheTTL:    30 * time.Minute,
		},
		Forecast:  ForecastConfig{DefaultMonths: 6, TrainOnStart: true},
		Snowflake: SnowflakeConfig{NodeID: 1},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to DefaultConfig (plus
// environment overrides) when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) != "" {
		return Load(path)
	}
	cfg := DefaultConfig()
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadDotEnv reads a .env file into the process environment if one exists.
// Variables already set win over the file.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("WEATHER_API_KEY"); v != "" {
		cfg.Weather.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DSN = v
		if strings.HasPrefix(v, "postgres") {
			cfg.Storage.Driver = "postgres"
		}
		cfg.Storage.Enabled = true
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("FARMWATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if len(cfg.Monitor.Thresholds) == 0 {
		cfg.Monitor.Thresholds = DefaultThresholds()
	}
	if len(cfg.Stats.Windows) == 0 {
		cfg.Stats.Windows = []time.Duration{5 * time.Minute, time.Hour, 24 * time.Hour}
	}
	if cfg.Stats.StoreLimit <= 0 {
		cfg.Stats.StoreLimit = 5000
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = "UTC"
	}
	if cfg.Ingest.Parser.DefaultSensorID == "" {
		cfg.Ingest.Parser.DefaultSensorID = "unknown"
	}
	if cfg.Alerts.Backend == "" {
		cfg.Alerts.Backend = "memory"
	}
	if cfg.Notify.Kafka.Topic == "" {
		cfg.Notify.Kafka.Topic = "farm_alerts"
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = "gpt-3.5-turbo"
	}
	if cfg.Chat.MaxTokens <= 0 {
		cfg.Chat.MaxTokens = 300
	}
	if cfg.Chat.Timeout <= 0 {
		cfg.Chat.Timeout = 30 * time.Second
	}
	if cfg.Weather.Timeout <= 0 {
		cfg.Weather.Timeout = 10 * time.Second
	}
	if cfg.Weather.BaseURL == "" {
		cfg.Weather.BaseURL = "http://api.openweathermap.org/data/2.5"
	}
	if cfg.Forecast.DefaultMonths <= 0 {
		cfg.Forecast.DefaultMonths = 6
	}
	if cfg.API.RateLimitRPS <= 0 {
		cfg.API.RateLimitRPS = 50
	}
	if cfg.API.RateBurst <= 0 {
		cfg.API.RateBurst = 100
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Notify.Kafka.Enabled && len(cfg.Notify.Kafka.Brokers) == 0 {
		return errors.New("notify.kafka requires brokers")
	}
	switch cfg.Alerts.Backend {
	case "memory":
	case "sql":
		if !cfg.Storage.Enabled {
			return errors.New("alerts.backend sql requires storage.enabled")
		}
	case "redis":
		if !cfg.Redis.Enabled {
			return errors.New("alerts.backend redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("alerts.backend must be memory, sql or redis: %q", cfg.Alerts.Backend)
	}
	if err := ValidateThresholds(cfg.Monitor.Thresholds); err != nil {
		return err
	}
	for _, win := range cfg.Stats.Windows {
		if win <= 0 {
			return fmt.Errorf("stats.windows contains non-positive duration: %s", win)
		}
	}
	return nil
}

func ValidateThresholds(th map[string]Range) error {
	for metric, r := range th {
		if strings.TrimSpace(metric) == "" {
			return errors.New("monitor.thresholds contains an empty metric name")
		}
		if r.Min >= r.Max {
			return fmt.Errorf("monitor.thresholds.%s: min must be below max", metric)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if path != "" {
		if info, err := os.Stat(path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return m, nil
}

// NewStaticManager wraps an already built config. Updates are kept in memory
// only.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := LoadOrDefault(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	m.cfg.Store(cfg)
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
