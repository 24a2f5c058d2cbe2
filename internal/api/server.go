// Package api serves the dashboard HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"farmwatch/internal/alerts"
	"farmwatch/internal/chat"
	"farmwatch/internal/config"
	"farmwatch/internal/forecast"
	"farmwatch/internal/metrics"
	"farmwatch/internal/model"
	"farmwatch/internal/monitor"
	"farmwatch/internal/weather"
)

type EngineControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
}

type ReadingSource interface {
	RecentReadings(ctx context.Context, sensorID string, limit int) model.Result[[]model.SensorReading]
}

type SensorLister interface {
	Sensors(ctx context.Context) model.Result[[]string]
}

type Dashboard interface {
	KPIs(ctx context.Context) model.Result[model.KPIs]
	HarvestTrends(ctx context.Context) model.Result[[]model.HarvestTrend]
	ResourceStatus(ctx context.Context) model.Result[[]model.StatusCount]
	IssueLocations(ctx context.Context) model.Result[[]model.Issue]
	Inventory(ctx context.Context) model.Result[[]model.InventoryItem]
}

type HistoryStore interface {
	forecast.HistorySource
	ImportHistory(ctx context.Context, batch []model.Observation) (int, error)
}

type Equipment interface {
	UpdateEquipment(ctx context.Context, st model.EquipmentStatus) error
	Equipment(ctx context.Context) model.Result[[]model.EquipmentStatus]
	EquipmentHistory(ctx context.Context, id string, n int) model.Result[[]model.EquipmentStatus]
	LogStation(ctx context.Context, l model.StationLog) error
	StationHistory(ctx context.Context, stationID string, window time.Duration) model.Result[[]model.StationLog]
}

// Deps holds the collaborators behind the routes. Nil fields make their
// routes report the source as unavailable.
type Deps struct {
	Config    *config.Manager
	Alerts    alerts.Store
	Monitor   *monitor.Monitor
	Engine    EngineControl
	Metrics   *metrics.Store
	Readings  ReadingSource
	Sensors   SensorLister
	Dashboard Dashboard
	History   HistoryStore
	Estimator *forecast.Estimator
	Chat      *chat.Responder
	Weather   *weather.Client
	Equipment Equipment
	AlertFeed http.Handler
}

var (
	errNotConfigured     = errors.New("not configured")
	errSourceUnavailable = errors.New("source unavailable")
)

type Server struct {
	deps    Deps
	logger  *slog.Logger
	version string
	started time.Time
}

func NewServer(deps Deps, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Config == nil {
		deps.Config = config.NewStaticManager(nil)
	}
	return &Server{deps: deps, logger: logger.With("component", "api"), version: version, started: time.Now().UTC()}
}

func Start(ctx context.Context, deps Deps, logger *slog.Logger, version string) *http.Server {
	s := NewServer(deps, logger, version)
	current := s.deps.Config.Get().API
	if !current.Enabled {
		s.logger.Info("api disabled")
		return nil
	}
	s.logger.Info("api enabled", "addr", current.Addr)
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "err", err)
		}
	}()
	return httpServer
}

func (s *Server) Routes() http.Handler {
	cfg := s.deps.Config.Get().API
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)
	r.Use(rateLimit(cfg.RateLimitRPS, cfg.RateBurst))

	r.Get("/status", s.handleStatus)

	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", s.handleListAlerts)
		r.Post("/", s.handleCreateAlert)
		r.Get("/{id}", s.handleGetAlert)
		r.Post("/{id}/read", s.handleMarkRead)
		r.Post("/{id}/resolve", s.handleResolve)
	})

	r.Get("/sensors", s.handleSensors)
	r.Get("/sensors/{id}/readings", s.handleSensorReadings)
	r.Get("/sensors/{id}/stats", s.handleSensorStats)

	r.Post("/stats/reset", s.handleResetStats)

	r.Get("/config/thresholds", s.handleGetThresholds)
	r.Post("/config/thresholds", s.handleSetThresholds)

	r.Get("/forecast", s.handleForecast)
	r.Get("/forecast/status", s.handleForecastStatus)
	r.Post("/forecast/train", s.handleTrain)

	r.Post("/chat", s.handleChat)
	r.Get("/weather", s.handleWeather)

	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/kpis", s.handleKPIs)
		r.Get("/harvest-trends", s.handleHarvestTrends)
		r.Get("/resource-status", s.handleResourceStatus)
		r.Get("/issues", s.handleIssues)
		r.Get("/inventory", s.handleInventory)
	})

	r.Get("/equipment", s.handleEquipment)
	r.Get("/equipment/{id}/history", s.handleEquipmentHistory)
	r.Post("/equipment/{id}/status", s.handleEquipmentStatus)
	r.Get("/weather-stations/{id}", s.handleStationHistory)
	r.Post("/weather-stations/{id}", s.handleStationLog)

	if s.deps.AlertFeed != nil {
		r.Handle("/ws/alerts", s.deps.AlertFeed)
	}
	return r
}

func rateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type statusResponse struct {
	Status     string         `json:"status"`
	Time       string         `json:"time"`
	Uptime     string         `json:"uptime"`
	Version    string         `json:"version"`
	ConfigPath string         `json:"config_path"`
	Ingest     ingestStatus   `json:"ingest"`
	Backends   backendStatus  `json:"backends"`
	Forecast   forecastStatus `json:"forecast"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	FileTail  bool `json:"file_tail"`
	TCPStream bool `json:"tcp_stream"`
	Kafka     bool `json:"kafka"`
}

type backendStatus struct {
	Alerts    string `json:"alerts"`
	Storage   bool   `json:"storage"`
	Redis     bool   `json:"redis"`
	Chat      bool   `json:"chat_completion"`
	Weather   bool   `json:"weather_api"`
	Notify    bool   `json:"notify_kafka"`
	Websocket bool   `json:"notify_websocket"`
}

type forecastStatus struct {
	Trained bool `json:"trained"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.deps.Config.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Version:    s.version,
		ConfigPath: s.deps.Config.Path(),
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
		},
		Backends: backendStatus{
			Alerts:    cfg.Alerts.Backend,
			Storage:   cfg.Storage.Enabled,
			Redis:     cfg.Redis.Enabled,
			Chat:      cfg.Chat.APIKey != "",
			Weather:   cfg.Weather.APIKey != "",
			Notify:    cfg.Notify.Kafka.Enabled,
			Websocket: cfg.Notify.WebSocket,
		},
	}
	if s.deps.Estimator != nil {
		resp.Forecast.Trained = s.deps.Estimator.Trained()
	}
	writeJSON(w, http.StatusOK, resp)
}
