package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"farmwatch/internal/alerts"
	"farmwatch/internal/api"
	"farmwatch/internal/chat"
	"farmwatch/internal/config"
	"farmwatch/internal/docstore"
	"farmwatch/internal/engine"
	"farmwatch/internal/forecast"
	"farmwatch/internal/ingest"
	"farmwatch/internal/logging"
	"farmwatch/internal/metrics"
	"farmwatch/internal/model"
	"farmwatch/internal/monitor"
	"farmwatch/internal/notify"
	"farmwatch/internal/resilience"
	"farmwatch/internal/storage"
	"farmwatch/internal/weather"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "farmwatch.yaml", "path to the YAML or JSON config file")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	config.LoadDotEnv(*envFile)
	if err := run(config.ResolvePath(*configPath)); err != nil {
		fmt.Fprintln(os.Stderr, "farmwatch:", err)
		os.Exit(1)
	}
}

func run(path string) error {
	mgr, err := config.NewManager(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("farmwatch starting", "version", version, "config", path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if db != nil {
		defer db.Close()
		if err := db.Init(ctx); err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
	}

	var docs *docstore.Store
	if cfg.Redis.Enabled {
		docs, err = docstore.Open(ctx, cfg.Redis.URL, docstore.Options{}, logger)
		if err != nil {
			// Real-time data is optional; dashboards report it unavailable.
			logger.Error("redis unavailable", "error", err)
			docs = nil
		} else {
			defer docs.Close()
		}
	}

	alertStore, err := openAlerts(cfg, db, docs)
	if err != nil {
		return err
	}
	logger.Info("alert store ready", "backend", cfg.Alerts.Backend)

	mon := monitor.New(alertStore, cfg.Monitor.Thresholds, logger)
	stats := metrics.NewStore(cfg.Stats.StoreLimit)

	var sinks []notify.Publisher
	var hub *notify.Hub
	if cfg.Notify.WebSocket {
		hub = notify.NewHub(logger)
		defer hub.Close()
		sinks = append(sinks, hub)
	}
	if cfg.Notify.Kafka.Enabled {
		kp := notify.NewKafkaPublisher(cfg.Notify.Kafka)
		defer kp.Close()
		sinks = append(sinks, kp)
	}
	notifier := notify.New(cfg.Notify.Cooldown, logger, sinks...)

	var readingSinks []engine.ReadingSink
	if db != nil {
		readingSinks = append(readingSinks, db)
	}
	if docs != nil {
		readingSinks = append(readingSinks, docs)
	}
	eng := engine.NewEngine(cfg, logger, engine.Deps{
		Monitor:  mon,
		Alerts:   alertStore,
		Notifier: notifier,
		Metrics:  stats,
		Sinks:    readingSinks,
	})

	readings := make(chan model.SensorReading, cfg.Ingest.ChannelBuffer)
	engineDone := eng.Start(ctx, readings)

	restServer := ingest.StartREST(ctx, mgr, readings, logger)
	if cfg.Ingest.TCPStream.Enabled {
		if _, err := ingest.StartTCPStream(ctx, mgr, readings, logger); err != nil {
			logger.Error("tcp stream ingest failed to start", "error", err)
		}
	}
	ingest.StartFileTail(ctx, mgr, readings, logger)
	ingest.StartKafka(ctx, mgr, readings, logger)

	estimator := forecast.New(logger)
	if cfg.Forecast.TrainOnStart && db != nil {
		go func() {
			trained, err := estimator.TrainFrom(ctx, db)
			if err != nil {
				logger.Warn("startup training skipped", "error", err)
				return
			}
			logger.Info("startup training finished", "trained", trained)
		}()
	}

	weatherClient := weather.New(cfg.Weather,
		resilience.NewBreaker(resilience.Config{Name: "weather"}, logger), logger)

	opts := []chat.Option{}
	completer, err := chat.NewOpenAI(cfg.Chat,
		resilience.NewBreaker(resilience.Config{Name: "openai"}, logger), logger)
	switch {
	case err == nil:
		opts = append(opts, chat.WithCompleter(completer))
	case errors.Is(err, chat.ErrNoAPIKey):
		logger.Info("chat completion disabled", "reason", "no api key")
	default:
		return fmt.Errorf("chat completion: %w", err)
	}
	responder := chat.NewResponder(logger, opts...)

	deps := api.Deps{
		Config:    mgr,
		Alerts:    alertStore,
		Monitor:   mon,
		Engine:    eng,
		Metrics:   stats,
		Estimator: estimator,
		Chat:      responder,
		Weather:   weatherClient,
	}
	// Interface fields stay nil rather than holding a nil pointer.
	if db != nil {
		deps.Dashboard = db
		deps.History = db
		deps.Readings = db
	}
	if docs != nil {
		deps.Readings = docs
		deps.Sensors = docs
		deps.Equipment = docs
	}
	if hub != nil {
		deps.AlertFeed = hub
	}
	apiServer := api.Start(ctx, deps, logger, version)

	go mgr.Watch(3*time.Second, func(next *config.Config) {
		eng.UpdateConfig(next)
		logger.Info("config reloaded", "path", mgr.Path())
	}, func(err error) {
		logger.Warn("config watch failed", "error", err)
	}, ctx.Done())

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if restServer != nil {
		_ = restServer.Shutdown(shutdownCtx)
	}
	if apiServer != nil {
		_ = apiServer.Shutdown(shutdownCtx)
	}
	select {
	case <-engineDone:
	case <-shutdownCtx.Done():
		logger.Warn("engine did not stop in time")
	}
	return nil
}

// openAlerts picks the alert backend named in config. The sql and redis
// backends require their store to be up.
func openAlerts(cfg *config.Config, db *storage.Store, docs *docstore.Store) (alerts.Store, error) {
	switch cfg.Alerts.Backend {
	case "", "memory":
		store, err := alerts.NewMemoryStore(cfg.Snowflake.NodeID)
		if err != nil {
			return nil, fmt.Errorf("memory alert store: %w", err)
		}
		return store, nil
	case "sql":
		if db == nil {
			return nil, errors.New("alerts backend sql needs storage enabled")
		}
		return storage.NewAlertStore(db), nil
	case "redis":
		if docs == nil {
			return nil, errors.New("alerts backend redis needs a reachable redis")
		}
		return docstore.NewAlertStore(docs), nil
	default:
		return nil, fmt.Errorf("unknown alerts backend %q", cfg.Alerts.Backend)
	}
}
