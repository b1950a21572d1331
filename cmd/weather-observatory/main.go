package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weather-observatory/internal/api/http"
	"github.com/i474232898/weather-observatory/internal/cache"
	"github.com/i474232898/weather-observatory/internal/config"
	"github.com/i474232898/weather-observatory/internal/ingest"
	"github.com/i474232898/weather-observatory/internal/logging"
	"github.com/i474232898/weather-observatory/internal/scheduler"
	"github.com/i474232898/weather-observatory/internal/store"
	"github.com/i474232898/weather-observatory/internal/weather"
)

const appName = "weather-observatory"

func main() {
	importStation := flag.String("import-station", "", "station id whose archive folder should be imported before serving")
	importDir := flag.String("import-dir", "", "archive folder holding *.txt / *.dat files")
	importOnly := flag.Bool("import-only", false, "exit after the archive import")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg, appName)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readings, maintain, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	stations, layouts := cfg.Stations, ingest.DefaultLayouts
	if cfg.StationsFile != "" {
		stations, layouts, err = ingest.LoadStationFile(cfg.StationsFile)
		if err != nil {
			log.Error("failed to load station file", "path", cfg.StationsFile, "error", err)
			os.Exit(1)
		}
	}

	series := cache.NewSeriesCache(cfg.CacheSize, cfg.CacheTTL)
	service := weather.NewService(readings, stations, series, log)

	// Shared HTTP client for outbound live-file fetches.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	var source ingest.Source = ingest.FileSource{Dir: cfg.DataDir}
	if cfg.LiveBaseURL != "" {
		source = ingest.NewHTTPSource(httpClient, cfg.LiveBaseURL)
	}
	ingester := ingest.NewIngester(service, source, stations, layouts, log)

	if *importStation != "" && *importDir != "" {
		n, err := ingester.IngestArchive(ctx, *importStation, *importDir)
		if err != nil {
			log.Error("archive import failed", "station", *importStation, "dir", *importDir, "error", err)
			os.Exit(1)
		}
		log.Info("archive import finished", "station", *importStation, "inserted", n)
	}
	if *importOnly {
		return
	}

	// Scheduler that periodically polls live files.
	sched := scheduler.New(ingester, cfg.PollInterval, log)
	if maintain != nil {
		if err := sched.AddTask("store-gc", time.Hour, maintain); err != nil {
			log.Error("failed to schedule store maintenance", "error", err)
			os.Exit(1)
		}
	}
	if err := sched.Start(); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	if cfg.MQTTBroker != "" {
		sub := ingest.NewSubscriber(ingest.SubscriberConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    appName,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, ingester, log)
		go func() {
			if err := sub.Connect(ctx); err != nil {
				log.Error("mqtt subscriber failed", "broker", cfg.MQTTBroker, "error", err)
			}
		}()
		defer sub.Disconnect()
	}

	// HTTP surface.
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// No WriteTimeout: /api/v1/stream keeps its response open.
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	// /health reports the store, the live source and the last poll.
	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "ok",
			"service": appName,
			"store":   cfg.StoreBackend,
			"source":  source.Name(),
		}
		if run, ok := sched.LastRun(); ok {
			body["last_poll"] = run
		}
		return c.JSON(body)
	})

	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()
	log.Info("listening", "port", cfg.Port, "env", cfg.AppEnv)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}

// openStore returns the configured store, an optional periodic maintenance
// task and a close func.
func openStore(ctx context.Context, cfg *config.AppConfig) (weather.Store, func(context.Context) error, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		s, err := store.NewSQLiteStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return s, nil, func() {
			if err := db.Close(); err != nil {
				slog.Error("close sqlite", "error", err)
			}
		}, nil

	case config.BackendBadger:
		s, err := store.NewBadgerStore(store.BadgerConfig{Path: cfg.BadgerPath})
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s.RunGC, func() {
			if err := s.Close(); err != nil {
				slog.Error("close badger", "error", err)
			}
		}, nil

	default:
		// In-memory store with configured retention.
		return store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge), nil, func() {}, nil
	}
}
