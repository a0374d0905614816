package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomdesk/internal/api"
	"roomdesk/internal/audit"
	"roomdesk/internal/config"
	"roomdesk/internal/database"
	"roomdesk/internal/domain"
	"roomdesk/internal/events"
	"roomdesk/internal/logging"
	"roomdesk/internal/metrics"
	"roomdesk/internal/repository"
	"roomdesk/internal/service"
	"roomdesk/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	catalog, err := loadCatalog(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, catalog, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	cache := initCache(redisClient, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auditWorker, journal, err := initAudit(ctx, cfg, db, redisClient, &logger)
	if err != nil {
		return err
	}
	if journal != nil {
		defer journal.Close()
	}

	startBackups(ctx, cfg, &logger)
	startMetrics(ctx, cfg, &logger)

	eventBus := initEventBus(&logger)

	scheduler := service.NewSchedulerService(
		db,
		cache,
		eventBus,
		auditSink(auditWorker),
		cfg.Scheduling.MaxAdvanceDays,
		time.Duration(cfg.Scheduling.ScheduleCacheTTL)*time.Second,
		&logger,
	)
	catalogSvc := service.NewCatalogService(db, db)

	httpServer := api.NewHTTPServer(cfg.API, scheduler, catalogSvc, cache, &logger)

	return startServer(ctx, httpServer, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadCatalog(cfg *config.Config, logger *zerolog.Logger) (config.Catalog, error) {
	path := cfg.Scheduling.CatalogPath
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("read catalog")
		return config.Catalog{}, err
	}

	var catalog config.Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("parse catalog")
		return config.Catalog{}, err
	}
	if err := config.ValidateCatalog(catalog); err != nil {
		return config.Catalog{}, fmt.Errorf("catalog validation: %w", err)
	}

	return catalog, nil
}

func initDatabase(cfg *config.Config, catalog config.Catalog, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	db.SetRooms(catalog.Rooms)
	db.SetEventTypes(catalog.EventTypes)
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initCache wires the schedule cache: Redis with in-memory failover when a
// client is available, plain in-memory otherwise.
func initCache(redisClient *redis.Client, logger *zerolog.Logger) domain.CacheRepository {
	memory := repository.NewMemoryCacheRepository()
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisCacheRepository(redisClient)
	return repository.NewFailoverCacheRepository(primary, memory, logger)
}

func initAudit(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) (*worker.AuditWorker, *audit.ExcelJournal, error) {
	if !cfg.Audit.Enabled {
		return nil, nil, nil
	}

	journal, err := audit.NewExcelJournal(cfg.Audit.JournalPath)
	if err != nil {
		return nil, nil, fmt.Errorf("init audit journal: %w", err)
	}

	auditWorker := worker.NewAuditWorker(db, journal, redisClient, worker.RetryPolicy{}, logger)
	if interval, err := time.ParseDuration(cfg.Audit.PollInterval); err == nil {
		auditWorker.SetPollInterval(interval)
	}
	auditWorker.SetBatchSize(cfg.Audit.BatchSize)

	go auditWorker.Start(ctx)
	logger.Info().Str("journal", cfg.Audit.JournalPath).Msg("audit worker started")
	return auditWorker, journal, nil
}

func startBackups(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Backup.Enabled {
		return
	}
	backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
	go backupService.Start(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// initEventBus publishes reservation lifecycle events and attaches a single
// debug subscriber so every event lands in the log stream.
func initEventBus(logger *zerolog.Logger) *events.EventBus {
	bus := events.NewEventBus()
	logEvent := func(event *events.Event) error {
		logger.Debug().Str("event_type", event.Type).Msg("event published")
		return nil
	}
	bus.Subscribe(events.EventReservationRequested, logEvent)
	bus.Subscribe(events.EventReservationApproved, logEvent)
	bus.Subscribe(events.EventReservationRejected, logEvent)
	bus.Subscribe(events.EventReservationCancelled, logEvent)
	return bus
}

// auditSink avoids a non-nil interface wrapping a nil *AuditWorker.
func auditSink(w *worker.AuditWorker) domain.AuditWorker {
	if w == nil {
		return nil
	}
	return w
}
