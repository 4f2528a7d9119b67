package main

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/techxpo/clinic-kiosk/cmd/mainconfig"
	"github.com/techxpo/clinic-kiosk/internal/api/router"
	"github.com/techxpo/clinic-kiosk/internal/catalog"
	appconfig "github.com/techxpo/clinic-kiosk/internal/config"
	"github.com/techxpo/clinic-kiosk/internal/http/handlers"
	"github.com/techxpo/clinic-kiosk/internal/observability/metrics"
	"github.com/techxpo/clinic-kiosk/internal/planner"
	"github.com/techxpo/clinic-kiosk/internal/realtime"
	"github.com/techxpo/clinic-kiosk/internal/schedule"
	"github.com/techxpo/clinic-kiosk/internal/session"
	"github.com/techxpo/clinic-kiosk/internal/visits"
	"github.com/techxpo/clinic-kiosk/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-kiosk API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat := catalog.New(catalog.Config{
		CatalogDir: cfg.CatalogDir,
		DataDirs:   []string{cfg.BookingDataDir, cfg.SecondaryDataDir},
		ImageDir:   cfg.HospitalImageDir,
		Logger:     logger,
	})

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	scheduleStore, visitStore := setupStores(pool, logger)

	grid := schedule.NewGrid(cfg.WorkStart, cfg.WorkEnd, cfg.SlotMinutes)
	scheduler := schedule.NewScheduler(schedule.SchedulerConfig{
		Catalog: cat,
		Store:   scheduleStore,
		Grid:    grid,
		HoldTTL: cfg.HoldTTL,
		Metrics: bookingMetrics,
		Logger:  logger,
	})

	pl := setupPlanner(ctx, cfg, cat, scheduler, bookingMetrics, logger)
	dispatcher := setupDispatcher(ctx, cfg, pl, logger)
	if dispatcher != nil {
		defer dispatcher.Stop()
	}

	transcripts := setupTranscriptStore(cfg, logger)

	hub := realtime.NewHub(logger)

	r := router.New(&router.Config{
		Logger:             logger,
		CatalogHandler:     handlers.NewCatalogHandler(cat, grid, logger),
		ScheduleHandler:    handlers.NewScheduleHandler(scheduler, logger),
		VisitHandler:       handlers.NewVisitHandler(visitStore, logger),
		TokenHandler:       handlers.NewTokenHandler(cfg.TokenSecret, cfg.TokenTTL, logger),
		TranscriptHandler:  handlers.NewTranscriptHandler(transcripts, logger),
		RealtimeHandler:    hub.Handler(),
		TokenSecret:        cfg.TokenSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		DashboardStaticDir: cfg.DashboardStaticDir,
		KioskStaticDir:     cfg.KioskStaticDir,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	cancel()
	logger.Info("server stopped")
}

// connectPostgresPool returns nil when no DATABASE_URL is configured or the
// database is unreachable; callers fall back to in-memory stores.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres unreachable, falling back to memory stores", "error", err)
		pool.Close()
		return nil
	}
	logger.Info("connected to postgres")
	return pool
}

func setupStores(pool *pgxpool.Pool, logger *logging.Logger) (schedule.Store, visits.Store) {
	if pool == nil {
		logger.Info("using in-memory stores")
		return schedule.NewInMemoryStore(), visits.NewInMemoryStore()
	}
	return schedule.NewPostgresStore(pool, logger), visits.NewPostgresStore(pool, logger)
}

// setupPlanner returns nil when no Gemini API key is configured; booking
// planning is then disabled and sessions cannot schedule appointments.
func setupPlanner(ctx context.Context, cfg *appconfig.Config, cat *catalog.Catalog, scheduler *schedule.Scheduler, m *metrics.BookingMetrics, logger *logging.Logger) *planner.Planner {
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, booking planner disabled")
		return nil
	}
	llm, err := planner.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Stage1Model)
	if err != nil {
		logger.Error("failed to create gemini client", "error", err)
		return nil
	}
	dataDirs := []string{cfg.BookingDataDir, cfg.SecondaryDataDir}
	return planner.New(planner.Config{
		LLM:       llm,
		Catalog:   cat,
		Scheduler: scheduler,
		Index: func() catalog.DepartmentsIndex {
			return catalog.LoadDepartmentsIndex(cfg.DepartmentsIndexPath, dataDirs)
		},
		Stage1Model: cfg.Stage1Model,
		Stage2Model: cfg.Stage2Model,
		Metrics:     m,
		Logger:      logger,
	})
}

// setupDispatcher starts the booking-job worker pool. The queue is in-process
// by default; SQS lets jobs survive process restarts in deployments that want
// a durable queue.
func setupDispatcher(ctx context.Context, cfg *appconfig.Config, pl *planner.Planner, logger *logging.Logger) *session.Dispatcher {
	if pl == nil {
		return nil
	}

	var dispatcher *session.Dispatcher
	if cfg.UseMemoryQueue {
		dispatcher = session.NewDispatcher(session.NewMemoryQueue(64), pl, logger,
			session.WithDispatchWorkers(cfg.WorkerCount))
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config, booking queue disabled", "error", err)
			return nil
		}
		queue := session.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.BookingQueueURL)
		dispatcher = session.NewDispatcher(queue, pl, logger,
			session.WithDispatchWorkers(cfg.WorkerCount))
	}

	dispatcher.Start(ctx)
	logger.Info("booking dispatcher started", "workers", cfg.WorkerCount, "memory_queue", cfg.UseMemoryQueue)
	return dispatcher
}

// setupTranscriptStore returns nil when Redis is not configured; transcript
// persistence and the dashboard transcript route are then disabled.
func setupTranscriptStore(cfg *appconfig.Config, logger *logging.Logger) *session.CallTranscriptStore {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, call transcript store disabled")
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return session.NewCallTranscriptStore(redis.NewClient(opts))
}
