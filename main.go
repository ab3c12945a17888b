// Package main is the entry point for the wage-backend application
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ibnu-sodik/wage-backend/app/handlers"
	"github.com/ibnu-sodik/wage-backend/app/message"
	"github.com/ibnu-sodik/wage-backend/app/middleware"
	"github.com/ibnu-sodik/wage-backend/app/queue"
	"github.com/ibnu-sodik/wage-backend/app/router"
	"github.com/ibnu-sodik/wage-backend/app/scheduler"
	"github.com/ibnu-sodik/wage-backend/app/services"
	"github.com/ibnu-sodik/wage-backend/app/session"
	"github.com/ibnu-sodik/wage-backend/app/wa"
	businessflow "github.com/ibnu-sodik/wage-backend/business_flow"
	"github.com/ibnu-sodik/wage-backend/config"
	"github.com/ibnu-sodik/wage-backend/repository"
)

// Application holds the wired components and their stop functions
type Application struct {
	config    *config.ProductionConfig
	db        *gorm.DB
	cache     *redis.Client
	registry  *session.Registry
	router    router.Router
	logger    *log.Logger
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	go func() {
		if err := app.router.Start(cfg.Server.Addr()); err != nil {
			app.logger.Printf("HTTP server stopped: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	app.logger.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	app.registry.Close(shutdownCtx)
	if err := app.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		app.logger.Printf("Failed to shutdown server gracefully: %v", err)
	}
	if app.cache != nil {
		_ = app.cache.Close()
	}
	if sqlDB, err := app.db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	app.logger.Println("Shutdown complete")
}

func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	logger := initializeLogging(cfg.Logging)

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}

	cache, err := initializeCache(cfg.Queue)
	if err != nil {
		return nil, fmt.Errorf("cache initialization failed: %w", err)
	}

	app := &Application{config: cfg, db: db, cache: cache, logger: logger}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	jobRepo := repository.NewBroadcastJobRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)
	templateRepo := repository.NewTemplateRepository(db)

	// Device session registry. The transport binding is pluggable; the
	// loopback transport stands in until a production binding is configured.
	credStore := wa.NewFileCredentialStore(cfg.Session.CredentialDir)
	transport := newTransport(logger)
	app.registry = session.NewRegistry(transport, credStore, logger, session.Config{
		ReconnectDelay:   cfg.Session.ReconnectDelay,
		ReconnectJitter:  cfg.Session.ReconnectJitter,
		CredSaveDebounce: cfg.Session.CredSaveDebounce,
		EventLogSize:     cfg.Session.EventLogSize,
	})

	// Message rendering
	builder := message.NewBuilder(cfg.Media.UploadsDir, cfg.Media.PublicBaseURL, message.Limits{
		MaxImageBytes:    cfg.Media.MaxImageBytes,
		MaxVideoBytes:    cfg.Media.MaxVideoBytes,
		MaxAudioBytes:    cfg.Media.MaxAudioBytes,
		MaxDocumentBytes: cfg.Media.MaxDocumentBytes,
	})

	// Delivery pipeline shared by the poll loop and the queue workers
	policy := scheduler.RetryPolicy{
		MaxRetries:  cfg.Scheduler.MaxRetries,
		BaseBackoff: cfg.Scheduler.BaseBackoff,
	}
	rate := scheduler.RateWindow{Min: cfg.Scheduler.RateMinDelay, Max: cfg.Scheduler.RateMaxDelay}
	dispatcher := scheduler.NewDispatcher(recipientRepo, builder, policy, rate)
	aggregator := scheduler.NewTxStatusAggregator(db, jobRepo, recipientRepo)
	sessions := &registrySessions{registry: app.registry}

	if cfg.Scheduler.Enabled {
		broadcastScheduler := scheduler.NewBroadcastScheduler(
			jobRepo, recipientRepo, templateRepo, userRepo,
			sessions, dispatcher, aggregator, policy,
			scheduler.Config{
				PollInterval:      cfg.Scheduler.PollInterval,
				BatchSize:         cfg.Scheduler.BatchSize,
				DeviceConcurrency: cfg.Scheduler.DeviceConcurrency,
			},
			logger,
		).WithMetrics(scheduler.NewMetrics())

		schedulerCtx, stopScheduler := context.WithCancel(context.Background())
		if cfg.Queue.Enabled {
			deliveryQueue := queue.NewRedisQueue(cache, cfg.Queue.Name, logger)
			broadcastScheduler.WithQueue(deliveryQueue)

			workers := queue.NewWorkerPool(
				deliveryQueue, jobRepo, recipientRepo, templateRepo, userRepo,
				sessions, dispatcher, aggregator, cfg.Queue.Concurrency, logger,
			)
			workers.Start(schedulerCtx)
			app.stopFuncs = append(app.stopFuncs, workers.Wait)
			logger.Printf("Delivery queue enabled (queue=%s, workers=%d)", cfg.Queue.Name, cfg.Queue.Concurrency)
		}
		broadcastScheduler.Start(schedulerCtx)
		app.stopFuncs = append(app.stopFuncs, stopScheduler)
		logger.Printf("Broadcast scheduler started (poll=%s, batch=%d)", cfg.Scheduler.PollInterval, cfg.Scheduler.BatchSize)
	}

	// Metrics exporter on its own listener
	if cfg.Metrics.Enabled {
		app.stopFuncs = append(app.stopFuncs, startMetricsServer(cfg.Metrics, logger))
	}

	// Auth and business flows
	tokenService := services.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	loginFlow := businessflow.NewLoginFlow(userRepo, tokenService, logger)
	deviceFlow := businessflow.NewDeviceFlow(app.registry, logger)
	messageFlow := businessflow.NewMessageFlow(db, jobRepo, recipientRepo, templateRepo, userRepo, app.registry, builder, logger)

	// HTTP layer
	authHandler := handlers.NewAuthHandler(loginFlow)
	deviceHandler := handlers.NewDeviceHandler(deviceFlow)
	messageHandler := handlers.NewMessageHandler(messageFlow)
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	app.router = router.NewFiberRouter(authHandler, deviceHandler, messageHandler, authMiddleware)
	app.router.SetupRoutes()

	return app, nil
}

// initializeLogging directs the standard logger to a rotating file when one
// is configured, mirroring output to stdout
func initializeLogging(cfg config.LoggingConfig) *log.Logger {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	log.SetOutput(out)
	return log.New(out, "", log.LstdFlags)
}

// initializeDatabase opens the postgres connection and configures pooling
func initializeDatabase(cfg config.DatabaseConfig, logger *log.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)
	return db, nil
}

// initializeCache connects to redis when the delivery queue is enabled
func initializeCache(cfg config.QueueConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisAddr, cfg.RedisDB)
	return rc, nil
}

// newTransport selects the messaging transport. Only the loopback transport
// ships with this repository; WA_TRANSPORT is reserved for real bindings.
func newTransport(logger *log.Logger) wa.Transport {
	name := os.Getenv("WA_TRANSPORT")
	if name == "" {
		name = "loopback"
	}
	logger.Printf("Using %s messaging transport", name)
	return wa.NewMockTransport()
}

// startMetricsServer exposes prometheus metrics on a dedicated listener and
// returns the function that stops it
func startMetricsServer(cfg config.MetricsConfig, logger *log.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		logger.Printf("Metrics exporter listening on %s%s", cfg.Addr, cfg.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("Metrics exporter stopped: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// registrySessions adapts the session registry to the delivery pipeline
type registrySessions struct {
	registry *session.Registry
}

func (p *registrySessions) Ensure(ctx context.Context, tenant, device string) (scheduler.Sender, error) {
	sess, err := p.registry.Ensure(ctx, tenant, device)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
