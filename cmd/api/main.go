package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kursadbilgin/lead-notify/internal/config"
	"github.com/kursadbilgin/lead-notify/internal/filter"
	"github.com/kursadbilgin/lead-notify/internal/handler"
	"github.com/kursadbilgin/lead-notify/internal/infra/postgresql"
	"github.com/kursadbilgin/lead-notify/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/lead-notify/internal/infra/redis"
	"github.com/kursadbilgin/lead-notify/internal/observability"
	"github.com/kursadbilgin/lead-notify/internal/provider"
	"github.com/kursadbilgin/lead-notify/internal/queue"
	"github.com/kursadbilgin/lead-notify/internal/repository"
	"github.com/kursadbilgin/lead-notify/internal/service"
	"github.com/kursadbilgin/lead-notify/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rmq.Close()

	publisher := queue.NewRabbitMQPublisher(rmq)
	consumer := queue.NewRabbitMQConsumer(rmq, cfg.WorkerConcurrency, logger)

	oneSignal, err := provider.NewOneSignalClient(provider.Config{
		AppID:   cfg.OneSignalAppID,
		APIKey:  cfg.OneSignalAPIKey,
		BaseURL: cfg.OneSignalAPIURL,
		Timeout: cfg.ProviderTimeout(),
	})
	if err != nil {
		return fmt.Errorf("provider client initialization failed: %w", err)
	}

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	logRepo := repository.NewGormLogRepo(db)
	eligibility := filter.New(cfg.OneSignalEnabled, oneSignal)
	metrics := observability.NewMetrics()

	worker, err := service.NewWorkerService(
		logRepo,
		consumer,
		oneSignal,
		eligibility,
		rateLimiter,
		cfg.WorkerConcurrency,
		logger,
	)
	if err != nil {
		return fmt.Errorf("worker service initialization failed: %w", err)
	}
	worker.SetMetrics(metrics)

	scanner, err := service.NewRetryScanner(logRepo, publisher, 0, 0, logger)
	if err != nil {
		return fmt.Errorf("retry scanner initialization failed: %w", err)
	}

	admin, err := service.NewAdminService(logRepo, oneSignal, cfg.OneSignalEnabled, logger)
	if err != nil {
		return fmt.Errorf("admin service initialization failed: %w", err)
	}

	dispatcher, err := service.NewDispatchService(logRepo, publisher, logger)
	if err != nil {
		return fmt.Errorf("dispatch service initialization failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "lead-notify",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	handler.NewNotificationHandler(admin).RegisterRoutes(app)
	handler.NewLeadHandler(dispatcher).RegisterRoutes(app)

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http api listening", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down http api")
		return app.Shutdown()
	})

	g.Go(func() error {
		return worker.Start(groupCtx)
	})

	g.Go(func() error {
		return scanner.Start(groupCtx)
	})

	logger.Info("lead-notify started",
		zap.Int("workerConcurrency", cfg.WorkerConcurrency),
		zap.Bool("providerEnabled", cfg.OneSignalEnabled),
		zap.Bool("providerConfigured", oneSignal.IsConfigured()),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("lead-notify stopped")
	return nil
}
