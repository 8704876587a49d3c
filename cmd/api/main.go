package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voxhub/notify-engine/internal/adapter"
	"github.com/voxhub/notify-engine/internal/batch"
	"github.com/voxhub/notify-engine/internal/config"
	"github.com/voxhub/notify-engine/internal/domain"
	"github.com/voxhub/notify-engine/internal/handler"
	"github.com/voxhub/notify-engine/internal/infra/postgresql"
	"github.com/voxhub/notify-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/voxhub/notify-engine/internal/infra/redis"
	"github.com/voxhub/notify-engine/internal/observability"
	"github.com/voxhub/notify-engine/internal/policy"
	"github.com/voxhub/notify-engine/internal/queue"
	"github.com/voxhub/notify-engine/internal/realtime"
	"github.com/voxhub/notify-engine/internal/repository"
	"github.com/voxhub/notify-engine/internal/service"
	"github.com/voxhub/notify-engine/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer mq.Close()

	publisher := queue.NewRabbitMQPublisher(mq)
	consumer := queue.NewRabbitMQConsumer(mq, cfg.ConsumerPrefetch, logger)

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	pubsub, err := infraredis.NewPubSubBroker(rdb, logger)
	if err != nil {
		logger.Fatal("pubsub broker initialization failed", zap.Error(err))
	}
	defer pubsub.Close()

	registry := realtime.NewRegistry(cfg.NodeName, logger)

	bridge, err := realtime.NewBridge(pubsub, registry, logger)
	if err != nil {
		logger.Fatal("realtime bridge initialization failed", zap.Error(err))
	}

	realtimeAdapter, err := adapter.NewRealtimeAdapter(registry, bridge, logger)
	if err != nil {
		logger.Fatal("realtime adapter initialization failed", zap.Error(err))
	}
	realtimeAdapter.SetBrokerFailureHook(metrics.IncRealtimeBrokerFailure)
	realtimeAdapter.SetFanoutHook(metrics.IncRealtimeFanout)

	adapters := []adapter.Adapter{realtimeAdapter}
	batchers := make(map[domain.Channel]*batch.Batcher)

	if cfg.EmailEnabled() {
		emailAdapter, err := adapter.NewEmailAdapter(cfg.EmailAPIURL, cfg.EmailAPIKey)
		if err != nil {
			logger.Fatal("email adapter initialization failed", zap.Error(err))
		}
		adapters = append(adapters, emailAdapter)

		emailBatcher, err := batch.NewBatcher(emailAdapter, cfg.BatchMaxSize, cfg.BatchMaxWait(), cfg.BatchCeiling, logger)
		if err != nil {
			logger.Fatal("email batcher initialization failed", zap.Error(err))
		}
		emailBatcher.SetFlushHook(metrics.IncBatchFlush)
		batchers[domain.ChannelEmail] = emailBatcher
	} else {
		logger.Warn("email channel disabled: relay endpoint not configured")
	}

	if cfg.PushEnabled() {
		pushAdapter, err := adapter.NewPushAdapter(cfg.PushAPIURL, cfg.PushAPIKey)
		if err != nil {
			logger.Fatal("push adapter initialization failed", zap.Error(err))
		}
		adapters = append(adapters, pushAdapter)
	} else {
		logger.Warn("push channel disabled: gateway endpoint not configured")
	}

	retryPolicy := policy.NewRetryPolicy(
		cfg.RetryBaseDelay(),
		cfg.RetryMaxDelay(),
		cfg.RetryMultiplier,
		cfg.RetryMaxRetries,
		cfg.RetryMaxJitter(),
	)

	notificationRepo := repository.NewGormNotificationRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)
	preferenceRepo := repository.NewGormPreferenceRepo(db)

	notificationSvc, err := service.NewNotificationService(notificationRepo, publisher, logger)
	if err != nil {
		logger.Fatal("notification service initialization failed", zap.Error(err))
	}

	feedSvc, err := service.NewFeedService(notificationRepo, preferenceRepo, logger)
	if err != nil {
		logger.Fatal("feed service initialization failed", zap.Error(err))
	}

	analyticsSvc, err := service.NewAnalyticsService(attemptRepo, cfg.AttemptRetention(), logger)
	if err != nil {
		logger.Fatal("analytics service initialization failed", zap.Error(err))
	}

	orchestrator, err := service.NewOrchestrator(
		notificationRepo,
		attemptRepo,
		preferenceRepo,
		consumer,
		adapters,
		batchers,
		retryPolicy,
		rateLimiter,
		cfg.DispatchConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("orchestrator initialization failed", zap.Error(err))
	}
	orchestrator.SetMetrics(metrics)

	scheduler, err := service.NewScheduler(
		notificationRepo,
		publisher,
		registry,
		cfg.ScanInterval(),
		cfg.ScanLimit,
		cfg.ConnectionTTL(),
		logger,
	)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}

	retryScanner, err := service.NewRetryScanner(notificationRepo, publisher, cfg.ScanInterval(), cfg.ScanLimit, logger)
	if err != nil {
		logger.Fatal("retry scanner initialization failed", zap.Error(err))
	}

	reaper, err := service.NewReaper(
		notificationRepo,
		retryPolicy,
		cfg.ScanInterval(),
		cfg.StaleSendingAfter(),
		cfg.ScanLimit,
		logger,
	)
	if err != nil {
		logger.Fatal("reaper initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "notify-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(requestid.New())
	app.Use(transport.RequestContext())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, mq)
	if err := handler.RegisterEventRoutes(app, notificationSvc); err != nil {
		logger.Fatal("event route registration failed", zap.Error(err))
	}
	if err := handler.RegisterFeedRoutes(app, feedSvc); err != nil {
		logger.Fatal("feed route registration failed", zap.Error(err))
	}
	if err := handler.RegisterStatsRoutes(app, analyticsSvc); err != nil {
		logger.Fatal("stats route registration failed", zap.Error(err))
	}
	handler.RegisterRealtimeRoutes(app, registry, metrics)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return orchestrator.Start(gctx) })
	g.Go(func() error { return scheduler.Start(gctx) })
	g.Go(func() error { return retryScanner.Start(gctx) })
	g.Go(func() error { return reaper.Start(gctx) })
	g.Go(func() error { return bridge.Start(gctx) })
	g.Go(func() error { return analyticsSvc.StartRetention(gctx) })
	for _, b := range batchers {
		g.Go(func() error { return b.Start(gctx) })
	}

	g.Go(func() error {
		logger.Info("notify-engine api started",
			zap.Int("port", cfg.APIPort),
			zap.String("node", registry.Node()),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("notify-engine terminated", zap.Error(err))
	}

	logger.Info("notify-engine stopped")
}
