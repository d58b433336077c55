package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/account-service/internal/api/http"
	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/mail"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/persistence"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
	"github.com/spec-kit/account-service/internal/worker"
)

// notificationChannel is the Publisher the dispatcher writes to and the
// ConsumerFactory the worker reads from.
type notificationChannel interface {
	events.Publisher
	events.ConsumerFactory
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	deps := map[string]handlers.Pinger{}

	var accounts repository.AccountRepository
	if pg.Enabled() {
		accounts = repository.NewAccountRepository(pg.PoolHandle())
		deps["postgres"] = pg
	} else {
		accounts = repository.NewMemoryAccountRepository()
	}

	var (
		channel     notificationChannel
		memoryQueue *events.MemoryQueue
	)
	switch cfg.Notification.Channel {
	case config.ChannelMemory:
		queue := events.NewMemoryQueue(1024, cfg.Notification.BlockTimeout())
		defer queue.Close()
		channel = queue
		memoryQueue = queue
	default:
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		deps["redis"] = redis

		stream := events.NewRedisStream(redis.Client, events.StreamOptions{
			Stream:      cfg.Notification.Stream,
			Group:       cfg.Notification.Group,
			Block:       cfg.Notification.BlockTimeout(),
			ReclaimIdle: cfg.Notification.ReclaimIdle(),
		}, logger)
		if err := stream.EnsureGroup(ctx); err != nil {
			logger.Warn("unable to create notification consumer group", zap.Error(err))
		}
		channel = stream
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.App.Name, cfg.Auth.AccessTokenTTL())
	dispatcher := service.NewNotificationDispatcher(channel, logger, metrics, cfg.Notification.PublishTimeout())

	accountService, err := service.NewAccountService(*cfg, service.AccountDependencies{
		Accounts: accounts,
		Tokens:   tokens,
		Notifier: dispatcher,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		logger.Fatal("failed to build account service", zap.Error(err))
	}

	renderer, err := mail.NewRenderer()
	if err != nil {
		logger.Fatal("failed to load mail templates", zap.Error(err))
	}
	var sender mail.Sender
	if cfg.SMTP.Host != "" {
		sender = mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	} else {
		logger.Warn("SMTP_HOST not provided; activation mails will only be logged")
		sender = mail.NewLogSender(logger)
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = cfg.App.Name
	}
	mailer := worker.NewNotificationWorker(channel, renderer, sender, logger, metrics, worker.Options{
		Name:        hostname,
		Concurrency: cfg.Notification.WorkerConcurrency,
		SendTimeout: cfg.Notification.SendTimeout(),
		From:        cfg.Notification.EmailFrom,
		Subject:     cfg.Notification.EmailSubject,
	})

	workerCtx, stopWorker := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mailer.Run(workerCtx)
	}()
	// Failed sends stay pending in the memory queue until they idle out.
	if idle := cfg.Notification.ReclaimIdle(); memoryQueue != nil && idle > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			memoryQueue.RequeueEvery(workerCtx, idle, idle)
		}()
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.App.CORSAllowedOrigins,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Accounts:       handlers.NewAccountsHandler(accountService),
		AuthMiddleware: auth.NewAuthMiddleware(accountService.TokenManager()),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	stopWorker()
	wg.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
