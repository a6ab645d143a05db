package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bidfinderz-backend/internal/audit"
	"github.com/angelmondragon/bidfinderz-backend/internal/bidding"
	"github.com/angelmondragon/bidfinderz-backend/internal/credit"
	"github.com/angelmondragon/bidfinderz-backend/internal/cron"
	"github.com/angelmondragon/bidfinderz-backend/internal/notify"
	"github.com/angelmondragon/bidfinderz-backend/pkg/config"
	"github.com/angelmondragon/bidfinderz-backend/pkg/db"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
	"github.com/angelmondragon/bidfinderz-backend/pkg/metrics"
	"github.com/angelmondragon/bidfinderz-backend/pkg/migrate"
	"github.com/angelmondragon/bidfinderz-backend/pkg/pubsub"
	"github.com/angelmondragon/bidfinderz-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweep-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sweep-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sweep-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sender, cleanup, err := buildSender(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification sender", err)
		os.Exit(1)
	}
	defer cleanup()

	auditService, err := audit.NewService(audit.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	creditService, err := credit.NewService(dbClient, credit.NewRepository(dbClient.DB()), cfg.Credit, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create credit service", err)
		os.Exit(1)
	}

	biddingRepo := bidding.NewRepository(dbClient.DB())
	biddingService, err := bidding.NewService(
		dbClient,
		biddingRepo,
		creditService,
		auditService,
		sender,
		cfg.Bidding,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create bidding service", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewBidTimeoutJob(cron.BidTimeoutJobParams{
		Logger:        logg,
		ExpiredOrders: biddingRepo,
		Resolver:      biddingService,
		Metrics:       metrics.NewSweepMetrics(prometheus.DefaultRegisterer),
		BatchSize:     cfg.Bidding.SweepBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bid timeout job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("sweep-worker", cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Bidding.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sweep worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweep worker shutting down gracefully")
}

func buildSender(ctx context.Context, cfg *config.Config, logg *logger.Logger) (notify.Sender, func(), error) {
	noop := func() {}

	if !cfg.FeatureFlags.Notifications || cfg.GCP.ProjectID == "" {
		sender, err := notify.NewLogSender(logg)
		return sender, noop, err
	}

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, noop, err
	}
	sender, err := notify.NewPubSubSender(psClient.NotificationPublisher(), logg)
	if err != nil {
		_ = psClient.Close()
		return nil, noop, err
	}
	cleanup := func() {
		if err := psClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}
	return sender, cleanup, nil
}
