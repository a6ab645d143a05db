package main

import (
	"context"
	"net/http"
	"os"

	"github.com/angelmondragon/bidfinderz-backend/api/routes"
	"github.com/angelmondragon/bidfinderz-backend/internal/audit"
	"github.com/angelmondragon/bidfinderz-backend/internal/bidding"
	"github.com/angelmondragon/bidfinderz-backend/internal/credit"
	"github.com/angelmondragon/bidfinderz-backend/internal/notify"
	"github.com/angelmondragon/bidfinderz-backend/pkg/config"
	"github.com/angelmondragon/bidfinderz-backend/pkg/db"
	"github.com/angelmondragon/bidfinderz-backend/pkg/logger"
	"github.com/angelmondragon/bidfinderz-backend/pkg/migrate"
	"github.com/angelmondragon/bidfinderz-backend/pkg/pubsub"
	"github.com/angelmondragon/bidfinderz-backend/pkg/redis"
	"github.com/joho/godotenv"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	biddingService, err := bidding.NewService(
		dbClient,
		bidding.NewRepository(dbClient.DB()),
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, biddingService, creditService, auditService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// buildSender prefers Pub/Sub delivery and falls back to log-only delivery
// when the notification feature is off or no GCP project is configured.
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
