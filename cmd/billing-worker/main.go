package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cobrafacil/cobrafacil-backend/internal/cron"
	"github.com/cobrafacil/cobrafacil-backend/internal/efi"
	"github.com/cobrafacil/cobrafacil-backend/internal/integrations"
	"github.com/cobrafacil/cobrafacil-backend/internal/invoices"
	"github.com/cobrafacil/cobrafacil-backend/internal/subscriptions"
	"github.com/cobrafacil/cobrafacil-backend/pkg/config"
	"github.com/cobrafacil/cobrafacil-backend/pkg/db"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
	"github.com/cobrafacil/cobrafacil-backend/pkg/metrics"
	"github.com/cobrafacil/cobrafacil-backend/pkg/migrate"
	"github.com/cobrafacil/cobrafacil-backend/pkg/redis"
)

const lockScope = "billing-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: "billing-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "billing-worker"

	logg = logger.New(logger.Options{
		ServiceName: "billing-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
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

	integrationService, err := integrations.NewService(integrations.NewRepository(dbClient.DB()), cfg.Efi)
	if err != nil {
		logg.Error(context.Background(), "failed to create integration service", err)
		os.Exit(1)
	}

	efiClient, err := efi.NewClient(efi.ClientParams{
		Config:  cfg.Efi,
		Tokens:  efi.NewTokenCache(),
		Logger:  logg,
		Metrics: metrics.NewGatewayMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway client", err)
		os.Exit(1)
	}

	invoiceRepo := invoices.NewRepository(dbClient.DB())
	subscriptionRepo := subscriptions.NewRepository(dbClient.DB())

	invoiceService, err := invoices.NewService(invoices.ServiceParams{
		Repo:          invoiceRepo,
		Subscriptions: subscriptionRepo,
		Tx:            dbClient,
		Resolver:      integrationService,
		Charges:       efiClient,
		Logger:        logg,
		Billing:       cfg.Billing,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create invoice service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:         subscriptionRepo,
		Invoices:     invoiceService,
		InvoiceStore: invoiceRepo,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	billingJob, err := cron.NewBillingCycleJob(cron.BillingCycleJobParams{
		Logger:        logg,
		Subscriptions: subscriptionService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing cycle job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockScope), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(billingJob),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Billing.WorkerInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting billing worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "billing worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "billing worker shutting down gracefully")
}
