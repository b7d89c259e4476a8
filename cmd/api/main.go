package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cobrafacil/cobrafacil-backend/api/routes"
	"github.com/cobrafacil/cobrafacil-backend/internal/efi"
	"github.com/cobrafacil/cobrafacil-backend/internal/integrations"
	"github.com/cobrafacil/cobrafacil-backend/internal/invoices"
	"github.com/cobrafacil/cobrafacil-backend/internal/subscriptions"
	pixwebhook "github.com/cobrafacil/cobrafacil-backend/internal/webhooks/pix"
	"github.com/cobrafacil/cobrafacil-backend/pkg/config"
	"github.com/cobrafacil/cobrafacil-backend/pkg/db"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
	"github.com/cobrafacil/cobrafacil-backend/pkg/metrics"
	"github.com/cobrafacil/cobrafacil-backend/pkg/migrate"
	"github.com/cobrafacil/cobrafacil-backend/pkg/redis"
)

const pixWebhookScope = "webhook:pix"

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

	gatewayMetrics := metrics.NewGatewayMetrics(prometheus.DefaultRegisterer)

	integrationService, err := integrations.NewService(integrations.NewRepository(dbClient.DB()), cfg.Efi)
	if err != nil {
		logg.Error(context.Background(), "failed to create integration service", err)
		os.Exit(1)
	}

	efiClient, err := efi.NewClient(efi.ClientParams{
		Config:  cfg.Efi,
		Tokens:  efi.NewTokenCache(),
		Logger:  logg,
		Metrics: gatewayMetrics,
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

	webhookGuard, err := pixwebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, pixWebhookScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	webhookService, err := pixwebhook.NewService(pixwebhook.ServiceParams{
		Payments: invoiceService,
		Guard:    webhookGuard,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Subscriptions: subscriptionService,
			Invoices:      invoiceService,
			Integrations:  integrationService,
			PixWebhook:    webhookService,
			Metrics:       prometheus.DefaultGatherer,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
