package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cobrafacil/cobrafacil-backend/api/controllers"
	webhookcontrollers "github.com/cobrafacil/cobrafacil-backend/api/controllers/webhooks"
	"github.com/cobrafacil/cobrafacil-backend/api/middleware"
	"github.com/cobrafacil/cobrafacil-backend/internal/integrations"
	"github.com/cobrafacil/cobrafacil-backend/internal/invoices"
	"github.com/cobrafacil/cobrafacil-backend/internal/subscriptions"
	"github.com/cobrafacil/cobrafacil-backend/pkg/config"
	"github.com/cobrafacil/cobrafacil-backend/pkg/db"
	"github.com/cobrafacil/cobrafacil-backend/pkg/logger"
	"github.com/cobrafacil/cobrafacil-backend/pkg/redis"
)

// RouterParams collects everything the HTTP surface depends on.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         redis.Pinger
	Subscriptions subscriptions.Service
	Invoices      invoices.Service
	Integrations  integrations.Service
	PixWebhook    webhookcontrollers.PixWebhookService
	Metrics       prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(p.Config.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, p.DB, p.Redis))
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Metrics, promhttp.HandlerOpts{}))
	}

	// Gateway callbacks carry no tenant header; the txid resolves the
	// invoice and with it the tenant.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		pixHandler := webhookcontrollers.PixWebhook(p.PixWebhook, p.Logger)
		if token := p.Config.Webhook.PathToken; token != "" {
			r.With(middleware.WebhookToken(token, p.Logger)).Post("/pix/{token}", pixHandler)
		} else {
			r.Post("/pix", pixHandler)
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.TenantID(p.Logger))

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.SubscriptionCreate(p.Subscriptions, p.Logger))
			r.Get("/", controllers.SubscriptionList(p.Subscriptions, p.Logger))
			r.Get("/{subscriptionId}", controllers.SubscriptionGet(p.Subscriptions, p.Logger))
			r.Post("/{subscriptionId}/renew", controllers.SubscriptionRenew(p.Subscriptions, p.Logger))
			r.Post("/{subscriptionId}/cancel", controllers.SubscriptionCancel(p.Subscriptions, p.Logger))
			r.Post("/{subscriptionId}/suspend", controllers.SubscriptionSuspend(p.Subscriptions, p.Logger))
			r.Post("/{subscriptionId}/reactivate", controllers.SubscriptionReactivate(p.Subscriptions, p.Logger))
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", controllers.InvoiceGenerate(p.Invoices, p.Logger))
			r.Get("/", controllers.InvoiceList(p.Invoices, p.Logger))
			r.Get("/{invoiceId}", controllers.InvoiceGet(p.Invoices, p.Logger))
			r.Post("/{invoiceId}/cancel", controllers.InvoiceCancel(p.Invoices, p.Logger))
			r.Post("/{invoiceId}/payments", controllers.InvoiceManualPayment(p.Invoices, p.Logger))
			r.Post("/{invoiceId}/pix-charge", controllers.InvoicePixCharge(p.Invoices, p.Logger))
		})

		r.Route("/integrations", func(r chi.Router) {
			r.Put("/pix", controllers.IntegrationConfigurePix(p.Integrations, p.Logger))
		})
	})

	// The generation batch spans all tenants, so it lives outside the
	// tenant-scoped group.
	r.Post("/api/v1/ops/billing-cycle/run", controllers.BillingCycleRun(p.Subscriptions, p.Logger))

	return r
}
