package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rohanvm/shopveda-backend/api/controllers"
	webhookcontrollers "github.com/rohanvm/shopveda-backend/api/controllers/webhooks"
	"github.com/rohanvm/shopveda-backend/api/middleware"
	"github.com/rohanvm/shopveda-backend/internal/orders"
	razorpaywebhook "github.com/rohanvm/shopveda-backend/internal/webhooks/razorpay"
	"github.com/rohanvm/shopveda-backend/pkg/config"
	"github.com/rohanvm/shopveda-backend/pkg/enums"
	"github.com/rohanvm/shopveda-backend/pkg/logger"
	"github.com/rohanvm/shopveda-backend/pkg/razorpay"
	"github.com/rohanvm/shopveda-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              controllers.Pinger
	Redis           *redis.Client
	OrdersService   orders.Service
	PaymentsService controllers.PaymentsService
	Gateway         *razorpay.Client
	WebhookService  *razorpaywebhook.Service
	WebhookGuard    *razorpaywebhook.IdempotencyGuard
	MetricsRegistry *prometheus.Registry
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.DB, logg))
	})

	if p.MetricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", webhookcontrollers.RazorpayWebhook(p.WebhookService, p.Gateway, p.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Post("/checkout", controllers.Checkout(p.OrdersService, logg))
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(p.OrdersService, logg))
			r.Get("/{orderID}", controllers.GetOrder(p.OrdersService, logg))
		})
		r.Route("/payments", func(r chi.Router) {
			r.Post("/create", controllers.CreatePayment(p.PaymentsService, logg))
			r.Post("/verify", controllers.VerifyPayment(p.PaymentsService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))

		r.Post("/orders/{orderID}/status", controllers.AdminUpdateOrderStatus(p.OrdersService, logg))
	})

	return r
}
