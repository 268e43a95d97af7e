package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/domain"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/observability"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/service"
)

var tracer = otel.Tracer("handler")

// HealthCheck probes one dependency for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Services groups the use cases the router exposes. A nil service leaves
// its routes unmounted.
type Services struct {
	Auth         *service.AuthService
	Verification *service.ProVerificationService
	Catalog      *service.CatalogService
	Cart         *service.CartService
	Checkout     *service.CheckoutService
}

// Options holds router settings.
type Options struct {
	WebhookSecret string
	DevTools      bool
	HealthChecks  []HealthCheck
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(opts.HealthChecks))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if svcs.Auth == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
			}))
			return
		}

		// =============================================
		// Authentication (public)
		// =============================================
		r.Post("/auth/register", authRegisterHandler(svcs.Auth, logger))
		r.Post("/auth/login", authLoginHandler(svcs.Auth, logger))

		// =============================================
		// Payment provider callbacks (shared secret)
		// =============================================
		if svcs.Checkout != nil {
			r.Post("/payments/webhook", paymentWebhookHandler(svcs.Checkout, opts.WebhookSecret, logger))
		}

		// =============================================
		// Authenticated routes
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svcs.Auth, logger))

			if svcs.Verification != nil {
				r.Get("/account", getAccountHandler(svcs.Verification, logger))
				r.Post("/account/pro-verification", submitProVerificationHandler(svcs.Verification, logger))
			}

			if svcs.Cart != nil {
				r.Get("/cart", getCartHandler(svcs.Cart, logger))
				r.Post("/cart/items", addCartItemHandler(svcs.Cart, logger))
				r.Put("/cart/items/{productId}", updateCartItemHandler(svcs.Cart, logger))
				r.Delete("/cart/items/{productId}", removeCartItemHandler(svcs.Cart, logger))
			}

			if svcs.Checkout != nil {
				r.Post("/checkout", checkoutHandler(svcs.Checkout, logger))
				r.Get("/orders/{orderId}", getOrderHandler(svcs.Checkout, logger))
			}

			// =============================================
			// Admin
			// =============================================
			r.Route("/admin", func(r chi.Router) {
				r.Use(AdminOnly(logger))

				if svcs.Verification != nil {
					r.Get("/accounts/{accountId}", adminGetAccountHandler(svcs.Verification, logger))
					r.Post("/accounts/{accountId}/pro-decision", proDecisionHandler(svcs.Verification, logger))
					r.Post("/accounts/{accountId}/pro-retry", proRetryHandler(svcs.Verification, logger))
					r.Post("/accounts/{accountId}/vat-decision", vatDecisionHandler(svcs.Verification, logger))
				}
				if svcs.Catalog != nil {
					r.Put("/products/{productId}", upsertProductHandler(svcs.Catalog, logger))
					r.Put("/products/{productId}/minimum-quantity", setMinimumQuantityHandler(svcs.Catalog, logger))
					r.Delete("/products/{productId}/minimum-quantity", deleteMinimumQuantityHandler(svcs.Catalog, logger))
				}
			})

			// =============================================
			// 🛠 Dev Tools (DEV_TOOLS=true only)
			// =============================================
			if opts.DevTools && svcs.Verification != nil {
				r.Post("/dev/accounts/{accountId}/pro-status", devSetProStatusHandler(svcs.Verification, logger))
			}
		})
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		now := time.Now().Format(time.RFC3339)
		resp := domain.HealthStatus{
			Status:   "healthy",
			Services: []domain.ServiceHealth{{Name: observability.ServiceName, Status: "healthy", LastChecked: now}},
		}

		for _, c := range checks {
			start := time.Now()
			err := c.Check(ctx)
			sh := domain.ServiceHealth{
				Name:        c.Name,
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				sh.Status = "degraded"
				sh.Error = err.Error()
				resp.Status = "degraded"
			}
			resp.Services = append(resp.Services, sh)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
