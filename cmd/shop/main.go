package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	red "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/config"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/handler"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/client"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/events"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/memory"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/observability"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/payment"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/postgres"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/ratelimit"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/resilience"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/scheduler"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/tasks"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/port"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/pricing"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/service"
)

// shopStore is everything the services need from persistence.
type shopStore interface {
	port.AccountStore
	port.CatalogStore
	port.CartStore
	port.OrderStore
	Ping(ctx context.Context) error
}

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.Duration("sirene_timeout", cfg.SireneTimeout),
		zap.Duration("vies_timeout", cfg.ViesTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("order_ttl", cfg.OrderTTL),
		zap.Bool("dev_tools", cfg.DevTools),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, observability.ServiceName)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	// --- Storage ---
	var store shopStore
	var closeStore func()
	if cfg.DatabaseURL != "" {
		pg, err := postgres.NewStore(startCtx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		if err := pg.Migrate(startCtx); err != nil {
			logger.Fatal("failed to apply schema", zap.Error(err))
		}
		logger.Info("using postgres store")
		store, closeStore = pg, pg.Close
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		store, closeStore = memory.New(), func() {}
	}
	defer closeStore()

	// --- Registry token cache ---
	var tokens port.TokenCache
	healthChecks := []handler.HealthCheck{{Name: "store", Check: store.Ping}}
	if cfg.RedisURL != "" {
		opts, err := red.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := red.NewClient(opts)
		defer rdb.Close()
		tokens = client.NewRedisTokenCache(rdb, logger)
		healthChecks = append(healthChecks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	} else {
		mem := client.NewMemoryTokenCache()
		defer mem.Close()
		tokens = mem
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	onBreakerChange := func(name string, from, to gobreaker.State) {
		logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		metrics.SetBreakerState(name, int(to))
	}
	sireneBreaker := resilience.NewCircuitBreaker("sirene",
		resilience.WithSuccessClassifier(client.BreakerSuccess),
		resilience.WithStateChange(onBreakerChange),
	)
	viesBreaker := resilience.NewCircuitBreaker("vies",
		resilience.WithSuccessClassifier(client.BreakerSuccess),
		resilience.WithStateChange(onBreakerChange),
	)

	// --- Registry clients ---
	// Each registry call is bounded by its own context deadline.
	sirene := client.NewSireneClient(
		&http.Client{},
		client.SireneConfig{
			BaseURL:        cfg.SireneBaseURL,
			ConsumerKey:    cfg.SireneConsumerKey,
			ConsumerSecret: cfg.SireneConsumerSecret,
			Timeout:        cfg.SireneTimeout,
		},
		tokens,
		ratelimit.NewWindow(cfg.SireneRateLimit, cfg.SireneRateWindow),
		sireneBreaker,
		metrics,
		logger,
	)
	vies := client.NewViesClient(&http.Client{}, cfg.ViesBaseURL, cfg.ViesTimeout, viesBreaker, resilienceCfg, metrics, logger)

	// --- Events ---
	var publisher port.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		publisher = kp
	} else {
		publisher = events.NewLogPublisher(logger)
	}

	// --- Background tasks ---
	dispatcher := tasks.NewDispatcher(cfg.MaxConcurrency, cfg.TaskTimeout, metrics, logger)

	// --- Services ---
	authSvc := service.NewAuthService(store, cfg.JWTSecret, cfg.JWTAccessTTL, logger)
	if cfg.AdminEmail != "" {
		if err := authSvc.EnsureAdmin(startCtx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Fatal("failed to provision admin account", zap.Error(err))
		}
	}
	verificationSvc := service.NewProVerificationService(store, sirene, vies, dispatcher, publisher, metrics, logger)
	catalogSvc := service.NewCatalogService(store, logger)
	cartSvc := service.NewCartService(store, store, store, store, pricing.Config{
		DeliveryFee:           cfg.DeliveryFee,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
	}, logger)
	checkoutSvc := service.NewCheckoutService(
		cartSvc,
		store,
		store,
		payment.NewStubGateway(cfg.PaymentCheckoutURL, logger),
		publisher,
		service.CheckoutConfig{Currency: cfg.Currency, OrderTTL: cfg.OrderTTL},
		metrics,
		logger,
	)

	// --- Scheduled jobs ---
	jobs := scheduler.New(metrics, logger)
	if err := jobs.Add(scheduler.Job{
		Name: "order_sweep",
		Spec: cfg.OrderSweepSchedule,
		Run: func(ctx context.Context) error {
			_, err := checkoutSvc.SweepExpired(ctx)
			return err
		},
	}); err != nil {
		logger.Fatal("failed to schedule order sweep", zap.Error(err))
	}
	jobs.Start()

	// --- Router ---
	router := handler.NewRouter(
		handler.Services{
			Auth:         authSvc,
			Verification: verificationSvc,
			Catalog:      catalogSvc,
			Cart:         cartSvc,
			Checkout:     checkoutSvc,
		},
		handler.Options{
			WebhookSecret: cfg.PaymentWebhookSecret,
			DevTools:      cfg.DevTools,
			HealthChecks:  healthChecks,
		},
		metrics,
		logger,
	)
	if cfg.DevTools {
		logger.Warn("dev tools enabled: /v1/dev routes are exposed")
	}

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}
	if err := dispatcher.Shutdown(ctx); err != nil {
		logger.Error("background tasks did not drain", zap.Error(err))
	}
	if err := jobs.Stop(ctx); err != nil {
		logger.Error("scheduler did not stop", zap.Error(err))
	}
	publisher.Close()

	logger.Info("server stopped")
}
