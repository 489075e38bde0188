package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/xhaelri/qitchen/internal"
	"github.com/xhaelri/qitchen/internal/billing"
	"github.com/xhaelri/qitchen/internal/cache"
	"github.com/xhaelri/qitchen/internal/delivery"
	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/events"
	"github.com/xhaelri/qitchen/internal/handler"
	"github.com/xhaelri/qitchen/internal/handler/api"
	"github.com/xhaelri/qitchen/internal/handler/webhook"
	"github.com/xhaelri/qitchen/internal/memory"
	"github.com/xhaelri/qitchen/internal/middleware"
	"github.com/xhaelri/qitchen/internal/payment"
	"github.com/xhaelri/qitchen/internal/postgres"
	"github.com/xhaelri/qitchen/internal/pricing"
	"github.com/xhaelri/qitchen/internal/router"
	"github.com/xhaelri/qitchen/internal/routes"
	"github.com/xhaelri/qitchen/internal/service"
	"github.com/xhaelri/qitchen/internal/telemetry"
	"github.com/xhaelri/qitchen/internal/worker"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	// Error tracking
	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flushSentry()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := middleware.NewMetrics(cfg.MetricsNamespace, reg)
	business := telemetry.NewBusinessMetrics(cfg.MetricsNamespace, reg)

	checks := map[string]api.HealthCheck{}

	// Store
	store, closeStore, err := openStore(ctx, cfg, logger, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	// Shared cache, optional
	var sharedCache cache.Cache
	if cfg.RedisURL != "" {
		redis, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redis.Close()
		sharedCache = redis
		checks["redis"] = redis.Ping
		logger.Info("Redis cache enabled")
	} else {
		logger.Info("Redis not configured, caching and webhook de-duplication disabled")
	}

	// Order events, optional
	var publisher events.Publisher = events.Nop{}
	if cfg.NatsURL != "" {
		nc, err := events.Connect(cfg.NatsURL, cfg.EventsPrefix, logger)
		if err != nil {
			return fmt.Errorf("nats connection failed: %w", err)
		}
		defer nc.Close()
		publisher = nc
		logger.Info("Order events enabled", "prefix", cfg.EventsPrefix)
	}

	// Payment gateways, optional
	stripeGateway, paymobGateway, err := openGateways(cfg, logger)
	if err != nil {
		return err
	}

	// Services
	configs := payment.NewConfigs(store, sharedCache, cfg.CacheNamespace, logger)
	methods := payment.NewMethods(store)
	engine := pricing.NewEngine(store, store)
	urls := payment.URLs{FrontendURL: cfg.FrontendURL, BaseURL: cfg.BaseURL}
	selector := payment.NewSelector(payment.Deps{
		Configs: configs,
		Stripe:  stripeGateway,
		Paymob:  paymobGateway,
		URLs:    urls,
		Logger:  logger,
	})
	gate := service.NewReservationGate(store, cfg.ReservationSlot, business)

	orderService := service.NewOrderService(service.OrderDeps{
		Store:        store,
		Pricing:      engine,
		Delivery:     delivery.NewResolver(store, configs),
		Methods:      methods,
		Configs:      configs,
		Payments:     selector,
		Reservations: gate,
		Events:       publisher,
		Metrics:      business,
		Logger:       logger,
	})
	reconciler := service.NewReconciler(service.ReconcilerDeps{
		Store:     store,
		Stripe:    stripeGateway,
		Paymob:    paymobGateway,
		Cache:     sharedCache,
		Namespace: cfg.CacheNamespace,
		Events:    publisher,
		Metrics:   business,
		Logger:    logger,
	})
	cartService := service.NewCartService(store, engine, business, logger)
	adminService := service.NewAdminService(store, configs, methods, logger)
	reservationService := service.NewReservationService(gate, store, logger)

	// HTTP
	securityConfig := middleware.DefaultSecurityHeadersConfig()
	if cfg.Env == "prod" {
		securityConfig.HSTSMaxAge = 31536000
	}

	rateLimit := middleware.DefaultRateLimiterConfig()
	rateLimit.RequestsPerSecond = cfg.RateLimitRPS
	rateLimit.BurstSize = cfg.RateLimitBurst

	r := router.New(
		middleware.RequestID,
		middleware.WithClientIP(),
		middleware.WithRequestLogger(logger),
		router.Recovery(logger),
		telemetry.SentryMiddleware(),
		middleware.SecurityHeaders(securityConfig),
		router.CORS([]string{cfg.FrontendURL}),
		httpMetrics.Middleware,
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		middleware.Timeout(middleware.DefaultTimeout),
		middleware.RateLimit(rateLimit),
		router.Logger(logger),
		middleware.WithUser,
		telemetry.SentryContextMiddleware(sentryUser),
	)
	r.NotFound(handler.NotFoundResponse)

	orderHandler := api.NewOrderHandler(orderService)
	routes.RegisterOpsRoutes(r, routes.OpsDeps{
		Health:  api.Health(checks),
		Metrics: httpMetrics.Handler(),
	})
	routes.RegisterAPIRoutes(r, routes.APIDeps{
		Orders:         orderHandler,
		Carts:          api.NewCartHandler(cartService),
		Reservations:   api.NewReservationHandler(reservationService),
		PaymentMethods: api.NewPaymentMethodHandler(methods),
		CheckoutLimit:  middleware.RateLimit(middleware.StrictRateLimiterConfig()),
	})
	routes.RegisterAdminRoutes(r, routes.AdminDeps{
		Admin:  api.NewAdminHandler(adminService),
		Orders: orderHandler,
	})
	routes.RegisterWebhookRoutes(r, routes.WebhookDeps{
		Handler: webhook.NewHandler(reconciler, urls, logger),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	sweeper := worker.NewWorker(orderService, worker.Config{
		PollInterval:   cfg.SweepInterval,
		StaleAfter:     cfg.StaleOrderAfter,
		BatchSize:      cfg.SweepBatch,
		MaxConcurrency: cfg.SweepWorkers,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore returns the Postgres store when DATABASE_URL is set, otherwise
// the in-memory store.
func openStore(ctx context.Context, cfg *internal.Config, logger *slog.Logger, checks map[string]api.HealthCheck) (domain.Store, func(), error) {
	if cfg.DatabaseUrl == "" {
		logger.Warn("DATABASE_URL not set, using the in-memory store")
		return memory.New(), func() {}, nil
	}

	// Run migrations
	logger.Info("Running database migrations...")
	sqlDB, err := internal.OpenMigrationDB(cfg.DatabaseUrl)
	if err != nil {
		return nil, nil, err
	}
	err = internal.RunMigrations(sqlDB)
	sqlDB.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	pool, err := postgres.Connect(ctx, cfg.DatabaseUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	store := postgres.New(pool, logger)
	if err := store.SeedPaymentMethods(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("seed payment methods: %w", err)
	}
	checks["postgres"] = pool.Ping
	logger.Info("Database connection established")
	return store, pool.Close, nil
}

// openGateways builds the clients for every gateway with credentials. A
// gateway without credentials stays nil and its methods fail as
// unavailable.
func openGateways(cfg *internal.Config, logger *slog.Logger) (billing.StripeGateway, billing.PaymobGateway, error) {
	var (
		stripeGateway billing.StripeGateway
		paymobGateway billing.PaymobGateway
	)
	transport := &telemetry.HTTPTransport{}

	if cfg.Stripe.Enabled() {
		p, err := billing.NewStripeProvider(billing.StripeConfig{
			APIKey:        cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Timeout:       cfg.GatewayTimeout,
			Transport:     transport,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("stripe initialization failed: %w", err)
		}
		stripeGateway = p
		logger.Info("Stripe enabled")
	} else {
		logger.Warn("Stripe not configured, card payments unavailable")
	}

	if cfg.Paymob.Enabled() {
		p, err := billing.NewPaymobProvider(billing.PaymobConfig{
			BaseURL:    cfg.Paymob.BaseURL,
			APIKey:     cfg.Paymob.APIKey,
			SecretKey:  cfg.Paymob.SecretKey,
			PublicKey:  cfg.Paymob.PublicKey,
			HMACSecret: cfg.Paymob.HMACSecret,
			Timeout:    cfg.GatewayTimeout,
			Transport:  transport,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("paymob initialization failed: %w", err)
		}
		paymobGateway = p
		logger.Info("Paymob enabled")
	} else {
		logger.Warn("Paymob not configured, aggregator payments unavailable")
	}

	return stripeGateway, paymobGateway, nil
}

func sentryUser(ctx context.Context) *telemetry.UserInfo {
	user := domain.UserFromContext(ctx)
	if user == nil {
		return nil
	}
	return &telemetry.UserInfo{ID: user.ID.String(), Email: user.Email, Role: string(user.Role)}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
