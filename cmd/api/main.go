package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "github.com/ghuser/farmstand/docs/swagger"
	"github.com/ghuser/farmstand/pkg/app"
	"github.com/ghuser/farmstand/pkg/auth"
	"github.com/ghuser/farmstand/pkg/cache"
	"github.com/ghuser/farmstand/pkg/clock"
	"github.com/ghuser/farmstand/pkg/config"
	"github.com/ghuser/farmstand/pkg/database"
	"github.com/ghuser/farmstand/pkg/docstore"
	"github.com/ghuser/farmstand/pkg/events"
	"github.com/ghuser/farmstand/pkg/httpx"
	"github.com/ghuser/farmstand/pkg/logger"
	"github.com/ghuser/farmstand/pkg/telemetry"
	inventoryApi "github.com/ghuser/farmstand/services/inventory/application/api"
	"github.com/ghuser/farmstand/services/inventory/application/consumers"
	appsvcs "github.com/ghuser/farmstand/services/inventory/application/services"
)

// @title					Farmstand API
// @version				1.0
// @description			Farm shop catalog, carts with time-limited stock reservations, and order fulfilment.
// @termsOfService			http://swagger.io/terms/
// @contact.name			API Support
// @contact.email			support@farmstand.example
// @license.name			MIT
// @license.url			https://opensource.org/licenses/MIT
// @host					localhost:8080
// @BasePath				/api
// @schemes				http https
//
// @securityDefinitions.apikey	SessionCookie
// @in							cookie
// @name						farmstand_session
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)

	// Telemetry: OTel tracing + metrics
	ctx := context.Background()
	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	// Crash reporting: Sentry (optional, log and continue on failure)
	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1) //nolint:gocritic // intentional: startup failure, deferred flushes are best-effort
	}
	defer redisClient.Close() //nolint:errcheck
	log.Info("redis connected")

	sessionStore := auth.NewSessionStore(
		redisClient.Client(),
		[]byte(cfg.SessionAuthKey),
		[]byte(cfg.SessionEncryptionKey),
		auth.SessionOptions{MaxAge: cfg.SessionMaxAge, Secure: cfg.Environment == config.EnvProduction},
	)
	log.Info("session store initialized", "backend", "redis")

	appConfig := &app.Application{
		Config:       cfg,
		Clock:        clock.Real(),
		Logger:       log,
		Redis:        redisClient,
		SessionStore: sessionStore,
	}

	// Background work for the memory backend stops with this context.
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	switch cfg.StoreBackend {
	case config.StoreMemory:
		bus := events.NewInMemoryEventBus(log)
		defer bus.Close() //nolint:errcheck

		appConfig.EventBus = bus
		appConfig.Store = docstore.NewMemoryStore(docstore.WithPublisher(bus.PublishJSON), docstore.WithLogger(log))
		log.Warn("using in-memory document store; reservations are lost on restart")

		if err := consumers.Register(bgCtx, bus, log, telemetry.CaptureMessage); err != nil {
			log.Error("failed to register subscribers", "error", err)
			os.Exit(1) //nolint:gocritic
		}
	default:
		pool, err := database.NewPool(ctx, cfg.DefinitionDatabaseURL, log)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		defer pool.Close()
		log.Info("database pool connected")

		eventBus, err := events.NewEventBusWithForwarder(cfg, log)
		if err != nil {
			log.Error("failed to setup event bus", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		defer eventBus.Close() //nolint:errcheck

		if err := eventBus.StartForwarder(ctx); err != nil {
			log.Error("failed to start event forwarder", "error", err)
			os.Exit(1) //nolint:gocritic
		}

		appConfig.Db = pool
		appConfig.EventBus = eventBus
		appConfig.Store = docstore.NewPostgresStore(pool, eventBus)
	}

	serverCfg := httpx.ServerConfig{
		ServiceName:        cfg.ServiceName,
		IsDevelopment:      cfg.Environment == config.EnvDevelopment,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:          cfg.HTTPRateLimit,
		RequestTimeout:     cfg.HTTPRequestTimeout,
		MaxBodyBytes:       cfg.HTTPMaxBodyBytes,
	}
	r := httpx.NewRouter(
		serverCfg,
		logger.Middleware(log),
		logger.Recovery(log),
		telemetry.SentryMiddleware(),
		otelhttp.NewMiddleware(cfg.ServiceName),
	)

	r.Get("/health", httpx.HealthHandler(httpx.HealthChecks{
		Store:    appConfig.Store,
		Redis:    redisClient,
		EventBus: appConfig.EventBus,
	}))
	r.Get("/metrics", metricsHandler.ServeHTTP)
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	var svcs *appsvcs.Services
	r.Route("/api", func(r chi.Router) {
		if cfg.Environment == config.EnvDevelopment {
			r.Post("/session", auth.DevLoginHandler(sessionStore, log))
		}
		r.Delete("/session", auth.LogoutHandler(sessionStore, log))
		svcs = registerRoutes(r, appConfig)
	})

	// A memory store is private to this process, so nothing else can sweep it.
	if cfg.StoreBackend == config.StoreMemory {
		go func() {
			if err := svcs.Reconciler.Run(bgCtx, cfg.SweepInterval, nil); err != nil {
				log.Error("sweeper stopped", "error", err)
			}
		}()
		log.Info("in-process sweeper started", "interval", cfg.SweepInterval)
	}

	srv := httpx.NewServer(cfg.HTTPAddr, r, serverCfg)

	go func() {
		log.Info("server listening", "addr", srv.Addr, "env", cfg.Environment, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	stopBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// registerRoutes mounts all service routes under /api.
// Add each new service's route function here.
func registerRoutes(r chi.Router, a *app.Application) *appsvcs.Services {
	return inventoryApi.InventoryRoutes(r, a)
}
