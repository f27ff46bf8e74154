package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghuser/farmstand/pkg/app"
	"github.com/ghuser/farmstand/pkg/cache"
	"github.com/ghuser/farmstand/pkg/clock"
	"github.com/ghuser/farmstand/pkg/config"
	"github.com/ghuser/farmstand/pkg/database"
	"github.com/ghuser/farmstand/pkg/docstore"
	"github.com/ghuser/farmstand/pkg/events"
	"github.com/ghuser/farmstand/pkg/logger"
	"github.com/ghuser/farmstand/pkg/telemetry"
	"github.com/ghuser/farmstand/pkg/workflows"
	"github.com/ghuser/farmstand/services/inventory/application/consumers"
	appsvcs "github.com/ghuser/farmstand/services/inventory/application/services"
	invworkflows "github.com/ghuser/farmstand/services/inventory/application/workflows"
)

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

	// The memory store lives inside cmd/api; there is nothing here to sweep.
	if cfg.StoreBackend == config.StoreMemory {
		log.Error("worker requires STORE_BACKEND=postgres; cmd/api runs the sweeper and subscribers in memory mode")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelShutdown, _, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer otelShutdown(context.Background()) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	pool, err := database.NewPool(ctx, cfg.DefinitionDatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer pool.Close()
	log.Info("database pool connected")

	eventBus, err := events.NewEventBus(cfg, log)
	if err != nil {
		log.Error("failed to setup event bus", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer eventBus.Close() //nolint:errcheck

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer redisClient.Close() //nolint:errcheck
	log.Info("redis connected")

	appConfig := &app.Application{
		Config:   cfg,
		Db:       pool,
		Store:    docstore.NewPostgresStore(pool, eventBus),
		Clock:    clock.Real(),
		Logger:   log,
		EventBus: eventBus,
		Redis:    redisClient,
	}

	if err := consumers.Register(ctx, eventBus, log, telemetry.CaptureMessage); err != nil {
		log.Error("failed to register subscribers", "error", err)
		os.Exit(1) //nolint:gocritic
	}

	svcs := appsvcs.New(appConfig)

	switch cfg.SweepScheduler {
	case config.SchedulerTemporal:
		stop, err := startTemporalSweep(ctx, appConfig, svcs)
		if err != nil {
			log.Error("failed to start temporal sweep", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		defer stop()
	default:
		go func() {
			if err := svcs.Reconciler.Run(ctx, cfg.SweepInterval, redisClient); err != nil {
				log.Error("sweeper stopped", "error", err)
			}
		}()
		log.Info("sweeper started", "interval", cfg.SweepInterval, "scheduler", config.SchedulerTicker)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	// EventBus.Close() (via defer) waits up to 30s for in-flight handlers.
	log.Info("worker stopped")
}

// startTemporalSweep registers the sweep workflow on a Temporal worker and
// schedules it as a cron workflow. Temporal keeps a single run in flight
// across every worker replica, so no Redis lease is taken.
func startTemporalSweep(ctx context.Context, a *app.Application, svcs *appsvcs.Services) (func(), error) {
	cfg := a.Config
	tc, err := workflows.NewTemporalClient(ctx, cfg.TemporalHostPort, cfg.TemporalNamespace, a.Logger)
	if err != nil {
		return nil, err
	}
	a.TemporalClient = tc

	w, err := tc.NewWorker(cfg.TemporalTaskQueue)
	if err != nil {
		tc.Close()
		return nil, err
	}
	invworkflows.Register(w, &invworkflows.Activities{Reconciler: svcs.Reconciler})
	if err := w.Start(); err != nil {
		tc.Close()
		return nil, err
	}

	err = tc.StartCron(ctx, workflows.CronSpec{
		WorkflowID: invworkflows.SweepWorkflowID,
		TaskQueue:  cfg.TemporalTaskQueue,
		Schedule:   invworkflows.CronSchedule(cfg.SweepInterval),
		Workflow:   invworkflows.ReservationSweepWorkflow,
	})
	if err != nil {
		w.Stop()
		tc.Close()
		return nil, err
	}

	return func() {
		w.Stop()
		tc.Close()
	}, nil
}
