package app

import (
	"github.com/gorilla/sessions"

	"github.com/ghuser/farmstand/pkg/cache"
	"github.com/ghuser/farmstand/pkg/clock"
	"github.com/ghuser/farmstand/pkg/config"
	"github.com/ghuser/farmstand/pkg/database"
	"github.com/ghuser/farmstand/pkg/docstore"
	"github.com/ghuser/farmstand/pkg/events"
	"github.com/ghuser/farmstand/pkg/logger"
	"github.com/ghuser/farmstand/pkg/workflows"
)

// Application holds shared infrastructure dependencies for all services.
// Pass to each service's route function during server initialization.
//
// Logging: app.Logger is backed by a trace-aware handler; use slog's context methods
// and trace_id, span_id, and request_id are injected automatically:
//
//	app.Logger.InfoContext(ctx, "reserving stock", "item_id", id)
//	app.Logger.ErrorContext(ctx, "failed to save", "error", err)
//
// Use app.Logger.Info/Error (no context) only for startup and shutdown messages.
type Application struct {
	Config         *config.Config
	Db             *database.Database // nil when STORE_BACKEND=memory
	Store          docstore.Store
	Clock          clock.Clock
	Logger         logger.Logger
	EventBus       *events.EventBus // in-process Go channel transport when STORE_BACKEND=memory
	Redis          *cache.RedisClient
	TemporalClient *workflows.TemporalClient // nil unless SWEEP_SCHEDULER=temporal
	SessionStore   sessions.Store            // Redis-backed session store; nil in worker process
}
