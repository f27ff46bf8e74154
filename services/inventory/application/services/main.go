package services

import (
	"time"

	"github.com/ghuser/farmstand/pkg/app"
	"github.com/ghuser/farmstand/pkg/clock"
	"github.com/ghuser/farmstand/pkg/docstore"
	"github.com/ghuser/farmstand/pkg/logger"
	"github.com/ghuser/farmstand/services/inventory/domain/repositories"
	"github.com/ghuser/farmstand/services/inventory/infrastructure/persistence/documents"
)

// Options tunes the inventory services.
type Options struct {
	ReservationTTL   time.Duration
	SweepConcurrency int
	Retry            docstore.RetryPolicy
}

// DefaultOptions returns a 24h TTL, 4 parallel sweeps and the default retry policy.
func DefaultOptions() Options {
	return Options{
		ReservationTTL:   24 * time.Hour,
		SweepConcurrency: 4,
		Retry:            docstore.DefaultRetryPolicy(),
	}
}

// Services is the application-layer service container for this bounded context.
// It wires domain services with their infrastructure implementations.
type Services struct {
	Catalog      *CatalogService
	Reservations *ReservationService
	Reconciler   *ExpiryReconciler
	Fulfillment  *FulfillmentBridge
}

// New wires all inventory application services with infrastructure from the Application container.
func New(a *app.Application) *Services {
	opts := Options{
		ReservationTTL:   a.Config.ReservationTTL,
		SweepConcurrency: a.Config.SweepConcurrency,
		Retry: docstore.RetryPolicy{
			MaxAttempts: a.Config.TxMaxAttempts,
			BaseBackoff: a.Config.TxBaseBackoff,
			Timeout:     a.Config.TxTimeout,
		},
	}
	return NewServices(documents.NewStore(a.Store), a.Clock, a.Logger, NewMetrics(), opts)
}

// NewServices wires the services over an explicit store and clock.
func NewServices(store repositories.Store, clk clock.Clock, log logger.Logger, metrics *Metrics, opts Options) *Services {
	e := &engine{
		store:   store,
		policy:  opts.Retry,
		clock:   clk,
		log:     log,
		metrics: metrics,
	}
	reconciler := newExpiryReconciler(e, opts.SweepConcurrency)
	return &Services{
		Catalog:      newCatalogService(e),
		Reservations: newReservationService(e, opts.ReservationTTL, reconciler),
		Reconciler:   reconciler,
		Fulfillment:  newFulfillmentBridge(e),
	}
}
