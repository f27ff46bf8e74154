package services

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/ghuser/farmstand/services/inventory"

// Metrics are the counters exported by the inventory context.
type Metrics struct {
	ReservedUnits metric.Int64Counter
	ReleasedUnits metric.Int64Counter
	RestoreLost   metric.Int64Counter
	TxRetries     metric.Int64Counter
	SweepFailures metric.Int64Counter
}

// NewMetrics registers the counters on the global MeterProvider. Any
// instrument that fails to register falls back to a no-op.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	return &Metrics{
		ReservedUnits: counter(meter, "inventory.reserved_units", "Units moved from stock into cart reservations"),
		ReleasedUnits: counter(meter, "inventory.released_units", "Units returned to stock, by reason"),
		RestoreLost:   counter(meter, "inventory.restore_lost", "Stock restores dropped because the item no longer exists"),
		TxRetries:     counter(meter, "inventory.tx_retries", "Transactions re-run after losing a race"),
		SweepFailures: counter(meter, "inventory.sweep_failures", "Carts whose expiry sweep failed and was deferred"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{unit}"))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
