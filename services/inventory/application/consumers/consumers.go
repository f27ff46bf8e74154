// Package consumers holds the inventory context's event subscribers. They run
// in cmd/worker, or inside cmd/api when the memory store backs a single process.
package consumers

import (
	"context"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/farmstand/pkg/events"
	"github.com/ghuser/farmstand/pkg/logger"
	invevents "github.com/ghuser/farmstand/services/inventory/domain/events"
)

// Subscriber is the part of events.EventBus the consumers need.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler func(context.Context, *message.Message) error) (<-chan error, error)
}

// Reporter forwards an operator-facing alert, e.g. telemetry.CaptureMessage.
type Reporter func(msg string, tags map[string]string)

// Register subscribes every inventory handler and drains their error channels
// until the bus closes. Handlers must be idempotent: the bus retries them.
func Register(ctx context.Context, bus Subscriber, log logger.Logger, report Reporter) error {
	handlers := []struct {
		topic   string
		handler func(context.Context, *message.Message) error
	}{
		{invevents.TopicRestoreLost, events.JSONHandler(handleRestoreLost(log, report))},
		{invevents.TopicReservationsExpired, events.JSONHandler(handleReservationsExpired(log))},
		{invevents.TopicOrderInventory, events.JSONHandler(handleOrderInventoryApplied(log))},
	}

	topics := make([]string, 0, len(handlers))
	for _, h := range handlers {
		errCh, err := bus.Subscribe(ctx, h.topic, h.handler)
		if err != nil {
			return err
		}
		go func(topic string) {
			for err := range errCh {
				log.ErrorContext(ctx, "subscriber error", "topic", topic, "error", err)
			}
		}(h.topic)
		topics = append(topics, h.topic)
	}

	log.Info("event subscribers registered", "topics", topics)
	return nil
}

// handleRestoreLost surfaces units that vanished from the books because the
// item was deleted while they were reserved or ordered.
func handleRestoreLost(log logger.Logger, report Reporter) func(context.Context, invevents.RestoreLostEvent) error {
	return func(ctx context.Context, evt invevents.RestoreLostEvent) error {
		log.WarnContext(ctx, "inventory: restore lost",
			"event_id", evt.EventID,
			"product_id", evt.ProductID,
			"quantity", evt.Quantity,
			"operation", evt.Operation,
			"user_id", evt.UserID,
			"order_id", evt.OrderID,
		)
		if report != nil {
			report("inventory restore lost", map[string]string{
				"product_id": evt.ProductID,
				"quantity":   strconv.Itoa(evt.Quantity),
				"operation":  evt.Operation,
			})
		}
		return nil
	}
}

func handleReservationsExpired(log logger.Logger) func(context.Context, invevents.ReservationsExpiredEvent) error {
	return func(ctx context.Context, evt invevents.ReservationsExpiredEvent) error {
		units := 0
		for _, l := range evt.Lines {
			units += l.Quantity
		}
		log.InfoContext(ctx, "inventory: reservations expired",
			"event_id", evt.EventID,
			"user_id", evt.UserID,
			"lines", len(evt.Lines),
			"units", units,
		)
		return nil
	}
}

func handleOrderInventoryApplied(log logger.Logger) func(context.Context, invevents.OrderInventoryAppliedEvent) error {
	return func(ctx context.Context, evt invevents.OrderInventoryAppliedEvent) error {
		applied := 0
		for _, l := range evt.Lines {
			if l.Applied {
				applied++
			}
		}
		log.InfoContext(ctx, "inventory: order stock adjusted",
			"event_id", evt.EventID,
			"order_id", evt.OrderID,
			"from", evt.From,
			"to", evt.To,
			"lines", len(evt.Lines),
			"applied", applied,
		)
		return nil
	}
}
