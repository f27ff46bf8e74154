package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/ghuser/farmstand/pkg/clock"
	"github.com/ghuser/farmstand/pkg/docstore"
	"github.com/ghuser/farmstand/pkg/logger"
	"github.com/ghuser/farmstand/services/inventory/domain"
	"github.com/ghuser/farmstand/services/inventory/domain/events"
	"github.com/ghuser/farmstand/services/inventory/domain/repositories"
)

var tracer = otel.Tracer(instrumentationName)

// engine holds what every inventory service needs to run a transactional
// read-modify-write: the store, the retry policy, the clock and telemetry.
type engine struct {
	store   repositories.Store
	policy  docstore.RetryPolicy
	clock   clock.Clock
	log     logger.Logger
	metrics *Metrics
}

// inTx runs fn as a store transaction under the retry policy. fn may run
// several times and must not leak state between attempts.
func (e *engine) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx repositories.Tx) error) error {
	ctx, span := tracer.Start(ctx, "inventory."+op)
	defer span.End()

	attempts, err := e.policy.Run(ctx, func(ctx context.Context) error {
		return e.store.InTx(ctx, fn)
	})
	span.SetAttributes(attribute.Int("tx.attempts", attempts))
	if attempts > 1 {
		e.metrics.TxRetries.Add(ctx, int64(attempts-1), metric.WithAttributes(attribute.String("op", op)))
	}
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, domain.ErrConflict) {
		e.log.WarnContext(ctx, "inventory: transaction retries exhausted", "op", op, "attempts", attempts, "error", err)
		return fmt.Errorf("%s: gave up after %d attempts: %w", op, attempts, err)
	}
	if errors.Is(err, docstore.ErrUnavailable) && !errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return err
}

// restoreLoss is a stock restore that found no item to restore into.
type restoreLoss struct {
	ProductID string
	Quantity  int
}

// lossLog collects the restore losses of one transaction attempt.
type lossLog struct {
	op      string
	userID  string
	orderID string
	losses  []restoreLoss
}

func newLossLog(op, userID, orderID string) *lossLog {
	return &lossLog{op: op, userID: userID, orderID: orderID}
}

// restore returns qty units of productID to stock inside tx. A missing item
// is not an error: the loss is recorded and an inventory.restore_lost event
// is queued on the same transaction.
func (e *engine) restore(ctx context.Context, tx repositories.Tx, l *lossLog, productID string, qty int, now time.Time) error {
	item, err := tx.Item(ctx, productID)
	if errors.Is(err, domain.ErrItemNotFound) {
		return e.recordLoss(tx, l, productID, qty, now)
	}
	if err != nil {
		return err
	}
	if err := item.Release(qty, now); err != nil {
		return err
	}
	return tx.PutItem(item)
}

func (e *engine) recordLoss(tx repositories.Tx, l *lossLog, productID string, qty int, now time.Time) error {
	l.losses = append(l.losses, restoreLoss{ProductID: productID, Quantity: qty})
	return tx.Emit(events.TopicRestoreLost, events.RestoreLostEvent{
		EventID:    uuid.New(),
		Version:    1,
		ProductID:  productID,
		Quantity:   qty,
		Operation:  l.op,
		UserID:     l.userID,
		OrderID:    l.orderID,
		OccurredAt: now,
	})
}

// reportLosses logs and counts the losses of a committed transaction.
func (e *engine) reportLosses(ctx context.Context, l *lossLog) {
	if l == nil {
		return
	}
	for _, loss := range l.losses {
		e.log.WarnContext(ctx, "inventory: stock restore dropped",
			"error", domain.ErrRestoreLost,
			"operation", l.op,
			"product_id", loss.ProductID,
			"quantity", loss.Quantity,
			"user_id", l.userID,
			"order_id", l.orderID,
		)
		e.metrics.RestoreLost.Add(ctx, int64(loss.Quantity), metric.WithAttributes(attribute.String("operation", l.op)))
	}
}

func (e *engine) released(ctx context.Context, reason string, units int) {
	if units > 0 {
		e.metrics.ReleasedUnits.Add(ctx, int64(units), metric.WithAttributes(attribute.String("reason", reason)))
	}
}
