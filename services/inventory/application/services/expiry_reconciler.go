package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ghuser/farmstand/services/inventory/domain"
	"github.com/ghuser/farmstand/services/inventory/domain/events"
	"github.com/ghuser/farmstand/services/inventory/domain/models"
	"github.com/ghuser/farmstand/services/inventory/domain/repositories"
)

// SweepLeaseKey is the lease taken by Run so only one worker sweeps at a time.
const SweepLeaseKey = "inventory:sweep"

// Locker hands out expiring leases. Implemented by cache.RedisClient.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// SweepReport summarises one pass over every cart.
type SweepReport struct {
	Scanned       int `json:"scanned"`
	Swept         int `json:"swept"`
	ReleasedLines int `json:"released_lines"`
	ReleasedUnits int `json:"released_units"`
	Failed        int `json:"failed"`
}

// ExpiryReconciler releases reservations whose TTL has elapsed.
type ExpiryReconciler struct {
	*engine
	concurrency int
}

// newExpiryReconciler returns a reconciler that sweeps up to concurrency
// carts in parallel during SweepAll.
func newExpiryReconciler(e *engine, concurrency int) *ExpiryReconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ExpiryReconciler{engine: e, concurrency: concurrency}
}

// SweepCart releases the expired lines of one cart and returns the cart with
// only its active lines. A cart with nothing expired costs one read and no
// transaction.
func (r *ExpiryReconciler) SweepCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, _, err := r.sweep(ctx, userID)
	return cart, err
}

// sweep also returns the lines this call released. Lines already released
// by a concurrent sweep are not returned or restored again: the transaction
// re-reads the cart and partitions what it finds.
func (r *ExpiryReconciler) sweep(ctx context.Context, userID string) (*models.Cart, []models.CartItem, error) {
	now := r.clock.Now()

	cart, err := r.store.Cart(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if _, expired := cart.Partition(now); len(expired) == 0 {
		return cart, nil, nil
	}

	var (
		result   *models.Cart
		released []models.CartItem
		losses   *lossLog
	)
	err = r.inTx(ctx, "sweep_cart", func(ctx context.Context, tx repositories.Tx) error {
		losses = newLossLog(events.OpSweep, userID, "")
		released = nil

		cart, err := tx.Cart(ctx, userID)
		if err != nil {
			return err
		}
		active, expired := cart.Partition(now)
		if len(expired) == 0 {
			result = cart
			return nil
		}

		lines := make([]events.ReleasedLine, 0, len(expired))
		for _, line := range expired {
			if err := r.restore(ctx, tx, losses, line.ProductID, line.Quantity, now); err != nil {
				return err
			}
			lines = append(lines, events.ReleasedLine{CartItemID: line.ID, ProductID: line.ProductID, Quantity: line.Quantity})
		}

		cart.Items = active
		cart.UpdatedAt = now
		if err := tx.PutCart(cart); err != nil {
			return err
		}
		if err := tx.Emit(events.TopicReservationsExpired, events.ReservationsExpiredEvent{
			EventID:    uuid.New(),
			Version:    1,
			UserID:     userID,
			Lines:      lines,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		result, released = cart, expired
		return nil
	})
	if err != nil {
		r.metrics.SweepFailures.Add(ctx, 1)
		return nil, nil, fmt.Errorf("sweep cart %s: %w", userID, err)
	}

	r.reportLosses(ctx, losses)
	r.released(ctx, events.OpSweep, sumQuantity(released))
	return result, released, nil
}

// SweepAll sweeps every stored cart. Carts that fail are logged, counted in
// the report and retried on the next pass; only a cancelled context or a
// failure to list carts aborts the pass.
func (r *ExpiryReconciler) SweepAll(ctx context.Context) (SweepReport, error) {
	ids, err := r.store.CartIDs(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("sweep all: %w", err)
	}

	var (
		mu     sync.Mutex
		report = SweepReport{Scanned: len(ids)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_, released, err := r.sweep(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				if len(released) > 0 {
					report.Swept++
					report.ReleasedLines += len(released)
					report.ReleasedUnits += sumQuantity(released)
				}
			case errors.Is(err, domain.ErrCartNotFound):
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				report.Failed++
				r.log.WarnContext(gctx, "inventory: cart sweep deferred", "user_id", id, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("sweep all: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("sweep all: %w", err)
	}

	r.log.InfoContext(ctx, "inventory: sweep complete",
		"scanned", report.Scanned,
		"swept", report.Swept,
		"released_lines", report.ReleasedLines,
		"released_units", report.ReleasedUnits,
		"failed", report.Failed,
	)
	return report, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
// When lock is non-nil each pass first takes a lease so replicas do not sweep
// concurrently; a pass that cannot get the lease is skipped.
func (r *ExpiryReconciler) Run(ctx context.Context, interval time.Duration, lock Locker) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.runOnce(ctx, interval, lock)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *ExpiryReconciler) runOnce(ctx context.Context, lease time.Duration, lock Locker) {
	if lock != nil {
		release, ok, err := lock.TryLock(ctx, SweepLeaseKey, lease)
		if err != nil {
			r.log.WarnContext(ctx, "inventory: sweep lease unavailable", "error", err)
			return
		}
		if !ok {
			r.log.DebugContext(ctx, "inventory: sweep lease held elsewhere, skipping pass")
			return
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.log.WarnContext(ctx, "inventory: release sweep lease", "error", err)
			}
		}()
	}

	if _, err := r.SweepAll(ctx); err != nil && ctx.Err() == nil {
		r.log.ErrorContext(ctx, "inventory: sweep pass failed", "error", err)
	}
}

func sumQuantity(lines []models.CartItem) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}
