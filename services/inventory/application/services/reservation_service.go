package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghuser/farmstand/services/inventory/domain"
	"github.com/ghuser/farmstand/services/inventory/domain/events"
	"github.com/ghuser/farmstand/services/inventory/domain/models"
	"github.com/ghuser/farmstand/services/inventory/domain/repositories"
	domainsvcs "github.com/ghuser/farmstand/services/inventory/domain/services"
)

// ReservationService moves stock between items and carts. Every method
// writes the item and the cart in one transaction, so the units held by
// carts plus the stock left on the item stay constant.
type ReservationService struct {
	*engine
	ttl        time.Duration
	reconciler *ExpiryReconciler
}

// newReservationService returns a ReservationService. Reads go through
// reconciler so expired lines are released before a cart is shown.
func newReservationService(e *engine, ttl time.Duration, reconciler *ExpiryReconciler) *ReservationService {
	return &ReservationService{engine: e, ttl: ttl, reconciler: reconciler}
}

// AddReservation reserves qty units of productID for userID. The units are
// merged into the cart's existing line for the product if there is one.
// Nothing is reserved when the item has fewer than qty units.
func (s *ReservationService) AddReservation(ctx context.Context, userID, productID string, qty int) (*models.Cart, error) {
	if qty < 1 || qty > models.MaxLineQuantity {
		return nil, fmt.Errorf("%w: must reserve between 1 and %d units, got %d", domain.ErrInvalidQuantity, models.MaxLineQuantity, qty)
	}

	var result *models.Cart
	err := s.inTx(ctx, "add_reservation", func(ctx context.Context, tx repositories.Tx) error {
		now := s.clock.Now()

		item, err := tx.Item(ctx, productID)
		if err != nil {
			return err
		}
		if err := item.Reserve(qty, now); err != nil {
			return err
		}

		cart, err := tx.Cart(ctx, userID)
		if errors.Is(err, domain.ErrCartNotFound) {
			cart = models.NewCart(userID, now)
		} else if err != nil {
			return err
		}
		if i := cart.FindProduct(productID); i >= 0 && cart.Items[i].Quantity+qty > models.MaxLineQuantity {
			return fmt.Errorf("%w: line would hold more than %d units", domain.ErrInvalidQuantity, models.MaxLineQuantity)
		}
		cart.AddReservation(productID, models.SnapshotOf(item), qty, now, s.ttl)

		if err := tx.PutItem(item); err != nil {
			return err
		}
		if err := tx.PutCart(cart); err != nil {
			return err
		}
		result = cart
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add reservation: %w", err)
	}

	s.metrics.ReservedUnits.Add(ctx, int64(qty))
	return result, nil
}

// RemoveReservation deletes a cart line and returns its units to stock. If
// the item was deleted meanwhile the line is still removed and the loss is
// reported.
func (s *ReservationService) RemoveReservation(ctx context.Context, userID, cartItemID string) (*models.Cart, error) {
	var (
		result  *models.Cart
		losses  *lossLog
		removed int
	)
	err := s.inTx(ctx, "remove_reservation", func(ctx context.Context, tx repositories.Tx) error {
		now := s.clock.Now()
		losses = newLossLog(events.OpRemove, userID, "")

		cart, err := tx.Cart(ctx, userID)
		if err != nil {
			return err
		}
		i := cart.FindLine(cartItemID)
		if i < 0 {
			return fmt.Errorf("%w: %s", domain.ErrCartItemNotFound, cartItemID)
		}
		line := cart.RemoveLine(i, now)

		if err := s.restore(ctx, tx, losses, line.ProductID, line.Quantity, now); err != nil {
			return err
		}
		if err := tx.PutCart(cart); err != nil {
			return err
		}
		result, removed = cart, line.Quantity
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove reservation: %w", err)
	}

	s.reportLosses(ctx, losses)
	s.released(ctx, events.OpRemove, removed)
	return result, nil
}

// UpdateReservationQuantity sets a line to newQty units and restarts its TTL.
// Growing a line reserves the difference and fails like AddReservation when
// stock is short; shrinking it returns the difference. newQty <= 0 removes
// the line.
func (s *ReservationService) UpdateReservationQuantity(ctx context.Context, userID, cartItemID string, newQty int) (*models.Cart, error) {
	if newQty <= 0 {
		return s.RemoveReservation(ctx, userID, cartItemID)
	}
	if newQty > models.MaxLineQuantity {
		return nil, fmt.Errorf("%w: at most %d units per line, got %d", domain.ErrInvalidQuantity, models.MaxLineQuantity, newQty)
	}

	var (
		result *models.Cart
		losses *lossLog
		delta  int
	)
	err := s.inTx(ctx, "update_reservation", func(ctx context.Context, tx repositories.Tx) error {
		now := s.clock.Now()
		losses = newLossLog(events.OpUpdate, userID, "")

		cart, err := tx.Cart(ctx, userID)
		if err != nil {
			return err
		}
		i := cart.FindLine(cartItemID)
		if i < 0 {
			return fmt.Errorf("%w: %s", domain.ErrCartItemNotFound, cartItemID)
		}
		line := cart.Items[i]
		delta = newQty - line.Quantity

		switch {
		case delta > 0:
			item, err := tx.Item(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if err := item.Reserve(delta, now); err != nil {
				return err
			}
			if err := tx.PutItem(item); err != nil {
				return err
			}
		case delta < 0:
			if err := s.restore(ctx, tx, losses, line.ProductID, -delta, now); err != nil {
				return err
			}
		}

		cart.SetQuantity(i, newQty, now, s.ttl)
		if err := tx.PutCart(cart); err != nil {
			return err
		}
		result = cart
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update reservation: %w", err)
	}

	s.reportLosses(ctx, losses)
	if delta > 0 {
		s.metrics.ReservedUnits.Add(ctx, int64(delta))
	} else {
		s.released(ctx, events.OpUpdate, -delta)
	}
	return result, nil
}

// ClearCart returns every line's units to stock and empties the cart in one
// transaction. Lines whose item is gone are dropped and reported.
func (s *ReservationService) ClearCart(ctx context.Context, userID string) (*models.Cart, error) {
	if _, err := s.store.Cart(ctx, userID); errors.Is(err, domain.ErrCartNotFound) {
		return models.NewCart(userID, s.clock.Now()), nil
	} else if err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	var (
		result *models.Cart
		losses *lossLog
		units  int
	)
	err := s.inTx(ctx, "clear_cart", func(ctx context.Context, tx repositories.Tx) error {
		now := s.clock.Now()
		losses = newLossLog(events.OpClear, userID, "")
		units = 0

		cart, err := tx.Cart(ctx, userID)
		if err != nil {
			return err
		}
		for _, line := range cart.Clear(now) {
			if err := s.restore(ctx, tx, losses, line.ProductID, line.Quantity, now); err != nil {
				return err
			}
			units += line.Quantity
		}
		if err := tx.PutCart(cart); err != nil {
			return err
		}
		result = cart
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	s.reportLosses(ctx, losses)
	s.released(ctx, events.OpClear, units)
	return result, nil
}

// GetCart returns the user's cart with expired lines released. Users without
// a cart get an empty one that is not persisted. If the release transaction
// fails the expired lines are hidden from the result and left for the next
// sweep.
func (s *ReservationService) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.reconciler.SweepCart(ctx, userID)
	switch {
	case err == nil:
		return cart, nil
	case errors.Is(err, domain.ErrCartNotFound):
		return models.NewCart(userID, s.clock.Now()), nil
	}

	s.log.WarnContext(ctx, "inventory: sweep on read failed, serving filtered cart", "user_id", userID, "error", err)

	stale, readErr := s.store.Cart(ctx, userID)
	if readErr != nil {
		return nil, fmt.Errorf("get cart: %w", readErr)
	}
	active, _ := stale.Partition(s.clock.Now())
	stale.Items = active
	return stale, nil
}

// Summary returns the totals of the user's live cart.
func (s *ReservationService) Summary(ctx context.Context, userID string) (*models.Cart, domainsvcs.CartSummary, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, domainsvcs.CartSummary{}, err
	}
	return cart, domainsvcs.Summarize(cart), nil
}
