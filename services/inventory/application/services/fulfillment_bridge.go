package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/farmstand/services/inventory/domain"
	"github.com/ghuser/farmstand/services/inventory/domain/events"
	"github.com/ghuser/farmstand/services/inventory/domain/models"
	"github.com/ghuser/farmstand/services/inventory/domain/repositories"
)

// OrderLineInput is one requested order line.
type OrderLineInput struct {
	ProductID string
	Quantity  int
}

// FulfillmentBridge applies the inventory side of order status changes.
// Each transition, including every stock change it causes and the new
// status, commits as one transaction.
type FulfillmentBridge struct {
	*engine
}

// newFulfillmentBridge returns a FulfillmentBridge.
func newFulfillmentBridge(e *engine) *FulfillmentBridge {
	return &FulfillmentBridge{engine: e}
}

// CreateOrder stores a pending order for userID. Line names and prices are
// copied from the catalog. Active cart reservations for the ordered products
// are converted in the same transaction: the cart gives the units up without
// restoring them and the order line holds them instead. Units beyond the
// reservation stay in stock until the order is fulfilled.
func (b *FulfillmentBridge) CreateOrder(ctx context.Context, userID string, lines []OrderLineInput) (*models.Order, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("create order: %w: order has no lines", domain.ErrInvalidQuantity)
	}
	for _, line := range lines {
		if line.Quantity < 1 || line.Quantity > models.MaxLineQuantity {
			return nil, fmt.Errorf("create order: %w: product %s quantity %d", domain.ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
	}

	var (
		result    *models.Order
		converted int
	)
	err := b.inTx(ctx, "create_order", func(ctx context.Context, tx repositories.Tx) error {
		now := b.clock.Now()
		converted = 0

		cart, err := tx.Cart(ctx, userID)
		if errors.Is(err, domain.ErrCartNotFound) {
			cart = nil
		} else if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			item, err := tx.Item(ctx, line.ProductID)
			if err != nil {
				return err
			}
			held := 0
			if cart != nil {
				held = cart.Convert(item.ID, line.Quantity, now)
			}
			converted += held
			items = append(items, models.OrderItem{
				ProductID:    item.ID,
				ProductName:  item.Name.String(),
				ProductPrice: item.Price,
				Quantity:     line.Quantity,
				Held:         held,
			})
		}

		order, err := models.NewOrder(userID, items, now)
		if err != nil {
			return err
		}
		if _, err := tx.Order(ctx, order.ID); err == nil {
			return fmt.Errorf("order %s already exists", order.ID)
		} else if !errors.Is(err, domain.ErrOrderNotFound) {
			return err
		}
		if converted > 0 {
			if err := tx.PutCart(cart); err != nil {
				return err
			}
		}
		if err := tx.PutOrder(order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if converted > 0 {
		b.log.InfoContext(ctx, "inventory: reservations converted to order", "order_id", result.ID, "user_id", userID, "units", converted)
	}
	return result, nil
}

// GetOrder returns an order by id.
func (b *FulfillmentBridge) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := b.store.Order(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// TransitionStatus moves an order to status and applies its stock effect:
//
//   - into fulfilled: each line draws down the units it does not hold yet,
//     floored at zero;
//   - into cancelled: each line returns the units it holds;
//   - anything else only records the new status.
//
// Setting the status the order already has is a no-op, so a replayed
// transition never adjusts stock twice.
func (b *FulfillmentBridge) TransitionStatus(ctx context.Context, orderID, status string) (*models.Order, error) {
	to, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	var (
		result  *models.Order
		losses  *lossLog
		applied []events.OrderLine
		from    models.OrderStatus
	)
	err = b.inTx(ctx, "transition_order", func(ctx context.Context, tx repositories.Tx) error {
		now := b.clock.Now()
		losses = newLossLog(lossOpFor(to), "", orderID)
		applied = nil

		order, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if from == to {
			result = order
			return nil
		}

		switch to {
		case models.OrderFulfilled:
			for i := range order.Items {
				line, err := b.drawDown(ctx, tx, losses, &order.Items[i], now)
				if err != nil {
					return err
				}
				applied = append(applied, line)
			}
		case models.OrderCancelled:
			for i := range order.Items {
				line, err := b.giveBack(ctx, tx, losses, &order.Items[i], now)
				if err != nil {
					return err
				}
				applied = append(applied, line)
			}
		}

		order.Status = to
		order.UpdatedAt = now
		if err := tx.PutOrder(order); err != nil {
			return err
		}
		if applied != nil {
			if err := tx.Emit(events.TopicOrderInventory, events.OrderInventoryAppliedEvent{
				EventID:    uuid.New(),
				Version:    1,
				OrderID:    orderID,
				From:       string(from),
				To:         string(to),
				Lines:      applied,
				OccurredAt: now,
			}); err != nil {
				return err
			}
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transition order %s: %w", orderID, err)
	}

	b.reportLosses(ctx, losses)
	if to == models.OrderCancelled && from != to {
		units := 0
		for _, l := range applied {
			if l.Applied {
				units += l.Quantity
			}
		}
		b.released(ctx, events.OpCancel, units)
	}
	if from != to {
		b.log.InfoContext(ctx, "inventory: order status changed", "order_id", orderID, "from", from, "to", to, "lines", len(applied))
	}
	return result, nil
}

// drawDown takes the units line does not hold yet out of stock. A missing
// item is drift, not an error: it is recorded and the line skipped.
func (b *FulfillmentBridge) drawDown(ctx context.Context, tx repositories.Tx, l *lossLog, line *models.OrderItem, now time.Time) (events.OrderLine, error) {
	need := line.Quantity - line.Held
	if need <= 0 {
		return events.OrderLine{ProductID: line.ProductID, Quantity: 0, Applied: true}, nil
	}
	item, err := tx.Item(ctx, line.ProductID)
	if errors.Is(err, domain.ErrItemNotFound) {
		return events.OrderLine{ProductID: line.ProductID, Quantity: need}, b.recordLoss(tx, l, line.ProductID, need, now)
	}
	if err != nil {
		return events.OrderLine{}, err
	}
	taken := item.DrawDown(need, now)
	line.Held += taken
	return events.OrderLine{ProductID: line.ProductID, Quantity: taken, Applied: true}, tx.PutItem(item)
}

// giveBack returns the units line holds to stock. A missing item is a
// restore loss.
func (b *FulfillmentBridge) giveBack(ctx context.Context, tx repositories.Tx, l *lossLog, line *models.OrderItem, now time.Time) (events.OrderLine, error) {
	held := line.Held
	line.Held = 0
	if held == 0 {
		return events.OrderLine{ProductID: line.ProductID, Quantity: 0, Applied: true}, nil
	}
	before := len(l.losses)
	if err := b.restore(ctx, tx, l, line.ProductID, held, now); err != nil {
		return events.OrderLine{}, err
	}
	return events.OrderLine{ProductID: line.ProductID, Quantity: held, Applied: len(l.losses) == before}, nil
}

func lossOpFor(to models.OrderStatus) string {
	if to == models.OrderFulfilled {
		return events.OpFulfillDrift
	}
	return events.OpCancel
}
