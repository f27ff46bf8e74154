package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/farmstand/services/inventory/domain"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderFulfilled  OrderStatus = "fulfilled"
	OrderCancelled  OrderStatus = "cancelled"
)

// ParseOrderStatus validates s as an OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderPending, OrderProcessing, OrderFulfilled, OrderCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidStatus, s)
}

// OrderItem is one ordered product line.
//
// Held counts the units of the line currently out of stock on the order's
// behalf: cart reservations converted at checkout plus whatever fulfilment
// drew down. Cancelling returns exactly Held, so an order never puts back
// units it did not take.
type OrderItem struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	Quantity     int             `json:"quantity"`
	Held         int             `json:"held"`
}

// Order is the subset of an order record the inventory engine reads and writes.
type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Items     []OrderItem `json:"items"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewOrder constructs a pending order. Every line needs a product and at
// least one unit.
func NewOrder(userID string, items []OrderItem, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order has no lines", domain.ErrInvalidQuantity)
	}
	for i, line := range items {
		if line.ProductID == "" {
			return nil, fmt.Errorf("%w: line %d has no product", domain.ErrInvalidItem, i)
		}
		if line.Quantity < 1 || line.Quantity > MaxLineQuantity {
			return nil, fmt.Errorf("%w: line %d quantity %d", domain.ErrInvalidQuantity, i, line.Quantity)
		}
		if line.Held < 0 || line.Held > line.Quantity {
			return nil, fmt.Errorf("%w: line %d holds %d of %d units", domain.ErrInvalidQuantity, i, line.Held, line.Quantity)
		}
	}
	return &Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Items:     append([]OrderItem(nil), items...),
		Status:    OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
