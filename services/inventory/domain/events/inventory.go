package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics published by the inventory context. Consumers subscribe via
// EventBus.Subscribe(ctx, events.TopicReservationsExpired).
const (
	TopicReservationsExpired = "cart.reservations_expired"
	TopicRestoreLost         = "inventory.restore_lost"
	TopicOrderInventory      = "order.inventory_applied"
)

// Operations that can lose a stock restore.
const (
	OpRemove       = "remove"
	OpUpdate       = "update"
	OpClear        = "clear"
	OpSweep        = "sweep"
	OpCancel       = "cancel"
	OpFulfillDrift = "fulfill"
)

// ReleasedLine is one reservation handed back to stock.
type ReleasedLine struct {
	CartItemID string `json:"cart_item_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
}

// ReservationsExpiredEvent is emitted when a sweep releases expired lines.
type ReservationsExpiredEvent struct {
	EventID    uuid.UUID      `json:"event_id"` // Unique publish-time identifier for deduplication
	Version    int            `json:"version"`  // Schema version; increment on breaking changes
	UserID     string         `json:"user_id"`
	Lines      []ReleasedLine `json:"lines"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// RestoreLostEvent is emitted when stock could not be returned because the
// item was deleted, or an order drew down an item that no longer exists.
type RestoreLostEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	Version    int       `json:"version"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	Operation  string    `json:"operation"`
	UserID     string    `json:"user_id,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OrderLine is the inventory effect of one order line. Quantity is the
// number of units that actually moved between stock and the order.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Applied   bool   `json:"applied"`
}

// OrderInventoryAppliedEvent is emitted when an order status change adjusts stock.
type OrderInventoryAppliedEvent struct {
	EventID    uuid.UUID   `json:"event_id"`
	Version    int         `json:"version"`
	OrderID    string      `json:"order_id"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	Lines      []OrderLine `json:"lines"`
	OccurredAt time.Time   `json:"occurred_at"`
}
