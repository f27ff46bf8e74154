package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/farmstand/services/inventory/domain"
)

// MaxLineQuantity caps the units one cart line or order line may carry.
const MaxLineQuantity = 10000

// Item is a catalog entry together with its sellable stock.
//
// Quantity counts units that are neither reserved by a cart nor sold. It is
// only changed inside a store transaction that also writes the cart or order
// responsible for the change.
type Item struct {
	ID          string          `json:"id"`
	Name        ItemName        `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Size        int             `json:"size"`
	Quantity    int             `json:"quantity"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewItem constructs an Item with a generated id.
func NewItem(name ItemName, price decimal.Decimal, size, quantity int, now time.Time) (*Item, error) {
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", domain.ErrInvalidItem)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: size must not be negative", domain.ErrInvalidItem)
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", domain.ErrInvalidItem)
	}
	return &Item{
		ID:        uuid.NewString(),
		Name:      name,
		Price:     price,
		Size:      size,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Reserve takes n units out of the sellable stock. It refuses with an
// *InsufficientStockError rather than reserving part of the request.
func (i *Item) Reserve(n int, now time.Time) error {
	if n < 1 || n > MaxLineQuantity {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, n)
	}
	if i.Quantity < n {
		return &domain.InsufficientStockError{ProductID: i.ID, Available: i.Quantity, Requested: n}
	}
	i.Quantity -= n
	i.UpdatedAt = now
	return nil
}

// Release returns n previously reserved or sold units to stock. A release
// that would overflow the stock counter is refused so the caller's
// transaction aborts instead of committing a wrapped, negative quantity.
func (i *Item) Release(n int, now time.Time) error {
	if n <= 0 {
		return nil
	}
	if i.Quantity > math.MaxInt-n {
		return fmt.Errorf("%w: releasing %d onto stock %d of item %s overflows", domain.ErrInvalidQuantity, n, i.Quantity, i.ID)
	}
	i.Quantity += n
	i.UpdatedAt = now
	return nil
}

// DrawDown permanently removes up to n sold units, flooring stock at zero,
// and returns how many it took. Orders may sell units that never went
// through a cart reservation.
func (i *Item) DrawDown(n int, now time.Time) int {
	if n <= 0 {
		return 0
	}
	taken := min(n, i.Quantity)
	i.Quantity -= taken
	i.UpdatedAt = now
	return taken
}
