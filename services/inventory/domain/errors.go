package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the inventory domain. Use errors.Is() to check these.
var (
	// ErrItemNotFound indicates the requested catalog item does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrItemAlreadyExists indicates an item with the same id already exists.
	ErrItemAlreadyExists = errors.New("item already exists")

	// ErrInvalidItemName indicates the item name violates domain constraints.
	ErrInvalidItemName = errors.New("invalid item name")

	// ErrInvalidItem indicates a price, size or stock value outside its allowed range.
	ErrInvalidItem = errors.New("invalid item")

	// ErrCartNotFound indicates the user has no cart document.
	ErrCartNotFound = errors.New("cart not found")

	// ErrCartItemNotFound indicates the cart has no line with the given id.
	ErrCartItemNotFound = errors.New("cart item not found")

	// ErrOrderNotFound indicates the requested order does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInsufficientStock indicates a reservation larger than the available stock.
	// Returned wrapped in *InsufficientStockError, which carries the available amount.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidQuantity indicates a non-positive quantity where at least one unit is required.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidStatus indicates an unknown order status.
	ErrInvalidStatus = errors.New("invalid order status")

	// ErrConflict indicates a transaction kept losing races until its retries ran out.
	ErrConflict = errors.New("concurrent update conflict, please try again")

	// ErrStoreUnavailable indicates the document store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRestoreLost marks a stock restore whose target item no longer exists.
	// It is logged and counted, never returned to callers.
	ErrRestoreLost = errors.New("inventory restore lost")
)

// InsufficientStockError reports how much stock was available when a
// reservation was refused.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %d available, %d requested", e.ProductID, e.Available, e.Requested)
}

// Is lets errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
