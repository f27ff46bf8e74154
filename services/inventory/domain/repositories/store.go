package repositories

import (
	"context"

	"github.com/ghuser/farmstand/services/inventory/domain/models"
)

// Tx is a single store transaction over items, carts and orders.
//
// Every Put must follow a read of the same document in the same Tx (a read
// that returned a not-found error counts). The commit fails with
// domain.ErrConflict if any document read through the Tx changed meanwhile.
type Tx interface {
	Item(ctx context.Context, id string) (*models.Item, error)
	PutItem(item *models.Item) error
	DeleteItem(id string) error

	Cart(ctx context.Context, userID string) (*models.Cart, error)
	PutCart(cart *models.Cart) error

	Order(ctx context.Context, id string) (*models.Order, error)
	PutOrder(order *models.Order) error

	// Emit queues an event that is published only if the transaction commits.
	Emit(topic string, payload any) error
}

// Store is the persistence interface for the inventory context.
// The domain layer owns this interface; infrastructure implements it.
type Store interface {
	// InTx runs fn once as a transaction. Retrying on domain.ErrConflict is
	// the caller's responsibility.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Item(ctx context.Context, id string) (*models.Item, error)
	Cart(ctx context.Context, userID string) (*models.Cart, error)
	Order(ctx context.Context, id string) (*models.Order, error)

	// CartIDs lists the user id of every stored cart.
	CartIDs(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
}
