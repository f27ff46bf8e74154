// Package documents implements the inventory repositories on top of the
// shared document store. Items, carts and orders each live in their own
// collection; carts are keyed by user id.
package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghuser/farmstand/pkg/docstore"
	"github.com/ghuser/farmstand/services/inventory/domain"
	"github.com/ghuser/farmstand/services/inventory/domain/models"
	"github.com/ghuser/farmstand/services/inventory/domain/repositories"
)

const (
	collectionItems  = "items"
	collectionCarts  = "carts"
	collectionOrders = "orders"
)

// Store adapts a docstore.Store to repositories.Store.
type Store struct {
	docs docstore.Store
}

// NewStore returns a repositories.Store backed by docs.
func NewStore(docs docstore.Store) *Store {
	return &Store{docs: docs}
}

var _ repositories.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Tx) error) error {
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, dtx docstore.Txn) error {
		return fn(ctx, &tx{docs: dtx})
	})
	return mapErr(err, nil)
}

func (s *Store) Item(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	if err := load(ctx, s.docs.Get, collectionItems, id, &item, domain.ErrItemNotFound); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) Cart(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	if err := load(ctx, s.docs.Get, collectionCarts, userID, &cart, domain.ErrCartNotFound); err != nil {
		return nil, err
	}
	normalizeCart(&cart)
	return &cart, nil
}

func (s *Store) Order(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := load(ctx, s.docs.Get, collectionOrders, id, &order, domain.ErrOrderNotFound); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) CartIDs(ctx context.Context) ([]string, error) {
	ids, err := s.docs.List(ctx, collectionCarts)
	if err != nil {
		return nil, mapErr(fmt.Errorf("list carts: %w", err), nil)
	}
	return ids, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return mapErr(s.docs.Ping(ctx), nil)
}

// tx adapts a docstore.Txn to repositories.Tx.
type tx struct {
	docs docstore.Txn
}

func (t *tx) Item(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	if err := load(ctx, t.docs.Get, collectionItems, id, &item, domain.ErrItemNotFound); err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *tx) PutItem(item *models.Item) error {
	return mapErr(t.docs.Put(collectionItems, item.ID, item), nil)
}

func (t *tx) DeleteItem(id string) error {
	return mapErr(t.docs.Delete(collectionItems, id), domain.ErrItemNotFound)
}

func (t *tx) Cart(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	if err := load(ctx, t.docs.Get, collectionCarts, userID, &cart, domain.ErrCartNotFound); err != nil {
		return nil, err
	}
	normalizeCart(&cart)
	return &cart, nil
}

func (t *tx) PutCart(cart *models.Cart) error {
	normalizeCart(cart)
	return mapErr(t.docs.Put(collectionCarts, cart.UserID, cart), nil)
}

func (t *tx) Order(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := load(ctx, t.docs.Get, collectionOrders, id, &order, domain.ErrOrderNotFound); err != nil {
		return nil, err
	}
	return &order, nil
}

func (t *tx) PutOrder(order *models.Order) error {
	return mapErr(t.docs.Put(collectionOrders, order.ID, order), nil)
}

func (t *tx) Emit(topic string, payload any) error {
	return t.docs.Emit(topic, payload)
}

type getFunc func(ctx context.Context, collection, id string) (*docstore.Document, error)

func load(ctx context.Context, get getFunc, collection, id string, dst any, notFound error) error {
	doc, err := get(ctx, collection, id)
	if err != nil {
		return mapErr(err, notFound)
	}
	return doc.DataTo(dst)
}

// normalizeCart keeps Items non-nil so an empty cart encodes as [].
func normalizeCart(c *models.Cart) {
	if c.Items == nil {
		c.Items = []models.CartItem{}
	}
}

// mapErr translates store sentinels into domain sentinels while keeping the
// original error in the chain.
func mapErr(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound) && notFound != nil:
		return fmt.Errorf("%w: %w", notFound, err)
	case errors.Is(err, docstore.ErrConflict) && !errors.Is(err, domain.ErrConflict):
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	case errors.Is(err, docstore.ErrUnavailable) && !errors.Is(err, domain.ErrStoreUnavailable):
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}
