package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ghuser/farmstand/services/inventory/domain"
	"github.com/ghuser/farmstand/services/inventory/domain/models"
	"github.com/ghuser/farmstand/services/inventory/domain/repositories"
	domainsvcs "github.com/ghuser/farmstand/services/inventory/domain/services"
)

// NewItemInput carries the fields an admin supplies for a new catalog item.
type NewItemInput struct {
	Name        string
	Price       decimal.Decimal
	Size        int
	Quantity    int
	Description string
	Image       string
}

// CatalogService is the admin side of the item collection.
type CatalogService struct {
	*engine
}

// newCatalogService returns a CatalogService.
func newCatalogService(e *engine) *CatalogService {
	return &CatalogService{engine: e}
}

// CreateItem validates and stores a new item with its opening stock.
func (s *CatalogService) CreateItem(ctx context.Context, in NewItemInput) (*models.Item, error) {
	name, err := models.NewItemName(in.Name)
	if err != nil {
		return nil, fmt.Errorf("create item: %w: %w", domain.ErrInvalidItemName, err)
	}

	item, err := models.NewItem(name, in.Price, in.Size, in.Quantity, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	item.Description = in.Description
	item.Image = in.Image

	if err := domainsvcs.ValidateItemForCreation(item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	err = s.inTx(ctx, "create_item", func(ctx context.Context, tx repositories.Tx) error {
		if _, err := tx.Item(ctx, item.ID); err == nil {
			return fmt.Errorf("%w: %s", domain.ErrItemAlreadyExists, item.ID)
		} else if !errors.Is(err, domain.ErrItemNotFound) {
			return err
		}
		return tx.PutItem(item)
	})
	if err != nil {
		return nil, fmt.Errorf("save item: %w", err)
	}

	s.log.InfoContext(ctx, "inventory: item created", "item_id", item.ID, "quantity", item.Quantity)
	return item, nil
}

// GetItem returns an item by id.
func (s *CatalogService) GetItem(ctx context.Context, id string) (*models.Item, error) {
	item, err := s.store.Item(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// DeleteItem removes an item. Reservations and orders that still reference it
// keep working; their later stock restores are reported as lost.
func (s *CatalogService) DeleteItem(ctx context.Context, id string) error {
	err := s.inTx(ctx, "delete_item", func(ctx context.Context, tx repositories.Tx) error {
		if _, err := tx.Item(ctx, id); err != nil {
			return err
		}
		return tx.DeleteItem(id)
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	s.log.InfoContext(ctx, "inventory: item deleted", "item_id", id)
	return nil
}
