package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ghuser/farmstand/pkg/docstore"
	"github.com/ghuser/farmstand/services/inventory/domain"
	"github.com/ghuser/farmstand/services/inventory/domain/models"
	"github.com/ghuser/farmstand/services/inventory/domain/repositories"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestStore_RoundTripsAggregates(t *testing.T) {
	ctx := context.Background()
	s := NewStore(docstore.NewMemoryStore())

	item := &models.Item{ID: "p1", Name: "Eggs", Price: decimal.RequireFromString("4.50"), Quantity: 12, CreatedAt: now, UpdatedAt: now}
	cart := models.NewCart("u1", now)
	cart.AddReservation(item.ID, models.SnapshotOf(item), 2, now, time.Hour)
	order := &models.Order{ID: "o1", UserID: "u1", Status: models.OrderPending, Items: []models.OrderItem{{ProductID: "p1", Quantity: 1}}}

	err := s.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if _, err := tx.Item(ctx, item.ID); !errors.Is(err, domain.ErrItemNotFound) {
			return fmt.Errorf("expected ErrItemNotFound, got %w", err)
		}
		if _, err := tx.Cart(ctx, cart.UserID); !errors.Is(err, domain.ErrCartNotFound) {
			return fmt.Errorf("expected ErrCartNotFound, got %w", err)
		}
		if _, err := tx.Order(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
			return fmt.Errorf("expected ErrOrderNotFound, got %w", err)
		}
		if err := tx.PutItem(item); err != nil {
			return err
		}
		if err := tx.PutCart(cart); err != nil {
			return err
		}
		return tx.PutOrder(order)
	})
	if err != nil {
		t.Fatal(err)
	}

	gotItem, err := s.Item(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if gotItem.Quantity != 12 || !gotItem.Price.Equal(item.Price) || gotItem.Name != "Eggs" {
		t.Fatalf("unexpected item %+v", gotItem)
	}

	gotCart, err := s.Cart(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(gotCart.Items) != 1 || gotCart.Items[0].Quantity != 2 || !gotCart.Items[0].ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected cart %+v", gotCart)
	}

	gotOrder, err := s.Order(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if gotOrder.Status != models.OrderPending || len(gotOrder.Items) != 1 {
		t.Fatalf("unexpected order %+v", gotOrder)
	}

	ids, err := s.CartIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "u1" {
		t.Fatalf("CartIDs = %v, %v", ids, err)
	}
}

func TestStore_EmptyCartEncodesItems(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemoryStore()
	s := NewStore(docs)

	err := s.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		_, _ = tx.Cart(ctx, "u1")
		return tx.PutCart(&models.Cart{UserID: "u1"})
	})
	if err != nil {
		t.Fatal(err)
	}

	doc, err := docs.Get(ctx, collectionCarts, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if want := `"items":[]`; !strings.Contains(string(doc.Data), want) {
		t.Fatalf("expected %s in %s", want, doc.Data)
	}
}

func TestStore_MapsConflictAndUnavailable(t *testing.T) {
	if err := mapErr(fmt.Errorf("x: %w", docstore.ErrConflict), nil); !errors.Is(err, domain.ErrConflict) || !errors.Is(err, docstore.ErrConflict) {
		t.Fatalf("expected both conflict sentinels, got %v", err)
	}
	if err := mapErr(docstore.ErrUnavailable, nil); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := mapErr(docstore.ErrNotFound, nil); errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("not-found without a domain sentinel must pass through, got %v", err)
	}
}

func TestStore_DeleteMissingItem(t *testing.T) {
	s := NewStore(docstore.NewMemoryStore())
	err := s.InTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		_, _ = tx.Item(ctx, "nope")
		return tx.DeleteItem("nope")
	})
	if !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}
