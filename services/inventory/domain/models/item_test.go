package models

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ghuser/farmstand/services/inventory/domain"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestNewItem(t *testing.T) {
	t.Run("valid item gets an id and timestamps", func(t *testing.T) {
		item, err := NewItem("Eggs", decimal.RequireFromString("4.50"), 12, 30, t0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if item.ID == "" {
			t.Fatal("expected generated id")
		}
		if !item.CreatedAt.Equal(t0) || !item.UpdatedAt.Equal(t0) {
			t.Fatalf("unexpected timestamps %v %v", item.CreatedAt, item.UpdatedAt)
		}
		if item.Quantity != 30 {
			t.Fatalf("expected quantity 30, got %d", item.Quantity)
		}
	})

	t.Run("ids are unique", func(t *testing.T) {
		a, _ := NewItem("Eggs", decimal.Zero, 0, 0, t0)
		b, _ := NewItem("Eggs", decimal.Zero, 0, 0, t0)
		if a.ID == b.ID {
			t.Fatal("expected unique ids")
		}
	})

	invalid := []struct {
		name     string
		price    decimal.Decimal
		size     int
		quantity int
	}{
		{"negative price", decimal.NewFromInt(-1), 0, 0},
		{"negative size", decimal.Zero, -1, 0},
		{"negative quantity", decimal.Zero, 0, -1},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewItem("Eggs", tt.price, tt.size, tt.quantity, t0)
			if !errors.Is(err, domain.ErrInvalidItem) {
				t.Fatalf("expected ErrInvalidItem, got %v", err)
			}
		})
	}
}

func TestItem_Reserve(t *testing.T) {
	later := t0.Add(time.Minute)

	t.Run("decrements stock", func(t *testing.T) {
		item := &Item{ID: "p", Quantity: 5}
		if err := item.Reserve(3, later); err != nil {
			t.Fatal(err)
		}
		if item.Quantity != 2 || !item.UpdatedAt.Equal(later) {
			t.Fatalf("unexpected item %+v", item)
		}
	})

	t.Run("exact stock is allowed", func(t *testing.T) {
		item := &Item{ID: "p", Quantity: 2}
		if err := item.Reserve(2, later); err != nil {
			t.Fatal(err)
		}
		if item.Quantity != 0 {
			t.Fatalf("expected 0, got %d", item.Quantity)
		}
	})

	t.Run("insufficient stock leaves item untouched", func(t *testing.T) {
		item := &Item{ID: "p", Quantity: 1}
		err := item.Reserve(2, later)
		var stockErr *domain.InsufficientStockError
		if !errors.As(err, &stockErr) || stockErr.Available != 1 {
			t.Fatalf("expected InsufficientStockError(1), got %v", err)
		}
		if item.Quantity != 1 || !item.UpdatedAt.IsZero() {
			t.Fatalf("item mutated on failure: %+v", item)
		}
	})

	t.Run("non-positive quantity rejected", func(t *testing.T) {
		item := &Item{ID: "p", Quantity: 1}
		if err := item.Reserve(0, later); !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})
}

func TestItem_ReleaseAndDrawDown(t *testing.T) {
	item := &Item{ID: "p", Quantity: 2}

	if taken := item.DrawDown(5, t0); taken != 2 || item.Quantity != 0 {
		t.Fatalf("expected floor at 0 taking 2, got stock %d taken %d", item.Quantity, taken)
	}

	if err := item.Release(5, t0); err != nil || item.Quantity != 5 {
		t.Fatalf("expected 5 after release, got %d (%v)", item.Quantity, err)
	}

	if err := item.Release(-3, t0); err != nil {
		t.Fatal(err)
	}
	if taken := item.DrawDown(0, t0); taken != 0 || item.Quantity != 5 {
		t.Fatalf("non-positive amounts must be ignored, got %d", item.Quantity)
	}
}

func TestItem_ReleaseOverflow(t *testing.T) {
	item := &Item{ID: "p", Quantity: 5}

	err := item.Release(math.MaxInt, t0)
	if !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if item.Quantity != 5 {
		t.Fatalf("refused release must leave stock alone, got %d", item.Quantity)
	}

	item.Quantity = math.MaxInt - 1
	if err := item.Release(1, t0); err != nil || item.Quantity != math.MaxInt {
		t.Fatalf("release up to MaxInt must succeed, got %d (%v)", item.Quantity, err)
	}
}

func TestItem_ReserveAboveLineCap(t *testing.T) {
	item := &Item{ID: "p", Quantity: math.MaxInt}
	if err := item.Reserve(MaxLineQuantity+1, t0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if err := item.Reserve(MaxLineQuantity, t0); err != nil {
		t.Fatalf("reserving the cap must succeed, got %v", err)
	}
}
