package models

import (
	"errors"
	"math"
	"testing"

	"github.com/ghuser/farmstand/services/inventory/domain"
)

func TestParseOrderStatus(t *testing.T) {
	for _, s := range []string{"pending", "processing", "fulfilled", "cancelled"} {
		t.Run(s, func(t *testing.T) {
			st, err := ParseOrderStatus(s)
			if err != nil || string(st) != s {
				t.Fatalf("ParseOrderStatus(%q) = %q, %v", s, st, err)
			}
		})
	}

	for _, s := range []string{"", "shipped", "Fulfilled"} {
		t.Run("rejects "+s, func(t *testing.T) {
			if _, err := ParseOrderStatus(s); !errors.Is(err, domain.ErrInvalidStatus) {
				t.Fatalf("expected ErrInvalidStatus, got %v", err)
			}
		})
	}
}

func TestNewOrder(t *testing.T) {
	t.Run("starts pending", func(t *testing.T) {
		o, err := NewOrder("u1", []OrderItem{{ProductID: "p1", Quantity: 2}}, t0)
		if err != nil {
			t.Fatal(err)
		}
		if o.Status != OrderPending || o.ID == "" || !o.CreatedAt.Equal(t0) {
			t.Fatalf("unexpected order %+v", o)
		}
	})

	t.Run("rejects empty orders", func(t *testing.T) {
		if _, err := NewOrder("u1", nil, t0); !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})

	t.Run("rejects zero quantity lines", func(t *testing.T) {
		_, err := NewOrder("u1", []OrderItem{{ProductID: "p1", Quantity: 0}}, t0)
		if !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})

	t.Run("rejects lines above the cap", func(t *testing.T) {
		_, err := NewOrder("u1", []OrderItem{{ProductID: "p1", Quantity: math.MaxInt}}, t0)
		if !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})

	t.Run("rejects holding more than ordered", func(t *testing.T) {
		_, err := NewOrder("u1", []OrderItem{{ProductID: "p1", Quantity: 2, Held: 3}}, t0)
		if !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})

	t.Run("rejects lines without product", func(t *testing.T) {
		_, err := NewOrder("u1", []OrderItem{{Quantity: 1}}, t0)
		if !errors.Is(err, domain.ErrInvalidItem) {
			t.Fatalf("expected ErrInvalidItem, got %v", err)
		}
	})
}
