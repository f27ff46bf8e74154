package services

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/ghuser/farmstand/services/inventory/domain"
)

// step performs one random cart operation for user. Errors that leave state
// untouched by contract are swallowed.
func (f *fixture) step(r *rand.Rand, user string, products []string) error {
	ctx := f.ctx()
	var err error
	switch r.IntN(6) {
	case 0, 1:
		_, err = f.svcs.Reservations.AddReservation(ctx, user, products[r.IntN(len(products))], 1+r.IntN(4))
	case 2:
		cart, gerr := f.svcs.Reservations.GetCart(ctx, user)
		if gerr != nil || len(cart.Items) == 0 {
			return gerr
		}
		_, err = f.svcs.Reservations.UpdateReservationQuantity(ctx, user, cart.Items[r.IntN(len(cart.Items))].ID, r.IntN(6))
	case 3:
		cart, gerr := f.svcs.Reservations.GetCart(ctx, user)
		if gerr != nil || len(cart.Items) == 0 {
			return gerr
		}
		_, err = f.svcs.Reservations.RemoveReservation(ctx, user, cart.Items[r.IntN(len(cart.Items))].ID)
	case 4:
		_, err = f.svcs.Reservations.ClearCart(ctx, user)
	case 5:
		_, err = f.svcs.Reconciler.SweepAll(ctx)
	}
	switch {
	case err == nil,
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrCartItemNotFound),
		errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrConflict):
		return nil
	}
	return err
}

func TestConservation_RandomSequence(t *testing.T) {
	f := newFixture(t)
	initial := map[string]int{}
	var products []string
	for _, qty := range []int{3, 7, 12} {
		p := f.item(qty)
		initial[p] = qty
		products = append(products, p)
	}
	users := []string{"u1", "u2", "u3"}

	r := rand.New(rand.NewPCG(42, 7))
	for i := range 400 {
		if r.IntN(10) == 0 {
			f.clock.Advance(time.Duration(r.IntN(12)) * time.Hour)
		}
		if err := f.step(r, users[r.IntN(len(users))], products); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		for _, p := range products {
			f.assertConserved(p, initial[p])
		}
	}
}

func TestConservation_Concurrent(t *testing.T) {
	f := newFixture(t)
	initial := map[string]int{}
	var products []string
	for _, qty := range []int{5, 20} {
		p := f.item(qty)
		initial[p] = qty
		products = append(products, p)
	}

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(w), 99))
			user := fmt.Sprintf("user-%d", w)
			for range 50 {
				if err := f.step(r, user, products); err != nil {
					t.Errorf("%s: %v", user, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, p := range products {
		f.assertConserved(p, initial[p])
	}

	f.clock.Advance(testTTL)
	if _, err := f.svcs.Reconciler.SweepAll(f.ctx()); err != nil {
		t.Fatal(err)
	}
	for _, p := range products {
		if f.stock(p) != initial[p] {
			t.Fatalf("after expiry %s has %d, want %d", p, f.stock(p), initial[p])
		}
	}
}
