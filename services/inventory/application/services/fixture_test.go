package services

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ghuser/farmstand/pkg/clock"
	"github.com/ghuser/farmstand/pkg/config"
	"github.com/ghuser/farmstand/pkg/docstore"
	"github.com/ghuser/farmstand/pkg/logger"
	"github.com/ghuser/farmstand/services/inventory/domain/repositories"
	"github.com/ghuser/farmstand/services/inventory/infrastructure/persistence/documents"
)

const testTTL = 24 * time.Hour

var start = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type published struct {
	Topic   string
	Payload json.RawMessage
}

type fixture struct {
	t     *testing.T
	docs  *docstore.MemoryStore
	store repositories.Store
	clock *clock.FakeClock
	logs  *syncBuffer
	svcs  *Services

	mu     sync.Mutex
	events []published
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, clock: clock.Fake(start), logs: &syncBuffer{}}
	f.docs = docstore.NewMemoryStore(
		docstore.WithNow(f.clock.Now),
		docstore.WithPublisher(func(_ context.Context, topic string, payload []byte) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, published{Topic: topic, Payload: payload})
			return nil
		}),
	)
	f.store = documents.NewStore(f.docs)
	f.svcs = f.servicesOver(f.store)
	return f
}

func testOptions() Options {
	return Options{
		ReservationTTL:   testTTL,
		SweepConcurrency: 4,
		Retry:            docstore.RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Millisecond, Timeout: 5 * time.Second},
	}
}

// servicesOver builds a second set of services sharing the clock and logs.
func (f *fixture) servicesOver(store repositories.Store) *Services {
	log := logger.NewWithWriter(&config.Config{LogLevel: "debug"}, f.logs)
	return NewServices(store, f.clock, log, NewMetrics(), testOptions())
}

func (f *fixture) ctx() context.Context { return context.Background() }

// item creates a catalog item with the given stock and returns its id.
func (f *fixture) item(qty int) string {
	f.t.Helper()
	return f.itemPriced(qty, "10.00")
}

func (f *fixture) itemPriced(qty int, price string) string {
	f.t.Helper()
	item, err := f.svcs.Catalog.CreateItem(f.ctx(), NewItemInput{
		Name:     "Heirloom Tomatoes",
		Price:    decimal.RequireFromString(price),
		Size:     1,
		Quantity: qty,
	})
	if err != nil {
		f.t.Fatalf("create item: %v", err)
	}
	return item.ID
}

func (f *fixture) stock(productID string) int {
	f.t.Helper()
	item, err := f.store.Item(f.ctx(), productID)
	if err != nil {
		f.t.Fatalf("get item %s: %v", productID, err)
	}
	if item.Quantity < 0 {
		f.t.Fatalf("item %s has negative stock %d", productID, item.Quantity)
	}
	return item.Quantity
}

// reserved sums the stored reservations for productID across every cart.
func (f *fixture) reserved(productID string) int {
	f.t.Helper()
	ids, err := f.store.CartIDs(f.ctx())
	if err != nil {
		f.t.Fatal(err)
	}
	total := 0
	for _, id := range ids {
		cart, err := f.store.Cart(f.ctx(), id)
		if err != nil {
			f.t.Fatal(err)
		}
		for _, line := range cart.Items {
			if line.ProductID == productID {
				total += line.Quantity
			}
		}
	}
	return total
}

func (f *fixture) assertConserved(productID string, total int) {
	f.t.Helper()
	if got := f.stock(productID) + f.reserved(productID); got != total {
		f.t.Fatalf("conservation broken for %s: stock %d + reserved %d != %d",
			productID, f.stock(productID), f.reserved(productID), total)
	}
}

func (f *fixture) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Topic)
	}
	return out
}

func (f *fixture) countTopic(topic string) int {
	n := 0
	for _, t := range f.topics() {
		if t == topic {
			n++
		}
	}
	return n
}

// interferingStore runs interfere after the transaction body and before the
// commit, simulating a competing writer that wins the race.
type interferingStore struct {
	repositories.Store
	mu        sync.Mutex
	remaining int
	interfere func()
}

func (s *interferingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		s.mu.Lock()
		run := s.remaining != 0
		if s.remaining > 0 {
			s.remaining--
		}
		s.mu.Unlock()
		if run {
			s.interfere()
		}
		return nil
	})
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
