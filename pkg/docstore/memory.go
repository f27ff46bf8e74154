package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ghuser/farmstand/pkg/logger"
)

// Publisher receives the events of a committed memory transaction.
type Publisher func(ctx context.Context, topic string, payload []byte) error

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithPublisher forwards committed events to p. Delivery happens after the
// commit and is best-effort: a publisher error never fails the transaction.
func WithPublisher(p Publisher) MemoryOption {
	return func(s *MemoryStore) { s.publish = p }
}

// WithLogger sets where failed post-commit deliveries are reported.
func WithLogger(log logger.Logger) MemoryOption {
	return func(s *MemoryStore) { s.log = log }
}

// WithNow overrides the timestamp source used for CreatedAt and UpdatedAt.
func WithNow(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// MemoryStore is an in-process Store. It gives the same isolation guarantees
// as the postgres backend and is used by tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[docKey]*Document
	publish Publisher
	log     logger.Logger
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		docs: make(map[docKey]*Document),
		log:  logger.Discard(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	return s.fetch(ctx, docKey{collection: collection, id: id})
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for k := range s.docs {
		if k.collection == collection {
			ids = append(ids, k.id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// RunTransaction runs fn without holding any lock, then validates the read
// set and applies the write set under the store lock.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	tx := newTxn(s.fetch)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.commit(tx); err != nil {
		return err
	}

	if s.publish != nil {
		for _, ev := range tx.events {
			if err := s.publish(ctx, ev.Topic, ev.Payload); err != nil {
				s.log.ErrorContext(ctx, "docstore: publish after commit failed", "topic", ev.Topic, "error", err)
			}
		}
	}
	return nil
}

func (s *MemoryStore) commit(tx *txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range tx.reads {
		var current int64
		if doc, ok := s.docs[key]; ok {
			current = doc.Version
		}
		if current != tx.readVersion(key) {
			return fmt.Errorf("%s changed from version %d to %d: %w", key, tx.readVersion(key), current, ErrConflict)
		}
	}

	now := s.now()
	for _, key := range tx.order {
		w := tx.writes[key]
		prev, exists := s.docs[key]
		if w.deleted {
			delete(s.docs, key)
			continue
		}
		doc := &Document{
			Collection: key.collection,
			ID:         key.id,
			Data:       cloneBytes(w.data),
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if exists {
			doc.Version = prev.Version + 1
			doc.CreatedAt = prev.CreatedAt
		}
		s.docs[key] = doc
	}
	return nil
}

func (s *MemoryStore) fetch(ctx context.Context, key docKey) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return cloneDocument(doc), nil
}
