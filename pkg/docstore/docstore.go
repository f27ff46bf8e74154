// Package docstore is a small transactional document store: schemaless JSON
// documents grouped in collections, read and written through optimistic
// multi-document transactions.
//
// A transaction records the version of every document it reads (absent
// documents are recorded as version 0). At commit the store verifies none of
// those versions changed; if one did, nothing is written and RunTransaction
// returns ErrConflict. Callers retry the whole read-modify-write with a
// RetryPolicy.
//
// Writes are only accepted for documents already read in the same
// transaction. This rules out blind overwrites of shared counters.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Use errors.Is() to check these.
var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrConflict indicates a document read by the transaction changed before commit.
	ErrConflict = errors.New("docstore: transaction conflict")

	// ErrUnavailable indicates the underlying store could not be reached.
	ErrUnavailable = errors.New("docstore: store unavailable")

	// ErrBlindWrite indicates a Put or Delete on a document the transaction never read.
	ErrBlindWrite = errors.New("docstore: write without prior read")
)

// Document is a stored record plus its bookkeeping.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DataTo decodes the document body into v.
func (d *Document) DataTo(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("docstore: decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Event is a message emitted by a transaction. It is published only if the
// transaction commits.
type Event struct {
	Topic   string
	Payload []byte
}

// Txn is the handle passed to a transaction function.
type Txn interface {
	// Get reads a document and records its version for the commit check.
	// Returns ErrNotFound for absent documents; the absence is recorded too.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Put buffers a JSON-encoded write. The document must have been read first.
	Put(collection, id string, data any) error

	// Delete buffers a delete. The document must have been read first and exist.
	Delete(collection, id string) error

	// Emit buffers an event published atomically with the writes.
	Emit(topic string, payload any) error
}

// TxFunc is the body of a transaction. It may run more than once when the
// caller retries, so it must derive all state from reads made through tx.
type TxFunc func(ctx context.Context, tx Txn) error

// Store is implemented by every backend.
type Store interface {
	// Get reads a single document outside any transaction.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// List returns the ids of every document in collection, sorted.
	List(ctx context.Context, collection string) ([]string, error)

	// RunTransaction runs fn once and commits its writes atomically iff no
	// document it read has changed. A lost race returns ErrConflict.
	RunTransaction(ctx context.Context, fn TxFunc) error

	// Ping checks the backend health.
	Ping(ctx context.Context) error
}

type docKey struct {
	collection string
	id         string
}

func (k docKey) String() string { return k.collection + "/" + k.id }

type pendingWrite struct {
	data    []byte
	deleted bool
}

// fetchFunc loads the committed state of a document for a backend.
type fetchFunc func(ctx context.Context, key docKey) (*Document, error)

// txn holds the read set, write set and emitted events of one transaction
// attempt. Backends supply fetch and apply the buffered state at commit.
type txn struct {
	fetch  fetchFunc
	reads  map[docKey]*Document // nil value means read as absent
	writes map[docKey]*pendingWrite
	order  []docKey
	events []Event
}

func newTxn(fetch fetchFunc) *txn {
	return &txn{
		fetch:  fetch,
		reads:  make(map[docKey]*Document),
		writes: make(map[docKey]*pendingWrite),
	}
}

func (t *txn) Get(ctx context.Context, collection, id string) (*Document, error) {
	key := docKey{collection: collection, id: id}

	// Read-your-writes: a document written earlier in this transaction is
	// returned as written.
	if w, ok := t.writes[key]; ok {
		if w.deleted {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		doc := &Document{Collection: collection, ID: id, Data: cloneBytes(w.data)}
		if prev := t.reads[key]; prev != nil {
			doc.Version = prev.Version
			doc.CreatedAt = prev.CreatedAt
			doc.UpdatedAt = prev.UpdatedAt
		}
		return doc, nil
	}

	if doc, ok := t.reads[key]; ok {
		if doc == nil {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return cloneDocument(doc), nil
	}

	doc, err := t.fetch(ctx, key)
	if errors.Is(err, ErrNotFound) {
		t.reads[key] = nil
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.reads[key] = doc
	return cloneDocument(doc), nil
}

func (t *txn) Put(collection, id string, data any) error {
	key := docKey{collection: collection, id: id}
	if _, ok := t.reads[key]; !ok {
		return fmt.Errorf("put %s: %w", key, ErrBlindWrite)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("put %s: encode: %w", key, err)
	}
	t.record(key, &pendingWrite{data: b})
	return nil
}

func (t *txn) Delete(collection, id string) error {
	key := docKey{collection: collection, id: id}
	prev, ok := t.reads[key]
	if !ok {
		return fmt.Errorf("delete %s: %w", key, ErrBlindWrite)
	}
	if w, written := t.writes[key]; (written && w.deleted) || (!written && prev == nil) {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	t.record(key, &pendingWrite{deleted: true})
	return nil
}

func (t *txn) Emit(topic string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("emit %s: encode: %w", topic, err)
	}
	t.events = append(t.events, Event{Topic: topic, Payload: b})
	return nil
}

func (t *txn) record(key docKey, w *pendingWrite) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = w
}

// readVersion is the version observed by the transaction, 0 for absent.
func (t *txn) readVersion(key docKey) int64 {
	if doc := t.reads[key]; doc != nil {
		return doc.Version
	}
	return 0
}

func cloneDocument(d *Document) *Document {
	c := *d
	c.Data = cloneBytes(d.Data)
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
