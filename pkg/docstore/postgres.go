package docstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ghuser/farmstand/pkg/database"
)

// TxPublisherFactory returns a publisher bound to a database transaction, so
// events land in the outbox atomically with the document writes.
// *events.EventBus implements it.
type TxPublisherFactory interface {
	NewTxPublisher(tx *sql.Tx) (message.Publisher, error)
}

// PostgresStore keeps every document in a single jsonb table (see
// migrations/docstore) keyed by (collection, id) with an integer version.
type PostgresStore struct {
	db     *database.Database
	outbox TxPublisherFactory
}

// NewPostgresStore returns a store over db. outbox may be nil, in which case
// emitted events are dropped.
func NewPostgresStore(db *database.Database, outbox TxPublisherFactory) *PostgresStore {
	return &PostgresStore{db: db, outbox: outbox}
}

var _ Store = (*PostgresStore)(nil)

const (
	selectDocumentSQL = `SELECT data, version, created_at, updated_at
		FROM documents WHERE collection = $1 AND id = $2`
	lockVersionSQL = `SELECT version FROM documents
		WHERE collection = $1 AND id = $2 FOR SHARE`
	insertDocumentSQL = `INSERT INTO documents (collection, id, data, version, created_at, updated_at)
		VALUES ($1, $2, $3, 1, now(), now())
		ON CONFLICT (collection, id) DO NOTHING`
	updateDocumentSQL = `UPDATE documents
		SET data = $3, version = version + 1, updated_at = now()
		WHERE collection = $1 AND id = $2 AND version = $4`
	deleteDocumentSQL = `DELETE FROM documents
		WHERE collection = $1 AND id = $2 AND version = $3`
	listDocumentsSQL = `SELECT id FROM documents WHERE collection = $1 ORDER BY id`
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	return fetchDocument(ctx, s.db.DB(), docKey{collection: collection, id: id})
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, listDocumentsSQL, collection)
	if err != nil {
		return nil, classify(fmt.Errorf("list %s: %w", collection, err))
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify(fmt.Errorf("list %s: scan: %w", collection, err))
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("list %s: %w", collection, err))
	}
	return ids, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// RunTransaction reads without locks, then at commit locks every read-only
// document FOR SHARE and applies version-checked writes. Any mismatch aborts
// the SQL transaction with ErrConflict.
func (s *PostgresStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	var fnErr error
	err := s.db.WithTx(ctx, func(sqlTx *sql.Tx) error {
		tx := newTxn(func(ctx context.Context, key docKey) (*Document, error) {
			return fetchDocument(ctx, sqlTx, key)
		})
		if fnErr = fn(ctx, tx); fnErr != nil {
			return fnErr
		}
		if err := verifyReads(ctx, sqlTx, tx); err != nil {
			return err
		}
		if err := applyWrites(ctx, sqlTx, tx); err != nil {
			return err
		}
		return s.publish(ctx, sqlTx, tx.events)
	})
	if err == nil {
		return nil
	}
	// Errors produced by the transaction body pass through untouched.
	if fnErr != nil && errors.Is(err, fnErr) {
		return err
	}
	return classify(err)
}

func (s *PostgresStore) publish(ctx context.Context, sqlTx *sql.Tx, evs []Event) error {
	if len(evs) == 0 || s.outbox == nil {
		return nil
	}
	pub, err := s.outbox.NewTxPublisher(sqlTx)
	if err != nil {
		return err
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	for _, ev := range evs {
		msg := message.NewMessage(watermill.NewUUID(), ev.Payload)
		for k, v := range carrier {
			msg.Metadata.Set(k, v)
		}
		if err := pub.Publish(ev.Topic, msg); err != nil {
			return fmt.Errorf("publish %s: %w", ev.Topic, err)
		}
	}
	return nil
}

func fetchDocument(ctx context.Context, q queryer, key docKey) (*Document, error) {
	doc := &Document{Collection: key.collection, ID: key.id}
	var data []byte
	err := q.QueryRowContext(ctx, selectDocumentSQL, key.collection, key.id).
		Scan(&data, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get %s: %w", key, err))
	}
	doc.Data = data
	return doc, nil
}

// verifyReads pins documents that were read but not written. Written
// documents are checked by their version-guarded statements instead.
func verifyReads(ctx context.Context, sqlTx *sql.Tx, tx *txn) error {
	for key := range tx.reads {
		if _, written := tx.writes[key]; written {
			continue
		}
		var current int64
		err := sqlTx.QueryRowContext(ctx, lockVersionSQL, key.collection, key.id).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("verify %s: %w", key, err)
		}
		if current != tx.readVersion(key) {
			return fmt.Errorf("%s changed from version %d to %d: %w", key, tx.readVersion(key), current, ErrConflict)
		}
	}
	return nil
}

func applyWrites(ctx context.Context, sqlTx *sql.Tx, tx *txn) error {
	for _, key := range tx.order {
		w := tx.writes[key]
		version := tx.readVersion(key)

		var (
			res sql.Result
			err error
		)
		switch {
		case w.deleted:
			res, err = sqlTx.ExecContext(ctx, deleteDocumentSQL, key.collection, key.id, version)
		case version == 0:
			res, err = sqlTx.ExecContext(ctx, insertDocumentSQL, key.collection, key.id, string(w.data))
		default:
			res, err = sqlTx.ExecContext(ctx, updateDocumentSQL, key.collection, key.id, string(w.data), version)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("%s modified concurrently: %w", key, ErrConflict)
		}
	}
	return nil
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotFound) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505": // serialization_failure, deadlock_detected, unique_violation
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case "57P01", "57P03", "08000", "08003", "08006": // admin_shutdown, cannot_connect_now, connection_*
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
