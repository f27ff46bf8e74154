// Package events is the Watermill bus that carries inventory events between
// the API and the worker.
//
// Two transports exist. The PostgreSQL transport is the durable one: the
// document store writes events into the outbox tables inside its own
// transaction and subscribers in a shared consumer group each see a message
// once. The Go channel transport serves the memory store, where publisher and
// subscribers share one process.
//
// Trace context travels in message metadata. Handlers must be idempotent:
// a failed message is retried with backoff, then Nacked and redelivered.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	watermillsql "github.com/ThreeDotsLabs/watermill-sql/v3/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ghuser/farmstand/pkg/config"
	"github.com/ghuser/farmstand/pkg/logger"
)

const (
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = time.Second
	shutdownTimeout       = 30 * time.Second
	errBuffer             = 100

	// Outbox envelope topic drained by the forwarder.
	forwarderTopic = "_forwarder_queue"
	forwarderGroup = "forwarder-consumer"
)

var (
	// ErrNoSQLTransport is returned by NewTxPublisher on an in-memory bus.
	ErrNoSQLTransport = errors.New("events: bus has no SQL transport")
	// ErrMalformedPayload marks a message whose payload could not be decoded.
	ErrMalformedPayload = errors.New("events: malformed payload")
)

// EventBus publishes and subscribes over one Watermill transport.
type EventBus struct {
	publisher    message.Publisher // forwarder-wrapped when useForwarder is set
	subscriber   message.Subscriber
	fwd          *forwarder.Forwarder
	db           *sql.DB // nil for the in-memory transport
	log          logger.Logger
	wg           sync.WaitGroup
	useForwarder bool

	maxRetries     int
	retryBaseDelay time.Duration
}

// NewInMemoryEventBus returns a bus over Watermill's Go channel pub/sub.
// Every subscriber gets every message and nothing survives a restart.
func NewInMemoryEventBus(log logger.Logger) *EventBus {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: errBuffer}, &slogAdapter{log: log})
	return &EventBus{
		publisher:      ch,
		subscriber:     ch,
		log:            log,
		maxRetries:     defaultMaxRetries,
		retryBaseDelay: defaultRetryBaseDelay,
	}
}

// NewEventBus returns a PostgreSQL bus that publishes straight to topic
// tables. The worker uses it; all replicas share the consumer group
// "<service>-consumer".
func NewEventBus(cfg *config.Config, log logger.Logger) (*EventBus, error) {
	return newEventBus(cfg, log, false)
}

// NewEventBusWithForwarder returns a PostgreSQL bus whose publishers write
// envelopes to the forwarder queue. StartForwarder must run for them to reach
// their topics. The API uses this so outbox writes never block on subscribers.
func NewEventBusWithForwarder(cfg *config.Config, log logger.Logger) (*EventBus, error) {
	return newEventBus(cfg, log, true)
}

func newEventBus(cfg *config.Config, log logger.Logger, useForwarder bool) (*EventBus, error) {
	db, err := sql.Open("pgx", cfg.DefinitionDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("events: open db: %w", err)
	}
	wlog := &slogAdapter{log: log}

	pub, err := newSQLPublisher(db, true, wlog)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	sub, err := newSQLSubscriber(db, cfg.ServiceName+"-consumer", wlog)
	if err != nil {
		_ = pub.Close()
		_ = db.Close()
		return nil, err
	}

	maxRetries, baseDelay := retrySettings(cfg)
	return &EventBus{
		publisher:      wrapForwarder(pub, useForwarder),
		subscriber:     sub,
		db:             db,
		log:            log,
		useForwarder:   useForwarder,
		maxRetries:     maxRetries,
		retryBaseDelay: baseDelay,
	}, nil
}

// retrySettings reads the handler retry budget, falling back to 3 attempts
// starting at 1s.
func retrySettings(cfg *config.Config) (int, time.Duration) {
	maxRetries, baseDelay := cfg.EventMaxRetries, cfg.EventRetryBaseDelay
	if maxRetries < 1 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	return maxRetries, baseDelay
}

func newSQLPublisher(db watermillsql.ContextExecutor, initSchema bool, wlog watermill.LoggerAdapter) (message.Publisher, error) {
	pub, err := watermillsql.NewPublisher(db, watermillsql.PublisherConfig{
		SchemaAdapter:        watermillsql.DefaultPostgreSQLSchema{},
		AutoInitializeSchema: initSchema,
	}, wlog)
	if err != nil {
		return nil, fmt.Errorf("events: new publisher: %w", err)
	}
	return pub, nil
}

func newSQLSubscriber(db *sql.DB, group string, wlog watermill.LoggerAdapter) (message.Subscriber, error) {
	sub, err := watermillsql.NewSubscriber(db, watermillsql.SubscriberConfig{
		SchemaAdapter:    watermillsql.DefaultPostgreSQLSchema{},
		OffsetsAdapter:   watermillsql.DefaultPostgreSQLOffsetsAdapter{},
		InitializeSchema: true,
		ConsumerGroup:    group,
	}, wlog)
	if err != nil {
		return nil, fmt.Errorf("events: new subscriber %s: %w", group, err)
	}
	return sub, nil
}

func wrapForwarder(pub message.Publisher, useForwarder bool) message.Publisher {
	if !useForwarder {
		return pub
	}
	return forwarder.NewPublisher(pub, forwarder.PublisherConfig{ForwarderTopic: forwarderTopic})
}

// StartForwarder runs the forwarder that moves envelopes from the outbox
// queue to their real topics. It returns once the forwarder is running and
// stops with ctx. Call it once, on a bus from NewEventBusWithForwarder.
func (q *EventBus) StartForwarder(ctx context.Context) error {
	if !q.useForwarder {
		return fmt.Errorf("events: StartForwarder called on non-forwarder EventBus")
	}
	if q.fwd != nil {
		return fmt.Errorf("events: forwarder already started")
	}
	wlog := &slogAdapter{log: q.log.With("component", "forwarder")}

	queue, err := newSQLSubscriber(q.db, forwarderGroup, wlog)
	if err != nil {
		return err
	}
	target, err := newSQLPublisher(q.db, true, wlog)
	if err != nil {
		_ = queue.Close()
		return err
	}
	fwd, err := forwarder.NewForwarder(queue, target, wlog, forwarder.Config{ForwarderTopic: forwarderTopic})
	if err != nil {
		_ = target.Close()
		_ = queue.Close()
		return fmt.Errorf("events: create forwarder: %w", err)
	}
	q.fwd = fwd

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.log.InfoContext(ctx, "events: forwarder started")
		if err := fwd.Run(ctx); err != nil {
			q.log.ErrorContext(ctx, "events: forwarder stopped with error", "error", err)
			return
		}
		q.log.InfoContext(ctx, "events: forwarder stopped")
	}()

	select {
	case <-fwd.Running():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("events: context cancelled waiting for forwarder: %w", ctx.Err())
	}
}

// DB returns the outbox connection, nil for the in-memory transport.
func (q *EventBus) DB() *sql.DB {
	return q.db
}

// NewTxPublisher returns a publisher that writes into tx, so the events
// commit or roll back with the documents written in the same transaction.
// In forwarder mode the messages are enveloped for the forwarder queue.
func (q *EventBus) NewTxPublisher(tx *sql.Tx) (message.Publisher, error) {
	if q.db == nil {
		return nil, ErrNoSQLTransport
	}
	// The schema exists by now; initializing it inside tx would take locks.
	pub, err := newSQLPublisher(tx, false, &slogAdapter{log: q.log})
	if err != nil {
		return nil, err
	}
	return wrapForwarder(pub, q.useForwarder), nil
}

// Publish sends msgs to topic with the trace context of ctx in their metadata.
func (q *EventBus) Publish(ctx context.Context, topic string, msgs ...*message.Message) error {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for _, msg := range msgs {
		for k, v := range carrier {
			msg.Metadata.Set(k, v)
		}
	}
	if err := q.publisher.Publish(topic, msgs...); err != nil { //nolint:contextcheck
		return fmt.Errorf("events: publish to %s: %w", topic, err)
	}
	return nil
}

// PublishJSON publishes one already-encoded payload under a fresh message id.
// Its signature matches docstore.Publisher so the memory store can hand its
// committed events to the bus.
func (q *EventBus) PublishJSON(ctx context.Context, topic string, payload []byte) error {
	return q.Publish(ctx, topic, message.NewMessage(watermill.NewUUID(), payload))
}

// JSONHandler decodes each payload as T before calling fn. A payload that does
// not decode fails with ErrMalformedPayload and is never retried.
func JSONHandler[T any](fn func(ctx context.Context, evt T) error) func(context.Context, *message.Message) error {
	return func(ctx context.Context, msg *message.Message) error {
		var evt T
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("%w: decode %s: %w", ErrMalformedPayload, msg.UUID, err)
		}
		return fn(ctx, evt)
	}
}

// Subscribe consumes topic in the background, calling handler with the
// publisher's trace context restored. Outcomes:
//   - nil: Ack
//   - error: retried with exponential backoff, then Nack
//   - ErrMalformedPayload: Ack without retry, since redelivery cannot help
//
// Final failures are sent to the returned channel, which the caller must
// drain. Close waits for in-flight handlers.
func (q *EventBus) Subscribe(ctx context.Context, topic string, handler func(context.Context, *message.Message) error) (<-chan error, error) {
	ch, err := q.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("events: subscribe to %s: %w", topic, err)
	}

	errCh := make(chan error, errBuffer)
	propagator := otel.GetTextMapPropagator()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer close(errCh)

		for msg := range ch {
			carrier := propagation.MapCarrier{}
			for k, v := range msg.Metadata {
				carrier[k] = v
			}
			msgCtx := propagator.Extract(ctx, carrier)

			if err := retryWithBackoff(msgCtx, msg, handler, q.maxRetries, q.retryBaseDelay, q.log.With("topic", topic)); err != nil {
				if errors.Is(err, ErrMalformedPayload) {
					msg.Ack()
				} else {
					msg.Nack()
				}
				select {
				case errCh <- err:
				default:
					q.log.ErrorContext(msgCtx, "events: error channel full, dropping error",
						"error", err, "topic", topic)
				}
			} else {
				msg.Ack()
			}
		}
	}()

	return errCh, nil
}

// retryWithBackoff makes up to maxRetries attempts, doubling the delay from
// baseDelay. A malformed payload or a done ctx ends it early.
func retryWithBackoff(
	ctx context.Context,
	msg *message.Message,
	handler func(context.Context, *message.Message) error,
	maxRetries int,
	baseDelay time.Duration,
	log logger.Logger,
) error {
	backoff := retry.WithMaxRetries(uint64(maxRetries-1), retry.NewExponential(baseDelay))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := handler(ctx, msg)
		if err == nil || errors.Is(err, ErrMalformedPayload) {
			return err
		}
		if attempt < maxRetries {
			log.WarnContext(ctx, "events: handler failed, retrying",
				"attempt", attempt,
				"max_retries", maxRetries,
				"message_uuid", msg.UUID,
				"error", err,
			)
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("events: handler failed after %d attempts: %w", attempt, err)
}

// Ping checks the outbox connection. The in-memory transport is always healthy.
func (q *EventBus) Ping(ctx context.Context) error {
	if q.db == nil {
		return nil
	}
	if err := q.db.PingContext(ctx); err != nil {
		return fmt.Errorf("events: ping db: %w", err)
	}
	return nil
}

// Close stops consuming, then the forwarder, waits up to 30s for in-flight
// handlers and finally closes the publisher and the outbox connection.
func (q *EventBus) Close() error {
	if err := q.subscriber.Close(); err != nil {
		return fmt.Errorf("events: close subscriber: %w", err)
	}

	if q.fwd != nil {
		if err := q.fwd.Close(); err != nil {
			return fmt.Errorf("events: close forwarder: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	select {
	case <-done:
	case <-ctx.Done():
		q.log.Error("events: timed out waiting for in-flight handlers", "timeout", shutdownTimeout)
	}

	if err := q.publisher.Close(); err != nil {
		return fmt.Errorf("events: close publisher: %w", err)
	}
	if q.db == nil {
		return nil
	}
	return q.db.Close()
}

// slogAdapter feeds Watermill's own logging into logger.Logger. Trace-level
// records go to DEBUG.
type slogAdapter struct{ log logger.Logger }

func (a *slogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(fieldsToArgs(fields), "error", err)...)
}
func (a *slogAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(msg, fieldsToArgs(fields)...)
}
func (a *slogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}
func (a *slogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, fieldsToArgs(fields)...)
}
func (a *slogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &slogAdapter{log: a.log.With(fieldsToArgs(fields)...)}
}

func fieldsToArgs(fields watermill.LogFields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
