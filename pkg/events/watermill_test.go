package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ghuser/farmstand/pkg/config"
	"github.com/ghuser/farmstand/pkg/logger"
)

func setupTracer() *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp
}

func nopLogger() logger.Logger {
	return logger.Discard()
}

// TestRetryWithBackoff_SuccessOnFirstAttempt verifies no retry occurs on success.
func TestRetryWithBackoff_SuccessOnFirstAttempt(t *testing.T) {
	calls := 0
	handler := func(_ context.Context, _ *message.Message) error {
		calls++
		return nil
	}
	msg := message.NewMessage("id", nil)
	err := retryWithBackoff(context.Background(), msg, handler, defaultMaxRetries, time.Millisecond, nopLogger())
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

// TestRetryWithBackoff_SuccessAfterRetries verifies retry continues until success.
func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	calls := 0
	handler := func(_ context.Context, _ *message.Message) error {
		calls++
		if calls < 3 {
			return errors.New("transient error")
		}
		return nil
	}
	msg := message.NewMessage("id", nil)
	err := retryWithBackoff(context.Background(), msg, handler, defaultMaxRetries, time.Millisecond, nopLogger())
	if err != nil {
		t.Fatalf("expected nil after eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

// TestRetryWithBackoff_ExhaustsRetries verifies an error is returned after all retries fail.
func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	calls := 0
	handler := func(_ context.Context, _ *message.Message) error {
		calls++
		return errors.New("permanent error")
	}
	msg := message.NewMessage("id", nil)
	err := retryWithBackoff(context.Background(), msg, handler, defaultMaxRetries, time.Millisecond, nopLogger())
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != defaultMaxRetries {
		t.Errorf("expected %d calls, got %d", defaultMaxRetries, calls)
	}
}

// TestRetryWithBackoff_ContextCancelled verifies retry stops when context is canceled.
func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	calls := 0
	handler := func(_ context.Context, _ *message.Message) error {
		calls++
		return errors.New("error")
	}
	msg := message.NewMessage("id", nil)
	err := retryWithBackoff(ctx, msg, handler, defaultMaxRetries, time.Second, nopLogger())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls > 1 {
		t.Errorf("expected at most 1 call before context cancel, got %d", calls)
	}
}

// TestRetryWithBackoff_MalformedPayload verifies decode failures are not retried.
func TestRetryWithBackoff_MalformedPayload(t *testing.T) {
	calls := 0
	handler := JSONHandler(func(context.Context, sampleEvent) error {
		calls++
		return nil
	})
	msg := message.NewMessage("id", []byte("{not json"))
	err := retryWithBackoff(context.Background(), msg, handler, defaultMaxRetries, time.Millisecond, nopLogger())
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if calls != 0 {
		t.Errorf("handler body should not run, got %d calls", calls)
	}
}

// sampleEvent is a minimal payload for the typed handler tests.
type sampleEvent struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func TestJSONHandler_Decodes(t *testing.T) {
	var got sampleEvent
	handler := JSONHandler(func(_ context.Context, evt sampleEvent) error {
		got = evt
		return nil
	})
	msg := message.NewMessage("id", []byte(`{"product_id":"p1","quantity":3}`))
	if err := handler(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if got.ProductID != "p1" || got.Quantity != 3 {
		t.Fatalf("unexpected decode %+v", got)
	}
}

// TestInMemoryEventBus_RoundTrip publishes through the Go channel transport
// and checks the subscriber receives the payload.
func TestInMemoryEventBus_RoundTrip(t *testing.T) {
	bus := NewInMemoryEventBus(nopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan sampleEvent, 1)
	errCh, err := bus.Subscribe(ctx, "inventory.restore_lost", JSONHandler(func(_ context.Context, evt sampleEvent) error {
		received <- evt
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	if err := bus.PublishJSON(ctx, "inventory.restore_lost", []byte(`{"product_id":"p9","quantity":2}`)); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-received:
		if evt.ProductID != "p9" || evt.Quantity != 2 {
			t.Fatalf("unexpected event %+v", evt)
		}
	case err := <-errCh:
		t.Fatalf("subscriber error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	if err := bus.Ping(ctx); err != nil {
		t.Fatalf("in-memory bus ping: %v", err)
	}
	cancel()
	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewTxPublisher_InMemory(t *testing.T) {
	bus := NewInMemoryEventBus(nopLogger())
	defer bus.Close() //nolint:errcheck
	if _, err := bus.NewTxPublisher(nil); !errors.Is(err, ErrNoSQLTransport) {
		t.Fatalf("expected ErrNoSQLTransport, got %v", err)
	}
}

// TestStartForwarder_NonForwarderMode verifies StartForwarder returns an error
// when called on an EventBus not configured with forwarder mode.
func TestStartForwarder_NonForwarderMode(t *testing.T) {
	bus := &EventBus{useForwarder: false}
	err := bus.StartForwarder(context.Background())
	if err == nil {
		t.Fatal("expected error for non-forwarder EventBus")
	}
}

func TestRetrySettings(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.Config
		wantMax   int
		wantDelay time.Duration
	}{
		{"configured", config.Config{EventMaxRetries: 5, EventRetryBaseDelay: 200 * time.Millisecond}, 5, 200 * time.Millisecond},
		{"zero falls back", config.Config{}, defaultMaxRetries, defaultRetryBaseDelay},
		{"negative falls back", config.Config{EventMaxRetries: -1, EventRetryBaseDelay: -time.Second}, defaultMaxRetries, defaultRetryBaseDelay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMax, gotDelay := retrySettings(&tt.cfg)
			if gotMax != tt.wantMax || gotDelay != tt.wantDelay {
				t.Errorf("retrySettings = %d, %s; want %d, %s", gotMax, gotDelay, tt.wantMax, tt.wantDelay)
			}
		})
	}
}

func TestWrapForwarder(t *testing.T) {
	pub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pub.Close() //nolint:errcheck

	if got := wrapForwarder(pub, false); got != message.Publisher(pub) {
		t.Error("direct mode must publish without an envelope")
	}
	if _, ok := wrapForwarder(pub, true).(*forwarder.Publisher); !ok {
		t.Error("forwarder mode must wrap the publisher")
	}
}

func TestOTelPropagation_InjectExtract(t *testing.T) {
	tp := setupTracer()
	defer tp.Shutdown(context.Background()) //nolint:errcheck

	ctx, span := otel.Tracer("test").Start(context.Background(), "publish-span")
	defer span.End()
	wantTraceID := span.SpanContext().TraceID()

	// Simulate Publish: inject trace context into message metadata.
	msg := message.NewMessage("id", nil)
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		msg.Metadata.Set(k, v)
	}

	// Simulate Subscribe: extract trace context from message metadata.
	extractCarrier := propagation.MapCarrier{}
	for k, v := range msg.Metadata {
		extractCarrier[k] = v
	}
	msgCtx := otel.GetTextMapPropagator().Extract(context.Background(), extractCarrier)

	gotSpan := trace.SpanFromContext(msgCtx)
	if !gotSpan.SpanContext().IsValid() {
		t.Fatal("extracted span context is not valid")
	}
	if gotSpan.SpanContext().TraceID() != wantTraceID {
		t.Errorf("trace ID mismatch: want %s, got %s", wantTraceID, gotSpan.SpanContext().TraceID())
	}
}
