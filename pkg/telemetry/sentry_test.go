package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"

	"github.com/ghuser/farmstand/pkg/config"
)

func TestSetupSentry_EmptyDSN(t *testing.T) {
	if err := SetupSentry(&config.Config{}); err != nil {
		t.Fatalf("expected no-op for empty DSN, got %v", err)
	}
}

func TestCaptureMessage(t *testing.T) {
	var captured *sentry.Event
	err := sentry.Init(sentry.ClientOptions{
		BeforeSend: func(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			captured = e
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sentry.CurrentHub().BindClient(nil) })

	CaptureMessage("inventory restore lost", map[string]string{"product_id": "p1", "operation": "sweep"})

	if captured == nil {
		t.Fatal("expected an event to reach BeforeSend")
	}
	if captured.Message != "inventory restore lost" || captured.Level != sentry.LevelWarning {
		t.Fatalf("unexpected event %q at %s", captured.Message, captured.Level)
	}
	if captured.Tags["product_id"] != "p1" || captured.Tags["operation"] != "sweep" {
		t.Fatalf("unexpected tags %v", captured.Tags)
	}
}
