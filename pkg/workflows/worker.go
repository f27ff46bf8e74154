package workflows

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
)

// NewWorker returns a worker polling taskQueue with OTel tracing on every
// workflow and activity it runs. Register workflows and activities on it
// before calling Run or Start.
func (tc *TemporalClient) NewWorker(taskQueue string) (worker.Worker, error) {
	otelInterceptor, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{
		Tracer: otel.Tracer("temporal-worker"),
	})
	if err != nil {
		return nil, fmt.Errorf("create temporal otel interceptor: %w", err)
	}
	return worker.New(tc.Client, taskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{otelInterceptor},
	}), nil
}

// CronSpec describes a workflow that Temporal starts on a schedule.
type CronSpec struct {
	WorkflowID string
	TaskQueue  string
	Schedule   string // cron expression or "@every <duration>"
	Workflow   any
}

// StartCron starts spec.Workflow as a cron workflow. If a run with the same
// workflow id is already scheduled the client hands back that run instead,
// so every replica can call StartCron on boot.
func (tc *TemporalClient) StartCron(ctx context.Context, spec CronSpec) error {
	run, err := tc.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:           spec.WorkflowID,
		TaskQueue:    spec.TaskQueue,
		CronSchedule: spec.Schedule,
	}, spec.Workflow)
	if err != nil {
		return fmt.Errorf("start cron workflow %s: %w", spec.WorkflowID, err)
	}
	tc.log.Info("cron workflow scheduled",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"schedule", spec.Schedule,
	)
	return nil
}
