// Package workflows runs the reservation sweep as a Temporal cron workflow,
// an alternative to the in-process ticker for deployments that already
// operate Temporal.
package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	appsvcs "github.com/ghuser/farmstand/services/inventory/application/services"
)

// SweepWorkflowID is the fixed id of the cron workflow; Temporal keeps at most
// one run of it, which makes the sweep single-runner across replicas.
const SweepWorkflowID = "inventory-reservation-sweep"

// Activities wraps the reconciler so Temporal can invoke it.
type Activities struct {
	Reconciler *appsvcs.ExpiryReconciler
}

// SweepExpiredReservations releases every expired reservation.
func (a *Activities) SweepExpiredReservations(ctx context.Context) (appsvcs.SweepReport, error) {
	return a.Reconciler.SweepAll(ctx)
}

// ReservationSweepWorkflow runs one sweep pass. Scheduled with a cron spec it
// runs every sweep interval.
func ReservationSweepWorkflow(ctx workflow.Context) (appsvcs.SweepReport, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	var (
		a      *Activities
		report appsvcs.SweepReport
	)
	if err := workflow.ExecuteActivity(ctx, a.SweepExpiredReservations).Get(ctx, &report); err != nil {
		return report, fmt.Errorf("sweep activity: %w", err)
	}

	workflow.GetLogger(ctx).Info("reservation sweep finished",
		"scanned", report.Scanned,
		"swept", report.Swept,
		"released_units", report.ReleasedUnits,
		"failed", report.Failed,
	)
	return report, nil
}

// registry is the part of worker.Worker that Register needs. The Temporal
// test environment satisfies it too.
type registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

// Register adds the sweep workflow and its activities to w.
func Register(w registry, acts *Activities) {
	w.RegisterWorkflow(ReservationSweepWorkflow)
	w.RegisterActivity(acts)
}

// CronSchedule renders interval as a Temporal cron spec.
func CronSchedule(interval time.Duration) string {
	return "@every " + interval.String()
}
