// Package scheduler periodically re-drives workflows whose rows say there is
// work outstanding. Because a workflow's only state is its database row, a
// process restart loses nothing: the next sweep picks up every pending
// instance and runs its first step again.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"tenant-broker/backend/internal/repository"
	"tenant-broker/backend/internal/workflow"
	"tenant-broker/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Resweeper runs the sweep on a cron schedule.
type Resweeper struct {
	cron   *cron.Cron
	store  repository.Store
	driver *workflow.Driver
	logger Logger
}

// NewResweeper creates a new Resweeper.
func NewResweeper(store repository.Store, driver *workflow.Driver, logger Logger) *Resweeper {
	return &Resweeper{
		cron:   cron.New(),
		store:  store,
		driver: driver,
		logger: logger,
	}
}

// Start schedules the sweep with the given cron spec and begins running it.
func (r *Resweeper) Start(spec string) error {
	if _, err := r.cron.AddFunc(spec, r.Sweep); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("resweeper started", "spec", spec)
	return nil
}

// Stop stops the scheduler, waiting for a running sweep to finish.
func (r *Resweeper) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep runs one step for every pending workflow. Failures are logged and
// left for the next sweep; a step that loses an update race was advanced by
// someone else and needs nothing from us.
func (r *Resweeper) Sweep() {
	ctx := context.Background()

	pending, err := r.store.ListWorkflowsByState(ctx, models.WorkflowStatePending)
	if err != nil {
		r.logger.Error("resweep: listing pending workflows failed", "error", err)
		return
	}
	for _, wf := range pending {
		if _, err := r.driver.RunStep(ctx, wf, nil); err != nil {
			r.logger.Warn("resweep: workflow step failed", "workflow_id", wf.ID, "error", err)
		}
	}
	if len(pending) > 0 {
		r.logger.Info("resweep finished", "workflows", len(pending))
	}
}
