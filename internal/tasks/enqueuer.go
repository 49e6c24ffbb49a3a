package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Enqueuer wraps the asynq client. It satisfies the enqueuer interfaces
// the importer and the report sweeper depend on, keeping those packages
// free of queue imports.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) EnqueueFeedSync(ctx context.Context, lookbackDays int) error {
	task, err := NewFeedSyncTask(FeedSyncPayload{LookbackDays: lookbackDays})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue("default"), asynq.MaxRetry(0))
	if err != nil {
		return fmt.Errorf("enqueue feed sync: %w", err)
	}
	return nil
}

func (e *Enqueuer) EnqueueMatchSweep(ctx context.Context, orgID uuid.UUID) error {
	task, err := NewMatchSweepTask(MatchSweepPayload{OrganizationID: orgID})
	if err != nil {
		return err
	}
	// One sweep per org per import cycle; later duplicates collapse.
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue("default"),
		asynq.Unique(10*time.Minute))
	if err != nil && err != asynq.ErrDuplicateTask {
		return fmt.Errorf("enqueue match sweep: %w", err)
	}
	return nil
}

func (e *Enqueuer) EnqueueReportSend(ctx context.Context, scheduleID, orgID uuid.UUID, reportType models.ReportType, recipients []string) error {
	sid := scheduleID
	task, err := NewReportSendTask(ReportSendPayload{
		ScheduleID:     &sid,
		OrganizationID: orgID,
		ReportType:     reportType,
		Recipients:     recipients,
	})
	if err != nil {
		return err
	}
	// At-most-once: the schedule already advanced, so a failed send is
	// recorded and never retried.
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue("critical"), asynq.MaxRetry(0))
	if err != nil {
		return fmt.Errorf("enqueue report send: %w", err)
	}
	return nil
}
