package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// sweepBatchSize bounds the work done by one sweep invocation.
const sweepBatchSize = 10

// SendEnqueuer hands a due schedule's snapshot to the delivery queue.
type SendEnqueuer interface {
	EnqueueReportSend(ctx context.Context, scheduleID, orgID uuid.UUID, reportType models.ReportType, recipients []string) error
}

// Sweeper advances due report schedules and enqueues their send jobs.
type Sweeper struct {
	db       *gorm.DB
	enqueuer SendEnqueuer
	logger   *slog.Logger
}

func NewSweeper(db *gorm.DB, enqueuer SendEnqueuer, logger *slog.Logger) *Sweeper {
	return &Sweeper{db: db, enqueuer: enqueuer, logger: logger}
}

// AdvanceDue processes up to sweepBatchSize schedules with
// next_run_at <= now. The schedule row is advanced before the send job is
// enqueued: a failed persist leaves the cycle unconsumed, a failed enqueue
// is logged and dropped (at-most-once delivery).
func (s *Sweeper) AdvanceDue(ctx context.Context, now time.Time) (int, error) {
	var due []models.ReportSchedule
	if err := s.db.WithContext(ctx).
		Where("is_active = ? AND next_run_at <= ?", true, now.Unix()).
		Order("next_run_at ASC").
		Limit(sweepBatchSize).
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("loading due schedules: %w", err)
	}

	processed := 0
	for i := range due {
		schedule := &due[i]

		next := NextRun(now, schedule.Frequency)
		nowUnix := now.Unix()
		if err := s.db.WithContext(ctx).
			Model(&models.ReportSchedule{}).
			Where("id = ?", schedule.ID).
			Updates(map[string]interface{}{
				"last_run_at": nowUnix,
				"next_run_at": next.Unix(),
			}).Error; err != nil {
			// Not marked as sent; the next sweep picks it up again.
			return processed, fmt.Errorf("advancing schedule %s: %w", schedule.ID, err)
		}

		if s.enqueuer != nil {
			if err := s.enqueuer.EnqueueReportSend(ctx, schedule.ID, schedule.OrganizationID, schedule.ReportType, schedule.Recipients); err != nil {
				s.logger.Error("enqueuing report send",
					"schedule_id", schedule.ID,
					"error", err,
				)
			}
		}
		processed++
	}

	if processed > 0 {
		s.logger.Info("report sweep complete", "processed", processed)
	}
	return processed, nil
}

// NextRun computes now + one period. Monthly arithmetic is calendar safe:
// a day-of-month past the end of the target month clamps to that month's
// last day instead of overflowing (Jan 31 -> Feb 28/29).
func NextRun(now time.Time, freq models.ReportFrequency) time.Time {
	switch freq {
	case models.FrequencyDaily:
		return now.AddDate(0, 0, 1)
	case models.FrequencyWeekly:
		return now.AddDate(0, 0, 7)
	case models.FrequencyMonthly:
		return addMonthClamped(now, 1)
	default:
		return now.AddDate(0, 0, 1)
	}
}

func addMonthClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, months, 0)

	last := daysInMonth(target.Year(), target.Month())
	if day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
