package reports_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/reports"
	"github.com/cryptiomt/cryptiomt/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun(t *testing.T) {
	base := time.Date(2025, time.March, 15, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		freq models.ReportFrequency
		want time.Time
	}{
		{
			name: "daily",
			now:  base,
			freq: models.FrequencyDaily,
			want: time.Date(2025, time.March, 16, 9, 30, 0, 0, time.UTC),
		},
		{
			name: "weekly",
			now:  base,
			freq: models.FrequencyWeekly,
			want: time.Date(2025, time.March, 22, 9, 30, 0, 0, time.UTC),
		},
		{
			name: "monthly mid-month",
			now:  base,
			freq: models.FrequencyMonthly,
			want: time.Date(2025, time.April, 15, 9, 30, 0, 0, time.UTC),
		},
		{
			name: "monthly jan 31 clamps to feb 28",
			now:  time.Date(2025, time.January, 31, 8, 0, 0, 0, time.UTC),
			freq: models.FrequencyMonthly,
			want: time.Date(2025, time.February, 28, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly jan 31 leap year clamps to feb 29",
			now:  time.Date(2024, time.January, 31, 8, 0, 0, 0, time.UTC),
			freq: models.FrequencyMonthly,
			want: time.Date(2024, time.February, 29, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly mar 31 clamps to apr 30",
			now:  time.Date(2025, time.March, 31, 8, 0, 0, 0, time.UTC),
			freq: models.FrequencyMonthly,
			want: time.Date(2025, time.April, 30, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "unknown frequency falls back to daily",
			now:  base,
			freq: models.ReportFrequency("hourly"),
			want: time.Date(2025, time.March, 16, 9, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reports.NextRun(tt.now, tt.freq)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
			assert.True(t, got.After(tt.now), "next run must be after now")
		})
	}
}

type recordingEnqueuer struct {
	sends []uuid.UUID
	err   error
}

func (r *recordingEnqueuer) EnqueueReportSend(_ context.Context, scheduleID, _ uuid.UUID, _ models.ReportType, _ []string) error {
	if r.err != nil {
		return r.err
	}
	r.sends = append(r.sends, scheduleID)
	return nil
}

func TestAdvanceDue(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()

	ctx := testutil.TestContext(t)
	now := time.Now().UTC()

	due := testutil.CreateTestSchedule(t, tc.DB, tc.Org.ID, "Due", models.FrequencyDaily, now.Add(-time.Hour).Unix())
	notDue := testutil.CreateTestSchedule(t, tc.DB, tc.Org.ID, "Not due", models.FrequencyDaily, now.Add(time.Hour).Unix())
	inactive := testutil.CreateTestSchedule(t, tc.DB, tc.Org.ID, "Inactive", models.FrequencyDaily, now.Add(-time.Hour).Unix())
	require.NoError(t, tc.DB.Model(inactive).Update("is_active", false).Error)

	enqueuer := &recordingEnqueuer{}
	sweeper := reports.NewSweeper(tc.DB, enqueuer, slog.Default())

	processed, err := sweeper.AdvanceDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, []uuid.UUID{due.ID}, enqueuer.sends)

	var updated models.ReportSchedule
	require.NoError(t, tc.DB.First(&updated, "id = ?", due.ID).Error)
	assert.Equal(t, reports.NextRun(now, models.FrequencyDaily).Unix(), updated.NextRunAt)
	require.NotNil(t, updated.LastRunAt)
	assert.Equal(t, now.Unix(), *updated.LastRunAt)

	var untouched models.ReportSchedule
	require.NoError(t, tc.DB.First(&untouched, "id = ?", notDue.ID).Error)
	assert.Equal(t, notDue.NextRunAt, untouched.NextRunAt)
	assert.Nil(t, untouched.LastRunAt)
}

// The schedule must advance even when the enqueue fails, consuming the
// cycle exactly once.
func TestAdvanceDueEnqueueFailureStillAdvances(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()

	ctx := testutil.TestContext(t)
	now := time.Now().UTC()

	schedule := testutil.CreateTestSchedule(t, tc.DB, tc.Org.ID, "Flaky", models.FrequencyWeekly, now.Add(-time.Minute).Unix())

	enqueuer := &recordingEnqueuer{err: context.DeadlineExceeded}
	sweeper := reports.NewSweeper(tc.DB, enqueuer, slog.Default())

	processed, err := sweeper.AdvanceDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Empty(t, enqueuer.sends)

	var updated models.ReportSchedule
	require.NoError(t, tc.DB.First(&updated, "id = ?", schedule.ID).Error)
	assert.Equal(t, reports.NextRun(now, models.FrequencyWeekly).Unix(), updated.NextRunAt)

	// A second sweep finds nothing due.
	processed, err = sweeper.AdvanceDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
}

func TestAdvanceDueBatchLimit(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()

	ctx := testutil.TestContext(t)
	now := time.Now().UTC()

	for i := 0; i < 15; i++ {
		testutil.CreateTestSchedule(t, tc.DB, tc.Org.ID, "Batch", models.FrequencyDaily,
			now.Add(-time.Duration(i+1)*time.Minute).Unix())
	}

	enqueuer := &recordingEnqueuer{}
	sweeper := reports.NewSweeper(tc.DB, enqueuer, slog.Default())

	processed, err := sweeper.AdvanceDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 10, processed)

	// The remainder lands in the next sweep.
	processed, err = sweeper.AdvanceDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 5, processed)
}
