package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/notify"
	"github.com/cryptiomt/cryptiomt/internal/nvd"
	"github.com/cryptiomt/cryptiomt/internal/reports"
	"github.com/cryptiomt/cryptiomt/internal/testutil"
	"github.com/cryptiomt/cryptiomt/pkg/config"
	"github.com/cryptiomt/cryptiomt/pkg/crypto"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestTaskHandler(t *testing.T, db *gorm.DB) *Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	encryptor, err := crypto.NewEncryptor("")
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.NVD.LookbackDays = 7
	cfg.Alerts.OfflineThresholdHours = 24

	importer := nvd.NewImporter(db, nvd.NewClient("http://127.0.0.1:0", ""), nil, logger)
	sweeper := reports.NewSweeper(db, nil, logger)
	reportService := reports.NewService(db, reports.NoopMailer{}, nil, encryptor, cfg.SMTP, logger)
	notifyService := notify.NewService(db, logger)

	return NewHandler(db, logger, cfg, importer, sweeper, reportService, notifyService)
}

func TestHandleMatchSweep_InvalidPayload(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := newTestTaskHandler(t, setup.DB)

	task := asynq.NewTask(TypeMatchSweep, []byte("invalid json"))

	err := handler.HandleMatchSweep(context.Background(), task)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal payload")
}

func TestHandleMatchSweep_CreatesLinksAndNotifies(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := newTestTaskHandler(t, setup.DB)

	testutil.CreateTestDevice(t, setup.DB, setup.Org.ID, "Patient Monitor", "Philips", "IntelliVue MX450")
	testutil.CreateTestVulnerability(t, setup.DB, "CVE-2024-1111", []string{"philips"}, []string{"intellivue"})

	payload, err := json.Marshal(MatchSweepPayload{OrganizationID: setup.Org.ID})
	require.NoError(t, err)

	err = handler.HandleMatchSweep(context.Background(), asynq.NewTask(TypeMatchSweep, payload))
	require.NoError(t, err)

	var linkCount int64
	setup.DB.Model(&models.DeviceVulnerability{}).Where("organization_id = ?", setup.Org.ID).Count(&linkCount)
	assert.Equal(t, int64(1), linkCount)

	// The sweep alerts every active user about fresh links.
	var notifCount int64
	setup.DB.Model(&models.Notification{}).Where("user_id = ?", setup.User.ID).Count(&notifCount)
	assert.Equal(t, int64(1), notifCount)
}

func TestHandleReportSweep_NoDueSchedules(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := newTestTaskHandler(t, setup.DB)

	err := handler.HandleReportSweep(context.Background(), asynq.NewTask(TypeReportSweep, nil))
	assert.NoError(t, err)
}

func TestHandleReportSend_RecordsSentRun(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := newTestTaskHandler(t, setup.DB)

	testutil.CreateTestDevice(t, setup.DB, setup.Org.ID, "Infusion Pump", "Baxter", "Sigma Spectrum")

	payload, err := json.Marshal(ReportSendPayload{
		OrganizationID: setup.Org.ID,
		ReportType:     models.ReportTypeSummary,
		Recipients:     []string{"security@example.com"},
	})
	require.NoError(t, err)

	err = handler.HandleReportSend(context.Background(), asynq.NewTask(TypeReportSend, payload))
	require.NoError(t, err)

	var run models.ReportRun
	require.NoError(t, setup.DB.Where("organization_id = ?", setup.Org.ID).First(&run).Error)
	assert.Equal(t, models.ReportRunSent, run.Status)
	assert.Equal(t, models.ReportTypeSummary, run.ReportType)
	assert.NotZero(t, run.CompletedAt)
}

func TestHandleReportSend_InvalidPayload(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := newTestTaskHandler(t, setup.DB)

	err := handler.HandleReportSend(context.Background(), asynq.NewTask(TypeReportSend, []byte("invalid json")))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal payload")
}

func TestHandleOfflineSweep(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := newTestTaskHandler(t, setup.DB)

	stale := testutil.CreateTestDevice(t, setup.DB, setup.Org.ID, "Stale Monitor", "Philips", "IntelliVue")
	require.NoError(t, setup.DB.Model(stale).Updates(map[string]interface{}{
		"on_network":   true,
		"last_seen_at": time.Now().UTC().Add(-48 * time.Hour).Unix(),
	}).Error)

	// Recently seen device must not trigger an alert.
	fresh := testutil.CreateTestDevice(t, setup.DB, setup.Org.ID, "Fresh Monitor", "Philips", "IntelliVue")
	require.NoError(t, setup.DB.Model(fresh).Update("on_network", true).Error)

	err := handler.HandleOfflineSweep(context.Background(), asynq.NewTask(TypeOfflineSweep, nil))
	require.NoError(t, err)

	var notifs []models.Notification
	require.NoError(t, setup.DB.Where("user_id = ? AND type = ?", setup.User.ID, models.NotificationOffline).Find(&notifs).Error)
	require.Len(t, notifs, 1)
	assert.Contains(t, notifs[0].Link, stale.ID.String())

	// Re-running while the alert is unread must not duplicate it.
	err = handler.HandleOfflineSweep(context.Background(), asynq.NewTask(TypeOfflineSweep, nil))
	require.NoError(t, err)

	var count int64
	setup.DB.Model(&models.Notification{}).Where("user_id = ? AND type = ?", setup.User.ID, models.NotificationOffline).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestRegisterHandlers(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	handler := newTestTaskHandler(t, setup.DB)

	mux := asynq.NewServeMux()
	assert.NotPanics(t, func() {
		handler.RegisterHandlers(mux)
	})
}
