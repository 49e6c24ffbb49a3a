package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/matching"
	"github.com/cryptiomt/cryptiomt/internal/notify"
	"github.com/cryptiomt/cryptiomt/internal/nvd"
	"github.com/cryptiomt/cryptiomt/internal/reports"
	"github.com/cryptiomt/cryptiomt/pkg/config"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type Handler struct {
	db       *gorm.DB
	logger   *slog.Logger
	cfg      *config.Config
	importer *nvd.Importer
	matcher  *matching.Matcher
	sweeper  *reports.Sweeper
	reports  *reports.Service
	notify   *notify.Service
}

func NewHandler(
	db *gorm.DB,
	logger *slog.Logger,
	cfg *config.Config,
	importer *nvd.Importer,
	sweeper *reports.Sweeper,
	reportService *reports.Service,
	notifyService *notify.Service,
) *Handler {
	return &Handler{
		db:       db,
		logger:   logger,
		cfg:      cfg,
		importer: importer,
		matcher:  matching.NewMatcher(db, logger),
		sweeper:  sweeper,
		reports:  reportService,
		notify:   notifyService,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeFeedSync, h.HandleFeedSync)
	mux.HandleFunc(TypeMatchSweep, h.HandleMatchSweep)
	mux.HandleFunc(TypeReportSweep, h.HandleReportSweep)
	mux.HandleFunc(TypeReportSend, h.HandleReportSend)
	mux.HandleFunc(TypeOfflineSweep, h.HandleOfflineSweep)
}

func (h *Handler) HandleFeedSync(ctx context.Context, t *asynq.Task) error {
	var payload FeedSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	lookback := payload.LookbackDays
	if lookback <= 0 {
		lookback = h.cfg.NVD.LookbackDays
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -lookback)

	h.logger.Info("starting feed sync", "lookback_days", lookback)

	imported, err := h.importer.ImportWindow(ctx, start, end)
	if err != nil {
		h.logger.Error("feed sync failed", "error", err)
		return err
	}

	h.logger.Info("completed feed sync", "imported", imported)
	return nil
}

func (h *Handler) HandleMatchSweep(ctx context.Context, t *asynq.Task) error {
	var payload MatchSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	result, err := h.matcher.MatchOrganization(ctx, payload.OrganizationID)
	if err != nil {
		h.logger.Error("match sweep failed", "org_id", payload.OrganizationID, "error", err)
		return err
	}

	h.logger.Info("completed match sweep",
		"org_id", payload.OrganizationID,
		"devices_scanned", result.DevicesScanned,
		"new_links", result.NewLinksCreated,
	)

	if err := h.notify.NotifyNewLinks(ctx, payload.OrganizationID, result.NewLinksCreated); err != nil {
		// Alerting is best-effort; the links themselves are persisted.
		h.logger.Warn("new link notification failed", "org_id", payload.OrganizationID, "error", err)
	}
	return nil
}

func (h *Handler) HandleReportSweep(ctx context.Context, t *asynq.Task) error {
	advanced, err := h.sweeper.AdvanceDue(ctx, time.Now().UTC())
	if err != nil {
		h.logger.Error("report sweep failed", "error", err)
		return err
	}
	if advanced > 0 {
		h.logger.Info("completed report sweep", "schedules_advanced", advanced)
	}
	return nil
}

func (h *Handler) HandleReportSend(ctx context.Context, t *asynq.Task) error {
	var payload ReportSendPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	run, err := h.reports.Deliver(ctx, payload.OrganizationID, payload.ScheduleID, payload.ReportType, payload.Recipients)
	if err != nil {
		// The run row already records the failure. Returning nil keeps
		// asynq from retrying; scheduled sends must not fire twice.
		if run != nil {
			h.logger.Warn("report send failed", "run_id", run.ID, "error", err)
		} else {
			h.logger.Warn("report send failed", "org_id", payload.OrganizationID, "error", err)
		}
	}
	return nil
}

func (h *Handler) HandleOfflineSweep(ctx context.Context, t *asynq.Task) error {
	threshold := time.Duration(h.cfg.Alerts.OfflineThresholdHours) * time.Hour
	created, err := h.notify.OfflineSweep(ctx, threshold)
	if err != nil {
		h.logger.Error("offline sweep failed", "error", err)
		return err
	}
	if created > 0 {
		h.logger.Info("completed offline sweep", "notifications", created)
	}
	return nil
}
