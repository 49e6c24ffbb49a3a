package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/export"
	"github.com/cryptiomt/cryptiomt/pkg/config"
	"github.com/cryptiomt/cryptiomt/pkg/crypto"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service builds, renders and delivers reports. Each delivery is recorded
// as a ReportRun; a failed run is marked failed and never retried.
type Service struct {
	db        *gorm.DB
	builder   *Builder
	mailer    Mailer
	archiver  Archiver
	encryptor *crypto.Encryptor
	smtp      config.SMTPConfig
	logger    *slog.Logger
}

func NewService(db *gorm.DB, mailer Mailer, archiver Archiver, encryptor *crypto.Encryptor, smtp config.SMTPConfig, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		builder:   NewBuilder(db),
		mailer:    mailer,
		archiver:  archiver,
		encryptor: encryptor,
		smtp:      smtp,
		logger:    logger,
	}
}

// Deliver builds a report for the organization, renders the CSV and PDF
// artifacts, archives the PDF when an archiver is configured, and emails
// the recipients. scheduleID is nil for manually triggered deliveries.
func (s *Service) Deliver(ctx context.Context, orgID uuid.UUID, scheduleID *uuid.UUID, reportType models.ReportType, recipients []string) (*models.ReportRun, error) {
	run := &models.ReportRun{
		OrganizationID: orgID,
		ScheduleID:     scheduleID,
		ReportType:     reportType,
		Status:         models.ReportRunPending,
		Recipients:     recipients,
		StartedAt:      time.Now().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("creating report run: %w", err)
	}

	if err := s.deliver(ctx, run); err != nil {
		s.logger.Error("report delivery failed",
			"run_id", run.ID,
			"organization_id", orgID,
			"error", err)
		s.finishRun(ctx, run, models.ReportRunFailed, err.Error())
		return run, err
	}

	s.finishRun(ctx, run, models.ReportRunSent, "")
	s.logger.Info("report delivered",
		"run_id", run.ID,
		"organization_id", orgID,
		"report_type", reportType,
		"recipients", len(recipients))
	return run, nil
}

func (s *Service) deliver(ctx context.Context, run *models.ReportRun) error {
	data, err := s.builder.Build(ctx, run.OrganizationID, run.ReportType)
	if err != nil {
		return err
	}

	pdfBytes, err := export.SummaryPDF(summaryParams(data))
	if err != nil {
		return err
	}
	csvBytes := renderCSV(data)

	if s.archiver != nil {
		key := archiveKey(run, data.GeneratedAt)
		if err := s.archiver.Put(ctx, key, "application/pdf", pdfBytes); err != nil {
			// Archiving is best-effort; delivery proceeds without it.
			s.logger.Warn("report archive failed", "run_id", run.ID, "key", key, "error", err)
		} else {
			run.ArchiveKey = key
		}
	}

	if len(run.Recipients) == 0 {
		return nil
	}

	mailer, from, err := s.mailerFor(ctx, run.OrganizationID)
	if err != nil {
		return err
	}

	msg := Message{
		From:    from,
		To:      run.Recipients,
		Subject: fmt.Sprintf("%s - %s report %s", data.Organization.Name, run.ReportType, data.GeneratedAt.Format("2006-01-02")),
		Body:    mailBody(data),
		Attachments: []Attachment{
			{Name: "report.pdf", Data: pdfBytes},
			{Name: "report.csv", Data: csvBytes},
		},
	}
	if err := mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending report mail: %w", err)
	}
	return nil
}

// mailerFor resolves the transport for an organization: an active per-org
// delivery setting overrides the global SMTP configuration.
func (s *Service) mailerFor(ctx context.Context, orgID uuid.UUID) (Mailer, string, error) {
	var setting models.DeliverySetting
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", orgID, true).
		First(&setting).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return s.mailer, s.smtp.From, nil
		}
		return nil, "", fmt.Errorf("loading delivery setting: %w", err)
	}

	password := ""
	if len(setting.EncryptedPassword) > 0 {
		plain, err := s.encryptor.Decrypt(setting.EncryptedPassword)
		if err != nil {
			return nil, "", fmt.Errorf("decrypting SMTP password: %w", err)
		}
		password = string(plain)
	}

	from := setting.From
	if from == "" {
		from = s.smtp.From
	}
	return NewSMTPMailer(setting.SMTPHost, setting.SMTPPort, setting.Username, password), from, nil
}

func (s *Service) finishRun(ctx context.Context, run *models.ReportRun, status models.ReportRunStatus, errMsg string) {
	run.Status = status
	run.CompletedAt = time.Now().UTC().Unix()
	run.Error = errMsg
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": run.CompletedAt,
		"error":        errMsg,
		"archive_key":  run.ArchiveKey,
	}
	if err := s.db.WithContext(ctx).Model(run).Updates(updates).Error; err != nil {
		s.logger.Error("failed to update report run", "run_id", run.ID, "error", err)
	}
}

func archiveKey(run *models.ReportRun, at time.Time) string {
	return fmt.Sprintf("reports/%s/%s/%s-%s.pdf",
		run.OrganizationID,
		at.Format("2006/01"),
		run.ReportType,
		run.ID)
}

func summaryParams(data *Data) export.SummaryParams {
	p := export.SummaryParams{
		Title:            reportTitle(data.ReportType),
		OrganizationName: data.Organization.Name,
		GeneratedAt:      data.GeneratedAt,
		TotalDevices:     data.TotalDevices,
		OnNetworkCount:   data.OnNetworkCount,
		PHICount:         data.PHICount,
		OpenLinkCount:    data.OpenLinkCount,
		Critical:         data.RiskSummary.Critical,
		High:             data.RiskSummary.High,
		Medium:           data.RiskSummary.Medium,
		Low:              data.RiskSummary.Low,
	}
	for _, f := range data.TopFindings {
		p.Findings = append(p.Findings, export.FindingRow{
			DeviceName: f.DeviceName,
			CVEID:      f.CVEID,
			Severity:   string(f.Severity),
			CVSSScore:  f.CVSSScore,
			DetectedAt: f.DetectedAt,
		})
	}
	for _, c := range data.Checks {
		p.Checks = append(p.Checks, export.CheckRow{
			Name:   c.Name,
			Passed: c.Passed,
			Detail: c.Detail,
		})
	}
	return p
}

// renderCSV picks the tabular artifact for the report type: risk_detail
// attaches the full device inventory, everything else the findings list.
func renderCSV(data *Data) []byte {
	if data.ReportType == models.ReportTypeRiskDetail {
		devices := make([]models.Device, len(data.Devices))
		for i := range data.Devices {
			devices[i] = data.Devices[i].Device
		}
		return export.DeviceInventoryCSV(devices)
	}

	rows := make([]export.FindingRow, 0, len(data.TopFindings))
	for _, f := range data.TopFindings {
		rows = append(rows, export.FindingRow{
			DeviceName: f.DeviceName,
			CVEID:      f.CVEID,
			Severity:   string(f.Severity),
			CVSSScore:  f.CVSSScore,
			DetectedAt: f.DetectedAt,
		})
	}
	return export.FindingsCSV(rows)
}

func reportTitle(t models.ReportType) string {
	switch t {
	case models.ReportTypeRiskDetail:
		return "Device Risk Detail Report"
	case models.ReportTypeCompliance:
		return "Compliance Report"
	default:
		return "Security Summary Report"
	}
}

func mailBody(data *Data) string {
	return fmt.Sprintf(
		"Attached is the %s for %s, generated %s.\n\n"+
			"Devices: %d (on network: %d, holding PHI: %d)\n"+
			"Risk tiers: %d critical, %d high, %d medium, %d low\n"+
			"Active vulnerability links: %d\n",
		reportTitle(data.ReportType),
		data.Organization.Name,
		data.GeneratedAt.Format("2006-01-02 15:04 MST"),
		data.TotalDevices,
		data.OnNetworkCount,
		data.PHICount,
		data.RiskSummary.Critical,
		data.RiskSummary.High,
		data.RiskSummary.Medium,
		data.RiskSummary.Low,
		data.OpenLinkCount,
	)
}
