package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/api/dto"
	"github.com/cryptiomt/cryptiomt/internal/api/middleware"
	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/export"
	"github.com/cryptiomt/cryptiomt/internal/reports"
	"github.com/cryptiomt/cryptiomt/internal/risk"
	"gorm.io/gorm"
)

type ReportHandler struct {
	db      *gorm.DB
	builder *reports.Builder
}

func NewReportHandler(db *gorm.DB) *ReportHandler {
	return &ReportHandler{db: db, builder: reports.NewBuilder(db)}
}

// SummaryResponse is the JSON shape of GET /reports/summary
type SummaryResponse struct {
	Organization    string           `json:"organization"`
	GeneratedAt     int64            `json:"generated_at"`
	TotalDevices    int64            `json:"total_devices"`
	OnNetworkCount  int64            `json:"on_network_count"`
	PHICount        int64            `json:"phi_count"`
	OpenLinkCount   int64            `json:"open_link_count"`
	RiskSummary     risk.Summary     `json:"risk_summary"`
	LinksBySeverity map[string]int64 `json:"links_by_severity"`
	TopFindings     []FindingSummary `json:"top_findings"`
}

type FindingSummary struct {
	DeviceName string  `json:"device_name"`
	CVEID      string  `json:"cve_id"`
	Severity   string  `json:"severity"`
	CVSSScore  float64 `json:"cvss_score"`
	DetectedAt int64   `json:"detected_at"`
}

func (h *ReportHandler) build(r *http.Request, reportType models.ReportType) (*reports.Data, error) {
	orgID := middleware.GetOrganizationID(r.Context())
	return h.builder.Build(r.Context(), orgID, reportType)
}

// Summary handles GET /api/v1/reports/summary
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	data, err := h.build(r, models.ReportTypeSummary)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to build report"})
		return
	}

	resp := SummaryResponse{
		Organization:    data.Organization.Name,
		GeneratedAt:     data.GeneratedAt.Unix(),
		TotalDevices:    data.TotalDevices,
		OnNetworkCount:  data.OnNetworkCount,
		PHICount:        data.PHICount,
		OpenLinkCount:   data.OpenLinkCount,
		RiskSummary:     data.RiskSummary,
		LinksBySeverity: make(map[string]int64),
		TopFindings:     make([]FindingSummary, 0, len(data.TopFindings)),
	}
	for sev, count := range data.LinksBySeverity {
		resp.LinksBySeverity[string(sev)] = count
	}
	for _, f := range data.TopFindings {
		resp.TopFindings = append(resp.TopFindings, FindingSummary{
			DeviceName: f.DeviceName,
			CVEID:      f.CVEID,
			Severity:   string(f.Severity),
			CVSSScore:  f.CVSSScore,
			DetectedAt: f.DetectedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// SummaryCSV handles GET /api/v1/reports/summary.csv
func (h *ReportHandler) SummaryCSV(w http.ResponseWriter, r *http.Request) {
	data, err := h.build(r, models.ReportTypeSummary)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to build report"})
		return
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

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="summary.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(export.FindingsCSV(rows))
}

// SummaryPDF handles GET /api/v1/reports/summary.pdf
func (h *ReportHandler) SummaryPDF(w http.ResponseWriter, r *http.Request) {
	data, err := h.build(r, models.ReportTypeSummary)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to build report"})
		return
	}

	params := export.SummaryParams{
		Title:            "Security Summary Report",
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
		params.Findings = append(params.Findings, export.FindingRow{
			DeviceName: f.DeviceName,
			CVEID:      f.CVEID,
			Severity:   string(f.Severity),
			CVSSScore:  f.CVSSScore,
			DetectedAt: f.DetectedAt,
		})
	}

	pdfBytes, err := export.SummaryPDF(params)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to render PDF"})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="summary.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdfBytes)
}

// RunResponse represents a report run in API responses
type RunResponse struct {
	ID          string   `json:"id"`
	ScheduleID  *string  `json:"schedule_id,omitempty"`
	ReportType  string   `json:"report_type"`
	Status      string   `json:"status"`
	Recipients  []string `json:"recipients,omitempty"`
	StartedAt   int64    `json:"started_at,omitempty"`
	CompletedAt int64    `json:"completed_at,omitempty"`
	Error       string   `json:"error,omitempty"`
	ArchiveKey  string   `json:"archive_key,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// Runs handles GET /api/v1/reports/runs
func (h *ReportHandler) Runs(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.ReportRun{}).Where("organization_id = ?", orgID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count runs"})
		return
	}

	var runs []models.ReportRun
	if err := query.
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&runs).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list runs"})
		return
	}

	response := make([]RunResponse, len(runs))
	for i, run := range runs {
		response[i] = RunResponse{
			ID:          run.ID.String(),
			ReportType:  string(run.ReportType),
			Status:      string(run.Status),
			Recipients:  run.Recipients,
			StartedAt:   run.StartedAt,
			CompletedAt: run.CompletedAt,
			Error:       run.Error,
			ArchiveKey:  run.ArchiveKey,
			CreatedAt:   run.CreatedAt.Format(time.RFC3339),
		}
		if run.ScheduleID != nil {
			s := run.ScheduleID.String()
			response[i].ScheduleID = &s
		}
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: pagination.Pages(total),
	})
}
