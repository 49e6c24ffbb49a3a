package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/api/dto"
	"github.com/cryptiomt/cryptiomt/internal/api/middleware"
	"github.com/cryptiomt/cryptiomt/internal/api/validation"
	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/reports"
	"github.com/cryptiomt/cryptiomt/internal/tasks"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type ScheduleHandler struct {
	db          *gorm.DB
	asynqClient *asynq.Client
}

func NewScheduleHandler(db *gorm.DB, asynqClient *asynq.Client) *ScheduleHandler {
	return &ScheduleHandler{db: db, asynqClient: asynqClient}
}

// ScheduleRequest represents the request to create or update a schedule
type ScheduleRequest struct {
	Name       string   `json:"name"`
	Frequency  string   `json:"frequency"`
	ReportType string   `json:"report_type"`
	Recipients []string `json:"recipients"`
	IsActive   *bool    `json:"is_active,omitempty"`
}

var validFrequencies = map[string]bool{
	string(models.FrequencyDaily):   true,
	string(models.FrequencyWeekly):  true,
	string(models.FrequencyMonthly): true,
}

var validReportTypes = map[string]bool{
	string(models.ReportTypeSummary):    true,
	string(models.ReportTypeRiskDetail): true,
	string(models.ReportTypeCompliance): true,
}

func (r ScheduleRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	if !validFrequencies[r.Frequency] {
		errors["frequency"] = "Frequency must be daily, weekly or monthly"
	}
	if !validReportTypes[r.ReportType] {
		errors["report_type"] = "Invalid report type"
	}
	if len(r.Recipients) == 0 {
		errors["recipients"] = "At least one recipient is required"
	}
	for _, addr := range r.Recipients {
		if !validation.IsValidEmail(addr) {
			errors["recipients"] = "Invalid recipient address: " + addr
			break
		}
	}
	return errors
}

// ScheduleResponse represents a schedule in API responses
type ScheduleResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Frequency  string   `json:"frequency"`
	ReportType string   `json:"report_type"`
	Recipients []string `json:"recipients"`
	IsActive   bool     `json:"is_active"`
	NextRunAt  int64    `json:"next_run_at"`
	LastRunAt  *int64   `json:"last_run_at,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

func scheduleToResponse(s *models.ReportSchedule) ScheduleResponse {
	return ScheduleResponse{
		ID:         s.ID.String(),
		Name:       s.Name,
		Frequency:  string(s.Frequency),
		ReportType: string(s.ReportType),
		Recipients: s.Recipients,
		IsActive:   s.IsActive,
		NextRunAt:  s.NextRunAt,
		LastRunAt:  s.LastRunAt,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
}

// List handles GET /api/v1/schedules
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.ReportSchedule{}).Where("organization_id = ?", orgID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count schedules"})
		return
	}

	var schedules []models.ReportSchedule
	if err := query.
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&schedules).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list schedules"})
		return
	}

	response := make([]ScheduleResponse, len(schedules))
	for i := range schedules {
		response[i] = scheduleToResponse(&schedules[i])
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: pagination.Pages(total),
	})
}

// Create handles POST /api/v1/schedules
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	now := time.Now().UTC()
	schedule := models.ReportSchedule{
		OrganizationID: orgID,
		Name:           req.Name,
		Frequency:      models.ReportFrequency(req.Frequency),
		ReportType:     models.ReportType(req.ReportType),
		Recipients:     req.Recipients,
		IsActive:       true,
		NextRunAt:      reports.NextRun(now, models.ReportFrequency(req.Frequency)).Unix(),
	}
	if req.IsActive != nil {
		schedule.IsActive = *req.IsActive
	}

	if err := h.db.Create(&schedule).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create schedule"})
		return
	}

	writeJSON(w, http.StatusCreated, scheduleToResponse(&schedule))
}

// Get handles GET /api/v1/schedules/:id
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid schedule ID"})
		return
	}

	var schedule models.ReportSchedule
	if err := h.db.Where("id = ? AND organization_id = ?", scheduleID, orgID).First(&schedule).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Schedule not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get schedule"})
		return
	}

	writeJSON(w, http.StatusOK, scheduleToResponse(&schedule))
}

// Update handles PUT /api/v1/schedules/:id. Changing the frequency
// recomputes the next run from now.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid schedule ID"})
		return
	}

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	var schedule models.ReportSchedule
	if err := h.db.Where("id = ? AND organization_id = ?", scheduleID, orgID).First(&schedule).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Schedule not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get schedule"})
		return
	}

	if string(schedule.Frequency) != req.Frequency {
		schedule.NextRunAt = reports.NextRun(time.Now().UTC(), models.ReportFrequency(req.Frequency)).Unix()
	}
	schedule.Name = req.Name
	schedule.Frequency = models.ReportFrequency(req.Frequency)
	schedule.ReportType = models.ReportType(req.ReportType)
	schedule.Recipients = req.Recipients
	if req.IsActive != nil {
		schedule.IsActive = *req.IsActive
	}

	if err := h.db.Save(&schedule).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update schedule"})
		return
	}

	writeJSON(w, http.StatusOK, scheduleToResponse(&schedule))
}

// Delete handles DELETE /api/v1/schedules/:id
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid schedule ID"})
		return
	}

	result := h.db.Where("id = ? AND organization_id = ?", scheduleID, orgID).
		Delete(&models.ReportSchedule{})
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete schedule"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Schedule not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Schedule deleted"})
}

// Trigger handles POST /api/v1/schedules/:id/trigger. A manual trigger
// advances the schedule and enqueues a send, same as the sweep would.
func (h *ScheduleHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid schedule ID"})
		return
	}

	var schedule models.ReportSchedule
	if err := h.db.Where("id = ? AND organization_id = ?", scheduleID, orgID).First(&schedule).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Schedule not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get schedule"})
		return
	}

	now := time.Now().UTC()
	lastRun := now.Unix()
	if err := h.db.Model(&schedule).Updates(map[string]interface{}{
		"last_run_at": lastRun,
		"next_run_at": reports.NextRun(now, schedule.Frequency).Unix(),
	}).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to advance schedule"})
		return
	}

	if h.asynqClient != nil {
		sid := schedule.ID
		task, err := tasks.NewReportSendTask(tasks.ReportSendPayload{
			ScheduleID:     &sid,
			OrganizationID: orgID,
			ReportType:     schedule.ReportType,
			Recipients:     schedule.Recipients,
		})
		if err == nil {
			if _, err := h.asynqClient.Enqueue(task, asynq.Queue("critical"), asynq.MaxRetry(0)); err != nil {
				writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to enqueue report"})
				return
			}
		}
	}

	schedule.LastRunAt = &lastRun
	schedule.NextRunAt = reports.NextRun(now, schedule.Frequency).Unix()
	writeJSON(w, http.StatusAccepted, scheduleToResponse(&schedule))
}
