package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/api/dto"
	"github.com/cryptiomt/cryptiomt/internal/api/middleware"
	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LinkHandler struct {
	db *gorm.DB
}

func NewLinkHandler(db *gorm.DB) *LinkHandler {
	return &LinkHandler{db: db}
}

// LinkResponse represents a device/vulnerability link in API responses
type LinkResponse struct {
	ID         string `json:"id"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
	CVEID      string `json:"cve_id"`
	Severity   string `json:"severity,omitempty"`
	Status     string `json:"status"`
	DetectedAt int64  `json:"detected_at"`
	ResolvedAt int64  `json:"resolved_at,omitempty"`
}

func linkToResponse(l *models.DeviceVulnerability) LinkResponse {
	resp := LinkResponse{
		ID:         l.ID.String(),
		DeviceID:   l.DeviceID.String(),
		CVEID:      l.CVEID,
		Status:     string(l.Status),
		DetectedAt: l.DetectedAt,
		ResolvedAt: l.ResolvedAt,
	}
	if l.Device != nil {
		resp.DeviceName = l.Device.Name
	}
	if l.Vulnerability != nil {
		resp.Severity = string(l.Vulnerability.Severity)
	}
	return resp
}

// List handles GET /api/v1/links
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	status := r.URL.Query().Get("status")
	deviceID := r.URL.Query().Get("device_id")

	query := h.db.Model(&models.DeviceVulnerability{}).Where("organization_id = ?", orgID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if deviceID != "" {
		id, err := uuid.Parse(deviceID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid device ID"})
			return
		}
		query = query.Where("device_id = ?", id)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count links"})
		return
	}

	var links []models.DeviceVulnerability
	if err := query.
		Preload("Device").
		Preload("Vulnerability").
		Order("detected_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&links).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list links"})
		return
	}

	response := make([]LinkResponse, len(links))
	for i := range links {
		response[i] = linkToResponse(&links[i])
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: pagination.Pages(total),
	})
}

// UpdateStatusRequest represents a link status transition
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

var validLinkStatuses = map[string]bool{
	string(models.LinkStatusActive):    true,
	string(models.LinkStatusMitigated): true,
	string(models.LinkStatusPatched):   true,
	string(models.LinkStatusAccepted):  true,
}

// UpdateStatus handles PUT /api/v1/links/:id/status. Links transition by
// user action only; the matcher never alters existing links.
func (h *LinkHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	userID := middleware.GetUserID(r.Context())

	linkID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid link ID"})
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if !validLinkStatuses[req.Status] {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid link status"})
		return
	}

	var link models.DeviceVulnerability
	if err := h.db.Where("id = ? AND organization_id = ?", linkID, orgID).First(&link).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Link not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get link"})
		return
	}

	link.Status = models.LinkStatus(req.Status)
	if link.Status == models.LinkStatusActive {
		link.ResolvedAt = 0
		link.ResolvedBy = nil
	} else {
		link.ResolvedAt = time.Now().UTC().Unix()
		link.ResolvedBy = &userID
	}

	if err := h.db.Save(&link).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update link"})
		return
	}

	writeJSON(w, http.StatusOK, linkToResponse(&link))
}
