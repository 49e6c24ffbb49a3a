package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/api/dto"
	"github.com/cryptiomt/cryptiomt/internal/api/validation"
	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VulnerabilityHandler struct {
	db *gorm.DB
}

func NewVulnerabilityHandler(db *gorm.DB) *VulnerabilityHandler {
	return &VulnerabilityHandler{db: db}
}

// VulnerabilityResponse represents a vulnerability in API responses
type VulnerabilityResponse struct {
	ID             string   `json:"id"`
	CVEID          string   `json:"cve_id"`
	Description    string   `json:"description,omitempty"`
	PublishedAt    int64    `json:"published_at"`
	LastModifiedAt int64    `json:"last_modified_at"`
	CVSSScore      *float64 `json:"cvss_score,omitempty"`
	Severity       string   `json:"severity,omitempty"`
	Vendors        []string `json:"vendors,omitempty"`
	Products       []string `json:"products,omitempty"`
	References     []string `json:"references,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

func vulnerabilityToResponse(v *models.Vulnerability) VulnerabilityResponse {
	return VulnerabilityResponse{
		ID:             v.ID.String(),
		CVEID:          v.CVEID,
		Description:    v.Description,
		PublishedAt:    v.PublishedAt,
		LastModifiedAt: v.LastModifiedAt,
		CVSSScore:      v.CVSSScore,
		Severity:       string(v.Severity),
		Vendors:        v.Vendors,
		Products:       v.Products,
		References:     v.References,
		CreatedAt:      v.CreatedAt.Format(time.RFC3339),
	}
}

// List handles GET /api/v1/vulnerabilities. The vulnerability table is
// shared across organizations; it carries no tenant data.
func (h *VulnerabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	severity := r.URL.Query().Get("severity")
	search := r.URL.Query().Get("search")

	query := h.db.Model(&models.Vulnerability{})
	if severity != "" {
		query = query.Where("severity = ?", severity)
	}
	if search != "" {
		if validation.IsValidCVEID(strings.ToUpper(search)) {
			query = query.Where("cve_id = ?", strings.ToUpper(search))
		} else {
			like := "%" + search + "%"
			query = query.Where("cve_id LIKE ? OR description LIKE ?", like, like)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count vulnerabilities"})
		return
	}

	var vulns []models.Vulnerability
	if err := query.
		Order("published_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&vulns).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list vulnerabilities"})
		return
	}

	response := make([]VulnerabilityResponse, len(vulns))
	for i := range vulns {
		response[i] = vulnerabilityToResponse(&vulns[i])
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: pagination.Pages(total),
	})
}

// Get handles GET /api/v1/vulnerabilities/:id
func (h *VulnerabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	vulnID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid vulnerability ID"})
		return
	}

	var vuln models.Vulnerability
	if err := h.db.First(&vuln, "id = ?", vulnID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Vulnerability not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get vulnerability"})
		return
	}

	writeJSON(w, http.StatusOK, vulnerabilityToResponse(&vuln))
}
