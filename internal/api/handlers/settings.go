package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cryptiomt/cryptiomt/internal/api/dto"
	"github.com/cryptiomt/cryptiomt/internal/api/middleware"
	"github.com/cryptiomt/cryptiomt/internal/api/validation"
	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/pkg/crypto"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsHandler struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
}

func NewSettingsHandler(db *gorm.DB, encryptor *crypto.Encryptor) *SettingsHandler {
	return &SettingsHandler{db: db, encryptor: encryptor}
}

// DeliverySettingRequest represents the SMTP override for an organization.
// An empty password keeps the stored one.
type DeliverySettingRequest struct {
	SMTPHost string `json:"smtp_host"`
	SMTPPort int    `json:"smtp_port"`
	Username string `json:"username"`
	From     string `json:"from"`
	Password string `json:"password,omitempty"`
	IsActive bool   `json:"is_active"`
}

func (r DeliverySettingRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.SMTPHost == "" {
		errors["smtp_host"] = "SMTP host is required"
	}
	if r.SMTPPort < 1 || r.SMTPPort > 65535 {
		errors["smtp_port"] = "Invalid SMTP port"
	}
	if r.From != "" && !validation.IsValidEmail(r.From) {
		errors["from"] = "Invalid sender address"
	}
	return errors
}

// DeliverySettingResponse never includes the password.
type DeliverySettingResponse struct {
	SMTPHost    string `json:"smtp_host"`
	SMTPPort    int    `json:"smtp_port"`
	Username    string `json:"username"`
	From        string `json:"from"`
	HasPassword bool   `json:"has_password"`
	IsActive    bool   `json:"is_active"`
}

func deliverySettingToResponse(s *models.DeliverySetting) DeliverySettingResponse {
	return DeliverySettingResponse{
		SMTPHost:    s.SMTPHost,
		SMTPPort:    s.SMTPPort,
		Username:    s.Username,
		From:        s.From,
		HasPassword: len(s.EncryptedPassword) > 0,
		IsActive:    s.IsActive,
	}
}

// GetDelivery handles GET /api/v1/settings/delivery
func (h *SettingsHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var setting models.DeliverySetting
	if err := h.db.Where("organization_id = ?", orgID).First(&setting).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "No delivery setting configured"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get delivery setting"})
		return
	}

	writeJSON(w, http.StatusOK, deliverySettingToResponse(&setting))
}

// PutDelivery handles PUT /api/v1/settings/delivery. Creates or updates
// the organization's SMTP override; the password is stored encrypted.
func (h *SettingsHandler) PutDelivery(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var req DeliverySettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	setting := models.DeliverySetting{
		OrganizationID: orgID,
		SMTPHost:       req.SMTPHost,
		SMTPPort:       req.SMTPPort,
		Username:       req.Username,
		From:           req.From,
		IsActive:       req.IsActive,
	}

	assignments := map[string]interface{}{
		"smtp_host": req.SMTPHost,
		"smtp_port": req.SMTPPort,
		"username":  req.Username,
		"from":      req.From,
		"is_active": req.IsActive,
	}

	if req.Password != "" {
		encrypted, err := h.encryptor.Encrypt([]byte(req.Password))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to encrypt password"})
			return
		}
		setting.EncryptedPassword = encrypted
		assignments["encrypted_password"] = encrypted
	}

	if err := h.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&setting).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to save delivery setting"})
		return
	}

	var saved models.DeliverySetting
	if err := h.db.Where("organization_id = ?", orgID).First(&saved).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to reload delivery setting"})
		return
	}

	writeJSON(w, http.StatusOK, deliverySettingToResponse(&saved))
}
