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
	"github.com/cryptiomt/cryptiomt/internal/export"
	"github.com/cryptiomt/cryptiomt/internal/inventory"
	"github.com/cryptiomt/cryptiomt/internal/risk"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeviceHandler struct {
	db        *gorm.DB
	inventory *inventory.Service
}

func NewDeviceHandler(db *gorm.DB, inventoryService *inventory.Service) *DeviceHandler {
	return &DeviceHandler{db: db, inventory: inventoryService}
}

// DeviceRequest represents the request to create or update a device
type DeviceRequest struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number,omitempty"`
	OSVersion    string `json:"os_version,omitempty"`
	Department   string `json:"department,omitempty"`
	IPAddress    string `json:"ip_address,omitempty"`
	OnNetwork    bool   `json:"on_network"`
	HasPHI       bool   `json:"has_phi"`
	PHICategory  string `json:"phi_category,omitempty"`
}

var validDeviceTypes = map[string]bool{
	string(models.DeviceTypeInfusionPump): true,
	string(models.DeviceTypeImaging):      true,
	string(models.DeviceTypeMonitor):      true,
	string(models.DeviceTypeVentilator):   true,
	string(models.DeviceTypeLab):          true,
	string(models.DeviceTypeWorkstation):  true,
	string(models.DeviceTypeOther):        true,
}

func (r DeviceRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	if r.Type != "" && !validDeviceTypes[r.Type] {
		errors["type"] = "Invalid device type"
	}
	if r.IPAddress != "" && !validation.IsValidIP(r.IPAddress) {
		errors["ip_address"] = "Invalid IP address"
	}
	if r.HasPHI && r.PHICategory == "" {
		errors["phi_category"] = "PHI category is required when device holds PHI"
	}
	return errors
}

// DeviceResponse represents a device in API responses
type DeviceResponse struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Type                   string   `json:"type"`
	Manufacturer           string   `json:"manufacturer"`
	Model                  string   `json:"model"`
	SerialNumber           string   `json:"serial_number,omitempty"`
	OSVersion              string   `json:"os_version,omitempty"`
	Department             string   `json:"department,omitempty"`
	IPAddress              string   `json:"ip_address,omitempty"`
	OnNetwork              bool     `json:"on_network"`
	HasPHI                 bool     `json:"has_phi"`
	PHICategory            string   `json:"phi_category,omitempty"`
	Source                 string   `json:"source,omitempty"`
	LastSeenAt             int64    `json:"last_seen_at"`
	VulnerabilityLinkCount int      `json:"vulnerability_link_count"`
	RiskLevel              string   `json:"risk_level"`
	RiskReasons            []string `json:"risk_reasons,omitempty"`
	CreatedAt              string   `json:"created_at"`
}

func deviceToResponse(d *models.Device) DeviceResponse {
	return DeviceResponse{
		ID:                     d.ID.String(),
		Name:                   d.Name,
		Type:                   string(d.Type),
		Manufacturer:           d.Manufacturer,
		Model:                  d.Model,
		SerialNumber:           d.SerialNumber,
		OSVersion:              d.OSVersion,
		Department:             d.Department,
		IPAddress:              d.IPAddress,
		OnNetwork:              d.OnNetwork,
		HasPHI:                 d.HasPHI,
		PHICategory:            d.PHICategory,
		Source:                 d.Source,
		LastSeenAt:             d.LastSeenAt,
		VulnerabilityLinkCount: d.VulnerabilityLinkCount,
		RiskLevel:              string(risk.Classify(d)),
		RiskReasons:            risk.Reasons(d),
		CreatedAt:              d.CreatedAt.Format(time.RFC3339),
	}
}

// List handles GET /api/v1/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	deviceType := r.URL.Query().Get("type")
	department := r.URL.Query().Get("department")
	hasPHI := r.URL.Query().Get("has_phi")
	onNetwork := r.URL.Query().Get("on_network")
	search := r.URL.Query().Get("search")

	query := h.db.Model(&models.Device{}).Where("organization_id = ?", orgID)

	if deviceType != "" {
		query = query.Where("type = ?", deviceType)
	}
	if department != "" {
		query = query.Where("department = ?", department)
	}
	if hasPHI != "" {
		query = query.Where("has_phi = ?", hasPHI == "true")
	}
	if onNetwork != "" {
		query = query.Where("on_network = ?", onNetwork == "true")
	}
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("name LIKE ? OR manufacturer LIKE ? OR model LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count devices"})
		return
	}

	var devices []models.Device
	if err := query.
		Order("name ASC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&devices).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list devices"})
		return
	}

	response := make([]DeviceResponse, len(devices))
	for i := range devices {
		response[i] = deviceToResponse(&devices[i])
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: pagination.Pages(total),
	})
}

// Create handles POST /api/v1/devices
func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	var org models.Organization
	if err := h.db.First(&org, "id = ?", orgID).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load organization"})
		return
	}
	var count int64
	h.db.Model(&models.Device{}).Where("organization_id = ?", orgID).Count(&count)
	if org.MaxDevices > 0 && count >= int64(org.MaxDevices) {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Device limit reached for plan"})
		return
	}

	deviceType := models.DeviceType(req.Type)
	if req.Type == "" {
		deviceType = models.DeviceTypeOther
	}

	device := models.Device{
		OrganizationID: orgID,
		Name:           req.Name,
		Type:           deviceType,
		Manufacturer:   req.Manufacturer,
		Model:          req.Model,
		SerialNumber:   req.SerialNumber,
		OSVersion:      req.OSVersion,
		Department:     req.Department,
		IPAddress:      req.IPAddress,
		OnNetwork:      req.OnNetwork,
		HasPHI:         req.HasPHI,
		PHICategory:    req.PHICategory,
		Source:         "manual",
		LastSeenAt:     time.Now().UTC().Unix(),
	}

	if err := h.db.Create(&device).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create device"})
		return
	}

	writeJSON(w, http.StatusCreated, deviceToResponse(&device))
}

// Get handles GET /api/v1/devices/:id
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	deviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid device ID"})
		return
	}

	var device models.Device
	if err := h.db.Where("id = ? AND organization_id = ?", deviceID, orgID).First(&device).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Device not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get device"})
		return
	}

	writeJSON(w, http.StatusOK, deviceToResponse(&device))
}

// Update handles PUT /api/v1/devices/:id
func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	deviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid device ID"})
		return
	}

	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	var device models.Device
	if err := h.db.Where("id = ? AND organization_id = ?", deviceID, orgID).First(&device).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Device not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get device"})
		return
	}

	device.Name = req.Name
	if req.Type != "" {
		device.Type = models.DeviceType(req.Type)
	}
	device.Manufacturer = req.Manufacturer
	device.Model = req.Model
	device.SerialNumber = req.SerialNumber
	device.OSVersion = req.OSVersion
	device.Department = req.Department
	device.IPAddress = req.IPAddress
	device.OnNetwork = req.OnNetwork
	device.HasPHI = req.HasPHI
	device.PHICategory = req.PHICategory

	if err := h.db.Save(&device).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update device"})
		return
	}

	writeJSON(w, http.StatusOK, deviceToResponse(&device))
}

// Delete handles DELETE /api/v1/devices/:id
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	deviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid device ID"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ? AND organization_id = ?", deviceID, orgID).
			Delete(&models.DeviceVulnerability{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND organization_id = ?", deviceID, orgID).
			Delete(&models.Device{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Device not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete device"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Device deleted"})
}

// ImportRequest represents a bulk device import
type ImportRequest struct {
	Rows []inventory.ImportRow `json:"rows"`
}

// Import handles POST /api/v1/devices/import. It replaces the entire
// device inventory of the organization.
func (h *DeviceHandler) Import(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "No rows to import"})
		return
	}

	result, err := h.inventory.Import(r.Context(), orgID, req.Rows)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Export handles GET /api/v1/devices/export
func (h *DeviceHandler) Export(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	devices, err := h.inventory.Export(r.Context(), orgID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to export devices"})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="devices.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(export.DeviceInventoryCSV(devices))
}
