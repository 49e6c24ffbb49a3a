package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/api/validation"
	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImportRow is one device row of a bulk import. The client maps its
// spreadsheet headers to these fields before upload; the server does not
// parse spreadsheets.
type ImportRow struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
	OSVersion    string `json:"os_version"`
	Department   string `json:"department"`
	IPAddress    string `json:"ip_address"`
	OnNetwork    bool   `json:"on_network"`
	HasPHI       bool   `json:"has_phi"`
	PHICategory  string `json:"phi_category"`
}

// ImportResult summarizes a completed bulk import.
type ImportResult struct {
	Imported int `json:"imported"`
	Replaced int `json:"replaced"`
	Skipped  int `json:"skipped"`
}

type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Import replaces the organization's entire device inventory with the
// given rows in one transaction. Existing devices and their vulnerability
// links are removed; rows without a name are skipped. Re-importing is how
// inventories are kept current, so the replace is total.
func (s *Service) Import(ctx context.Context, orgID uuid.UUID, rows []ImportRow) (*ImportResult, error) {
	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}

	now := time.Now().UTC().Unix()
	devices := make([]models.Device, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		name := validation.SanitizeString(row.Name)
		if name == "" {
			skipped++
			continue
		}
		devices = append(devices, models.Device{
			OrganizationID: orgID,
			Name:           name,
			Type:           normalizeType(row.Type),
			Manufacturer:   validation.SanitizeString(row.Manufacturer),
			Model:          validation.SanitizeString(row.Model),
			SerialNumber:   row.SerialNumber,
			OSVersion:      row.OSVersion,
			Department:     row.Department,
			IPAddress:      row.IPAddress,
			OnNetwork:      row.OnNetwork,
			HasPHI:         row.HasPHI,
			PHICategory:    row.PHICategory,
			Source:         "import",
			LastSeenAt:     now,
		})
	}

	if org.MaxDevices > 0 && len(devices) > org.MaxDevices {
		return nil, fmt.Errorf("import of %d devices exceeds plan limit of %d", len(devices), org.MaxDevices)
	}

	result := &ImportResult{Imported: len(devices), Skipped: skipped}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("organization_id = ?", orgID).Delete(&models.DeviceVulnerability{})
		if res.Error != nil {
			return fmt.Errorf("clearing links: %w", res.Error)
		}
		res = tx.Where("organization_id = ?", orgID).Delete(&models.Device{})
		if res.Error != nil {
			return fmt.Errorf("clearing devices: %w", res.Error)
		}
		result.Replaced = int(res.RowsAffected)

		if len(devices) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(devices, 100).Error; err != nil {
			return fmt.Errorf("inserting devices: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("device inventory imported",
		"organization_id", orgID,
		"imported", result.Imported,
		"replaced", result.Replaced,
		"skipped", result.Skipped)
	return result, nil
}

// Export loads the organization's devices ordered by name for CSV export.
func (s *Service) Export(ctx context.Context, orgID uuid.UUID) ([]models.Device, error) {
	var devices []models.Device
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("name ASC").
		Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	return devices, nil
}

func normalizeType(t string) models.DeviceType {
	switch models.DeviceType(t) {
	case models.DeviceTypeInfusionPump, models.DeviceTypeImaging, models.DeviceTypeMonitor,
		models.DeviceTypeVentilator, models.DeviceTypeLab, models.DeviceTypeWorkstation:
		return models.DeviceType(t)
	default:
		return models.DeviceTypeOther
	}
}
