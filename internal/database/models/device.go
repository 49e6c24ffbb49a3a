package models

import "github.com/google/uuid"

type DeviceType string

const (
	DeviceTypeInfusionPump DeviceType = "infusion_pump"
	DeviceTypeImaging      DeviceType = "imaging"
	DeviceTypeMonitor      DeviceType = "patient_monitor"
	DeviceTypeVentilator   DeviceType = "ventilator"
	DeviceTypeLab          DeviceType = "lab_analyzer"
	DeviceTypeWorkstation  DeviceType = "workstation"
	DeviceTypeOther        DeviceType = "other"
)

type Device struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`

	Name         string     `gorm:"not null" json:"name"`
	Type         DeviceType `gorm:"index;default:'other'" json:"type"`
	Manufacturer string     `gorm:"index" json:"manufacturer"`
	Model        string     `gorm:"index" json:"model"`
	SerialNumber string     `json:"serial_number,omitempty"`
	OSVersion    string     `json:"os_version,omitempty"`
	Department   string     `json:"department,omitempty"`
	IPAddress    string     `json:"ip_address,omitempty"`

	// Exposure attributes driving risk classification
	OnNetwork   bool   `gorm:"default:false" json:"on_network"`
	HasPHI      bool   `gorm:"default:false" json:"has_phi"`
	PHICategory string `json:"phi_category,omitempty"`

	// Inventory metadata
	Source     string `json:"source,omitempty"` // manual, import
	LastSeenAt int64  `json:"last_seen_at"`

	// Denormalized count of vulnerability links. Recomputed by the matcher
	// after each pass; no other code path writes it.
	VulnerabilityLinkCount int `gorm:"default:0" json:"vulnerability_link_count"`

	// Relationships
	Organization *Organization         `gorm:"foreignKey:OrganizationID" json:"-"`
	Links        []DeviceVulnerability `gorm:"foreignKey:DeviceID" json:"-"`
}

func (Device) TableName() string {
	return "devices"
}
