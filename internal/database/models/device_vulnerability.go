package models

import "github.com/google/uuid"

type LinkStatus string

const (
	LinkStatusActive    LinkStatus = "active"
	LinkStatusMitigated LinkStatus = "mitigated"
	LinkStatusPatched   LinkStatus = "patched"
	LinkStatusAccepted  LinkStatus = "accepted" // Risk accepted
)

// DeviceVulnerability links a device to a vulnerability entry. At most one
// link exists per (device, vulnerability) pair; the matcher checks existence
// before insert so re-runs are idempotent. Links are never deleted
// automatically, only status transitions by user action.
type DeviceVulnerability struct {
	Base
	OrganizationID  uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	DeviceID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_links_device_vuln" json:"device_id"`
	VulnerabilityID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_links_device_vuln" json:"vulnerability_id"`

	// Copy of the CVE identifier at link time, for display without a join.
	CVEID string `gorm:"index" json:"cve_id"`

	Status     LinkStatus `gorm:"not null;index;default:'active'" json:"status"`
	DetectedAt int64      `json:"detected_at"`

	ResolvedAt int64      `json:"resolved_at,omitempty"`
	ResolvedBy *uuid.UUID `gorm:"type:uuid" json:"resolved_by,omitempty"`

	// Relationships
	Organization  *Organization  `gorm:"foreignKey:OrganizationID" json:"-"`
	Device        *Device        `gorm:"foreignKey:DeviceID" json:"device,omitempty"`
	Vulnerability *Vulnerability `gorm:"foreignKey:VulnerabilityID" json:"vulnerability,omitempty"`
}

func (DeviceVulnerability) TableName() string {
	return "device_vulnerabilities"
}
