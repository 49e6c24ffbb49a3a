package models

import "github.com/google/uuid"

// DeliverySetting is an optional per-organization SMTP override for report
// delivery. The password is stored as an age-encrypted blob and never
// returned by the API.
type DeliverySetting struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"organization_id"`

	SMTPHost string `json:"smtp_host"`
	SMTPPort int    `json:"smtp_port"`
	Username string `json:"username"`
	From     string `json:"from"`

	// Encrypted SMTP password (age encrypted blob)
	EncryptedPassword []byte `gorm:"type:bytea" json:"-"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (DeliverySetting) TableName() string {
	return "delivery_settings"
}
