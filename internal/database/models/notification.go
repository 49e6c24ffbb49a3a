package models

import "github.com/google/uuid"

type NotificationType string

const (
	NotificationCVE     NotificationType = "cve"
	NotificationRisk    NotificationType = "risk"
	NotificationOffline NotificationType = "offline"
	NotificationInfo    NotificationType = "info"
)

// Notification is created by alert sweeps or user mutations. Only the Read
// flag is ever mutated after creation.
type Notification struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	UserID         uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`

	Type    NotificationType `gorm:"not null;index" json:"type"`
	Title   string           `gorm:"not null" json:"title"`
	Message string           `gorm:"type:text" json:"message,omitempty"`
	Link    string           `json:"link,omitempty"`
	Read    bool             `gorm:"default:false;index" json:"read"`

	// Relationships
	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Notification) TableName() string {
	return "notifications"
}
