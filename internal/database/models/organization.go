package models

type Organization struct {
	Base
	Name       string `gorm:"not null" json:"name"`
	Slug       string `gorm:"uniqueIndex;not null" json:"slug"`
	Plan       string `gorm:"default:'free'" json:"plan"` // free, pro, enterprise
	MaxUsers   int    `gorm:"default:5" json:"max_users"`
	MaxDevices int    `gorm:"default:250" json:"max_devices"`

	// Relationships
	Users           []User           `gorm:"foreignKey:OrganizationID" json:"-"`
	Devices         []Device         `gorm:"foreignKey:OrganizationID" json:"-"`
	ReportSchedules []ReportSchedule `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}
