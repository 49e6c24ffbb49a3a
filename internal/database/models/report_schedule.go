package models

import "github.com/google/uuid"

type ReportFrequency string

const (
	FrequencyDaily   ReportFrequency = "daily"
	FrequencyWeekly  ReportFrequency = "weekly"
	FrequencyMonthly ReportFrequency = "monthly"
)

type ReportType string

const (
	ReportTypeSummary    ReportType = "summary"
	ReportTypeRiskDetail ReportType = "risk_detail"
	ReportTypeCompliance ReportType = "compliance"
)

// ReportSchedule is a recurring report delivery job. NextRunAt is advanced
// by the sweep before the send job is enqueued, so a failed send never
// replays a cycle.
type ReportSchedule struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`

	Name       string          `gorm:"size:255;not null" json:"name"`
	Frequency  ReportFrequency `gorm:"not null" json:"frequency"`
	ReportType ReportType      `gorm:"not null" json:"report_type"`
	Recipients []string        `gorm:"serializer:json" json:"recipients"`
	IsActive   bool            `gorm:"default:true;index" json:"is_active"`

	// Timing (Unix timestamps, UTC)
	NextRunAt int64  `gorm:"index" json:"next_run_at"`
	LastRunAt *int64 `json:"last_run_at,omitempty"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	Runs         []ReportRun   `gorm:"foreignKey:ScheduleID" json:"-"`
}

func (ReportSchedule) TableName() string {
	return "report_schedules"
}
