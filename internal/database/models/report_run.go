package models

import "github.com/google/uuid"

type ReportRunStatus string

const (
	ReportRunPending   ReportRunStatus = "pending"
	ReportRunSent      ReportRunStatus = "sent"
	ReportRunFailed    ReportRunStatus = "failed"
)

// ReportRun records one delivery attempt triggered by the sweep or a manual
// trigger. Delivery is at-most-once: a failed run is logged, not retried.
type ReportRun struct {
	Base
	OrganizationID uuid.UUID  `gorm:"type:uuid;index;not null" json:"organization_id"`
	ScheduleID     *uuid.UUID `gorm:"type:uuid;index" json:"schedule_id,omitempty"`

	ReportType ReportType      `gorm:"not null" json:"report_type"`
	Status     ReportRunStatus `gorm:"not null;index;default:'pending'" json:"status"`
	Recipients []string        `gorm:"serializer:json" json:"recipients,omitempty"`

	StartedAt   int64  `json:"started_at,omitempty"`
	CompletedAt int64  `json:"completed_at,omitempty"`
	Error       string `json:"error,omitempty"`

	// Object key of the archived artifact, when archiving is configured.
	ArchiveKey string `json:"archive_key,omitempty"`

	// Relationships
	Organization *Organization   `gorm:"foreignKey:OrganizationID" json:"-"`
	Schedule     *ReportSchedule `gorm:"foreignKey:ScheduleID" json:"-"`
}

func (ReportRun) TableName() string {
	return "report_runs"
}
