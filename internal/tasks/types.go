package tasks

import (
	"encoding/json"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeFeedSync     = "feed:sync"
	TypeMatchSweep   = "match:sweep"
	TypeReportSweep  = "report:sweep"
	TypeReportSend   = "report:send"
	TypeOfflineSweep = "alert:offline_sweep"
)

// FeedSyncPayload contains the data for a vulnerability feed import task.
// A zero LookbackDays falls back to the configured default.
type FeedSyncPayload struct {
	LookbackDays int `json:"lookback_days"`
}

func NewFeedSyncTask(payload FeedSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeFeedSync, data), nil
}

// MatchSweepPayload names the organization whose inventory is re-matched
// against the vulnerability table.
type MatchSweepPayload struct {
	OrganizationID uuid.UUID `json:"organization_id"`
}

func NewMatchSweepTask(payload MatchSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMatchSweep, data), nil
}

// ReportSweepPayload is empty; the sweep queries for due schedules itself.
type ReportSweepPayload struct{}

func NewReportSweepTask() (*asynq.Task, error) {
	data, err := json.Marshal(ReportSweepPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReportSweep, data), nil
}

// ReportSendPayload contains everything a send needs; the schedule row may
// already have advanced by the time the job runs.
type ReportSendPayload struct {
	ScheduleID     *uuid.UUID        `json:"schedule_id,omitempty"`
	OrganizationID uuid.UUID         `json:"organization_id"`
	ReportType     models.ReportType `json:"report_type"`
	Recipients     []string          `json:"recipients"`
}

func NewReportSendTask(payload ReportSendPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReportSend, data), nil
}

// OfflineSweepPayload is empty; the threshold comes from configuration.
type OfflineSweepPayload struct{}

func NewOfflineSweepTask() (*asynq.Task, error) {
	data, err := json.Marshal(OfflineSweepPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOfflineSweep, data), nil
}
