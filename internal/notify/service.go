package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// NotifyOrganization creates one notification per user of the organization.
func (s *Service) NotifyOrganization(ctx context.Context, orgID uuid.UUID, ntype models.NotificationType, title, message, link string) (int, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", orgID, true).
		Find(&users).Error; err != nil {
		return 0, fmt.Errorf("loading organization users: %w", err)
	}
	if len(users) == 0 {
		return 0, nil
	}

	notifications := make([]models.Notification, len(users))
	for i, u := range users {
		notifications[i] = models.Notification{
			OrganizationID: orgID,
			UserID:         u.ID,
			Type:           ntype,
			Title:          title,
			Message:        message,
			Link:           link,
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(notifications, 100).Error; err != nil {
		return 0, fmt.Errorf("creating notifications: %w", err)
	}
	return len(notifications), nil
}

// NotifyNewLinks alerts an organization after a match sweep found new
// device/CVE links. A sweep that created nothing is silent.
func (s *Service) NotifyNewLinks(ctx context.Context, orgID uuid.UUID, newLinks int) error {
	if newLinks == 0 {
		return nil
	}
	title := fmt.Sprintf("%d new vulnerability link(s) detected", newLinks)
	message := "The latest feed sync matched new CVEs against your device inventory. Review the affected devices."
	_, err := s.NotifyOrganization(ctx, orgID, models.NotificationCVE, title, message, "/links?status=active")
	return err
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var notifications []models.Notification
	if err := q.Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("loading notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead flags a single notification as read. Scoped to the user so one
// user cannot mutate another's notifications.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if res.Error != nil {
		return fmt.Errorf("marking notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllRead flags all of the user's notifications as read.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("marking notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UnreadCount returns the user's unread notification count.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// OfflineSweep notifies organizations about devices not seen within the
// threshold. Each device produces at most one offline notification per
// user; a device already flagged stays silent until it comes back and
// goes offline again.
func (s *Service) OfflineSweep(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-threshold).Unix()

	var devices []models.Device
	if err := s.db.WithContext(ctx).
		Where("on_network = ? AND last_seen_at > 0 AND last_seen_at < ?", true, cutoff).
		Find(&devices).Error; err != nil {
		return 0, fmt.Errorf("loading stale devices: %w", err)
	}

	created := 0
	for i := range devices {
		d := &devices[i]

		// Skip devices whose organization no longer resolves; inventory
		// imports can race object deletion and this sweep is advisory.
		var orgCount int64
		if err := s.db.WithContext(ctx).
			Model(&models.Organization{}).
			Where("id = ?", d.OrganizationID).
			Count(&orgCount).Error; err != nil || orgCount == 0 {
			if err != nil {
				s.logger.Warn("offline sweep org lookup failed", "device_id", d.ID, "error", err)
			}
			continue
		}

		var existing int64
		if err := s.db.WithContext(ctx).
			Model(&models.Notification{}).
			Where("organization_id = ? AND type = ? AND link = ? AND read = ?",
				d.OrganizationID, models.NotificationOffline, deviceLink(d.ID), false).
			Count(&existing).Error; err != nil {
			s.logger.Warn("offline sweep lookup failed", "device_id", d.ID, "error", err)
			continue
		}
		if existing > 0 {
			continue
		}

		title := fmt.Sprintf("Device offline: %s", d.Name)
		message := fmt.Sprintf("%s was last seen %s and may be offline or decommissioned.",
			d.Name, time.Unix(d.LastSeenAt, 0).UTC().Format("2006-01-02 15:04 MST"))
		n, err := s.NotifyOrganization(ctx, d.OrganizationID, models.NotificationOffline, title, message, deviceLink(d.ID))
		if err != nil {
			s.logger.Warn("offline notification failed", "device_id", d.ID, "error", err)
			continue
		}
		created += n
	}

	if created > 0 {
		s.logger.Info("offline sweep complete", "stale_devices", len(devices), "notifications", created)
	}
	return created, nil
}

func deviceLink(id uuid.UUID) string {
	return fmt.Sprintf("/devices/%s", id)
}
