package matching

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Matcher cross-references device manufacturer/model strings against the
// vendor/product sets of every known vulnerability entry. Matching is a
// full scan over both tables, acceptable at inventory scale.
//
// The matching rule is deliberately permissive: a vendor or product token
// matches when either string contains the other after case folding. This
// tolerates naming variation between inventories and the feed taxonomy at
// the cost of false positives on short tokens, and it misses pairs that
// differ only in separators ("scanner-9000" vs "Scanner 9000").
type Matcher struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewMatcher(db *gorm.DB, logger *slog.Logger) *Matcher {
	return &Matcher{db: db, logger: logger}
}

// Result summarizes one matching pass.
type Result struct {
	DevicesScanned  int
	NewLinksCreated int
}

// MatchOrganization runs a full matching pass for one organization.
// Re-running with unchanged data creates no new links and leaves every
// device's link count untouched, so concurrent or retried invocations are
// safe without mutual exclusion.
func (m *Matcher) MatchOrganization(ctx context.Context, orgID uuid.UUID) (Result, error) {
	var res Result

	var devices []models.Device
	if err := m.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Find(&devices).Error; err != nil {
		return res, fmt.Errorf("loading devices: %w", err)
	}

	var vulns []models.Vulnerability
	if err := m.db.WithContext(ctx).Find(&vulns).Error; err != nil {
		return res, fmt.Errorf("loading vulnerabilities: %w", err)
	}

	for i := range devices {
		device := &devices[i]
		if device.Manufacturer == "" || device.Model == "" {
			continue
		}
		res.DevicesScanned++

		created, err := m.matchDevice(ctx, device, vulns)
		if err != nil {
			// Already-processed devices stay correctly updated; the caller
			// may re-invoke.
			return res, fmt.Errorf("matching device %s: %w", device.ID, err)
		}
		res.NewLinksCreated += created
	}

	m.logger.Info("matching pass complete",
		"org_id", orgID,
		"devices", res.DevicesScanned,
		"vulnerabilities", len(vulns),
		"new_links", res.NewLinksCreated,
	)

	return res, nil
}

func (m *Matcher) matchDevice(ctx context.Context, device *models.Device, vulns []models.Vulnerability) (int, error) {
	existing, err := m.existingLinks(ctx, device.ID)
	if err != nil {
		return 0, err
	}

	now := time.Now().Unix()
	created := 0

	for i := range vulns {
		vuln := &vulns[i]
		if !Matches(device.Manufacturer, device.Model, vuln.Vendors, vuln.Products) {
			continue
		}
		if existing[vuln.ID] {
			continue
		}

		link := models.DeviceVulnerability{
			OrganizationID:  device.OrganizationID,
			DeviceID:        device.ID,
			VulnerabilityID: vuln.ID,
			CVEID:           vuln.CVEID,
			Status:          models.LinkStatusActive,
			DetectedAt:      now,
		}
		if err := m.db.WithContext(ctx).Create(&link).Error; err != nil {
			return created, fmt.Errorf("creating link: %w", err)
		}
		existing[vuln.ID] = true
		created++
	}

	if err := m.refreshLinkCount(ctx, device); err != nil {
		return created, err
	}

	return created, nil
}

// existingLinks loads the vulnerability IDs already linked to a device.
// Loading once per device keeps the inner loop free of queries.
func (m *Matcher) existingLinks(ctx context.Context, deviceID uuid.UUID) (map[uuid.UUID]bool, error) {
	var links []models.DeviceVulnerability
	if err := m.db.WithContext(ctx).
		Select("vulnerability_id").
		Where("device_id = ?", deviceID).
		Find(&links).Error; err != nil {
		return nil, fmt.Errorf("loading existing links: %w", err)
	}

	set := make(map[uuid.UUID]bool, len(links))
	for _, l := range links {
		set[l.VulnerabilityID] = true
	}
	return set, nil
}

// refreshLinkCount recomputes the denormalized counter from the link table.
// The matcher is the single writer of this column; the write is skipped
// when the value is unchanged.
func (m *Matcher) refreshLinkCount(ctx context.Context, device *models.Device) error {
	var count int64
	if err := m.db.WithContext(ctx).
		Model(&models.DeviceVulnerability{}).
		Where("device_id = ?", device.ID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("counting links: %w", err)
	}

	if int(count) == device.VulnerabilityLinkCount {
		return nil
	}

	if err := m.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", device.ID).
		Update("vulnerability_link_count", count).Error; err != nil {
		return fmt.Errorf("updating link count: %w", err)
	}
	device.VulnerabilityLinkCount = int(count)
	return nil
}

// Matches reports whether a device's manufacturer/model pair matches a
// vulnerability's vendor/product sets. Both sides must match.
func Matches(manufacturer, model string, vendors, products []string) bool {
	return anyContains(manufacturer, vendors) && anyContains(model, products)
}

func anyContains(field string, candidates []string) bool {
	for _, c := range candidates {
		if isSubstringMatch(field, c) {
			return true
		}
	}
	return false
}

// isSubstringMatch is the case-folded bidirectional containment test. It is
// symmetric: isSubstringMatch(a, b) == isSubstringMatch(b, a).
func isSubstringMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}
