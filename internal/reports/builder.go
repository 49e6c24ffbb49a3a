package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/risk"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Data is the aggregate a report is rendered from. One build serves the
// JSON dashboard endpoint, the CSV/PDF exports, and the emailed reports.
type Data struct {
	Organization models.Organization
	ReportType   models.ReportType
	GeneratedAt  time.Time

	TotalDevices    int64
	OnNetworkCount  int64
	PHICount        int64
	RiskSummary     risk.Summary
	OpenLinkCount   int64
	LinksBySeverity map[models.Severity]int64

	// risk_detail
	Devices []DeviceRisk

	// top active links ordered by CVSS score
	TopFindings []Finding

	// compliance
	Checks []ComplianceCheck
}

// DeviceRisk pairs a device with its derived tier.
type DeviceRisk struct {
	Device models.Device
	Level  risk.Level
	Reasons []string
}

// Finding is one active device/CVE link with display fields resolved.
type Finding struct {
	DeviceName string
	CVEID      string
	Severity   models.Severity
	CVSSScore  float64
	DetectedAt int64
}

// ComplianceCheck is one row of the compliance checklist.
type ComplianceCheck struct {
	Name   string
	Passed bool
	Detail string
}

type Builder struct {
	db *gorm.DB
}

func NewBuilder(db *gorm.DB) *Builder {
	return &Builder{db: db}
}

// Build assembles report data for one organization. Sections not needed by
// the requested report type are left empty.
func (b *Builder) Build(ctx context.Context, orgID uuid.UUID, reportType models.ReportType) (*Data, error) {
	var org models.Organization
	if err := b.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("organization %s not found", orgID)
		}
		return nil, fmt.Errorf("loading organization: %w", err)
	}

	data := &Data{
		Organization:    org,
		ReportType:      reportType,
		GeneratedAt:     time.Now().UTC(),
		LinksBySeverity: make(map[models.Severity]int64),
	}

	var devices []models.Device
	if err := b.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("name ASC").
		Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}

	data.TotalDevices = int64(len(devices))
	for i := range devices {
		if devices[i].OnNetwork {
			data.OnNetworkCount++
		}
		if devices[i].HasPHI {
			data.PHICount++
		}
	}
	data.RiskSummary = risk.Summarize(devices)

	if err := b.db.WithContext(ctx).
		Model(&models.DeviceVulnerability{}).
		Where("organization_id = ? AND status = ?", orgID, models.LinkStatusActive).
		Count(&data.OpenLinkCount).Error; err != nil {
		return nil, fmt.Errorf("counting links: %w", err)
	}

	type sevCount struct {
		Severity models.Severity
		Count    int64
	}
	var sevCounts []sevCount
	if err := b.db.WithContext(ctx).
		Model(&models.DeviceVulnerability{}).
		Select("vulnerabilities.severity AS severity, COUNT(*) AS count").
		Joins("JOIN vulnerabilities ON vulnerabilities.id = device_vulnerabilities.vulnerability_id").
		Where("device_vulnerabilities.organization_id = ? AND device_vulnerabilities.status = ?", orgID, models.LinkStatusActive).
		Group("vulnerabilities.severity").
		Scan(&sevCounts).Error; err != nil {
		return nil, fmt.Errorf("grouping links by severity: %w", err)
	}
	for _, sc := range sevCounts {
		data.LinksBySeverity[sc.Severity] = sc.Count
	}

	if reportType == models.ReportTypeRiskDetail {
		data.Devices = make([]DeviceRisk, len(devices))
		for i := range devices {
			data.Devices[i] = DeviceRisk{
				Device:  devices[i],
				Level:   risk.Classify(&devices[i]),
				Reasons: risk.Reasons(&devices[i]),
			}
		}
	}

	findings, err := b.topFindings(ctx, orgID, 10)
	if err != nil {
		return nil, err
	}
	data.TopFindings = findings

	if reportType == models.ReportTypeCompliance {
		data.Checks = complianceChecks(devices, data.OpenLinkCount)
	}

	return data, nil
}

func (b *Builder) topFindings(ctx context.Context, orgID uuid.UUID, limit int) ([]Finding, error) {
	var links []models.DeviceVulnerability
	if err := b.db.WithContext(ctx).
		Preload("Device").
		Preload("Vulnerability").
		Where("organization_id = ? AND status = ?", orgID, models.LinkStatusActive).
		Order("detected_at DESC").
		Limit(200).
		Find(&links).Error; err != nil {
		return nil, fmt.Errorf("loading links: %w", err)
	}

	findings := make([]Finding, 0, len(links))
	for _, l := range links {
		f := Finding{
			CVEID:      l.CVEID,
			DetectedAt: l.DetectedAt,
		}
		if l.Device != nil {
			f.DeviceName = l.Device.Name
		}
		if l.Vulnerability != nil {
			f.Severity = l.Vulnerability.Severity
			if l.Vulnerability.CVSSScore != nil {
				f.CVSSScore = *l.Vulnerability.CVSSScore
			}
		}
		findings = append(findings, f)
	}

	// Highest score first; ties keep recency order from the query.
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].CVSSScore > findings[j].CVSSScore
	})
	if len(findings) > limit {
		findings = findings[:limit]
	}
	return findings, nil
}

func complianceChecks(devices []models.Device, openLinks int64) []ComplianceCheck {
	var legacy, phiExposed, missingOS int
	for i := range devices {
		d := &devices[i]
		if risk.Classify(d) == risk.LevelCritical && d.OSVersion != "" {
			legacy++
		}
		if d.HasPHI && d.OnNetwork {
			phiExposed++
		}
		if d.OSVersion == "" {
			missingOS++
		}
	}

	return []ComplianceCheck{
		{
			Name:   "No devices on end-of-life operating systems",
			Passed: legacy == 0,
			Detail: fmt.Sprintf("%d device(s) flagged", legacy),
		},
		{
			Name:   "No PHI-bearing devices exposed on the network",
			Passed: phiExposed == 0,
			Detail: fmt.Sprintf("%d device(s) flagged", phiExposed),
		},
		{
			Name:   "All devices have a recorded OS version",
			Passed: missingOS == 0,
			Detail: fmt.Sprintf("%d device(s) missing", missingOS),
		},
		{
			Name:   "No unresolved vulnerability links",
			Passed: openLinks == 0,
			Detail: fmt.Sprintf("%d active link(s)", openLinks),
		},
	}
}
