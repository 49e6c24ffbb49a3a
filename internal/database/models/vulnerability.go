package models

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Vulnerability is one entry from the external feed. Vendors and products
// are derived once at ingestion; re-ingestion replaces the whole record.
type Vulnerability struct {
	Base
	CVEID       string `gorm:"uniqueIndex;not null" json:"cve_id"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	PublishedAt    int64 `json:"published_at"`
	LastModifiedAt int64 `json:"last_modified_at"`

	CVSSScore *float64 `json:"cvss_score,omitempty"`
	Severity  Severity `gorm:"index" json:"severity,omitempty"`

	Vendors    []string `gorm:"serializer:json" json:"vendors,omitempty"`
	Products   []string `gorm:"serializer:json" json:"products,omitempty"`
	References []string `gorm:"serializer:json" json:"references,omitempty"`

	// Relationships
	Links []DeviceVulnerability `gorm:"foreignKey:VulnerabilityID" json:"-"`
}

func (Vulnerability) TableName() string {
	return "vulnerabilities"
}
