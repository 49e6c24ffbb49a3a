package nvd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/matching"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertBatchSize bounds the per-transaction payload. Any batch size >= 1
// is semantically equivalent.
const upsertBatchSize = 50

// SweepEnqueuer triggers a matching pass after an import. The sweep itself
// is idempotent, so retried triggers are harmless.
type SweepEnqueuer interface {
	EnqueueMatchSweep(ctx context.Context, orgID uuid.UUID) error
}

// Importer pulls entries from the vulnerability feed and upserts them into
// the local vulnerability store.
type Importer struct {
	db       *gorm.DB
	client   *Client
	enqueuer SweepEnqueuer
	logger   *slog.Logger
}

func NewImporter(db *gorm.DB, client *Client, enqueuer SweepEnqueuer, logger *slog.Logger) *Importer {
	return &Importer{db: db, client: client, enqueuer: enqueuer, logger: logger}
}

// ImportWindow fetches the publish-date window and upserts all entries.
// A fetch or decode failure aborts the call; batches already committed
// stay committed. On success a match sweep is enqueued for every
// organization, fire and forget.
func (imp *Importer) ImportWindow(ctx context.Context, start, end time.Time) (int, error) {
	items, err := imp.client.FetchWindow(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("importing vulnerabilities: %w", err)
	}

	entries := make([]models.Vulnerability, 0, len(items))
	for _, item := range items {
		entries = append(entries, toVulnerability(item.CVE))
	}

	imported := 0
	for i := 0; i < len(entries); i += upsertBatchSize {
		hi := i + upsertBatchSize
		if hi > len(entries) {
			hi = len(entries)
		}
		batch := entries[i:hi]

		// Full replace on conflict: re-ingestion overwrites every field.
		if err := imp.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cve_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"description", "published_at", "last_modified_at",
				"cvss_score", "severity", "vendors", "products",
				"references", "updated_at",
			}),
		}).Create(&batch).Error; err != nil {
			return imported, fmt.Errorf("upserting batch: %w", err)
		}
		imported += len(batch)
	}

	imp.logger.Info("vulnerability import complete",
		"window_start", start.UTC().Format(time.RFC3339),
		"window_end", end.UTC().Format(time.RFC3339),
		"imported", imported,
	)

	imp.triggerSweeps(ctx)

	return imported, nil
}

// triggerSweeps enqueues a matching pass per organization. Failures are
// logged, not surfaced: the import itself has succeeded.
func (imp *Importer) triggerSweeps(ctx context.Context) {
	if imp.enqueuer == nil {
		return
	}

	var orgIDs []uuid.UUID
	if err := imp.db.WithContext(ctx).
		Model(&models.Organization{}).
		Pluck("id", &orgIDs).Error; err != nil {
		imp.logger.Error("listing organizations for match sweep", "error", err)
		return
	}

	for _, orgID := range orgIDs {
		if err := imp.enqueuer.EnqueueMatchSweep(ctx, orgID); err != nil {
			imp.logger.Error("enqueuing match sweep", "org_id", orgID, "error", err)
		}
	}
}

// toVulnerability flattens a feed record. Vendor and product sets are
// accumulated across every configuration node; a malformed CPE criteria
// string skips only that node.
func toVulnerability(rec cveRecord) models.Vulnerability {
	v := models.Vulnerability{
		CVEID:          rec.ID,
		Description:    englishDescription(rec),
		PublishedAt:    parseFeedTime(rec.Published),
		LastModifiedAt: parseFeedTime(rec.LastModified),
	}

	vendors := make(map[string]bool)
	products := make(map[string]bool)
	for _, cfg := range rec.Configurations {
		for _, node := range cfg.Nodes {
			for _, m := range node.CPEMatch {
				vendor, product, err := matching.ParseCPE(m.Criteria)
				if err != nil {
					continue
				}
				if vendor != "" && vendor != "*" {
					vendors[vendor] = true
				}
				if product != "" && product != "*" {
					products[product] = true
				}
			}
		}
	}
	v.Vendors = sortedKeys(vendors)
	v.Products = sortedKeys(products)

	for _, ref := range rec.References {
		v.References = append(v.References, ref.URL)
	}

	if score, severity, ok := primaryCVSS(rec); ok {
		v.CVSSScore = &score
		v.Severity = severity
	}

	return v
}

func englishDescription(rec cveRecord) string {
	for _, d := range rec.Descriptions {
		if d.Lang == "en" {
			return d.Value
		}
	}
	if len(rec.Descriptions) > 0 {
		return rec.Descriptions[0].Value
	}
	return ""
}

// primaryCVSS prefers v3.1 metrics, then v3.0, then v2.
func primaryCVSS(rec cveRecord) (float64, models.Severity, bool) {
	for _, metrics := range [][]cvssMetric{
		rec.Metrics.CVSSMetricV31,
		rec.Metrics.CVSSMetricV30,
		rec.Metrics.CVSSMetricV2,
	} {
		if len(metrics) == 0 {
			continue
		}
		m := metrics[0]
		severity := m.CVSSData.BaseSeverity
		if severity == "" {
			severity = m.BaseSeverity
		}
		return m.CVSSData.BaseScore, toSeverity(severity), true
	}
	return 0, "", false
}

func toSeverity(s string) models.Severity {
	switch strings.ToUpper(s) {
	case "CRITICAL":
		return models.SeverityCritical
	case "HIGH":
		return models.SeverityHigh
	case "MEDIUM":
		return models.SeverityMedium
	case "LOW":
		return models.SeverityLow
	default:
		return ""
	}
}

func parseFeedTime(s string) int64 {
	for _, layout := range []string{feedTimeFormat, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	// Stable ordering keeps re-ingested records byte-identical.
	sort.Strings(out)
	return out
}
