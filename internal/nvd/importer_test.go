package nvd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedPage = `{
  "resultsPerPage": 2,
  "startIndex": 0,
  "totalResults": 2,
  "vulnerabilities": [
    {
      "cve": {
        "id": "CVE-2024-0100",
        "published": "2024-03-01T10:00:00.000",
        "lastModified": "2024-03-02T10:00:00.000",
        "descriptions": [
          {"lang": "en", "value": "Buffer overflow in monitor firmware"},
          {"lang": "es", "value": "Desbordamiento"}
        ],
        "metrics": {
          "cvssMetricV31": [
            {"cvssData": {"version": "3.1", "baseScore": 9.8, "baseSeverity": "CRITICAL"}}
          ]
        },
        "configurations": [
          {
            "nodes": [
              {
                "cpeMatch": [
                  {"vulnerable": true, "criteria": "cpe:2.3:a:philips:intellivue_mx450:1.0:*:*:*:*:*:*:*"},
                  {"vulnerable": true, "criteria": "bogus"},
                  {"vulnerable": true, "criteria": "cpe:2.3:a:philips:intellivue_mx550:1.0:*:*:*:*:*:*:*"}
                ]
              }
            ]
          },
          {
            "nodes": [
              {
                "cpeMatch": [
                  {"vulnerable": true, "criteria": "cpe:2.3:o:*:monitor_os:2.0:*:*:*:*:*:*:*"}
                ]
              }
            ]
          }
        ],
        "references": [
          {"url": "https://example.com/advisory/100"}
        ]
      }
    },
    {
      "cve": {
        "id": "CVE-2024-0200",
        "published": "2024-03-05T10:00:00.000",
        "lastModified": "2024-03-05T10:00:00.000",
        "descriptions": [{"lang": "en", "value": "Unscored issue"}],
        "metrics": {},
        "configurations": [],
        "references": []
      }
    }
  ]
}`

type recordingSweeper struct {
	mu   sync.Mutex
	orgs []uuid.UUID
}

func (r *recordingSweeper) EnqueueMatchSweep(_ context.Context, orgID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs = append(r.orgs, orgID)
	return nil
}

func TestImportWindow(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("pubStartDate"))
		assert.NotEmpty(t, r.URL.Query().Get("pubEndDate"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, feedPage)
	}))
	defer server.Close()

	sweeper := &recordingSweeper{}
	importer := NewImporter(tc.DB, NewClient(server.URL, ""), sweeper, slog.Default())

	end := time.Now().UTC()
	imported, err := importer.ImportWindow(context.Background(), end.AddDate(0, 0, -7), end)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	var vuln models.Vulnerability
	require.NoError(t, tc.DB.First(&vuln, "cve_id = ?", "CVE-2024-0100").Error)
	assert.Equal(t, "Buffer overflow in monitor firmware", vuln.Description)
	// Vendors and products accumulate across all configuration nodes;
	// wildcards and malformed criteria are dropped, sorted for stability.
	assert.Equal(t, []string{"philips"}, vuln.Vendors)
	assert.Equal(t, []string{"intellivue_mx450", "intellivue_mx550", "monitor_os"}, vuln.Products)
	assert.Equal(t, []string{"https://example.com/advisory/100"}, vuln.References)
	require.NotNil(t, vuln.CVSSScore)
	assert.Equal(t, 9.8, *vuln.CVSSScore)
	assert.Equal(t, models.SeverityCritical, vuln.Severity)

	var unscored models.Vulnerability
	require.NoError(t, tc.DB.First(&unscored, "cve_id = ?", "CVE-2024-0200").Error)
	assert.Nil(t, unscored.CVSSScore)
	assert.Empty(t, string(unscored.Severity))

	// One sweep per organization.
	assert.Equal(t, []uuid.UUID{tc.Org.ID}, sweeper.orgs)
}

func TestImportWindowReplacesOnConflict(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()

	testutil.CreateTestVulnerability(t, tc.DB, "CVE-2024-0100",
		[]string{"stale_vendor"}, []string{"stale_product"})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedPage)
	}))
	defer server.Close()

	importer := NewImporter(tc.DB, NewClient(server.URL, ""), nil, slog.Default())

	end := time.Now().UTC()
	_, err := importer.ImportWindow(context.Background(), end.AddDate(0, 0, -7), end)
	require.NoError(t, err)

	var count int64
	tc.DB.Model(&models.Vulnerability{}).Where("cve_id = ?", "CVE-2024-0100").Count(&count)
	assert.Equal(t, int64(1), count)

	// Re-ingestion replaces the derived fields wholesale.
	var vuln models.Vulnerability
	require.NoError(t, tc.DB.First(&vuln, "cve_id = ?", "CVE-2024-0100").Error)
	assert.Equal(t, []string{"philips"}, vuln.Vendors)
	assert.NotContains(t, vuln.Products, "stale_product")
}

func TestImportWindowFeedErrorAborts(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer server.Close()

	importer := NewImporter(tc.DB, NewClient(server.URL, ""), nil, slog.Default())

	end := time.Now().UTC()
	imported, err := importer.ImportWindow(context.Background(), end.AddDate(0, 0, -7), end)
	require.Error(t, err)
	assert.Equal(t, 0, imported)

	var count int64
	tc.DB.Model(&models.Vulnerability{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestToSeverity(t *testing.T) {
	assert.Equal(t, models.SeverityCritical, toSeverity("CRITICAL"))
	assert.Equal(t, models.SeverityHigh, toSeverity("High"))
	assert.Equal(t, models.SeverityMedium, toSeverity("medium"))
	assert.Equal(t, models.SeverityLow, toSeverity("LOW"))
	assert.Equal(t, models.Severity(""), toSeverity("NONE"))
}

func TestParseFeedTime(t *testing.T) {
	want := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, want, parseFeedTime("2024-03-01T10:00:00.000"))
	assert.Equal(t, want, parseFeedTime("2024-03-01T10:00:00Z"))
	assert.Equal(t, want, parseFeedTime("2024-03-01T10:00:00"))
	assert.Equal(t, int64(0), parseFeedTime("not a time"))
}
