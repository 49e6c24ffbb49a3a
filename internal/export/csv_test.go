package export

import (
	"strings"
	"testing"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVSanitizesFields(t *testing.T) {
	out := string(CSV(
		[]string{"Name", "Notes"},
		[][]string{
			{"Pump, Ward A", "line one\nline two"},
			{"Plain", "nothing special"},
		},
	))

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Name,Notes", lines[0])
	// Commas become semicolons and newlines become spaces; no quoting.
	assert.Equal(t, "Pump; Ward A,line one line two", lines[1])
	assert.Equal(t, "Plain,nothing special", lines[2])
	assert.NotContains(t, out, `"`)
}

func TestDeviceInventoryCSV(t *testing.T) {
	devices := []models.Device{
		{
			Name:         "MRI, Bay 2",
			Type:         models.DeviceTypeImaging,
			Manufacturer: "Siemens",
			Model:        "Magnetom Aera",
			OSVersion:    "Windows 7",
			OnNetwork:    true,
		},
	}

	out := string(DeviceInventoryCSV(devices))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Name,Type,Manufacturer"))
	assert.Contains(t, lines[1], "MRI; Bay 2")
	// Risk level is derived at export time.
	assert.Contains(t, lines[1], "critical")
}

func TestFindingsCSV(t *testing.T) {
	rows := []FindingRow{
		{DeviceName: "Monitor", CVEID: "CVE-2024-0100", Severity: "critical", CVSSScore: 9.8, DetectedAt: 1710000000},
		{DeviceName: "Pump", CVEID: "CVE-2024-0200", Severity: "high", CVSSScore: 7.5},
	}

	out := string(FindingsCSV(rows))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Device,CVE,Severity,CVSS Score,Detected", lines[0])
	assert.Contains(t, lines[1], "9.8")
	// Zero DetectedAt renders as an empty cell, not the epoch.
	assert.True(t, strings.HasSuffix(lines[2], ","))
}

func TestSummaryPDF(t *testing.T) {
	data, err := SummaryPDF(SummaryParams{
		Title:            "Security Summary Report",
		OrganizationName: "Test Hospital",
		TotalDevices:     12,
		OpenLinkCount:    3,
		Critical:         1,
		High:             2,
		Medium:           4,
		Low:              5,
		Findings: []FindingRow{
			{DeviceName: "Monitor", CVEID: "CVE-2024-0100", Severity: "critical", CVSSScore: 9.8},
		},
		Checks: []CheckRow{
			{Name: "No devices on end-of-life operating systems", Passed: false, Detail: "1 device(s) flagged"},
		},
	})
	require.NoError(t, err)
	assert.True(t, len(data) > 1000, "PDF output suspiciously small")
	assert.Equal(t, "%PDF", string(data[:4]))
}
