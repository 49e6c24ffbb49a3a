package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// SummaryParams carries the aggregates a PDF report is rendered from.
type SummaryParams struct {
	Title            string
	OrganizationName string
	GeneratedAt      time.Time

	TotalDevices   int64
	OnNetworkCount int64
	PHICount       int64
	OpenLinkCount  int64

	// risk distribution
	Critical int
	High     int
	Medium   int
	Low      int

	Findings []FindingRow

	// compliance rows, optional
	Checks []CheckRow
}

type CheckRow struct {
	Name   string
	Passed bool
	Detail string
}

// SummaryPDF renders a report as a single-pass A4 document.
func SummaryPDF(p SummaryParams) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	addHeader(pdf, p)
	addRiskDistribution(pdf, p)
	addStatistics(pdf, p)
	if len(p.Findings) > 0 {
		addFindings(pdf, p.Findings)
	}
	if len(p.Checks) > 0 {
		addChecks(pdf, p.Checks)
	}
	addFooter(pdf)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("generating PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func addHeader(pdf *gofpdf.Fpdf, p SummaryParams) {
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 14, p.Title, "", 1, "L", false, 0, "")

	if p.OrganizationName != "" {
		pdf.SetFont("Arial", "", 13)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 8, p.OrganizationName, "", 1, "L", false, 0, "")
	}

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", p.GeneratedAt.Format("2006-01-02 15:04 MST")), "", 1, "L", false, 0, "")
	pdf.Ln(6)
}

func addRiskDistribution(pdf *gofpdf.Fpdf, p SummaryParams) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Risk Distribution", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	tiers := []struct {
		label   string
		count   int
		r, g, b int
	}{
		{"Critical", p.Critical, 220, 53, 69},
		{"High", p.High, 255, 149, 0},
		{"Medium", p.Medium, 255, 204, 0},
		{"Low", p.Low, 52, 199, 89},
	}

	pdf.SetFont("Arial", "B", 11)
	for _, t := range tiers {
		pdf.SetFillColor(t.r, t.g, t.b)
		pdf.SetTextColor(255, 255, 255)
		pdf.CellFormat(42, 10, fmt.Sprintf("%s: %d", t.label, t.count), "", 0, "C", true, 0, "")
		pdf.CellFormat(2, 10, "", "", 0, "C", false, 0, "")
	}
	pdf.Ln(14)
}

func addStatistics(pdf *gofpdf.Fpdf, p SummaryParams) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Inventory Overview", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	stats := []struct {
		label string
		value int64
	}{
		{"Total devices", p.TotalDevices},
		{"Devices on network", p.OnNetworkCount},
		{"Devices holding PHI", p.PHICount},
		{"Active vulnerability links", p.OpenLinkCount},
	}

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(60, 60, 60)
	for _, s := range stats {
		pdf.CellFormat(90, 7, s.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, fmt.Sprintf("%d", s.value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func addFindings(pdf *gofpdf.Fpdf, findings []FindingRow) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Top Findings", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(60, 8, "Device", "1", 0, "L", true, 0, "")
	pdf.CellFormat(45, 8, "CVE", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 8, "Severity", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Score", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, f := range findings {
		pdf.CellFormat(60, 7, truncate(f.DeviceName, 34), "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 7, f.CVEID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, f.Severity, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%.1f", f.CVSSScore), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(6)
}

func addChecks(pdf *gofpdf.Fpdf, checks []CheckRow) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Compliance Checklist", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	pdf.SetFont("Arial", "", 10)
	for _, c := range checks {
		if c.Passed {
			pdf.SetTextColor(52, 158, 89)
			pdf.CellFormat(14, 7, "PASS", "", 0, "L", false, 0, "")
		} else {
			pdf.SetTextColor(220, 53, 69)
			pdf.CellFormat(14, 7, "FAIL", "", 0, "L", false, 0, "")
		}
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(120, 7, c.Name, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, c.Detail, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func addFooter(pdf *gofpdf.Fpdf) {
	pdf.SetY(-20)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(150, 150, 150)
	pdf.CellFormat(0, 6, "Risk tiers are heuristic and informational; they are not a certified risk methodology.", "", 1, "C", false, 0, "")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
