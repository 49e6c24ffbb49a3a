package export

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/risk"
)

// CSV renders rows comma-delimited. Field values containing commas are
// sanitized to semicolons instead of quoted. This matches the format the
// existing report consumers parse; switching to RFC 4180 quoting would
// break them.
func CSV(headers []string, rows [][]string) []byte {
	var buf bytes.Buffer
	writeRow(&buf, headers)
	for _, row := range rows {
		writeRow(&buf, row)
	}
	return buf.Bytes()
}

func writeRow(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(sanitizeField(f))
	}
	buf.WriteByte('\n')
}

func sanitizeField(s string) string {
	s = strings.ReplaceAll(s, ",", ";")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

var deviceHeaders = []string{
	"Name", "Type", "Manufacturer", "Model", "Serial Number", "OS Version",
	"Department", "IP Address", "On Network", "Has PHI", "PHI Category",
	"Risk Level", "Vulnerabilities", "Last Seen",
}

// DeviceInventoryCSV renders the device inventory with derived risk levels.
func DeviceInventoryCSV(devices []models.Device) []byte {
	rows := make([][]string, len(devices))
	for i := range devices {
		d := &devices[i]
		lastSeen := ""
		if d.LastSeenAt > 0 {
			lastSeen = time.Unix(d.LastSeenAt, 0).UTC().Format(time.RFC3339)
		}
		rows[i] = []string{
			d.Name,
			string(d.Type),
			d.Manufacturer,
			d.Model,
			d.SerialNumber,
			d.OSVersion,
			d.Department,
			d.IPAddress,
			strconv.FormatBool(d.OnNetwork),
			strconv.FormatBool(d.HasPHI),
			d.PHICategory,
			string(risk.Classify(d)),
			strconv.Itoa(d.VulnerabilityLinkCount),
			lastSeen,
		}
	}
	return CSV(deviceHeaders, rows)
}

var findingHeaders = []string{
	"Device", "CVE", "Severity", "CVSS Score", "Detected",
}

// FindingRow is one device/CVE link row of a summary or risk report.
type FindingRow struct {
	DeviceName string
	CVEID      string
	Severity   string
	CVSSScore  float64
	DetectedAt int64
}

func FindingsCSV(rows []FindingRow) []byte {
	out := make([][]string, len(rows))
	for i, r := range rows {
		detected := ""
		if r.DetectedAt > 0 {
			detected = time.Unix(r.DetectedAt, 0).UTC().Format(time.RFC3339)
		}
		out[i] = []string{
			r.DeviceName,
			r.CVEID,
			r.Severity,
			strconv.FormatFloat(r.CVSSScore, 'f', 1, 64),
			detected,
		}
	}
	return CSV(findingHeaders, out)
}
