// Package risk derives a qualitative risk tier for a device from its
// inventory attributes. The heuristic is illustrative, not a certified risk
// methodology: it flags end-of-life operating systems, protected-data
// sensitivity, and network exposure with simple keyword rules.
package risk

import (
	"strings"

	"github.com/cryptiomt/cryptiomt/internal/database/models"
)

type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// legacyOSKeywords marks operating system labels that are end of life.
var legacyOSKeywords = []string{
	"windows xp",
	"windows vista",
	"windows 7",
	"windows 2000",
	"windows server 2003",
	"windows server 2008",
	"windows ce",
	"end of life",
	"unsupported",
}

// rule is one entry of the ordered decision table. The first rule whose
// predicate holds decides the level.
type rule struct {
	name  string
	match func(d *models.Device) bool
	level Level
}

var rules = []rule{
	{"legacy_os", isLegacyOS, LevelCritical},
	{"critical_phi", isCriticalPHI, LevelCritical},
	{"network_exposed_phi", isNetworkExposedPHI, LevelCritical},
	{"high_phi", isHighPHI, LevelHigh},
	{"unknown_os_on_network", isUnknownOSOnNetwork, LevelHigh},
	{"has_phi", func(d *models.Device) bool { return d.HasPHI }, LevelMedium},
	{"on_network", func(d *models.Device) bool { return d.OnNetwork }, LevelMedium},
}

// Classify returns exactly one level for every device. Pure function of the
// device fields; nothing is persisted.
func Classify(d *models.Device) Level {
	for _, r := range rules {
		if r.match(d) {
			return r.level
		}
	}
	return LevelLow
}

// Reasons returns the names of every rule the device triggers, in table
// order. Used by the risk detail report.
func Reasons(d *models.Device) []string {
	var out []string
	for _, r := range rules {
		if r.match(d) {
			out = append(out, r.name)
		}
	}
	return out
}

func isLegacyOS(d *models.Device) bool {
	os := strings.ToLower(d.OSVersion)
	if os == "" {
		return false
	}
	for _, kw := range legacyOSKeywords {
		if strings.Contains(os, kw) {
			return true
		}
	}
	return false
}

func isCriticalPHI(d *models.Device) bool {
	return d.HasPHI && strings.Contains(strings.ToLower(d.PHICategory), "critical")
}

func isHighPHI(d *models.Device) bool {
	return d.HasPHI && strings.Contains(strings.ToLower(d.PHICategory), "high")
}

func isNetworkExposedPHI(d *models.Device) bool {
	return d.OnNetwork && d.HasPHI
}

func isUnknownOSOnNetwork(d *models.Device) bool {
	return d.OnNetwork && d.OSVersion == ""
}

// Summary counts devices per risk level.
type Summary struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

func Summarize(devices []models.Device) Summary {
	var s Summary
	for i := range devices {
		switch Classify(&devices[i]) {
		case LevelCritical:
			s.Critical++
		case LevelHigh:
			s.High++
		case LevelMedium:
			s.Medium++
		default:
			s.Low++
		}
	}
	return s
}
