package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/api/dto"
	"github.com/cryptiomt/cryptiomt/internal/api/middleware"
	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/risk"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const dashboardCacheTTL = 60 * time.Second

type DashboardHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewDashboardHandler(db *gorm.DB, redisClient *redis.Client) *DashboardHandler {
	return &DashboardHandler{db: db, redis: redisClient}
}

// DashboardStats is the aggregate view behind the dashboard.
type DashboardStats struct {
	TotalDevices       int64            `json:"total_devices"`
	OnNetworkCount     int64            `json:"on_network_count"`
	PHICount           int64            `json:"phi_count"`
	OpenLinkCount      int64            `json:"open_link_count"`
	LinksBySeverity    map[string]int64 `json:"links_by_severity"`
	RiskDistribution   map[string]int   `json:"risk_distribution"`
	TotalVulnerabilities int64          `json:"total_vulnerabilities"`
	GeneratedAt        int64            `json:"generated_at"`
}

// Stats handles GET /api/v1/dashboard. Aggregates are cached per
// organization for a minute; the dashboard polls more often than the
// underlying data changes.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	cacheKey := fmt.Sprintf("dashboard:stats:%s", orgID)

	if h.redis != nil {
		if cached, err := h.redis.Get(r.Context(), cacheKey).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(cached)
			return
		}
	}

	stats, err := h.computeStats(r.Context(), orgID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to compute dashboard stats"})
		return
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to encode dashboard stats"})
		return
	}
	if h.redis != nil {
		h.redis.Set(r.Context(), cacheKey, payload, dashboardCacheTTL)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func (h *DashboardHandler) computeStats(ctx context.Context, orgID uuid.UUID) (*DashboardStats, error) {
	stats := &DashboardStats{
		LinksBySeverity:  make(map[string]int64),
		RiskDistribution: make(map[string]int),
		GeneratedAt:      time.Now().UTC().Unix(),
	}

	var devices []models.Device
	if err := h.db.WithContext(ctx).Where("organization_id = ?", orgID).Find(&devices).Error; err != nil {
		return nil, err
	}
	stats.TotalDevices = int64(len(devices))
	for i := range devices {
		if devices[i].OnNetwork {
			stats.OnNetworkCount++
		}
		if devices[i].HasPHI {
			stats.PHICount++
		}
		stats.RiskDistribution[string(risk.Classify(&devices[i]))]++
	}

	if err := h.db.WithContext(ctx).
		Model(&models.DeviceVulnerability{}).
		Where("organization_id = ? AND status = ?", orgID, models.LinkStatusActive).
		Count(&stats.OpenLinkCount).Error; err != nil {
		return nil, err
	}

	type sevCount struct {
		Severity string
		Count    int64
	}
	var sevCounts []sevCount
	if err := h.db.WithContext(ctx).
		Model(&models.DeviceVulnerability{}).
		Select("vulnerabilities.severity AS severity, COUNT(*) AS count").
		Joins("JOIN vulnerabilities ON vulnerabilities.id = device_vulnerabilities.vulnerability_id").
		Where("device_vulnerabilities.organization_id = ? AND device_vulnerabilities.status = ?", orgID, models.LinkStatusActive).
		Group("vulnerabilities.severity").
		Scan(&sevCounts).Error; err != nil {
		return nil, err
	}
	for _, sc := range sevCounts {
		stats.LinksBySeverity[sc.Severity] = sc.Count
	}

	if err := h.db.WithContext(ctx).
		Model(&models.Vulnerability{}).
		Count(&stats.TotalVulnerabilities).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
