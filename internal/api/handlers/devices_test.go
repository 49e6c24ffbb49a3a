package handlers_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cryptiomt/cryptiomt/internal/api/dto"
	"github.com/cryptiomt/cryptiomt/internal/api/handlers"
	"github.com/cryptiomt/cryptiomt/internal/api/middleware"
	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/inventory"
	"github.com/cryptiomt/cryptiomt/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDeviceTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))

	inventoryService := inventory.NewService(tc.DB, slog.Default())
	handler := handlers.NewDeviceHandler(tc.DB, inventoryService)
	r.Route("/api/v1/devices", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.Post("/import", handler.Import)
		r.Get("/export", handler.Export)
		r.Get("/{id}", handler.Get)
		r.Put("/{id}", handler.Update)
		r.Delete("/{id}", handler.Delete)
	})

	return r, tc
}

func TestDeviceHandler_Create(t *testing.T) {
	router, tc := setupDeviceTestRouter(t)
	defer tc.Cleanup()

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
	}{
		{
			name: "create device",
			body: map[string]interface{}{
				"name":         "Infusion Pump 1",
				"type":         "infusion_pump",
				"manufacturer": "Baxter",
				"model":        "Sigma Spectrum",
				"on_network":   true,
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "missing name",
			body: map[string]interface{}{
				"manufacturer": "Baxter",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "invalid type",
			body: map[string]interface{}{
				"name": "Thing",
				"type": "toaster",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "phi without category",
			body: map[string]interface{}{
				"name":    "Records Station",
				"has_phi": true,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "invalid ip",
			body: map[string]interface{}{
				"name":       "Monitor",
				"ip_address": "999.1.1.1",
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/devices", tt.body, tc.Token)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			testutil.AssertStatus(t, rr, tt.wantStatus)
		})
	}
}

func TestDeviceHandler_ListFilters(t *testing.T) {
	router, tc := setupDeviceTestRouter(t)
	defer tc.Cleanup()

	pump := testutil.CreateTestDevice(t, tc.DB, tc.Org.ID, "Pump A", "Baxter", "Sigma")
	require.NoError(t, tc.DB.Model(pump).Updates(map[string]interface{}{"type": "infusion_pump", "has_phi": true}).Error)
	testutil.CreateTestDevice(t, tc.DB, tc.Org.ID, "Workstation", "Dell", "Optiplex")

	// Devices of a different organization never appear.
	otherOrg := testutil.CreateTestOrg(t, tc.DB)
	testutil.CreateTestDevice(t, tc.DB, otherOrg.ID, "Foreign Pump", "Baxter", "Sigma")

	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/devices?type=infusion_pump", nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp dto.PaginatedResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, int64(1), resp.Total)

	req = testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/devices", nil, tc.Token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var all dto.PaginatedResponse
	testutil.ParseJSONResponse(t, rr, &all)
	assert.Equal(t, int64(2), all.Total)
}

func TestDeviceHandler_ImportReplacesInventory(t *testing.T) {
	router, tc := setupDeviceTestRouter(t)
	defer tc.Cleanup()

	old := testutil.CreateTestDevice(t, tc.DB, tc.Org.ID, "Old Device", "Philips", "IntelliVue MX450")
	vuln := testutil.CreateTestVulnerability(t, tc.DB, "CVE-2024-9999",
		[]string{"philips"}, []string{"intellivue mx450"})
	testutil.CreateTestLink(t, tc.DB, tc.Org.ID, old, vuln)

	body := map[string]interface{}{
		"rows": []map[string]interface{}{
			{"name": "New Pump", "type": "infusion_pump", "manufacturer": "Baxter", "model": "Sigma"},
			{"name": "New Monitor", "manufacturer": "Philips", "model": "MX550", "on_network": true},
			{"manufacturer": "Nameless"}, // skipped
		},
	}
	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/devices/import", body, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var result inventory.ImportResult
	testutil.ParseJSONResponse(t, rr, &result)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Replaced)
	assert.Equal(t, 1, result.Skipped)

	// The old inventory and its links are gone.
	var deviceCount, linkCount int64
	tc.DB.Model(&models.Device{}).Where("organization_id = ?", tc.Org.ID).Count(&deviceCount)
	tc.DB.Model(&models.DeviceVulnerability{}).Where("organization_id = ?", tc.Org.ID).Count(&linkCount)
	assert.Equal(t, int64(2), deviceCount)
	assert.Equal(t, int64(0), linkCount)

	var names []string
	tc.DB.Model(&models.Device{}).Where("organization_id = ?", tc.Org.ID).Order("name").Pluck("name", &names)
	assert.Equal(t, []string{"New Monitor", "New Pump"}, names)
}

func TestDeviceHandler_ImportRejectsOverLimit(t *testing.T) {
	router, tc := setupDeviceTestRouter(t)
	defer tc.Cleanup()

	require.NoError(t, tc.DB.Model(tc.Org).Update("max_devices", 1).Error)

	body := map[string]interface{}{
		"rows": []map[string]interface{}{
			{"name": "One"},
			{"name": "Two"},
		},
	}
	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/devices/import", body, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
}

func TestDeviceHandler_Export(t *testing.T) {
	router, tc := setupDeviceTestRouter(t)
	defer tc.Cleanup()

	testutil.CreateTestDevice(t, tc.DB, tc.Org.ID, "Pump, Ward A", "Baxter", "Sigma")

	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/devices/export", nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.True(t, strings.HasPrefix(body, "Name,Type,Manufacturer"))
	assert.Contains(t, body, "Pump; Ward A")
}

func TestDeviceHandler_DeleteRemovesLinks(t *testing.T) {
	router, tc := setupDeviceTestRouter(t)
	defer tc.Cleanup()

	device := testutil.CreateTestDevice(t, tc.DB, tc.Org.ID, "Doomed", "Philips", "MX450")
	vuln := testutil.CreateTestVulnerability(t, tc.DB, "CVE-2024-8888",
		[]string{"philips"}, []string{"mx450"})
	testutil.CreateTestLink(t, tc.DB, tc.Org.ID, device, vuln)

	req := testutil.AuthenticatedRequest(t, http.MethodDelete, "/api/v1/devices/"+device.ID.String(), nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var linkCount int64
	tc.DB.Model(&models.DeviceVulnerability{}).Where("device_id = ?", device.ID).Count(&linkCount)
	assert.Equal(t, int64(0), linkCount)
}

func TestDeviceHandler_Unauthenticated(t *testing.T) {
	router, tc := setupDeviceTestRouter(t)
	defer tc.Cleanup()

	req := testutil.UnauthenticatedRequest(t, http.MethodGet, "/api/v1/devices", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}
