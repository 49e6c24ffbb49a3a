package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cryptiomt/cryptiomt/internal/auth"
	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.Device{},
		&models.Vulnerability{},
		&models.DeviceVulnerability{},
		&models.ReportSchedule{},
		&models.ReportRun{},
		&models.Notification{},
		&models.DeliverySetting{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestOrg creates a test organization
func CreateTestOrg(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name: "Test Hospital",
		Slug: "test-org-" + uuid.New().String()[:8],
		Plan: "free",
	}

	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}

	return org
}

// CreateTestUser creates a test user with the given organization
func CreateTestUser(t *testing.T, db *gorm.DB, org *models.Organization) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:          "test-" + uuid.New().String()[:8] + "@example.com",
		PasswordHash:   hash,
		Name:           "Test User",
		OrganizationID: org.ID,
		Role:           "owner",
		IsActive:       true,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	user.Organization = org
	return user
}

// CreateTestDevice creates a test device
func CreateTestDevice(t *testing.T, db *gorm.DB, orgID uuid.UUID, name, manufacturer, model string) *models.Device {
	t.Helper()

	device := &models.Device{
		Base: models.Base{
			ID: uuid.New(),
		},
		OrganizationID: orgID,
		Name:           name,
		Type:           models.DeviceTypeOther,
		Manufacturer:   manufacturer,
		Model:          model,
		Source:         "manual",
		LastSeenAt:     time.Now().UTC().Unix(),
	}

	if err := db.Create(device).Error; err != nil {
		t.Fatalf("failed to create test device: %v", err)
	}

	return device
}

// CreateTestVulnerability creates a test vulnerability entry
func CreateTestVulnerability(t *testing.T, db *gorm.DB, cveID string, vendors, products []string) *models.Vulnerability {
	t.Helper()

	score := 7.5
	vuln := &models.Vulnerability{
		Base: models.Base{
			ID: uuid.New(),
		},
		CVEID:       cveID,
		Description: "Test vulnerability",
		PublishedAt: time.Now().UTC().Unix(),
		CVSSScore:   &score,
		Severity:    models.SeverityHigh,
		Vendors:     vendors,
		Products:    products,
	}

	if err := db.Create(vuln).Error; err != nil {
		t.Fatalf("failed to create test vulnerability: %v", err)
	}

	return vuln
}

// CreateTestLink creates an active device/vulnerability link
func CreateTestLink(t *testing.T, db *gorm.DB, orgID uuid.UUID, device *models.Device, vuln *models.Vulnerability) *models.DeviceVulnerability {
	t.Helper()

	link := &models.DeviceVulnerability{
		Base: models.Base{
			ID: uuid.New(),
		},
		OrganizationID:  orgID,
		DeviceID:        device.ID,
		VulnerabilityID: vuln.ID,
		CVEID:           vuln.CVEID,
		Status:          models.LinkStatusActive,
		DetectedAt:      time.Now().UTC().Unix(),
	}

	if err := db.Create(link).Error; err != nil {
		t.Fatalf("failed to create test link: %v", err)
	}

	return link
}

// CreateTestSchedule creates a test report schedule
func CreateTestSchedule(t *testing.T, db *gorm.DB, orgID uuid.UUID, name string, freq models.ReportFrequency, nextRunAt int64) *models.ReportSchedule {
	t.Helper()

	schedule := &models.ReportSchedule{
		Base: models.Base{
			ID: uuid.New(),
		},
		OrganizationID: orgID,
		Name:           name,
		Frequency:      freq,
		ReportType:     models.ReportTypeSummary,
		Recipients:     []string{"security@example.com"},
		IsActive:       true,
		NextRunAt:      nextRunAt,
	}

	if err := db.Create(schedule).Error; err != nil {
		t.Fatalf("failed to create test schedule: %v", err)
	}

	return schedule
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.OrganizationID, user.Email, user.Role)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Org        *models.Organization
	User       *models.User
	Token      string
}

// NewTestContext creates a complete test setup with DB, org, user, and token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	org := CreateTestOrg(t, db)
	user := CreateTestUser(t, db, org)
	token := GenerateTestToken(t, jwtService, user)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Org:        org,
		User:       user,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
