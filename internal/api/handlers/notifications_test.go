package handlers_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cryptiomt/cryptiomt/internal/api/handlers"
	"github.com/cryptiomt/cryptiomt/internal/api/middleware"
	"github.com/cryptiomt/cryptiomt/internal/database/models"
	"github.com/cryptiomt/cryptiomt/internal/notify"
	"github.com/cryptiomt/cryptiomt/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupNotificationTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup, *notify.Service) {
	tc := testutil.NewTestContext(t)
	notifyService := notify.NewService(tc.DB, slog.Default())

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))

	handler := handlers.NewNotificationHandler(notifyService)
	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Put("/{id}/read", handler.MarkRead)
		r.Post("/read-all", handler.MarkAllRead)
	})

	return r, tc, notifyService
}

func createNotification(t *testing.T, tc *testutil.TestSetup, read bool) *models.Notification {
	t.Helper()
	n := &models.Notification{
		Base:           models.Base{ID: uuid.New()},
		OrganizationID: tc.Org.ID,
		UserID:         tc.User.ID,
		Type:           models.NotificationCVE,
		Title:          "New vulnerability link",
		Read:           read,
	}
	require.NoError(t, tc.DB.Create(n).Error)
	return n
}

func TestNotificationHandler_List(t *testing.T) {
	router, tc, _ := setupNotificationTestRouter(t)
	defer tc.Cleanup()

	createNotification(t, tc, false)
	createNotification(t, tc, true)

	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/notifications", nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp struct {
		Data   []handlers.NotificationResponse `json:"data"`
		Unread int64                           `json:"unread"`
	}
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, int64(1), resp.Unread)

	req = testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/notifications?unread=true", nil, tc.Token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Len(t, resp.Data, 1)
	assert.False(t, resp.Data[0].Read)
}

func TestNotificationHandler_MarkRead(t *testing.T) {
	router, tc, _ := setupNotificationTestRouter(t)
	defer tc.Cleanup()

	n := createNotification(t, tc, false)

	req := testutil.AuthenticatedRequest(t, http.MethodPut, "/api/v1/notifications/"+n.ID.String()+"/read", nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var updated models.Notification
	require.NoError(t, tc.DB.First(&updated, "id = ?", n.ID).Error)
	assert.True(t, updated.Read)
	// Only the read flag changes.
	assert.Equal(t, n.Title, updated.Title)
}

func TestNotificationHandler_MarkReadScopedToUser(t *testing.T) {
	router, tc, _ := setupNotificationTestRouter(t)
	defer tc.Cleanup()

	// Notification belonging to a different user cannot be mutated.
	otherOrg := testutil.CreateTestOrg(t, tc.DB)
	otherUser := testutil.CreateTestUser(t, tc.DB, otherOrg)
	foreign := &models.Notification{
		Base:           models.Base{ID: uuid.New()},
		OrganizationID: otherOrg.ID,
		UserID:         otherUser.ID,
		Type:           models.NotificationInfo,
		Title:          "Foreign",
	}
	require.NoError(t, tc.DB.Create(foreign).Error)

	req := testutil.AuthenticatedRequest(t, http.MethodPut, "/api/v1/notifications/"+foreign.ID.String()+"/read", nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestNotificationHandler_MarkAllRead(t *testing.T) {
	router, tc, _ := setupNotificationTestRouter(t)
	defer tc.Cleanup()

	createNotification(t, tc, false)
	createNotification(t, tc, false)
	createNotification(t, tc, true)

	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/notifications/read-all", nil, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp struct {
		Updated int64 `json:"updated"`
	}
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, int64(2), resp.Updated)

	var unread int64
	tc.DB.Model(&models.Notification{}).Where("user_id = ? AND read = ?", tc.User.ID, false).Count(&unread)
	assert.Equal(t, int64(0), unread)
}
