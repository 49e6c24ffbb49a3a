package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cryptiomt/cryptiomt/internal/api/dto"
	"github.com/cryptiomt/cryptiomt/internal/api/middleware"
	"github.com/cryptiomt/cryptiomt/internal/tasks"
	"github.com/hibiken/asynq"
)

const defaultSyncLookbackDays = 30

type AdminHandler struct {
	asynqClient *asynq.Client
}

func NewAdminHandler(asynqClient *asynq.Client) *AdminHandler {
	return &AdminHandler{asynqClient: asynqClient}
}

// FeedSyncRequest is an optional body for a manual feed sync
type FeedSyncRequest struct {
	LookbackDays int `json:"lookback_days,omitempty"`
}

// FeedSync handles POST /api/v1/admin/feed/sync. Restricted to owners
// and admins; enqueues an import over a configurable look-back window.
func (h *AdminHandler) FeedSync(w http.ResponseWriter, r *http.Request) {
	role := middleware.GetUserRole(r.Context())
	if role != "owner" && role != "admin" {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Insufficient permissions"})
		return
	}

	var req FeedSyncRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
			return
		}
	}
	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = defaultSyncLookbackDays
	}
	if lookback > 120 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Look-back window too large"})
		return
	}

	task, err := tasks.NewFeedSyncTask(tasks.FeedSyncPayload{LookbackDays: lookback})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to build sync task"})
		return
	}
	if h.asynqClient == nil {
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: "Task queue unavailable"})
		return
	}
	if _, err := h.asynqClient.Enqueue(task, asynq.Queue("low"), asynq.MaxRetry(0)); err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to enqueue sync"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":       "Feed sync enqueued",
		"lookback_days": lookback,
	})
}
