package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"radius/internal/status"
	"radius/models"
	"radius/services"
	"radius/utils"
)

// AdminHandler carries the staff-side queue controls. Every route
// requires an authenticated record; staff accounts come from the
// built-in auth collection.
type AdminHandler struct {
	queues *services.QueueService
	live   *services.LiveHub
}

func NewAdminHandler(queues *services.QueueService, live *services.LiveHub) *AdminHandler {
	return &AdminHandler{queues: queues, live: live}
}

// Dashboard - GET /api/admin/queues/{uid}
// Queue state plus summary and the number of connected live-feed
// clients.
func (h *AdminHandler) Dashboard(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("uid")
	ctx := e.Request.Context()

	queue, err := h.queues.Snapshot(ctx, queueID)
	if err != nil {
		if errors.Is(err, status.ErrQueueNotFound) {
			return apis.NewNotFoundError("Not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	info, err := h.queues.Info(ctx, queueID)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"queue":       queue,
		"info":        info,
		"parties":     dashboardEntries(queue, time.Now()),
		"liveClients": h.live.ClientCount(),
	})
}

// dashboardEntry is one row of the staff waiting-list table, rendered
// the way the dashboard displays it.
type dashboardEntry struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Size       int    `json:"size"`
	WaitingMin int    `json:"waitingMin"`
}

func dashboardEntries(q *models.Queue, now time.Time) []dashboardEntry {
	entries := make([]dashboardEntry, len(q.Parties))
	for i, p := range q.Parties {
		entries[i] = dashboardEntry{
			Name:       utils.ShortName(p.FirstName, p.LastName),
			Phone:      utils.FormatPhone(p.PhoneNumber),
			Size:       p.Size,
			WaitingMin: int(now.Sub(p.CheckIn).Minutes()),
		}
	}
	return entries
}

type removeBody struct {
	leaveBody
	Reason string `json:"reason"`
}

// RemoveParty - POST /api/admin/queues/{uid}/remove
// Staff removal. The removed party is notified with the given reason.
func (h *AdminHandler) RemoveParty(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("uid")

	var body removeBody
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Malformed request", err)
	}

	queue, err := h.queues.Remove(e.Request.Context(), queueID, body.ref(), body.Reason)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrQueueNotFound), errors.Is(err, status.ErrPartyNotFound):
			return apis.NewNotFoundError("Not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, queue)
}

// SetOpen - POST /api/admin/queues/{uid}/open
func (h *AdminHandler) SetOpen(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("uid")

	var body struct {
		Open bool `json:"open"`
	}
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Malformed request", err)
	}

	queue, err := h.queues.SetOpen(e.Request.Context(), queueID, body.Open)
	if err != nil {
		if errors.Is(err, status.ErrQueueNotFound) {
			return apis.NewNotFoundError("Not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, queue)
}

type quoteBody struct {
	leaveBody
	Quote int `json:"quote"`
}

// SetQuote - POST /api/admin/queues/{uid}/quote
// Records the estimated call time (minutes) staff gave a party.
func (h *AdminHandler) SetQuote(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("uid")

	var body quoteBody
	if err := e.BindBody(&body); err != nil || body.Quote < 0 {
		return apis.NewBadRequestError("Malformed request", err)
	}

	queue, err := h.queues.SetQuote(e.Request.Context(), queueID, body.ref(), body.Quote)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrQueueNotFound), errors.Is(err, status.ErrPartyNotFound):
			return apis.NewNotFoundError("Not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, queue)
}

// Publish - POST /api/admin/queues/{uid}/publish
// Re-broadcasts the current state to every realtime surface. Used after
// out-of-band edits.
func (h *AdminHandler) Publish(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("uid")
	ctx := e.Request.Context()

	queue, err := h.queues.Snapshot(ctx, queueID)
	if err != nil {
		if errors.Is(err, status.ErrQueueNotFound) {
			return apis.NewNotFoundError("Not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	h.queues.Publish(ctx, queue)
	return e.JSON(http.StatusOK, map[string]string{"status": "published"})
}
