package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gorilla/websocket"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"radius/internal/status"
	"radius/models"
	"radius/services"
)

type QueueHandler struct {
	queues   *services.QueueService
	live     *services.LiveHub
	upgrader websocket.Upgrader
}

func NewQueueHandler(queues *services.QueueService, live *services.LiveHub) *QueueHandler {
	return &QueueHandler{
		queues: queues,
		live:   live,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

type joinBody struct {
	models.JoinRequest
	CustomerUID string              `json:"customerUid"`
	Device      *models.Coordinates `json:"device"`
}

// Join - POST /api/queues/{uid}
// Appends a party to the queue and returns the updated queue. A geofence
// rejection comes back as 403 with the measured overage in meters.
func (h *QueueHandler) Join(e *core.RequestEvent) error {
	queueID := e.Request.PathValue("uid")

	var body joinBody
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Malformed request", err)
	}

	queue, err := h.queues.Join(e.Request.Context(), queueID, body.JoinRequest, body.CustomerUID, body.Device)
	if err != nil {
		var geoErr *status.GeofenceError
		switch {
		case errors.As(err, &geoErr):
			return apis.NewForbiddenError("Outside geofence", map[string]any{
				"distance": geoErr.Distance,
				"radius":   geoErr.Radius,
				"overage":  geoErr.Overage(),
			})
		case errors.Is(err, status.ErrQueueNotFound):
			return apis.NewNotFoundError("Not found", err)
		case errors.Is(err, status.ErrQueueClosed),
			errors.Is(err, status.ErrAlreadyInQueue),
			errors.Is(err, status.ErrAlreadyInOther):
			return apis.NewBadRequestError(err.Error(), nil)
		}
		var valErrs validation.Errors
		if errors.As(err, &valErrs) {
			return apis.NewBadRequestError("Malformed request", err)
		}
		slog.Error("join queue failed", "queue", queueID, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, queue)
}

type leaveBody struct {
	PartyID     string `json:"partyId"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

func (b leaveBody) ref() models.PartyRef {
	return models.PartyRef{ID: b.PartyID, LastName: b.LastName, PhoneNumber: b.PhoneNumber}
}

// Leave - POST /api/queues/{uid}/leave
func (h *QueueHandler) Leave(e *core.RequestEvent) error {
	queueID := e.Request.PathValue("uid")

	var body leaveBody
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Malformed request", err)
	}

	queue, err := h.queues.Leave(e.Request.Context(), queueID, body.ref())
	if err != nil {
		switch {
		case errors.Is(err, status.ErrQueueNotFound), errors.Is(err, status.ErrPartyNotFound):
			return apis.NewNotFoundError("Not found", err)
		}
		slog.Error("leave queue failed", "queue", queueID, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, queue)
}

// Info - GET /api/queues/info?uid=
// Browse-screen summary: open flag, line length, longest wait in minutes.
func (h *QueueHandler) Info(e *core.RequestEvent) error {
	queueID := e.Request.URL.Query().Get("uid")
	if queueID == "" {
		return apis.NewBadRequestError("Malformed request", nil)
	}

	info, err := h.queues.Info(e.Request.Context(), queueID)
	if err != nil {
		if errors.Is(err, status.ErrQueueNotFound) {
			return apis.NewNotFoundError("Not found", err)
		}
		slog.Error("queue info failed", "queue", queueID, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, info)
}

// Snapshot - GET /api/queues/{uid}
func (h *QueueHandler) Snapshot(e *core.RequestEvent) error {
	queueID := e.Request.PathValue("uid")

	queue, err := h.queues.Snapshot(e.Request.Context(), queueID)
	if err != nil {
		if errors.Is(err, status.ErrQueueNotFound) {
			return apis.NewNotFoundError("Not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, queue)
}

type messageBody struct {
	leaveBody
	Text string `json:"text"`
}

// Message - POST /api/queues/{uid}/message (staff only)
// Appends a timestamped note to one party's message feed.
func (h *QueueHandler) Message(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("uid")

	var body messageBody
	if err := e.BindBody(&body); err != nil || body.Text == "" {
		return apis.NewBadRequestError("Malformed request", err)
	}

	queue, err := h.queues.AppendMessage(e.Request.Context(), queueID, body.ref(), body.Text)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrQueueNotFound), errors.Is(err, status.ErrPartyNotFound):
			return apis.NewNotFoundError("Not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, queue)
}

// Live - GET /api/queues/{uid}/live
// Upgrades to a websocket and streams queue snapshots. The initial state
// is sent immediately; later frames arrive on every queue mutation.
func (h *QueueHandler) Live(e *core.RequestEvent) error {
	queueID := e.Request.PathValue("uid")

	queue, err := h.queues.Snapshot(e.Request.Context(), queueID)
	if err != nil {
		if errors.Is(err, status.ErrQueueNotFound) {
			return apis.NewNotFoundError("Not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	conn, err := h.upgrader.Upgrade(e.Response, e.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure.
		return nil
	}

	h.live.Register(queueID, conn)
	defer h.live.Unregister(queueID, conn)

	snapshot, err := json.Marshal(models.Snapshot{Type: models.SnapshotType, Queue: *queue})
	if err == nil {
		conn.WriteMessage(websocket.TextMessage, snapshot)
	}

	// Hold the connection open; clients only read. A read error means the
	// peer went away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
