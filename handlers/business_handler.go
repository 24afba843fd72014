package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"radius/internal/status"
	"radius/services"
)

type BusinessHandler struct {
	businesses *services.BusinessService
	storage    *services.StorageService
}

func NewBusinessHandler(businesses *services.BusinessService, storage *services.StorageService) *BusinessHandler {
	return &BusinessHandler{businesses: businesses, storage: storage}
}

// Location - GET /api/businesses/{uid}/location
func (h *BusinessHandler) Location(e *core.RequestEvent) error {
	uid := e.Request.PathValue("uid")

	loc, err := h.businesses.Location(e.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, status.ErrLocationMissing) {
			return apis.NewNotFoundError("Not found", err)
		}
		slog.Error("get location failed", "uid", uid, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, loc)
}

// AllLocations - GET /api/businesses/locations/all
func (h *BusinessHandler) AllLocations(e *core.RequestEvent) error {
	locations, err := h.businesses.AllLocations(e.Request.Context())
	if err != nil {
		slog.Error("list locations failed", "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, locations)
}

// Locations - GET /api/businesses/locations?locations=["id",...]
// Batch fetch for the feed's favorites and recents rows.
func (h *BusinessHandler) Locations(e *core.RequestEvent) error {
	raw := e.Request.URL.Query().Get("locations")
	if raw == "" {
		return apis.NewBadRequestError("Malformed request", nil)
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return apis.NewBadRequestError("Malformed request", err)
	}
	if len(ids) == 0 {
		return e.JSON(http.StatusOK, []any{})
	}

	locations, err := h.businesses.LocationsByIDs(e.Request.Context(), ids)
	if err != nil {
		slog.Error("batch locations failed", "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, locations)
}

// Image - GET /api/businesses/{uid}/images/{file}
// ?thumb=1 selects the thumbnail variant.
func (h *BusinessHandler) Image(e *core.RequestEvent) error {
	uid := e.Request.PathValue("uid")
	filename := e.Request.PathValue("file")
	thumb := e.Request.URL.Query().Get("thumb") == "1"

	if err := h.storage.ServeImage(e.Response, e.Request, uid, filename, thumb); err != nil {
		return apis.NewNotFoundError("Not found", err)
	}
	return nil
}

// UploadImage - POST /api/businesses/{uid}/images (staff only,
// multipart)
func (h *BusinessHandler) UploadImage(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	uid := e.Request.PathValue("uid")

	file, header, err := e.Request.FormFile("image")
	if err != nil {
		return apis.NewBadRequestError("Malformed request", err)
	}
	defer file.Close()

	if err := h.storage.UploadImage(uid, header.Filename, file); err != nil {
		slog.Error("image upload failed", "business", uid, "file", header.Filename, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, map[string]string{"file": header.Filename})
}

// DeleteImage - DELETE /api/businesses/{uid}/images/{file} (staff only)
func (h *BusinessHandler) DeleteImage(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	uid := e.Request.PathValue("uid")
	filename := e.Request.PathValue("file")

	if err := h.storage.DeleteImage(uid, filename); err != nil {
		slog.Error("image delete failed", "business", uid, "file", filename, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, map[string]string{"file": filename})
}
