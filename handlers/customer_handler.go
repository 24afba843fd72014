package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"radius/internal/status"
	"radius/models"
	"radius/services"
)

type CustomerHandler struct {
	customers *services.CustomerService
}

func NewCustomerHandler(customers *services.CustomerService) *CustomerHandler {
	return &CustomerHandler{customers: customers}
}

// Get - GET /api/customers?uid=
func (h *CustomerHandler) Get(e *core.RequestEvent) error {
	uid := e.Request.URL.Query().Get("uid")
	if uid == "" {
		return apis.NewBadRequestError("Malformed request", nil)
	}

	customer, err := h.customers.Get(e.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, status.ErrCustomerMissing) {
			return apis.NewNotFoundError("Not found", err)
		}
		slog.Error("get customer failed", "uid", uid, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, customer)
}

// Create - POST /api/customers/new
func (h *CustomerHandler) Create(e *core.RequestEvent) error {
	var req models.NewCustomerRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Malformed request", err)
	}

	customer, err := h.customers.Create(e.Request.Context(), req)
	if err != nil {
		var valErrs validation.Errors
		switch {
		case errors.As(err, &valErrs):
			return apis.NewBadRequestError("Malformed request", err)
		case errors.Is(err, status.ErrCustomerExists):
			return apis.NewBadRequestError(err.Error(), nil)
		}
		slog.Error("create customer failed", "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, customer)
}

// Update - POST /api/customers
// Persists the full customer document (profile edits, favorites,
// recents).
func (h *CustomerHandler) Update(e *core.RequestEvent) error {
	var customer models.Customer
	if err := e.BindBody(&customer); err != nil || customer.UID == "" {
		return apis.NewBadRequestError("Malformed request", err)
	}

	if err := h.customers.Update(e.Request.Context(), customer); err != nil {
		if errors.Is(err, status.ErrCustomerMissing) {
			return apis.NewNotFoundError("Not found", err)
		}
		slog.Error("update customer failed", "uid", customer.UID, "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Backend failure", err)
	}

	return e.JSON(http.StatusOK, customer)
}
