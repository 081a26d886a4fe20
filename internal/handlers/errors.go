package handlers

import (
	"errors"
	"net/http"

	"seat-reservation/internal/status"

	"github.com/pocketbase/pocketbase/apis"
)

// apiError maps service errors onto HTTP errors. notFoundStatus lets a route
// report missing references as something other than 404.
func apiError(err error, notFoundStatus int) error {
	switch {
	case errors.Is(err, status.ErrVersionConflict):
		return apis.NewApiError(http.StatusConflict, "Seats were changed by another request, please retry", nil)
	case errors.Is(err, status.ErrNotFound):
		if notFoundStatus == http.StatusBadRequest {
			return apis.NewBadRequestError(err.Error(), nil)
		}
		return apis.NewNotFoundError(err.Error(), nil)
	case errors.Is(err, status.ErrInvalidArgument), errors.Is(err, status.ErrInvalidState):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrProvider):
		return apis.NewInternalServerError("Payment provider error", nil)
	default:
		return apis.NewInternalServerError("Something went wrong", nil)
	}
}
