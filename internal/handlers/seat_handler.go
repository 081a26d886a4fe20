package handlers

import (
	"context"
	"math"
	"net/http"
	"time"

	"seat-reservation/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Reservations is the part of services.ReservationService the HTTP layer uses.
type Reservations interface {
	LockSeats(ctx context.Context, eventSlug string, seatIDs []models.SeatID, lockDuration time.Duration) ([]models.SeatID, error)
	GetLockedSeats(ctx context.Context, eventSlug string) ([]models.SeatID, error)
	UnlockSeats(ctx context.Context, eventSlug string, seatIDs []models.SeatID) ([]models.SeatID, error)
	SeatAvailability(ctx context.Context, eventSlug string) (map[models.SeatID]string, error)
	CompletePayment(ctx context.Context, orderID string) error
}

type SeatHandler struct {
	reservations        Reservations
	defaultLockDuration time.Duration
}

func NewSeatHandler(reservations Reservations, defaultLockDuration time.Duration) *SeatHandler {
	return &SeatHandler{
		reservations:        reservations,
		defaultLockDuration: defaultLockDuration,
	}
}

// maxLockDurationMillis is the largest millisecond count a time.Duration holds.
const maxLockDurationMillis = math.MaxInt64 / int64(time.Millisecond)

type lockSeatsRequest struct {
	EventSlug string   `json:"eventSlug"`
	SeatIDs   []string `json:"seatIds"`
	// LockDuration is in milliseconds; omitted means the configured default.
	LockDuration *int64 `json:"lockDuration"`
}

func (h *SeatHandler) LockSeats(e *core.RequestEvent) error {
	var req lockSeatsRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventSlug == "" || len(req.SeatIDs) == 0 {
		return apis.NewBadRequestError("eventSlug and seatIds are required", nil)
	}

	duration := h.defaultLockDuration
	if req.LockDuration != nil {
		duration = lockDuration(*req.LockDuration)
	}

	locked, err := h.reservations.LockSeats(e.Request.Context(), req.EventSlug, req.SeatIDs, duration)
	if err != nil {
		return apiError(err, http.StatusNotFound)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message":     "Seats locked successfully",
		"lockedSeats": locked,
	})
}

// lockDuration saturates instead of overflowing; the service clamps the result
// to the configured maximum.
func lockDuration(millis int64) time.Duration {
	switch {
	case millis > maxLockDurationMillis:
		return time.Duration(math.MaxInt64)
	case millis < -maxLockDurationMillis:
		return time.Duration(math.MinInt64)
	default:
		return time.Duration(millis) * time.Millisecond
	}
}

func (h *SeatHandler) GetLockedSeats(e *core.RequestEvent) error {
	var req struct {
		EventSlug string `json:"eventSlug"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventSlug == "" {
		return apis.NewBadRequestError("eventSlug is required", nil)
	}

	locked, err := h.reservations.GetLockedSeats(e.Request.Context(), req.EventSlug)
	if err != nil {
		return apiError(err, http.StatusNotFound)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"lockedSeats": locked,
	})
}

func (h *SeatHandler) UnlockSeats(e *core.RequestEvent) error {
	var req struct {
		EventSlug string   `json:"eventSlug"`
		SeatIDs   []string `json:"seatIds"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventSlug == "" || len(req.SeatIDs) == 0 {
		return apis.NewBadRequestError("eventSlug and seatIds are required", nil)
	}

	released, err := h.reservations.UnlockSeats(e.Request.Context(), req.EventSlug, req.SeatIDs)
	if err != nil {
		return apiError(err, http.StatusNotFound)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message":       "Seats unlocked successfully",
		"unlockedSeats": released,
	})
}

// GetAvailability - per-seat status for the storefront seat picker
func (h *SeatHandler) GetAvailability(e *core.RequestEvent) error {
	slug := e.Request.PathValue("slug")

	states, err := h.reservations.SeatAvailability(e.Request.Context(), slug)
	if err != nil {
		return apiError(err, http.StatusNotFound)
	}

	available := 0
	for _, s := range states {
		if s == models.SeatAvailable {
			available++
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"eventSlug":      slug,
		"seats":          states,
		"totalSeats":     len(states),
		"availableSeats": available,
	})
}

// CompletePayment reports broken order/event/seat map references as 400.
func (h *SeatHandler) CompletePayment(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")

	if err := h.reservations.CompletePayment(e.Request.Context(), orderID); err != nil {
		return apiError(err, http.StatusBadRequest)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Payment completed, seats reserved",
	})
}
