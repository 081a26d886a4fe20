package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"seat-reservation/internal/payment"
	"seat-reservation/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Payments is the part of services.PaymentService the HTTP layer uses.
type Payments interface {
	StartCheckout(ctx context.Context, orderID, redirectURL string) (*payment.PaymentSession, error)
	HandleStatusChange(ctx context.Context, providerOrderID string) (payment.Status, error)
}

// StatusSetter moves a simulated payment to a new state.
type StatusSetter interface {
	SetStatus(providerOrderID string, s payment.Status) error
}

type PaymentHandler struct {
	payments  Payments
	simulator StatusSetter
}

func NewPaymentHandler(payments Payments, simulator StatusSetter) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		simulator: simulator,
	}
}

// Checkout - open a payment for a pending order
func (h *PaymentHandler) Checkout(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")

	var req struct {
		RedirectURL string `json:"redirectUrl"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	session, err := h.payments.StartCheckout(e.Request.Context(), orderID, req.RedirectURL)
	if err != nil {
		return apiError(err, http.StatusNotFound)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"redirectUrl":     session.RedirectURL,
		"providerOrderId": session.ProviderOrderID,
	})
}

// Webhook - provider callback; only the id is trusted, the status is fetched
// from the provider.
func (h *PaymentHandler) Webhook(e *core.RequestEvent) error {
	var req struct {
		ID string `json:"id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ID == "" {
		return apis.NewBadRequestError("id is required", nil)
	}

	st, err := h.payments.HandleStatusChange(e.Request.Context(), req.ID)
	if err != nil {
		// Unknown ids are acknowledged so the provider stops retrying.
		if errors.Is(err, status.ErrNotFound) {
			slog.Warn("Webhook for unknown payment", "provider_order_id", req.ID)
			return e.JSON(http.StatusOK, map[string]any{"received": true})
		}
		return apiError(err, http.StatusNotFound)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"received": true,
		"status":   st,
	})
}

func (h *PaymentHandler) PaymentStatus(e *core.RequestEvent) error {
	providerOrderID := e.Request.PathValue("providerOrderId")

	st, err := h.payments.HandleStatusChange(e.Request.Context(), providerOrderID)
	if err != nil {
		return apiError(err, http.StatusNotFound)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"providerOrderId": providerOrderID,
		"status":          st,
		"paid":            st.IsPaid(),
	})
}

// SimulatePayment - set a simulated payment status and reconcile it (development only)
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	var req struct {
		ProviderOrderID string `json:"providerOrderId"`
		Status          string `json:"status"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	st := payment.Status(req.Status)
	if req.ProviderOrderID == "" || !st.Valid() {
		return apis.NewBadRequestError("providerOrderId and a valid status are required", nil)
	}
	if h.simulator == nil {
		return apis.NewNotFoundError("Simulated payments are disabled", nil)
	}

	if err := h.simulator.SetStatus(req.ProviderOrderID, st); err != nil {
		return apiError(err, http.StatusNotFound)
	}
	if _, err := h.payments.HandleStatusChange(e.Request.Context(), req.ProviderOrderID); err != nil {
		return apiError(err, http.StatusNotFound)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Payment simulation applied",
		"status":  st,
	})
}
