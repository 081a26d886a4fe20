package services

import (
	"context"
	"fmt"
	"log/slog"

	"seat-reservation/internal/payment"
	"seat-reservation/internal/status"
	"seat-reservation/models"
	"seat-reservation/monitoring"
)

const defaultCurrency = "EUR"

// PaymentService connects provider payment states to orders and seats.
type PaymentService struct {
	reservations *ReservationService
	catalog      Catalog
	providers    *payment.Registry
	notifier     PaymentNotifier
	monitor      *monitoring.Monitor
	currency     string
}

func NewPaymentService(reservations *ReservationService, catalog Catalog, providers *payment.Registry, notifier PaymentNotifier, monitor *monitoring.Monitor, currency string) *PaymentService {
	if currency == "" {
		currency = defaultCurrency
	}
	return &PaymentService{
		reservations: reservations,
		catalog:      catalog,
		providers:    providers,
		notifier:     notifier,
		monitor:      monitor,
		currency:     currency,
	}
}

// StartCheckout opens a payment for the order at the primary provider and
// records the provider reference on the order.
func (s *PaymentService) StartCheckout(ctx context.Context, orderID, redirectURL string) (*payment.PaymentSession, error) {
	order, err := s.catalog.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending {
		return nil, fmt.Errorf("order %s is %s: %w", order.ID, order.Status, status.ErrInvalidState)
	}

	provider, err := s.providers.Primary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrProvider, err)
	}

	session, err := provider.CreatePayment(ctx, &payment.PaymentRequest{
		OrderID:     order.ID,
		Amount:      order.Total,
		Currency:    s.currency,
		Description: fmt.Sprintf("Order %s", order.ID),
		RedirectURL: redirectURL,
	})
	if err != nil {
		slog.Error("Failed to create payment", "error", err, "order", order.ID, "provider", provider.Name())
		return nil, err
	}

	name := string(provider.Name())
	if err := s.catalog.UpdateOrder(ctx, order.ID, models.OrderUpdate{
		PaymentReference: &session.ProviderOrderID,
		PaymentProvider:  &name,
	}); err != nil {
		return nil, err
	}

	slog.Info("Checkout started", "order", order.ID, "provider", name, "provider_order_id", session.ProviderOrderID)
	return session, nil
}

// HandleStatusChange fetches the current provider state of a payment and
// applies it: paid completes the order, a terminal failure cancels a
// pending order, anything else is left for a later notification. Seat locks
// of failed payments are left for the sweeper.
func (s *PaymentService) HandleStatusChange(ctx context.Context, providerOrderID string) (payment.Status, error) {
	order, err := s.catalog.FindOrderByPaymentReference(ctx, providerOrderID)
	if err != nil {
		return "", err
	}

	provider, err := s.providerFor(order)
	if err != nil {
		return "", err
	}

	st, err := provider.GetPaymentStatus(ctx, providerOrderID)
	if err != nil {
		slog.Error("Failed to fetch payment status", "error", err, "order", order.ID, "provider_order_id", providerOrderID)
		return "", err
	}
	s.monitor.TrackPayment(string(provider.Name()), string(st))

	switch {
	case st.IsPaid():
		if err := s.reservations.CompletePayment(ctx, order.ID); err != nil {
			return st, err
		}

	case st.IsTerminalFailure():
		if order.Status != models.OrderPending {
			slog.Warn("Ignoring failed payment for settled order", "order", order.ID, "order_status", order.Status, "payment_status", st)
			return st, nil
		}
		cancelled := models.OrderCancelled
		if err := s.catalog.UpdateOrder(ctx, order.ID, models.OrderUpdate{Status: &cancelled}); err != nil {
			return st, err
		}
		slog.Info("Order cancelled after failed payment", "order", order.ID, "payment_status", st)

	default:
		return st, nil
	}

	s.notify(ctx, order.ID, st)
	return st, nil
}

func (s *PaymentService) providerFor(order *models.Order) (payment.Provider, error) {
	if order.PaymentProvider == "" {
		return s.providers.Primary()
	}
	return s.providers.Get(payment.ProviderName(order.PaymentProvider))
}

func (s *PaymentService) notify(ctx context.Context, orderID string, st payment.Status) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyPayment(ctx, orderID, st); err != nil {
		slog.Warn("Failed to notify payment result", "error", err, "order", orderID)
	}
}
