package payment

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"seat-reservation/internal/status"

	"github.com/google/uuid"
)

// SimulatedProvider keeps payments in memory. Status changes come from
// SetStatus, which the development-only simulate endpoint calls.
type SimulatedProvider struct {
	mu       sync.RWMutex
	payments map[string]Status
	checkout string
}

func NewSimulatedProvider(checkoutURL string) *SimulatedProvider {
	return &SimulatedProvider{
		payments: make(map[string]Status),
		checkout: checkoutURL,
	}
}

func (p *SimulatedProvider) Name() ProviderName {
	return ProviderSimulated
}

func (p *SimulatedProvider) CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentSession, error) {
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("amount %s: %w", req.Amount, status.ErrInvalidArgument)
	}

	id := "sim_" + uuid.NewString()

	p.mu.Lock()
	p.payments[id] = StatusOpen
	p.mu.Unlock()

	redirect := req.RedirectURL
	if p.checkout != "" {
		redirect = fmt.Sprintf("%s?id=%s&return=%s", p.checkout, url.QueryEscape(id), url.QueryEscape(req.RedirectURL))
	}

	return &PaymentSession{ProviderOrderID: id, RedirectURL: redirect}, nil
}

func (p *SimulatedProvider) GetPaymentStatus(ctx context.Context, providerOrderID string) (Status, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.payments[providerOrderID]
	if !ok {
		return "", fmt.Errorf("simulated payment %s: %w", providerOrderID, status.ErrNotFound)
	}
	return s, nil
}

// SetStatus moves a simulated payment to s.
func (p *SimulatedProvider) SetStatus(providerOrderID string, s Status) error {
	if !s.Valid() {
		return fmt.Errorf("payment status %q: %w", s, status.ErrInvalidArgument)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.payments[providerOrderID]; !ok {
		return fmt.Errorf("simulated payment %s: %w", providerOrderID, status.ErrNotFound)
	}
	p.payments[providerOrderID] = s
	return nil
}
