package payment

import (
	"context"
	"errors"
	"fmt"

	"seat-reservation/internal/status"
	"seat-reservation/utils"
)

// BreakerProvider guards a provider with a circuit breaker. Errors from the
// provider (and from an open breaker) come back wrapped in status.ErrProvider.
type BreakerProvider struct {
	next    Provider
	breaker *utils.CircuitBreaker
}

func NewBreakerProvider(next Provider, opts ...utils.BreakerOption) *BreakerProvider {
	return &BreakerProvider{
		next:    next,
		breaker: utils.NewCircuitBreaker("payment-"+string(next.Name()), opts...),
	}
}

func (p *BreakerProvider) Name() ProviderName {
	return p.next.Name()
}

func (p *BreakerProvider) Breaker() *utils.CircuitBreaker {
	return p.breaker
}

func (p *BreakerProvider) CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentSession, error) {
	res, err := p.breaker.Execute(ctx, func() (any, error) {
		return p.next.CreatePayment(ctx, req)
	})
	if err != nil {
		return nil, p.wrap("create payment", err)
	}
	return res.(*PaymentSession), nil
}

func (p *BreakerProvider) GetPaymentStatus(ctx context.Context, providerOrderID string) (Status, error) {
	res, err := p.breaker.Execute(ctx, func() (any, error) {
		return p.next.GetPaymentStatus(ctx, providerOrderID)
	})
	if err != nil {
		return "", p.wrap("payment status "+providerOrderID, err)
	}
	return res.(Status), nil
}

// wrap keeps caller errors (unknown payment, bad input) as they are.
func (p *BreakerProvider) wrap(op string, err error) error {
	if errors.Is(err, status.ErrNotFound) || errors.Is(err, status.ErrInvalidArgument) || errors.Is(err, status.ErrProvider) {
		return err
	}
	return fmt.Errorf("%s %s: %w: %w", p.next.Name(), op, status.ErrProvider, err)
}
