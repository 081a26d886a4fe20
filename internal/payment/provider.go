package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProviderName identifies a registered payment provider.
type ProviderName string

const (
	ProviderSimulated ProviderName = "simulated"
)

// Status is a payment state as reported by a provider.
type Status string

const (
	StatusOpen       Status = "open"
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusAuthorized Status = "authorized"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// IsPaid reports whether the money is secured. Authorized counts as paid.
func (s Status) IsPaid() bool {
	return s == StatusPaid || s == StatusAuthorized
}

// IsTerminalFailure reports whether the payment can no longer succeed.
func (s Status) IsTerminalFailure() bool {
	switch s {
	case StatusCancelled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusPending, StatusPaid, StatusAuthorized,
		StatusCancelled, StatusExpired, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// PaymentRequest describes a checkout for one order.
type PaymentRequest struct {
	OrderID     string          `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	RedirectURL string          `json:"redirect_url"`
	WebhookURL  string          `json:"webhook_url,omitempty"`
}

// PaymentSession is what the buyer is sent to.
type PaymentSession struct {
	ProviderOrderID string `json:"provider_order_id"`
	RedirectURL     string `json:"redirect_url"`
}

// Provider is an external payment service. Implementations report status by
// provider order id and never touch orders or seats themselves.
type Provider interface {
	Name() ProviderName
	CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentSession, error)
	GetPaymentStatus(ctx context.Context, providerOrderID string) (Status, error)
}
