package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Ticket struct {
	ID         string          `json:"id"`
	Event      Ref[Event]      `json:"event"`
	Order      Ref[Order]      `json:"order"`
	SeatRow    string          `json:"seatRow"`
	SeatNumber int             `json:"seatNumber"`
	Status     string          `json:"status"` // pending, valid, paid, scanned, refunded, cancelled
	Price      decimal.Decimal `json:"price"`
}

const (
	TicketPending   = "pending"
	TicketValid     = "valid"
	TicketPaid      = "paid"
	TicketScanned   = "scanned"
	TicketRefunded  = "refunded"
	TicketCancelled = "cancelled"
)

func (t *Ticket) SeatID() SeatID {
	return FormatSeatID(t.SeatRow, t.SeatNumber)
}

type AddOnSelection struct {
	AddOnID  string          `json:"addOn"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type Order struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"` // pending, paid, cancelled, refunded
	PaymentReference string           `json:"paymentReference,omitempty"`
	PaymentProvider  string           `json:"paymentProvider,omitempty"`
	Total            decimal.Decimal  `json:"total"`
	Tickets          []Ref[Ticket]    `json:"tickets,omitempty"`
	AddOns           []AddOnSelection `json:"addOns,omitempty"`
	Created          time.Time        `json:"createdAt"`
	Updated          time.Time        `json:"updatedAt"`
}

const (
	OrderPending   = "pending"
	OrderPaid      = "paid"
	OrderCancelled = "cancelled"
	OrderRefunded  = "refunded"
)

func (o *Order) IsPaid() bool {
	return o.Status == OrderPaid
}

// OrderUpdate carries the fields a caller wants to change; nil fields are left alone.
type OrderUpdate struct {
	Status           *string
	PaymentReference *string
	PaymentProvider  *string
}
