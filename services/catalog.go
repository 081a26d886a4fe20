package services

import (
	"context"

	"seat-reservation/models"
)

// Catalog is the read/write surface the engine needs from the CMS data layer.
// Relationship fields come back as ids; callers resolve them explicitly.
type Catalog interface {
	FindEventBySlug(ctx context.Context, slug string) (*models.Event, error)
	FindEvent(ctx context.Context, id string) (*models.Event, error)
	ListPublishedEvents(ctx context.Context) ([]*models.Event, error)

	// PaidSeats returns the seats of eventID that carry a ticket whose order is paid.
	PaidSeats(ctx context.Context, eventID string) (map[models.SeatID]bool, error)

	FindOrder(ctx context.Context, id string) (*models.Order, error)
	FindOrderByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	FindTicketsByOrder(ctx context.Context, orderID string) ([]*models.Ticket, error)
	UpdateOrder(ctx context.Context, id string, update models.OrderUpdate) error
	MarkTicketsPaid(ctx context.Context, ticketIDs []string) error
}
