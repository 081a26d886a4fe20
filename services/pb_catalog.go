package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"seat-reservation/internal/status"
	"seat-reservation/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

const (
	eventsCollection  = "events"
	ordersCollection  = "orders"
	ticketsCollection = "tickets"
)

// PocketBaseCatalog reads events, orders and tickets from the PocketBase
// collections created by the migrations package.
type PocketBaseCatalog struct {
	app core.App
}

func NewPocketBaseCatalog(app core.App) *PocketBaseCatalog {
	return &PocketBaseCatalog{app: app}
}

func (c *PocketBaseCatalog) FindEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	record, err := c.app.FindFirstRecordByFilter(eventsCollection, "slug = {:slug}", dbx.Params{"slug": slug})
	if err != nil {
		return nil, notFound(err, status.ErrEventNotFound, slug)
	}
	return eventFromRecord(record), nil
}

func (c *PocketBaseCatalog) FindEvent(ctx context.Context, id string) (*models.Event, error) {
	record, err := c.app.FindRecordById(eventsCollection, id)
	if err != nil {
		return nil, notFound(err, status.ErrEventNotFound, id)
	}
	return eventFromRecord(record), nil
}

func (c *PocketBaseCatalog) ListPublishedEvents(ctx context.Context) ([]*models.Event, error) {
	records, err := c.app.FindRecordsByFilter(
		eventsCollection,
		"status = {:status}",
		"start_date",
		0,
		0,
		dbx.Params{"status": models.EventPublished},
	)
	if err != nil {
		return nil, fmt.Errorf("list published events: %w", err)
	}

	events := make([]*models.Event, 0, len(records))
	for _, r := range records {
		events = append(events, eventFromRecord(r))
	}
	return events, nil
}

func (c *PocketBaseCatalog) PaidSeats(ctx context.Context, eventID string) (map[models.SeatID]bool, error) {
	records, err := c.app.FindRecordsByFilter(
		ticketsCollection,
		"event = {:event} && order.status = {:paid}",
		"",
		0,
		0,
		dbx.Params{"event": eventID, "paid": models.OrderPaid},
	)
	if err != nil {
		return nil, fmt.Errorf("paid seats for event %s: %w", eventID, err)
	}

	paid := make(map[models.SeatID]bool, len(records))
	for _, r := range records {
		paid[models.FormatSeatID(r.GetString("seat_row"), r.GetInt("seat_number"))] = true
	}
	return paid, nil
}

func (c *PocketBaseCatalog) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	record, err := c.app.FindRecordById(ordersCollection, id)
	if err != nil {
		return nil, notFound(err, status.ErrOrderNotFound, id)
	}
	return orderFromRecord(record), nil
}

func (c *PocketBaseCatalog) FindOrderByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	record, err := c.app.FindFirstRecordByFilter(
		ordersCollection,
		"payment_reference = {:ref}",
		dbx.Params{"ref": reference},
	)
	if err != nil {
		return nil, notFound(err, status.ErrOrderNotFound, reference)
	}
	return orderFromRecord(record), nil
}

func (c *PocketBaseCatalog) FindTicketsByOrder(ctx context.Context, orderID string) ([]*models.Ticket, error) {
	records, err := c.app.FindRecordsByFilter(
		ticketsCollection,
		"order = {:order}",
		"seat_row,seat_number",
		0,
		0,
		dbx.Params{"order": orderID},
	)
	if err != nil {
		return nil, fmt.Errorf("tickets for order %s: %w", orderID, err)
	}

	tickets := make([]*models.Ticket, 0, len(records))
	for _, r := range records {
		tickets = append(tickets, ticketFromRecord(r))
	}
	return tickets, nil
}

func (c *PocketBaseCatalog) UpdateOrder(ctx context.Context, id string, update models.OrderUpdate) error {
	record, err := c.app.FindRecordById(ordersCollection, id)
	if err != nil {
		return notFound(err, status.ErrOrderNotFound, id)
	}

	if update.Status != nil {
		record.Set("status", *update.Status)
	}
	if update.PaymentReference != nil {
		record.Set("payment_reference", *update.PaymentReference)
	}
	if update.PaymentProvider != nil {
		record.Set("payment_provider", *update.PaymentProvider)
	}

	return c.app.SaveWithContext(ctx, record)
}

func (c *PocketBaseCatalog) MarkTicketsPaid(ctx context.Context, ticketIDs []string) error {
	return c.app.RunInTransaction(func(txApp core.App) error {
		for _, id := range ticketIDs {
			record, err := txApp.FindRecordById(ticketsCollection, id)
			if err != nil {
				return notFound(err, status.ErrTicketNotFound, id)
			}
			if record.GetString("status") == models.TicketPaid {
				continue
			}
			record.Set("status", models.TicketPaid)
			if err := txApp.SaveWithContext(ctx, record); err != nil {
				return fmt.Errorf("mark ticket %s paid: %w", id, err)
			}
		}
		return nil
	})
}

func notFound(err error, sentinel error, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", sentinel, key)
	}
	return err
}

func eventFromRecord(r *core.Record) *models.Event {
	e := &models.Event{
		ID:      r.Id,
		Slug:    r.GetString("slug"),
		Name:    r.GetString("name"),
		ShopID:  r.GetString("shop"),
		SeatMap: models.RefID[models.SeatMap](r.GetString("seat_map")),
		Start:   r.GetDateTime("start_date").Time(),
		Status:  r.GetString("status"),
	}
	if end := r.GetDateTime("end_date"); !end.IsZero() {
		t := end.Time()
		e.End = &t
	}
	return e
}

func orderFromRecord(r *core.Record) *models.Order {
	o := &models.Order{
		ID:               r.Id,
		Status:           r.GetString("status"),
		PaymentReference: r.GetString("payment_reference"),
		PaymentProvider:  r.GetString("payment_provider"),
		Total:            decimal.NewFromFloat(r.GetFloat("total")),
		Created:          r.GetDateTime("created").Time(),
		Updated:          r.GetDateTime("updated").Time(),
	}
	if err := r.UnmarshalJSONField("add_ons", &o.AddOns); err != nil {
		slog.Warn("Invalid order add-ons", "order", r.Id, "error", err)
	}
	return o
}

func ticketFromRecord(r *core.Record) *models.Ticket {
	return &models.Ticket{
		ID:         r.Id,
		Event:      models.RefID[models.Event](r.GetString("event")),
		Order:      models.RefID[models.Order](r.GetString("order")),
		SeatRow:    r.GetString("seat_row"),
		SeatNumber: r.GetInt("seat_number"),
		Status:     r.GetString("status"),
		Price:      decimal.NewFromFloat(r.GetFloat("price")),
	}
}
