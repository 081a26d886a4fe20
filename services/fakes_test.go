package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"seat-reservation/internal/status"
	"seat-reservation/models"
)

type memStore struct {
	mu       sync.Mutex
	maps     map[string]*models.SeatMap
	writes   int
	conflict int // number of upcoming UpdateSeats calls that lose the race
	failGet  map[string]error
}

func newMemStore(maps ...*models.SeatMap) *memStore {
	s := &memStore{maps: make(map[string]*models.SeatMap), failGet: make(map[string]error)}
	for _, sm := range maps {
		s.maps[sm.ID] = sm.Clone()
	}
	return s
}

func (s *memStore) GetSeatMap(ctx context.Context, id string) (*models.SeatMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failGet[id]; err != nil {
		return nil, err
	}
	sm, ok := s.maps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", status.ErrSeatMapNotFound, id)
	}
	return sm.Clone(), nil
}

func (s *memStore) UpdateSeats(ctx context.Context, id string, expectedVersion int64, seats []*models.Seat) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sm, ok := s.maps[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", status.ErrSeatMapNotFound, id)
	}
	if s.conflict > 0 {
		s.conflict--
		sm.Version++
	}
	if sm.Version != expectedVersion {
		return 0, fmt.Errorf("%w: %s", status.ErrVersionConflict, id)
	}
	for _, seat := range seats {
		sm.Seats[seat.ID()] = seat.Clone()
	}
	sm.Version++
	s.writes++
	return sm.Version, nil
}

func (s *memStore) seat(mapID string, id models.SeatID) *models.Seat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maps[mapID].Seats[id].Clone()
}

type fakeCatalog struct {
	mu      sync.Mutex
	events  map[string]*models.Event
	orders  map[string]*models.Order
	tickets map[string]*models.Ticket

	listErr error
	paidErr map[string]error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		events:  make(map[string]*models.Event),
		orders:  make(map[string]*models.Order),
		tickets: make(map[string]*models.Ticket),
		paidErr: make(map[string]error),
	}
}

func (c *fakeCatalog) addEvent(e *models.Event) *models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[e.ID] = e
	return e
}

func (c *fakeCatalog) addOrder(o *models.Order, tickets ...*models.Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[o.ID] = o
	for _, t := range tickets {
		t.Order = models.RefID[models.Order](o.ID)
		c.tickets[t.ID] = t
	}
}

func (c *fakeCatalog) FindEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Slug == slug {
			dup := *e
			return &dup, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", status.ErrEventNotFound, slug)
}

func (c *fakeCatalog) FindEvent(ctx context.Context, id string) (*models.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", status.ErrEventNotFound, id)
	}
	dup := *e
	return &dup, nil
}

func (c *fakeCatalog) ListPublishedEvents(ctx context.Context) ([]*models.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []*models.Event
	for _, e := range c.events {
		if e.Status == models.EventPublished {
			dup := *e
			out = append(out, &dup)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *fakeCatalog) PaidSeats(ctx context.Context, eventID string) (map[models.SeatID]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.paidErr[eventID]; err != nil {
		return nil, err
	}
	paid := make(map[models.SeatID]bool)
	for _, t := range c.tickets {
		if t.Event.ID != eventID {
			continue
		}
		if o, ok := c.orders[t.Order.ID]; ok && o.IsPaid() {
			paid[t.SeatID()] = true
		}
	}
	return paid, nil
}

func (c *fakeCatalog) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", status.ErrOrderNotFound, id)
	}
	dup := *o
	return &dup, nil
}

func (c *fakeCatalog) FindOrderByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range c.orders {
		if o.PaymentReference == reference {
			dup := *o
			return &dup, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", status.ErrOrderNotFound, reference)
}

func (c *fakeCatalog) FindTicketsByOrder(ctx context.Context, orderID string) ([]*models.Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*models.Ticket
	for _, t := range c.tickets {
		if t.Order.ID == orderID {
			dup := *t
			out = append(out, &dup)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *fakeCatalog) UpdateOrder(ctx context.Context, id string, update models.OrderUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", status.ErrOrderNotFound, id)
	}
	if update.Status != nil {
		o.Status = *update.Status
	}
	if update.PaymentReference != nil {
		o.PaymentReference = *update.PaymentReference
	}
	if update.PaymentProvider != nil {
		o.PaymentProvider = *update.PaymentProvider
	}
	return nil
}

func (c *fakeCatalog) MarkTicketsPaid(ctx context.Context, ticketIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ticketIDs {
		t, ok := c.tickets[id]
		if !ok {
			return fmt.Errorf("%w: %s", status.ErrTicketNotFound, id)
		}
		t.Status = models.TicketPaid
	}
	return nil
}

func (c *fakeCatalog) order(id string) models.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.orders[id]
}

func (c *fakeCatalog) ticket(id string) models.Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.tickets[id]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SeatEvent
	err    error
}

func (p *recordingPublisher) PublishSeatEvent(ctx context.Context, e models.SeatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newSeat(row string, number int) *models.Seat {
	return &models.Seat{Row: row, Number: number, Locks: []models.Lock{}}
}
