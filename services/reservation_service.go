package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"seat-reservation/internal/status"
	"seat-reservation/models"
	"seat-reservation/monitoring"

	"github.com/google/uuid"
)

const defaultMaxRetries = 5

// ReservationService owns every mutation of seat locks. Each mutation reads
// the seat map, computes the new seats and writes them back with a version
// check, retrying when another writer got there first.
type ReservationService struct {
	store     SeatMapStore
	catalog   Catalog
	publisher SeatEventPublisher
	monitor   *monitoring.Monitor
	now       func() time.Time

	maxRetries      int
	maxLockDuration time.Duration
	retryBackoff    time.Duration

	seatMapLocks *keyedMutex
}

type ReservationOption func(*ReservationService)

func WithClock(now func() time.Time) ReservationOption {
	return func(s *ReservationService) { s.now = now }
}

func WithPublisher(p SeatEventPublisher) ReservationOption {
	return func(s *ReservationService) { s.publisher = p }
}

func WithMonitor(m *monitoring.Monitor) ReservationOption {
	return func(s *ReservationService) { s.monitor = m }
}

// WithMaxRetries bounds how many times a mutation is retried after a
// version conflict.
func WithMaxRetries(n int) ReservationOption {
	return func(s *ReservationService) { s.maxRetries = n }
}

// WithMaxLockDuration clamps requested lock durations. Zero disables the clamp.
func WithMaxLockDuration(d time.Duration) ReservationOption {
	return func(s *ReservationService) { s.maxLockDuration = d }
}

func WithRetryBackoff(d time.Duration) ReservationOption {
	return func(s *ReservationService) { s.retryBackoff = d }
}

func NewReservationService(store SeatMapStore, catalog Catalog, opts ...ReservationOption) *ReservationService {
	s := &ReservationService{
		store:        store,
		catalog:      catalog,
		now:          time.Now,
		maxRetries:   defaultMaxRetries,
		retryBackoff: 10 * time.Millisecond,
		seatMapLocks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LockSeats locks the listed seats of the event for lockDuration and returns
// the ids that were locked. Seats sold for this event and ids not present in
// the seat map are skipped; locks held by other events are left alone.
func (s *ReservationService) LockSeats(ctx context.Context, eventSlug string, seatIDs []models.SeatID, lockDuration time.Duration) (locked []models.SeatID, err error) {
	defer func() { s.monitor.TrackSeatOperation("lock", err) }()

	if lockDuration <= 0 {
		return nil, fmt.Errorf("lock duration must be positive, got %s: %w", lockDuration, status.ErrInvalidArgument)
	}
	if s.maxLockDuration > 0 && lockDuration > s.maxLockDuration {
		lockDuration = s.maxLockDuration
	}

	event, seatMapID, err := s.resolveEvent(ctx, eventSlug)
	if err != nil {
		return nil, err
	}

	wanted := uniqueSeatIDs(seatIDs)
	var lockedUntil time.Time

	changed, err := s.mutate(ctx, seatMapID, func(sm *models.SeatMap) ([]*models.Seat, error) {
		paid, err := s.catalog.PaidSeats(ctx, event.ID)
		if err != nil {
			return nil, err
		}

		lockedUntil = s.now().Add(lockDuration)

		var changed []*models.Seat
		for _, id := range wanted {
			seat, ok := sm.Seats[id]
			if !ok || paid[id] {
				continue
			}
			seat.SetLock(models.Lock{EventID: event.ID, LockedUntil: lockedUntil})
			changed = append(changed, seat)
		}
		return changed, nil
	})
	if err != nil {
		slog.Error("Failed to lock seats", "error", err, "event", eventSlug, "seat_map", seatMapID)
		return nil, err
	}

	locked = seatIDsOf(changed)
	s.monitor.TrackSeats("locked", len(locked))
	s.monitor.TrackSeatLock(lockDuration)
	s.publish(ctx, models.SeatEvent{
		Type:        models.SeatEventLocked,
		EventID:     event.ID,
		SeatMapID:   seatMapID,
		SeatIDs:     locked,
		LockedUntil: &lockedUntil,
	})

	return locked, nil
}

// GetLockedSeats lists the seats that are unavailable for the event: sold,
// or carrying an unexpired lock for this event.
func (s *ReservationService) GetLockedSeats(ctx context.Context, eventSlug string) ([]models.SeatID, error) {
	states, order, err := s.seatStates(ctx, eventSlug)
	if err != nil {
		return nil, err
	}

	locked := []models.SeatID{}
	for _, id := range order {
		if states[id] != models.SeatAvailable {
			locked = append(locked, id)
		}
	}
	return locked, nil
}

// SeatAvailability reports available, locked or sold for every seat of the
// event's seat map.
func (s *ReservationService) SeatAvailability(ctx context.Context, eventSlug string) (map[models.SeatID]string, error) {
	states, _, err := s.seatStates(ctx, eventSlug)
	return states, err
}

func (s *ReservationService) seatStates(ctx context.Context, eventSlug string) (map[models.SeatID]string, []models.SeatID, error) {
	event, seatMapID, err := s.resolveEvent(ctx, eventSlug)
	if err != nil {
		return nil, nil, err
	}

	sm, err := s.store.GetSeatMap(ctx, seatMapID)
	if err != nil {
		return nil, nil, err
	}

	paid, err := s.catalog.PaidSeats(ctx, event.ID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	order := sm.SortedSeatIDs()
	states := make(map[models.SeatID]string, len(order))
	for _, id := range order {
		switch {
		case paid[id]:
			states[id] = models.SeatSold
		case hasActiveLock(sm.Seats[id], event.ID, now):
			states[id] = models.SeatLocked
		default:
			states[id] = models.SeatAvailable
		}
	}
	return states, order, nil
}

// UnlockSeats drops the event's locks on the listed seats unless the seat
// has been paid for. It returns the ids that were released.
func (s *ReservationService) UnlockSeats(ctx context.Context, eventSlug string, seatIDs []models.SeatID) (released []models.SeatID, err error) {
	defer func() { s.monitor.TrackSeatOperation("unlock", err) }()

	event, seatMapID, err := s.resolveEvent(ctx, eventSlug)
	if err != nil {
		return nil, err
	}

	wanted := uniqueSeatIDs(seatIDs)

	changed, err := s.mutate(ctx, seatMapID, func(sm *models.SeatMap) ([]*models.Seat, error) {
		paid, err := s.catalog.PaidSeats(ctx, event.ID)
		if err != nil {
			return nil, err
		}

		var changed []*models.Seat
		for _, id := range wanted {
			seat, ok := sm.Seats[id]
			if !ok || paid[id] {
				continue
			}
			if seat.DropLocks(event.ID) > 0 {
				changed = append(changed, seat)
			}
		}
		return changed, nil
	})
	if err != nil {
		slog.Error("Failed to unlock seats", "error", err, "event", eventSlug, "seat_map", seatMapID)
		return nil, err
	}

	released = seatIDsOf(changed)
	s.monitor.TrackSeats("released", len(released))
	s.publish(ctx, models.SeatEvent{
		Type:      models.SeatEventReleased,
		EventID:   event.ID,
		SeatMapID: seatMapID,
		SeatIDs:   released,
	})

	return released, nil
}

// CompletePayment marks the order and its tickets paid and pins every
// ticketed seat until its event is over. Running it again for the same order
// leaves the same state.
func (s *ReservationService) CompletePayment(ctx context.Context, orderID string) (err error) {
	defer func() { s.monitor.TrackSeatOperation("complete_payment", err) }()

	order, err := s.catalog.FindOrder(ctx, orderID)
	if err != nil {
		return err
	}

	tickets, err := s.catalog.FindTicketsByOrder(ctx, order.ID)
	if err != nil {
		return err
	}

	type eventSeats struct {
		event     *models.Event
		seatMapID string
		seats     []models.SeatID
	}

	// Resolve everything before writing so broken references leave no trace.
	var byEvent []*eventSeats
	index := make(map[string]*eventSeats)
	ticketIDs := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ticketIDs = append(ticketIDs, t.ID)

		group, ok := index[t.Event.ID]
		if !ok {
			event, err := s.ticketEvent(ctx, t)
			if err != nil {
				return err
			}
			if event.SeatMap.ID == "" {
				return fmt.Errorf("%w: event %s", status.ErrSeatMapMissing, event.Slug)
			}
			group = &eventSeats{event: event, seatMapID: event.SeatMap.ID}
			index[t.Event.ID] = group
			byEvent = append(byEvent, group)
		}
		group.seats = append(group.seats, t.SeatID())
	}

	if !order.IsPaid() {
		paid := models.OrderPaid
		if err := s.catalog.UpdateOrder(ctx, order.ID, models.OrderUpdate{Status: &paid}); err != nil {
			return fmt.Errorf("mark order %s paid: %w", order.ID, err)
		}
	}
	if err := s.catalog.MarkTicketsPaid(ctx, ticketIDs); err != nil {
		return err
	}

	for _, group := range byEvent {
		holdUntil := group.event.HoldUntil()
		wanted := uniqueSeatIDs(group.seats)

		changed, err := s.mutate(ctx, group.seatMapID, func(sm *models.SeatMap) ([]*models.Seat, error) {
			var changed []*models.Seat
			for _, id := range wanted {
				seat, ok := sm.Seats[id]
				if !ok {
					slog.Warn("Paid seat missing from seat map", "order", order.ID, "seat_map", sm.ID, "seat", id)
					continue
				}
				if heldUntil(seat, group.event.ID, holdUntil) {
					continue
				}
				seat.SetLock(models.Lock{EventID: group.event.ID, LockedUntil: holdUntil})
				changed = append(changed, seat)
			}
			return changed, nil
		})
		if err != nil {
			slog.Error("Failed to hold paid seats", "error", err, "order", order.ID, "event", group.event.ID)
			return err
		}

		slog.Debug("Held paid seats", "order", order.ID, "event", group.event.ID, "written", len(changed))
		s.monitor.TrackSeats("sold", len(wanted))
		s.publish(ctx, models.SeatEvent{
			Type:        models.SeatEventSold,
			EventID:     group.event.ID,
			SeatMapID:   group.seatMapID,
			SeatIDs:     wanted,
			LockedUntil: &holdUntil,
			OrderID:     order.ID,
		})
	}

	slog.Info("Payment completed", "order", order.ID, "tickets", len(tickets))
	return nil
}

// ReleaseUnpaidLocks drops the event's locks that are not backed by a paid
// ticket. With expiredOnly set, unexpired locks are kept.
func (s *ReservationService) ReleaseUnpaidLocks(ctx context.Context, event *models.Event, expiredOnly bool) (int, error) {
	if event.SeatMap.ID == "" {
		return 0, fmt.Errorf("%w: event %s", status.ErrSeatMapMissing, event.Slug)
	}

	changed, err := s.mutate(ctx, event.SeatMap.ID, func(sm *models.SeatMap) ([]*models.Seat, error) {
		paid, err := s.catalog.PaidSeats(ctx, event.ID)
		if err != nil {
			return nil, err
		}

		now := s.now()
		var changed []*models.Seat
		for _, id := range sm.SortedSeatIDs() {
			seat := sm.Seats[id]
			if paid[id] {
				continue
			}
			l, ok := seat.LockFor(event.ID)
			if !ok || (expiredOnly && l.Active(now)) {
				continue
			}
			seat.DropLocks(event.ID)
			changed = append(changed, seat)
		}
		return changed, nil
	})
	if err != nil {
		return 0, err
	}

	if len(changed) > 0 {
		s.publish(ctx, models.SeatEvent{
			Type:      models.SeatEventReleased,
			EventID:   event.ID,
			SeatMapID: event.SeatMap.ID,
			SeatIDs:   seatIDsOf(changed),
		})
	}
	return len(changed), nil
}

func (s *ReservationService) resolveEvent(ctx context.Context, slug string) (*models.Event, string, error) {
	event, err := s.catalog.FindEventBySlug(ctx, slug)
	if err != nil {
		return nil, "", err
	}
	if event.SeatMap.ID == "" {
		return nil, "", fmt.Errorf("%w: event %s", status.ErrSeatMapMissing, slug)
	}
	return event, event.SeatMap.ID, nil
}

func (s *ReservationService) ticketEvent(ctx context.Context, t *models.Ticket) (*models.Event, error) {
	if t.Event.IsExpanded() {
		return t.Event.Value, nil
	}
	if t.Event.ID == "" {
		return nil, fmt.Errorf("%w: ticket %s has no event", status.ErrEventNotFound, t.ID)
	}
	return s.catalog.FindEvent(ctx, t.Event.ID)
}

// mutate runs compute against a fresh copy of the seat map and writes back
// the seats it returns. compute may run several times and must derive its
// result from the map it is given.
func (s *ReservationService) mutate(ctx context.Context, seatMapID string, compute func(*models.SeatMap) ([]*models.Seat, error)) ([]*models.Seat, error) {
	unlock := s.seatMapLocks.Lock(seatMapID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		sm, err := s.store.GetSeatMap(ctx, seatMapID)
		if err != nil {
			return nil, err
		}

		changed, err := compute(sm)
		if err != nil {
			return nil, err
		}
		if len(changed) == 0 {
			return nil, nil
		}

		_, err = s.store.UpdateSeats(ctx, seatMapID, sm.Version, changed)
		if err == nil {
			return changed, nil
		}
		if !errors.Is(err, status.ErrVersionConflict) {
			return nil, err
		}

		s.monitor.TrackVersionConflict()
		if attempt >= s.maxRetries {
			return nil, err
		}

		slog.Debug("Seat map version conflict, retrying", "seat_map", seatMapID, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * s.retryBackoff):
		}
	}
}

func (s *ReservationService) publish(ctx context.Context, event models.SeatEvent) {
	if s.publisher == nil || len(event.SeatIDs) == 0 {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = s.now()
	if err := s.publisher.PublishSeatEvent(ctx, event); err != nil {
		slog.Warn("Failed to publish seat event", "error", err, "type", event.Type, "event_id", event.EventID)
	}
}

func hasActiveLock(seat *models.Seat, eventID string, now time.Time) bool {
	for _, l := range seat.Locks {
		if l.EventID == eventID && l.Active(now) {
			return true
		}
	}
	return false
}

// heldUntil reports whether the seat's only lock for eventID already ends at t.
func heldUntil(seat *models.Seat, eventID string, t time.Time) bool {
	n := 0
	held := false
	for _, l := range seat.Locks {
		if l.EventID == eventID {
			n++
			held = l.LockedUntil.Equal(t)
		}
	}
	return n == 1 && held
}

func uniqueSeatIDs(ids []models.SeatID) []models.SeatID {
	seen := make(map[models.SeatID]bool, len(ids))
	out := make([]models.SeatID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func seatIDsOf(seats []*models.Seat) []models.SeatID {
	ids := make([]models.SeatID, 0, len(seats))
	for _, seat := range seats {
		ids = append(ids, seat.ID())
	}
	sort.Strings(ids)
	return ids
}
