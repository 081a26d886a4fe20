package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"seat-reservation/internal/status"
	"seat-reservation/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type reservationFixture struct {
	store     *memStore
	catalog   *fakeCatalog
	clock     *testClock
	publisher *recordingPublisher
	svc       *ReservationService
	evt1      *models.Event
	evt2      *models.Event
}

// newReservationFixture builds one venue shared by two events.
func newReservationFixture(t *testing.T, opts ...ReservationOption) *reservationFixture {
	t.Helper()

	venue := models.NewSeatMap("map1", newSeat("A", 1), newSeat("A", 2), newSeat("B", 1), newSeat("BALC-L", 3))

	f := &reservationFixture{
		store:     newMemStore(venue),
		catalog:   newFakeCatalog(),
		clock:     &testClock{now: baseTime},
		publisher: &recordingPublisher{},
	}

	end := baseTime.Add(48 * time.Hour)
	f.evt1 = f.catalog.addEvent(&models.Event{
		ID: "evt1", Slug: "concert", Status: models.EventPublished,
		SeatMap: models.RefID[models.SeatMap]("map1"),
		Start:   baseTime.Add(44 * time.Hour), End: &end,
	})
	f.evt2 = f.catalog.addEvent(&models.Event{
		ID: "evt2", Slug: "matinee", Status: models.EventPublished,
		SeatMap: models.RefID[models.SeatMap]("map1"),
		Start:   baseTime.Add(24 * time.Hour),
	})

	opts = append([]ReservationOption{
		WithClock(f.clock.Now),
		WithPublisher(f.publisher),
		WithRetryBackoff(time.Millisecond),
	}, opts...)
	f.svc = NewReservationService(f.store, f.catalog, opts...)
	return f
}

// payFor records a paid order with a ticket for seat on event.
func (f *reservationFixture) payFor(orderID, ticketID string, event *models.Event, row string, number int) {
	f.catalog.addOrder(&models.Order{ID: orderID, Status: models.OrderPaid}, &models.Ticket{
		ID: ticketID, Event: models.RefID[models.Event](event.ID), SeatRow: row, SeatNumber: number,
		Status: models.TicketPaid,
	})
}

func TestLockSeats_ThenLockedSeatsIncludesThem(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()

	locked, err := f.svc.LockSeats(ctx, "concert", []string{"A-1", "BALC-L-3"}, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "BALC-L-3"}, locked)

	got, err := f.svc.GetLockedSeats(ctx, "concert")
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "BALC-L-3"}, got)

	l, ok := f.store.seat("map1", "A-1").LockFor("evt1")
	require.True(t, ok)
	assert.Equal(t, baseTime.Add(10*time.Minute), l.LockedUntil)
}

func TestLockSeats_UnlistedSeatsUntouched(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSeats(ctx, "concert", []string{"A-1"}, time.Minute)
	require.NoError(t, err)

	assert.Empty(t, f.store.seat("map1", "A-2").Locks)
	assert.Empty(t, f.store.seat("map1", "B-1").Locks)
}

func TestLockSeats_UnknownSeatsIgnored(t *testing.T) {
	f := newReservationFixture(t)

	locked, err := f.svc.LockSeats(context.Background(), "concert", []string{"Z-99"}, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, locked)
	assert.Equal(t, 0, f.store.writes)
}

func TestLockSeats_TwiceKeepsOneLockFromSecondCall(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSeats(ctx, "concert", []string{"A-1"}, 10*time.Minute)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.svc.LockSeats(ctx, "concert", []string{"A-1", "A-1"}, 5*time.Minute)
	require.NoError(t, err)

	seat := f.store.seat("map1", "A-1")
	require.Len(t, seat.Locks, 1)
	assert.Equal(t, "evt1", seat.Locks[0].EventID)
	assert.Equal(t, baseTime.Add(6*time.Minute), seat.Locks[0].LockedUntil)
}

func TestLockSeats_PaidSeatIsNotLockable(t *testing.T) {
	f := newReservationFixture(t)
	f.payFor("o1", "t1", f.evt1, "A", 1)

	locked, err := f.svc.LockSeats(context.Background(), "concert", []string{"A-1", "A-2"}, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, []string{"A-2"}, locked)
	assert.Empty(t, f.store.seat("map1", "A-1").Locks)
}

func TestLockSeats_EventsAreIndependent(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSeats(ctx, "concert", []string{"A-1"}, 10*time.Minute)
	require.NoError(t, err)

	got, err := f.svc.GetLockedSeats(ctx, "matinee")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.svc.LockSeats(ctx, "matinee", []string{"A-1"}, 10*time.Minute)
	require.NoError(t, err)

	seat := f.store.seat("map1", "A-1")
	assert.Len(t, seat.Locks, 2)

	_, err = f.svc.UnlockSeats(ctx, "matinee", []string{"A-1"})
	require.NoError(t, err)

	got, err = f.svc.GetLockedSeats(ctx, "concert")
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1"}, got)
}

func TestLockSeats_PaidTicketOnOtherEventDoesNotBlock(t *testing.T) {
	f := newReservationFixture(t)
	f.payFor("o1", "t1", f.evt2, "A", 1)

	locked, err := f.svc.LockSeats(context.Background(), "concert", []string{"A-1"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1"}, locked)
}

func TestLockSeats_InvalidDuration(t *testing.T) {
	f := newReservationFixture(t)

	for _, d := range []time.Duration{0, -time.Second} {
		_, err := f.svc.LockSeats(context.Background(), "concert", []string{"A-1"}, d)
		assert.ErrorIs(t, err, status.ErrInvalidArgument)
	}
}

func TestLockSeats_ClampsToMaxDuration(t *testing.T) {
	f := newReservationFixture(t, WithMaxLockDuration(15*time.Minute))

	_, err := f.svc.LockSeats(context.Background(), "concert", []string{"A-1"}, 2*time.Hour)
	require.NoError(t, err)

	l, ok := f.store.seat("map1", "A-1").LockFor("evt1")
	require.True(t, ok)
	assert.Equal(t, baseTime.Add(15*time.Minute), l.LockedUntil)
}

func TestLockSeats_MissingEventOrSeatMap(t *testing.T) {
	f := newReservationFixture(t)
	f.catalog.addEvent(&models.Event{ID: "evt3", Slug: "no-map", Status: models.EventPublished})
	f.catalog.addEvent(&models.Event{ID: "evt4", Slug: "gone-map", SeatMap: models.RefID[models.SeatMap]("nope")})
	ctx := context.Background()

	_, err := f.svc.LockSeats(ctx, "unknown", []string{"A-1"}, time.Minute)
	assert.ErrorIs(t, err, status.ErrEventNotFound)
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = f.svc.LockSeats(ctx, "no-map", []string{"A-1"}, time.Minute)
	assert.ErrorIs(t, err, status.ErrSeatMapMissing)

	_, err = f.svc.LockSeats(ctx, "gone-map", []string{"A-1"}, time.Minute)
	assert.ErrorIs(t, err, status.ErrSeatMapNotFound)
}

func TestGetLockedSeats_ExpiredLockNotReported(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSeats(ctx, "concert", []string{"A-1"}, time.Minute)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)

	got, err := f.svc.GetLockedSeats(ctx, "concert")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestGetLockedSeats_PaidSeatReportedWithoutLock(t *testing.T) {
	f := newReservationFixture(t)
	f.payFor("o1", "t1", f.evt1, "B", 1)

	got, err := f.svc.GetLockedSeats(context.Background(), "concert")
	require.NoError(t, err)
	assert.Equal(t, []string{"B-1"}, got)
}

func TestSeatAvailability(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()
	f.payFor("o1", "t1", f.evt1, "B", 1)

	_, err := f.svc.LockSeats(ctx, "concert", []string{"A-2"}, time.Minute)
	require.NoError(t, err)

	states, err := f.svc.SeatAvailability(ctx, "concert")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"A-1":      models.SeatAvailable,
		"A-2":      models.SeatLocked,
		"B-1":      models.SeatSold,
		"BALC-L-3": models.SeatAvailable,
	}, states)
}

func TestUnlockSeats_ReleasesRegardlessOfExpiry(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSeats(ctx, "concert", []string{"A-1", "A-2"}, time.Hour)
	require.NoError(t, err)

	released, err := f.svc.UnlockSeats(ctx, "concert", []string{"A-1", "B-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1"}, released)

	got, err := f.svc.GetLockedSeats(ctx, "concert")
	require.NoError(t, err)
	assert.Equal(t, []string{"A-2"}, got)
}

func TestUnlockSeats_PaidSeatKeepsLock(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSeats(ctx, "concert", []string{"A-1"}, time.Hour)
	require.NoError(t, err)
	f.payFor("o1", "t1", f.evt1, "A", 1)

	released, err := f.svc.UnlockSeats(ctx, "concert", []string{"A-1"})
	require.NoError(t, err)
	assert.Empty(t, released)

	_, ok := f.store.seat("map1", "A-1").LockFor("evt1")
	assert.True(t, ok)
}

func TestCompletePayment_HoldsSeatsUntilEventEnd(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSeats(ctx, "concert", []string{"A-1", "A-2"}, 10*time.Minute)
	require.NoError(t, err)

	f.catalog.addOrder(&models.Order{ID: "o1", Status: models.OrderPending},
		&models.Ticket{ID: "t1", Event: models.RefID[models.Event]("evt1"), SeatRow: "A", SeatNumber: 1, Status: models.TicketPending},
		&models.Ticket{ID: "t2", Event: models.RefID[models.Event]("evt1"), SeatRow: "A", SeatNumber: 2, Status: models.TicketPending},
	)

	require.NoError(t, f.svc.CompletePayment(ctx, "o1"))

	assert.Equal(t, models.OrderPaid, f.catalog.order("o1").Status)
	assert.Equal(t, models.TicketPaid, f.catalog.ticket("t1").Status)
	assert.Equal(t, models.TicketPaid, f.catalog.ticket("t2").Status)

	for _, id := range []string{"A-1", "A-2"} {
		seat := f.store.seat("map1", id)
		require.Len(t, seat.Locks, 1)
		assert.Equal(t, *f.evt1.End, seat.Locks[0].LockedUntil)
	}
	assert.Contains(t, f.publisher.types(), models.SeatEventSold)
}

func TestCompletePayment_DefaultsToSixHoursAfterStart(t *testing.T) {
	f := newReservationFixture(t)
	f.catalog.addOrder(&models.Order{ID: "o1", Status: models.OrderPending},
		&models.Ticket{ID: "t1", Event: models.RefID[models.Event]("evt2"), SeatRow: "B", SeatNumber: 1},
	)

	require.NoError(t, f.svc.CompletePayment(context.Background(), "o1"))

	l, ok := f.store.seat("map1", "B-1").LockFor("evt2")
	require.True(t, ok)
	assert.Equal(t, f.evt2.Start.Add(6*time.Hour), l.LockedUntil)
}

func TestCompletePayment_Idempotent(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()
	f.catalog.addOrder(&models.Order{ID: "o1", Status: models.OrderPending},
		&models.Ticket{ID: "t1", Event: models.RefID[models.Event]("evt1"), SeatRow: "A", SeatNumber: 1},
	)

	require.NoError(t, f.svc.CompletePayment(ctx, "o1"))
	writes := f.store.writes
	first := f.store.seat("map1", "A-1")

	require.NoError(t, f.svc.CompletePayment(ctx, "o1"))

	assert.Equal(t, writes, f.store.writes)
	assert.Equal(t, first, f.store.seat("map1", "A-1"))
	assert.Equal(t, models.OrderPaid, f.catalog.order("o1").Status)
}

func TestCompletePayment_BrokenReferences(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()
	f.catalog.addEvent(&models.Event{ID: "evt3", Slug: "no-map"})

	f.catalog.addOrder(&models.Order{ID: "o-bad-event", Status: models.OrderPending},
		&models.Ticket{ID: "t1", Event: models.RefID[models.Event]("missing"), SeatRow: "A", SeatNumber: 1})
	f.catalog.addOrder(&models.Order{ID: "o-no-map", Status: models.OrderPending},
		&models.Ticket{ID: "t2", Event: models.RefID[models.Event]("evt3"), SeatRow: "A", SeatNumber: 1})

	err := f.svc.CompletePayment(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrOrderNotFound)

	err = f.svc.CompletePayment(ctx, "o-bad-event")
	assert.ErrorIs(t, err, status.ErrEventNotFound)
	assert.Equal(t, models.OrderPending, f.catalog.order("o-bad-event").Status)

	err = f.svc.CompletePayment(ctx, "o-no-map")
	assert.ErrorIs(t, err, status.ErrSeatMapMissing)
	assert.Equal(t, models.OrderPending, f.catalog.order("o-no-map").Status)
}

func TestCompletePayment_UsesExpandedEvent(t *testing.T) {
	f := newReservationFixture(t)
	end := baseTime.Add(100 * time.Hour)
	expanded := &models.Event{ID: "evt-x", Slug: "pop-up", SeatMap: models.RefID[models.SeatMap]("map1"), End: &end}

	f.catalog.addOrder(&models.Order{ID: "o1", Status: models.OrderPending},
		&models.Ticket{ID: "t1", Event: models.Expanded("evt-x", expanded), SeatRow: "A", SeatNumber: 2})

	require.NoError(t, f.svc.CompletePayment(context.Background(), "o1"))

	l, ok := f.store.seat("map1", "A-2").LockFor("evt-x")
	require.True(t, ok)
	assert.Equal(t, end, l.LockedUntil)
}

func TestMutate_RetriesVersionConflicts(t *testing.T) {
	f := newReservationFixture(t, WithMaxRetries(3))
	f.store.conflict = 2

	locked, err := f.svc.LockSeats(context.Background(), "concert", []string{"A-1"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1"}, locked)
	assert.Equal(t, 1, f.store.writes)
}

func TestMutate_GivesUpAfterMaxRetries(t *testing.T) {
	f := newReservationFixture(t, WithMaxRetries(2))
	f.store.conflict = 10

	_, err := f.svc.LockSeats(context.Background(), "concert", []string{"A-1"}, time.Minute)
	assert.ErrorIs(t, err, status.ErrVersionConflict)
	assert.Equal(t, 7, f.store.conflict)
}

func TestMutate_StopsOnCancelledContext(t *testing.T) {
	f := newReservationFixture(t, WithRetryBackoff(time.Hour))
	f.store.conflict = 1

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := f.svc.LockSeats(ctx, "concert", []string{"A-1"}, time.Minute)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConcurrentLocksDoNotLoseUpdates(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"A-1", "A-2", "B-1", "BALC-L-3"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.LockSeats(ctx, "concert", []string{id}, time.Hour)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	got, err := f.svc.GetLockedSeats(ctx, "concert")
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "A-2", "B-1", "BALC-L-3"}, got)
}

func TestPublishFailureDoesNotFailLock(t *testing.T) {
	f := newReservationFixture(t)
	f.publisher.err = errors.New("broker down")

	locked, err := f.svc.LockSeats(context.Background(), "concert", []string{"A-1"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1"}, locked)
	assert.Equal(t, []string{models.SeatEventLocked}, f.publisher.types())
}

// Lock a seat, let the hold lapse without payment and sweep it away.
func TestScenario_UnpaidLockIsSwept(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()
	sweeper := NewSweeper(f.svc, f.catalog, nil, time.Minute, SweepReconcile)

	_, err := f.svc.LockSeats(ctx, "concert", []string{"A-1"}, 600000*time.Millisecond)
	require.NoError(t, err)

	got, err := f.svc.GetLockedSeats(ctx, "concert")
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1"}, got)

	f.clock.Advance(600001 * time.Millisecond)
	report := sweeper.SweepOnce(ctx)
	assert.Equal(t, 1, report.Released)

	got, err = f.svc.GetLockedSeats(ctx, "concert")
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)
	assert.Empty(t, f.store.seat("map1", "A-1").Locks)
}

// A paid seat survives an explicit unlock.
func TestScenario_PaidSeatSurvivesUnlock(t *testing.T) {
	f := newReservationFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSeats(ctx, "concert", []string{"A-1"}, 10*time.Minute)
	require.NoError(t, err)

	f.catalog.addOrder(&models.Order{ID: "o1", Status: models.OrderPending},
		&models.Ticket{ID: "t1", Event: models.RefID[models.Event]("evt1"), SeatRow: "A", SeatNumber: 1})
	require.NoError(t, f.svc.CompletePayment(ctx, "o1"))

	_, err = f.svc.UnlockSeats(ctx, "concert", []string{"A-1"})
	require.NoError(t, err)

	got, err := f.svc.GetLockedSeats(ctx, "concert")
	require.NoError(t, err)
	assert.Contains(t, got, "A-1")
}
