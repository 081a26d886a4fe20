package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"seat-reservation/models"
	"seat-reservation/monitoring"
)

// Sweep modes.
const (
	// SweepReconcile drops every lock not backed by a paid ticket.
	SweepReconcile = "reconcile"
	// SweepExpired drops only unpaid locks whose lockedUntil has passed.
	SweepExpired = "expired"
)

const defaultSweepInterval = 20 * time.Minute

func ParseSweepMode(mode string) (string, error) {
	switch mode {
	case "", SweepReconcile:
		return SweepReconcile, nil
	case SweepExpired:
		return SweepExpired, nil
	default:
		return "", fmt.Errorf("unknown sweep mode %q", mode)
	}
}

type SweepReport struct {
	Events   int      `json:"events"`
	SeatMaps int      `json:"seatMaps"`
	Released int      `json:"released"`
	Failures int      `json:"failures"`
	Errors   []string `json:"errors,omitempty"`
}

// Sweeper periodically releases seat locks whose payment never completed.
type Sweeper struct {
	reservations *ReservationService
	catalog      Catalog
	monitor      *monitoring.Monitor
	interval     time.Duration
	mode         string

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper falls back to a 20 minute interval when interval is not positive.
func NewSweeper(reservations *ReservationService, catalog Catalog, monitor *monitoring.Monitor, interval time.Duration, mode string) *Sweeper {
	if interval <= 0 {
		slog.Warn("Invalid sweep interval, using default", "interval", interval, "default", defaultSweepInterval)
		interval = defaultSweepInterval
	}
	return &Sweeper{
		reservations: reservations,
		catalog:      catalog,
		monitor:      monitor,
		interval:     interval,
		mode:         mode,
		stopChan:     make(chan struct{}),
	}
}

func (s *Sweeper) Mode() string {
	return s.mode
}

func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Start runs a pass every interval until Stop is called.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Lock sweeper started", "interval", s.interval, "mode", s.mode)

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			s.SweepOnce(ctx)
			cancel()
		case <-s.stopChan:
			slog.Info("Lock sweeper stopping")
			return
		}
	}
}

// SweepOnce runs a single pass over all published events. Failures for one
// event are recorded in the report and do not stop the pass.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepReport {
	start := time.Now()
	var report SweepReport

	events, err := s.catalog.ListPublishedEvents(ctx)
	if err != nil {
		slog.Error("Sweeper failed to list events", "error", err)
		report.Failures++
		report.Errors = append(report.Errors, err.Error())
		s.monitor.TrackSweep(0, report.Failures, time.Since(start))
		return report
	}

	seatMaps := make(map[string]bool)
	expiredOnly := s.mode == SweepExpired

	for _, event := range events {
		if ctx.Err() != nil {
			report.Failures++
			report.Errors = append(report.Errors, ctx.Err().Error())
			break
		}

		report.Events++
		if event.SeatMap.ID != "" {
			seatMaps[event.SeatMap.ID] = true
		}

		released, err := s.reservations.ReleaseUnpaidLocks(ctx, event, expiredOnly)
		if err != nil {
			slog.Error("Sweeper failed for event", "error", err, "event", event.ID, "seat_map", event.SeatMap.ID)
			report.Failures++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", eventLabel(event), err))
			continue
		}
		report.Released += released
	}
	report.SeatMaps = len(seatMaps)

	took := time.Since(start)
	s.monitor.TrackSweep(report.Released, report.Failures, took)
	slog.Info("Lock sweep finished",
		"events", report.Events,
		"seat_maps", report.SeatMaps,
		"released", report.Released,
		"failures", report.Failures,
		"took", took,
	)

	return report
}

func eventLabel(e *models.Event) string {
	if e.Slug != "" {
		return e.Slug
	}
	return e.ID
}
