package status

import (
	"errors"
	"fmt"
)

// Taxonomy roots. Handlers classify with errors.Is against these.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrVersionConflict = errors.New("seat map: version conflict")
	ErrProvider        = errors.New("payment: provider error")
)

var (
	ErrEventNotFound   = fmt.Errorf("event: %w", ErrNotFound)
	ErrSeatMapNotFound = fmt.Errorf("seat map: %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order: %w", ErrNotFound)
	ErrTicketNotFound  = fmt.Errorf("ticket: %w", ErrNotFound)

	// ErrSeatMapMissing is returned when an event has no seat map assigned.
	ErrSeatMapMissing = fmt.Errorf("event has no seat map: %w", ErrNotFound)

	ErrNoSeats = fmt.Errorf("seat map has no seats: %w", ErrInvalidState)
)
