package models

import "time"

// Seat state change types published to downstream consumers.
const (
	SeatEventLocked   = "seat.locked"
	SeatEventReleased = "seat.released"
	SeatEventSold     = "seat.sold"
)

type SeatEvent struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	EventID     string     `json:"eventId"`
	SeatMapID   string     `json:"seatMapId"`
	SeatIDs     []SeatID   `json:"seatIds"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
	OrderID     string     `json:"orderId,omitempty"`
	OccurredAt  time.Time  `json:"occurredAt"`
}
