package models

import (
	"time"
)

const defaultEventLength = 6 * time.Hour

type Event struct {
	ID      string       `json:"id"`
	Slug    string       `json:"slug"`
	Name    string       `json:"name"`
	ShopID  string       `json:"shopId,omitempty"`
	SeatMap Ref[SeatMap] `json:"seatMap"`
	Start   time.Time    `json:"startDate"`
	End     *time.Time   `json:"endDate,omitempty"`
	Status  string       `json:"status"` // draft, published, ended, cancelled
}

const (
	EventDraft     = "draft"
	EventPublished = "published"
	EventEnded     = "ended"
	EventCancelled = "cancelled"
)

// HoldUntil is how long a paid seat stays locked: the event end, or six
// hours after the start when no end is set.
func (e *Event) HoldUntil() time.Time {
	if e.End != nil && !e.End.IsZero() {
		return *e.End
	}
	return e.Start.Add(defaultEventLength)
}
