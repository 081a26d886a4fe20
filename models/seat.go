package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SeatID identifies a seat within a seat map as "{row}-{seatNumber}".
type SeatID = string

func FormatSeatID(row string, number int) SeatID {
	return fmt.Sprintf("%s-%d", row, number)
}

// ParseSeatID splits on the last dash so rows like "BALC-L" keep their dash.
func ParseSeatID(id SeatID) (string, int, error) {
	i := strings.LastIndex(id, "-")
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("seat id %q: expected row-number", id)
	}

	number, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("seat id %q: %w", id, err)
	}

	return id[:i], number, nil
}

type Lock struct {
	EventID     string    `json:"eventId"`
	LockedUntil time.Time `json:"lockedUntil"`
}

func (l Lock) Active(now time.Time) bool {
	return now.Before(l.LockedUntil)
}

type Seat struct {
	Row     string `json:"row"`
	Number  int    `json:"seatNumber"`
	Section string `json:"section,omitempty"`
	Locks   []Lock `json:"locks"`
}

func (s *Seat) ID() SeatID {
	return FormatSeatID(s.Row, s.Number)
}

// LockFor returns the lock tagged with eventID, if any.
func (s *Seat) LockFor(eventID string) (Lock, bool) {
	for _, l := range s.Locks {
		if l.EventID == eventID {
			return l, true
		}
	}
	return Lock{}, false
}

// DropLocks removes every lock tagged with eventID and reports how many were removed.
func (s *Seat) DropLocks(eventID string) int {
	kept := s.Locks[:0]
	for _, l := range s.Locks {
		if l.EventID != eventID {
			kept = append(kept, l)
		}
	}
	removed := len(s.Locks) - len(kept)
	s.Locks = kept
	return removed
}

// SetLock replaces any lock for the same event with l.
func (s *Seat) SetLock(l Lock) {
	s.DropLocks(l.EventID)
	s.Locks = append(s.Locks, l)
}

func (s *Seat) Clone() *Seat {
	c := *s
	c.Locks = append([]Lock(nil), s.Locks...)
	return &c
}

// SeatMap is the reusable physical layout of a venue. Seats are indexed by
// SeatID; Version increases by one on every successful write.
type SeatMap struct {
	ID      string           `json:"id"`
	ShopID  string           `json:"shopId,omitempty"`
	Name    string           `json:"name,omitempty"`
	Version int64            `json:"version"`
	Seats   map[SeatID]*Seat `json:"seats"`
}

func NewSeatMap(id string, seats ...*Seat) *SeatMap {
	sm := &SeatMap{ID: id, Seats: make(map[SeatID]*Seat, len(seats))}
	for _, s := range seats {
		sm.Seats[s.ID()] = s
	}
	return sm
}

// SortedSeatIDs orders seats by row, then seat number.
func (sm *SeatMap) SortedSeatIDs() []SeatID {
	ids := make([]SeatID, 0, len(sm.Seats))
	for id := range sm.Seats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := sm.Seats[ids[i]], sm.Seats[ids[j]]
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Number < b.Number
	})
	return ids
}

func (sm *SeatMap) Clone() *SeatMap {
	c := &SeatMap{ID: sm.ID, ShopID: sm.ShopID, Name: sm.Name, Version: sm.Version}
	c.Seats = make(map[SeatID]*Seat, len(sm.Seats))
	for id, s := range sm.Seats {
		c.Seats[id] = s.Clone()
	}
	return c
}

// Seat availability as reported to the storefront.
const (
	SeatAvailable = "available"
	SeatLocked    = "locked"
	SeatSold      = "sold"
)
