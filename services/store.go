package services

import (
	"context"
	"sync"

	"seat-reservation/models"
)

// SeatMapStore persists seat maps and their embedded locks.
//
// UpdateSeats writes the given seats over the stored ones (seats not passed
// are left as they are) only if the stored version still equals
// expectedVersion; otherwise it returns status.ErrVersionConflict. It returns
// the new version.
type SeatMapStore interface {
	GetSeatMap(ctx context.Context, id string) (*models.SeatMap, error)
	UpdateSeats(ctx context.Context, id string, expectedVersion int64, seats []*models.Seat) (int64, error)
}

// keyedMutex serialises work per key inside one process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
