package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"seat-reservation/internal/status"
	"seat-reservation/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

const seatMapsCollection = "seat_maps"

// PocketBaseSeatMapStore keeps each seat map as one seat_maps record with a
// JSON seats array and a numeric version column.
type PocketBaseSeatMapStore struct {
	app core.App
}

func NewPocketBaseSeatMapStore(app core.App) *PocketBaseSeatMapStore {
	return &PocketBaseSeatMapStore{app: app}
}

func (s *PocketBaseSeatMapStore) GetSeatMap(ctx context.Context, id string) (*models.SeatMap, error) {
	record, err := s.app.FindRecordById(seatMapsCollection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", status.ErrSeatMapNotFound, id)
		}
		return nil, err
	}

	sm, err := SeatMapFromRecord(record)
	if err != nil {
		return nil, err
	}
	if len(sm.Seats) == 0 {
		return nil, fmt.Errorf("%w: %s", status.ErrNoSeats, id)
	}
	return sm, nil
}

func (s *PocketBaseSeatMapStore) UpdateSeats(ctx context.Context, id string, expectedVersion int64, seats []*models.Seat) (int64, error) {
	if len(seats) == 0 {
		return expectedVersion, nil
	}

	current, err := s.GetSeatMap(ctx, id)
	if err != nil {
		return 0, err
	}
	if current.Version != expectedVersion {
		return 0, fmt.Errorf("%w: %s at version %d", status.ErrVersionConflict, id, expectedVersion)
	}

	for _, seat := range seats {
		current.Seats[seat.ID()] = seat
	}

	data, err := json.Marshal(seatList(current))
	if err != nil {
		return 0, fmt.Errorf("encode seat map %s: %w", id, err)
	}

	res, err := s.app.DB().Update(seatMapsCollection, dbx.Params{
		"seats":   string(data),
		"version": expectedVersion + 1,
	}, dbx.HashExp{"id": id, "version": expectedVersion}).WithContext(ctx).Execute()
	if err != nil {
		return 0, fmt.Errorf("update seat map %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, fmt.Errorf("%w: %s at version %d", status.ErrVersionConflict, id, expectedVersion)
	}

	return expectedVersion + 1, nil
}

// SeatMapFromRecord decodes a seat_maps record.
func SeatMapFromRecord(record *core.Record) (*models.SeatMap, error) {
	var seats []*models.Seat
	if err := record.UnmarshalJSONField("seats", &seats); err != nil {
		return nil, fmt.Errorf("seat map %s: %v: %w", record.Id, err, status.ErrInvalidState)
	}

	sm := models.NewSeatMap(record.Id, seats...)
	sm.Name = record.GetString("name")
	sm.ShopID = record.GetString("shop")
	sm.Version = int64(record.GetInt("version"))
	return sm, nil
}

func seatList(sm *models.SeatMap) []*models.Seat {
	list := make([]*models.Seat, 0, len(sm.Seats))
	for _, id := range sm.SortedSeatIDs() {
		seat := sm.Seats[id]
		if seat.Locks == nil {
			seat.Locks = []models.Lock{}
		}
		list = append(list, seat)
	}
	return list
}
