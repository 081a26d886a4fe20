package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"seat-reservation/internal/status"
	"seat-reservation/models"

	"github.com/redis/go-redis/v9"
)

// Hash tags keep both keys of a seat map in one cluster slot so the scripts
// below may touch them together.
const (
	seatMapMetaKeyPattern  = "{seatmap:%s}:meta"
	seatMapSeatsKeyPattern = "{seatmap:%s}:seats"
)

// updateSeatsScript patches seats only when the version still matches.
// Returns -1 when the map does not exist, -2 on a version mismatch and the
// new version otherwise.
const updateSeatsScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local current = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
if current ~= tonumber(ARGV[1]) then
	return -2
end
for i = 2, #ARGV, 2 do
	redis.call('HSET', KEYS[2], ARGV[i], ARGV[i + 1])
end
return redis.call('HINCRBY', KEYS[1], 'version', 1)
`

// replaceSeatMapScript overwrites the whole map. An empty ARGV[1] skips the
// version check.
const replaceSeatMapScript = `
local current = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
if ARGV[1] ~= '' and current ~= tonumber(ARGV[1]) then
	return -2
end
redis.call('DEL', KEYS[2])
redis.call('HSET', KEYS[1], 'name', ARGV[2], 'shop_id', ARGV[3])
for i = 4, #ARGV, 2 do
	redis.call('HSET', KEYS[2], ARGV[i], ARGV[i + 1])
end
return redis.call('HINCRBY', KEYS[1], 'version', 1)
`

type RedisSeatMapStore struct {
	Redis redis.Cmdable
}

func NewRedisSeatMapStore(redisClient redis.Cmdable) *RedisSeatMapStore {
	return &RedisSeatMapStore{Redis: redisClient}
}

func seatMapKeys(id string) []string {
	return []string{
		fmt.Sprintf(seatMapMetaKeyPattern, id),
		fmt.Sprintf(seatMapSeatsKeyPattern, id),
	}
}

func (s *RedisSeatMapStore) GetSeatMap(ctx context.Context, id string) (*models.SeatMap, error) {
	keys := seatMapKeys(id)

	var metaCmd, seatsCmd *redis.MapStringStringCmd
	_, err := s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.HGetAll(ctx, keys[0])
		seatsCmd = pipe.HGetAll(ctx, keys[1])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read seat map %s: %w", id, err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, fmt.Errorf("%w: %s", status.ErrSeatMapNotFound, id)
	}

	version, err := strconv.ParseInt(meta["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("seat map %s: bad version %q: %w", id, meta["version"], status.ErrInvalidState)
	}

	raw := seatsCmd.Val()
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s", status.ErrNoSeats, id)
	}

	sm := &models.SeatMap{
		ID:      id,
		Name:    meta["name"],
		ShopID:  meta["shop_id"],
		Version: version,
		Seats:   make(map[models.SeatID]*models.Seat, len(raw)),
	}
	for field, data := range raw {
		var seat models.Seat
		if err := json.Unmarshal([]byte(data), &seat); err != nil {
			return nil, fmt.Errorf("seat map %s: seat %s: %v: %w", id, field, err, status.ErrInvalidState)
		}
		sm.Seats[seat.ID()] = &seat
	}

	return sm, nil
}

func (s *RedisSeatMapStore) UpdateSeats(ctx context.Context, id string, expectedVersion int64, seats []*models.Seat) (int64, error) {
	if len(seats) == 0 {
		return expectedVersion, nil
	}

	args, err := seatArgs(seats)
	if err != nil {
		return 0, err
	}
	args = append([]any{expectedVersion}, args...)

	res, err := s.Redis.Eval(ctx, updateSeatsScript, seatMapKeys(id), args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("update seat map %s: %w", id, err)
	}

	switch res {
	case -1:
		return 0, fmt.Errorf("%w: %s", status.ErrSeatMapNotFound, id)
	case -2:
		return 0, fmt.Errorf("%w: %s at version %d", status.ErrVersionConflict, id, expectedVersion)
	}
	return res, nil
}

// ReplaceSeatMap overwrites the stored map with sm. A negative
// expectedVersion writes unconditionally.
func (s *RedisSeatMapStore) ReplaceSeatMap(ctx context.Context, sm *models.SeatMap, expectedVersion int64) (int64, error) {
	seats := make([]*models.Seat, 0, len(sm.Seats))
	for _, id := range sm.SortedSeatIDs() {
		seats = append(seats, sm.Seats[id])
	}

	args, err := seatArgs(seats)
	if err != nil {
		return 0, err
	}

	expected := ""
	if expectedVersion >= 0 {
		expected = strconv.FormatInt(expectedVersion, 10)
	}
	args = append([]any{expected, sm.Name, sm.ShopID}, args...)

	res, err := s.Redis.Eval(ctx, replaceSeatMapScript, seatMapKeys(sm.ID), args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("replace seat map %s: %w", sm.ID, err)
	}
	if res == -2 {
		return 0, fmt.Errorf("%w: %s at version %d", status.ErrVersionConflict, sm.ID, expectedVersion)
	}
	return res, nil
}

// SyncLayout stores a layout edited in the CMS, carrying over the locks of
// seats that still exist.
func (s *RedisSeatMapStore) SyncLayout(ctx context.Context, layout *models.SeatMap) error {
	current, err := s.GetSeatMap(ctx, layout.ID)
	expected := int64(-1)
	switch {
	case err == nil:
		expected = current.Version
	case errors.Is(err, status.ErrNotFound), errors.Is(err, status.ErrInvalidState):
		current = nil
	default:
		return err
	}

	next := layout.Clone()
	if current != nil {
		for id, seat := range next.Seats {
			if prev, ok := current.Seats[id]; ok {
				seat.Locks = append(seat.Locks[:0], prev.Locks...)
			}
		}
	}

	_, err = s.ReplaceSeatMap(ctx, next, expected)
	return err
}

func (s *RedisSeatMapStore) DeleteSeatMap(ctx context.Context, id string) error {
	if err := s.Redis.Del(ctx, seatMapKeys(id)...).Err(); err != nil {
		return fmt.Errorf("delete seat map %s: %w", id, err)
	}
	return nil
}

// seatArgs flattens seats into field/value pairs ordered by seat id.
func seatArgs(seats []*models.Seat) ([]any, error) {
	sorted := append([]*models.Seat(nil), seats...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	args := make([]any, 0, len(sorted)*2)
	for _, seat := range sorted {
		if seat.Locks == nil {
			seat.Locks = []models.Lock{}
		}
		data, err := json.Marshal(seat)
		if err != nil {
			return nil, fmt.Errorf("encode seat %s: %w", seat.ID(), err)
		}
		args = append(args, seat.ID(), string(data))
	}
	return args, nil
}
