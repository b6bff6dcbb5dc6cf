package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

const seatKeyPrefix = "seats:"

// Script result codes.
const (
	seatScriptOK           = 0
	seatScriptNotFound     = -1
	seatScriptInactive     = -2
	seatScriptInsufficient = -3
)

// reserveSeatScript performs the read-compare-increment as one Redis command.
var reserveSeatScript = redis.NewScript(`
local key = KEYS[1]
local qty = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 0 then
  return {-1, 0, 0, ''}
end
local capacity = tonumber(redis.call('HGET', key, 'capacity'))
local enrolled = tonumber(redis.call('HGET', key, 'enrolled'))
local status = redis.call('HGET', key, 'status')
if status ~= 'ACTIVE' then
  return {-2, capacity, enrolled, status}
end
if enrolled + qty > capacity then
  return {-3, capacity, enrolled, status}
end
enrolled = redis.call('HINCRBY', key, 'enrolled', qty)
return {0, capacity, enrolled, status}
`)

var releaseSeatScript = redis.NewScript(`
local key = KEYS[1]
local qty = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 0 then
  return {-1, 0, 0, ''}
end
local capacity = tonumber(redis.call('HGET', key, 'capacity'))
local enrolled = tonumber(redis.call('HGET', key, 'enrolled')) - qty
if enrolled < 0 then
  enrolled = 0
end
redis.call('HSET', key, 'enrolled', enrolled)
return {0, capacity, enrolled, redis.call('HGET', key, 'status')}
`)

// RedisSeatRepository keeps seat counts in Redis hashes keyed by course. Every mutation is a
// single Lua script, so Redis serializes operations on the same course.
type RedisSeatRepository struct {
	client *redis.Client
}

// NewRedisSeatRepository constructs the Redis seat store.
func NewRedisSeatRepository(client *redis.Client) *RedisSeatRepository {
	return &RedisSeatRepository{client: client}
}

func seatKey(courseID string) string {
	return seatKeyPrefix + courseID
}

// Get returns the current seat counts for a course.
func (r *RedisSeatRepository) Get(ctx context.Context, courseID string) (*models.CourseSeat, error) {
	fields, err := r.client.HGetAll(ctx, seatKey(courseID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get course seat: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrCourseNotFound
	}
	capacity, err := strconv.Atoi(fields["capacity"])
	if err != nil {
		return nil, fmt.Errorf("parse seat capacity for %s: %w", courseID, err)
	}
	enrolled, err := strconv.Atoi(fields["enrolled"])
	if err != nil {
		return nil, fmt.Errorf("parse seat enrolled for %s: %w", courseID, err)
	}
	return &models.CourseSeat{
		CourseID: courseID,
		Capacity: capacity,
		Enrolled: enrolled,
		Status:   models.CourseStatus(fields["status"]),
	}, nil
}

// Reserve increments enrolled by quantity when the course is active and has room.
func (r *RedisSeatRepository) Reserve(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error) {
	return r.run(ctx, reserveSeatScript, courseID, quantity)
}

// Release decrements enrolled by quantity, clamped at zero.
func (r *RedisSeatRepository) Release(ctx context.Context, courseID string, quantity int) (*models.CourseSeat, error) {
	return r.run(ctx, releaseSeatScript, courseID, quantity)
}

// Hydrate loads seat records into Redis. Capacity and status are overwritten from the
// catalog while an existing enrolled counter is kept.
func (r *RedisSeatRepository) Hydrate(ctx context.Context, seats []models.CourseSeat) error {
	if len(seats) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for _, seat := range seats {
		key := seatKey(seat.CourseID)
		pipe.HSet(ctx, key, "capacity", seat.Capacity, "status", string(seat.Status))
		pipe.HSetNX(ctx, key, "enrolled", seat.Enrolled)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hydrate redis seats: %w", err)
	}
	return nil
}

func (r *RedisSeatRepository) run(ctx context.Context, script *redis.Script, courseID string, quantity int) (*models.CourseSeat, error) {
	raw, err := script.Run(ctx, r.client, []string{seatKey(courseID)}, quantity).Slice()
	if err != nil {
		return nil, fmt.Errorf("run seat script for %s: %w", courseID, err)
	}
	if len(raw) != 4 {
		return nil, fmt.Errorf("unexpected seat script reply for %s: %v", courseID, raw)
	}

	code, _ := raw[0].(int64)
	capacity, _ := raw[1].(int64)
	enrolled, _ := raw[2].(int64)
	status, _ := raw[3].(string)

	switch code {
	case seatScriptOK:
	case seatScriptNotFound:
		return nil, models.ErrCourseNotFound
	case seatScriptInactive:
		return nil, models.ErrCourseInactive
	case seatScriptInsufficient:
		return nil, models.ErrInsufficientCapacity
	default:
		return nil, errors.New("unknown seat script result")
	}

	return &models.CourseSeat{
		CourseID: courseID,
		Capacity: int(capacity),
		Enrolled: int(enrolled),
		Status:   models.CourseStatus(status),
	}, nil
}
