// Package taskqueue implements a leased work queue on top of redis. Items are unique while they are
// waiting, a dequeued item is leased to a worker until it is completed or the lease expires.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned when extending or completing an item the worker does not hold anymore
var ErrLeaseLost = errors.New("lease lost")

type keys struct {
	// queue is the LIST of waiting item ids
	queue string

	// queued is the SET of waiting item ids, used to keep items unique
	queued string

	// leases is the ZSET of dequeued item ids, scored by lease expiration in ms
	leases string

	// owners is the HASH mapping dequeued item ids to the worker holding the lease
	owners string
}

type TaskQueue struct {
	rdb        redis.UniversalClient
	keys       keys
	workerName string
}

func New(rdb redis.UniversalClient, keyPrefix, name, workerName string) *TaskQueue {
	prefix := fmt.Sprintf("%vtask-queue:%v", keyPrefix, name)

	return &TaskQueue{
		rdb: rdb,
		keys: keys{
			queue:  prefix + ":queue",
			queued: prefix + ":queued",
			leases: prefix + ":leases",
			owners: prefix + ":owners",
		},
		workerName: workerName,
	}
}

// Scripts returns all scripts used by the queue so they can be loaded before being used in
// pipelines.
func Scripts() []*redis.Script {
	return []*redis.Script{enqueueCmd, dequeueCmd, extendCmd, completeCmd}
}

// Enqueue adds id to the queue, unless it is already waiting or currently leased.
//
// KEYS[1] = queue LIST
// KEYS[2] = queued SET
// KEYS[3] = leases ZSET
// ARGV[1] = id
var enqueueCmd = redis.NewScript(`
if redis.call("ZSCORE", KEYS[3], ARGV[1]) then
	return 0
end

if redis.call("SADD", KEYS[2], ARGV[1]) == 1 then
	redis.call("LPUSH", KEYS[1], ARGV[1])
	return 1
end

return 0
`)

// Enqueue adds the item to the queue as part of the given pipeline
func (q *TaskQueue) Enqueue(ctx context.Context, p redis.Scripter, id string) error {
	return enqueueCmd.Run(ctx, p, []string{q.keys.queue, q.keys.queued, q.keys.leases}, id).Err()
}

// Recover expired leases, then lease the oldest waiting item.
//
// KEYS[1] = queue LIST
// KEYS[2] = queued SET
// KEYS[3] = leases ZSET
// KEYS[4] = owners HASH
// ARGV[1] = current time in ms
// ARGV[2] = lease expiration in ms
// ARGV[3] = worker name
var dequeueCmd = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", "(" .. ARGV[1])
for _, id in ipairs(expired) do
	redis.call("ZREM", KEYS[3], id)
	redis.call("HDEL", KEYS[4], id)
	if redis.call("SADD", KEYS[2], id) == 1 then
		redis.call("RPUSH", KEYS[1], id)
	end
end

local id = redis.call("RPOP", KEYS[1])
if not id then
	return false
end

redis.call("SREM", KEYS[2], id)
redis.call("ZADD", KEYS[3], ARGV[2], id)
redis.call("HSET", KEYS[4], id, ARGV[3])

return id
`)

// Dequeue leases the next item for lease. Returns nil if the queue is empty.
func (q *TaskQueue) Dequeue(ctx context.Context, lease time.Duration) (*string, error) {
	now := time.Now()

	id, err := dequeueCmd.Run(ctx, q.rdb,
		[]string{q.keys.queue, q.keys.queued, q.keys.leases, q.keys.owners},
		now.UnixMilli(), now.Add(lease).UnixMilli(), q.workerName,
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("dequeueing task: %w", err)
	}

	return &id, nil
}

// KEYS[1] = leases ZSET
// KEYS[2] = owners HASH
// ARGV[1] = id
// ARGV[2] = worker name
// ARGV[3] = lease expiration in ms
var extendCmd = redis.NewScript(`
if redis.call("HGET", KEYS[2], ARGV[1]) ~= ARGV[2] then
	return 0
end

redis.call("ZADD", KEYS[1], ARGV[3], ARGV[1])
return 1
`)

// Extend renews the lease on the given item
func (q *TaskQueue) Extend(ctx context.Context, id string, lease time.Duration) error {
	ok, err := extendCmd.Run(ctx, q.rdb,
		[]string{q.keys.leases, q.keys.owners},
		id, q.workerName, time.Now().Add(lease).UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("extending lease: %w", err)
	}

	if ok != 1 {
		return ErrLeaseLost
	}

	return nil
}

// Owned returns ErrLeaseLost unless this worker holds the lease on the given item
func (q *TaskQueue) Owned(ctx context.Context, id string) error {
	owner, err := q.rdb.HGet(ctx, q.keys.owners, id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrLeaseLost
		}

		return fmt.Errorf("reading lease owner: %w", err)
	}

	if owner != q.workerName {
		return ErrLeaseLost
	}

	return nil
}

// Release the lease and re-enqueue the item if the given LIST still has entries.
//
// KEYS[1] = queue LIST
// KEYS[2] = queued SET
// KEYS[3] = leases ZSET
// KEYS[4] = owners HASH
// KEYS[5] = LIST to check for remaining work, optional
// ARGV[1] = id
// ARGV[2] = worker name
var completeCmd = redis.NewScript(`
if redis.call("HGET", KEYS[4], ARGV[1]) ~= ARGV[2] then
	return 0
end

redis.call("ZREM", KEYS[3], ARGV[1])
redis.call("HDEL", KEYS[4], ARGV[1])

if KEYS[5] and redis.call("LLEN", KEYS[5]) > 0 then
	if redis.call("SADD", KEYS[2], ARGV[1]) == 1 then
		redis.call("LPUSH", KEYS[1], ARGV[1])
	end
end

return 1
`)

// Complete releases the lease on the given item. If remainingKey is given and the LIST stored there
// is not empty, the item is queued again.
func (q *TaskQueue) Complete(ctx context.Context, id string, remainingKey string) error {
	keys := []string{q.keys.queue, q.keys.queued, q.keys.leases, q.keys.owners}
	if remainingKey != "" {
		keys = append(keys, remainingKey)
	}

	ok, err := completeCmd.Run(ctx, q.rdb, keys, id, q.workerName).Int()
	if err != nil {
		return fmt.Errorf("completing task: %w", err)
	}

	if ok != 1 {
		return ErrLeaseLost
	}

	return nil
}

// Len returns the number of waiting items
func (q *TaskQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.keys.queue).Result()
}
