// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package redisqueue implements queue.Queue with redis.
//
// Every named queue uses a pending list and an in-flight sorted set scored
// by the receive time in milliseconds. Messages stay in the sorted set until
// they are acknowledged, returned with Nack or expired.
package redisqueue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/common/uuid"

	"pwnedpasswords.io/ingest/private/codec"
	"pwnedpasswords.io/ingest/private/queue"
)

var (
	// Error is a redisqueue error.
	Error = errs.Class("redisqueue")

	mon = monkit.Package()
)

// receiveScript pops the oldest pending message and records it as in flight.
var receiveScript = redis.NewScript(`
local raw = redis.call("rpop", KEYS[1])
if not raw then
	return false
end
redis.call("zadd", KEYS[2], ARGV[1], raw)
return raw
`)

// requeueScript moves an in-flight message back to the pending list, unless
// it was settled already.
var requeueScript = redis.NewScript(`
if redis.call("zrem", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("lpush", KEYS[2], ARGV[2])
return 1
`)

// envelope is the stored form of a message.
type envelope struct {
	ID         string `cbor:"id"`
	Body       []byte `cbor:"body"`
	Deliveries int    `cbor:"deliveries"`
}

// Queue implements queue.Queue on top of redis.
type Queue struct {
	db        *redis.Client
	namespace string
	nowFn     func() time.Time
}

var _ queue.Queue = (*Queue)(nil)

// New creates a queue using db. All keys are stored under namespace.
func New(db *redis.Client, namespace string) *Queue {
	return &Queue{db: db, namespace: namespace, nowFn: time.Now}
}

// TestingSetNow allows tests to have the queue act as if the current time is whatever they want.
func (q *Queue) TestingSetNow(nowFn func() time.Time) {
	q.nowFn = nowFn
}

func (q *Queue) pendingKey(name string) string {
	return q.namespace + ":queue:" + name
}

func (q *Queue) inflightKey(name string) string {
	return q.namespace + ":inflight:" + name
}

// Send appends body to the named queue.
func (q *Queue) Send(ctx context.Context, name string, body []byte) (err error) {
	defer mon.Task()(&ctx)(&err)

	id, err := uuid.New()
	if err != nil {
		return Error.Wrap(err)
	}
	data, err := codec.Marshal(envelope{ID: id.String(), Body: body})
	if err != nil {
		return Error.Wrap(err)
	}

	if err := q.db.LPush(ctx, q.pendingKey(name), data).Err(); err != nil {
		return Error.New("send error: %v", err)
	}
	return nil
}

// Receive moves the oldest message of the named queue to its in-flight set.
func (q *Queue) Receive(ctx context.Context, name string) (_ queue.Message, err error) {
	defer mon.Task()(&ctx)(&err)

	raw, err := receiveScript.Run(ctx, q.db,
		[]string{q.pendingKey(name), q.inflightKey(name)},
		q.nowFn().UnixMilli(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return queue.Message{}, queue.ErrEmpty.New("%s", name)
	}
	if err != nil {
		return queue.Message{}, Error.New("receive error: %v", err)
	}

	var env envelope
	if err := codec.Unmarshal([]byte(raw), &env); err != nil {
		// drop undecodable data so it does not block the queue
		return queue.Message{}, errs.Combine(Error.Wrap(err),
			Error.Wrap(q.db.ZRem(ctx, q.inflightKey(name), raw).Err()))
	}

	return queue.Message{
		Body:       env.Body,
		Deliveries: env.Deliveries + 1,
		Receipt:    raw,
	}, nil
}

// Ack removes an in-flight message permanently.
func (q *Queue) Ack(ctx context.Context, name string, msg queue.Message) (err error) {
	defer mon.Task()(&ctx)(&err)

	removed, err := q.db.ZRem(ctx, q.inflightKey(name), msg.Receipt).Result()
	if err != nil {
		return Error.New("ack error: %v", err)
	}
	if removed == 0 {
		return queue.Error.New("message not in flight")
	}
	return nil
}

// Nack returns an in-flight message to the end of the queue with its
// delivery count increased.
func (q *Queue) Nack(ctx context.Context, name string, msg queue.Message) (err error) {
	defer mon.Task()(&ctx)(&err)

	requeued, err := q.requeue(ctx, name, msg.Receipt)
	if err != nil {
		return err
	}
	if !requeued {
		return queue.Error.New("message not in flight")
	}
	return nil
}

// Expire returns every message received at least lease ago to the end of
// the queue with its delivery count increased.
func (q *Queue) Expire(ctx context.Context, name string, lease time.Duration) (expired int, err error) {
	defer mon.Task()(&ctx)(&err)

	cutoff := q.nowFn().Add(-lease).UnixMilli()
	receipts, err := q.db.ZRangeByScore(ctx, q.inflightKey(name), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, Error.New("expire error: %v", err)
	}

	var group errs.Group
	for _, receipt := range receipts {
		requeued, err := q.requeue(ctx, name, receipt)
		if err != nil {
			group.Add(err)
			continue
		}
		if requeued {
			expired++
		}
	}
	return expired, group.Err()
}

// requeue moves the in-flight receipt back to the pending list. It returns
// false when the receipt is no longer in flight.
func (q *Queue) requeue(ctx context.Context, name, receipt string) (bool, error) {
	var env envelope
	if err := codec.Unmarshal([]byte(receipt), &env); err != nil {
		return false, queue.Error.New("invalid receipt: %v", err)
	}
	env.Deliveries++
	data, err := codec.Marshal(env)
	if err != nil {
		return false, Error.Wrap(err)
	}

	moved, err := requeueScript.Run(ctx, q.db,
		[]string{q.inflightKey(name), q.pendingKey(name)},
		receipt, data,
	).Int()
	if err != nil {
		return false, Error.New("requeue error: %v", err)
	}
	return moved == 1, nil
}

// Len returns the number of messages waiting in the named queue.
func (q *Queue) Len(ctx context.Context, name string) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)

	n, err := q.db.LLen(ctx, q.pendingKey(name)).Result()
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return int(n), nil
}

// Inflight returns the number of received but not yet settled messages of
// the named queue.
func (q *Queue) Inflight(ctx context.Context, name string) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)

	n, err := q.db.ZCard(ctx, q.inflightKey(name)).Result()
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return int(n), nil
}

// Close closes the underlying redis client.
func (q *Queue) Close() error {
	return Error.Wrap(q.db.Close())
}
