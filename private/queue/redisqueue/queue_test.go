// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package redisqueue_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"pwnedpasswords.io/ingest/private/queue"
	"pwnedpasswords.io/ingest/private/queue/redisqueue"
	"pwnedpasswords.io/ingest/private/queue/testsuite"
)

func newQueue(t *testing.T) *redisqueue.Queue {
	server := miniredis.RunT(t)
	return redisqueue.New(redis.NewClient(&redis.Options{Addr: server.Addr()}), "test")
}

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)

	q := newQueue(t)
	defer ctx.Check(q.Close)

	testsuite.RunTests(t, q)
}

func TestExpireLease(t *testing.T) {
	ctx := testcontext.New(t)

	q := newQueue(t)
	defer ctx.Check(q.Close)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q.TestingSetNow(func() time.Time { return now })

	require.NoError(t, q.Send(ctx, "work", []byte("first")))
	require.NoError(t, q.Send(ctx, "work", []byte("second")))

	first, err := q.Receive(ctx, "work")
	require.NoError(t, err)
	require.Equal(t, "first", string(first.Body))

	now = now.Add(time.Minute)
	second, err := q.Receive(ctx, "work")
	require.NoError(t, err)
	require.Equal(t, "second", string(second.Body))

	inflight, err := q.Inflight(ctx, "work")
	require.NoError(t, err)
	require.Equal(t, 2, inflight)

	// only the first delivery is older than the lease
	now = now.Add(30 * time.Second)
	expired, err := q.Expire(ctx, "work", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	msg, err := q.Receive(ctx, "work")
	require.NoError(t, err)
	require.Equal(t, "first", string(msg.Body))
	require.Equal(t, 2, msg.Deliveries)
	require.NoError(t, q.Ack(ctx, "work", msg))
	require.NoError(t, q.Ack(ctx, "work", second))

	require.True(t, queue.Error.Has(q.Ack(ctx, "work", first)))

	inflight, err = q.Inflight(ctx, "work")
	require.NoError(t, err)
	require.Zero(t, inflight)
}

func TestReceiveDropsUndecodable(t *testing.T) {
	ctx := testcontext.New(t)

	server := miniredis.RunT(t)
	q := redisqueue.New(redis.NewClient(&redis.Options{Addr: server.Addr()}), "test")
	defer ctx.Check(q.Close)

	_, err := server.Lpush("test:queue:work", "not cbor")
	require.NoError(t, err)

	_, err = q.Receive(ctx, "work")
	require.True(t, redisqueue.Error.Has(err), "%+v", err)

	inflight, err := q.Inflight(ctx, "work")
	require.NoError(t, err)
	require.Zero(t, inflight)
}
