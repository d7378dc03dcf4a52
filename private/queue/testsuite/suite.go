// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testsuite contains common tests for queue.Queue implementations.
package testsuite

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"pwnedpasswords.io/ingest/private/queue"
)

// RunTests runs common queue.Queue tests.
func RunTests(t *testing.T, q queue.Queue) {
	t.Run("FIFO", func(t *testing.T) { testFIFO(t, q) })
	t.Run("Nack", func(t *testing.T) { testNack(t, q) })
	t.Run("Expire", func(t *testing.T) { testExpire(t, q) })
	t.Run("Names", func(t *testing.T) { testNames(t, q) })
	t.Run("Parallel", func(t *testing.T) { testParallel(t, q) })
}

func testFIFO(t *testing.T, q queue.Queue) {
	ctx := testcontext.New(t)
	const name = "fifo"

	_, err := q.Receive(ctx, name)
	require.True(t, queue.ErrEmpty.Has(err), "%+v", err)

	for i := range 3 {
		require.NoError(t, q.Send(ctx, name, []byte(fmt.Sprint(i))))
	}
	n, err := q.Len(ctx, name)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	for i := range 3 {
		msg, err := q.Receive(ctx, name)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprint(i), string(msg.Body))
		require.Equal(t, 1, msg.Deliveries)
		require.NoError(t, q.Ack(ctx, name, msg))
	}

	_, err = q.Receive(ctx, name)
	require.True(t, queue.ErrEmpty.Has(err), "%+v", err)
}

func testNack(t *testing.T, q queue.Queue) {
	ctx := testcontext.New(t)
	const name = "nack"

	require.NoError(t, q.Send(ctx, name, []byte("retry me")))

	msg, err := q.Receive(ctx, name)
	require.NoError(t, err)
	require.Equal(t, 1, msg.Deliveries)

	n, err := q.Len(ctx, name)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, q.Nack(ctx, name, msg))

	msg, err = q.Receive(ctx, name)
	require.NoError(t, err)
	require.Equal(t, "retry me", string(msg.Body))
	require.Equal(t, 2, msg.Deliveries)
	require.NoError(t, q.Ack(ctx, name, msg))

	_, err = q.Receive(ctx, name)
	require.True(t, queue.ErrEmpty.Has(err), "%+v", err)
}

func testExpire(t *testing.T, q queue.Queue) {
	ctx := testcontext.New(t)
	const name = "expire"

	require.NoError(t, q.Send(ctx, name, []byte("abandoned")))

	abandoned, err := q.Receive(ctx, name)
	require.NoError(t, err)

	expired, err := q.Expire(ctx, name, time.Hour)
	require.NoError(t, err)
	require.Zero(t, expired)

	expired, err = q.Expire(ctx, name, 0)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	msg, err := q.Receive(ctx, name)
	require.NoError(t, err)
	require.Equal(t, "abandoned", string(msg.Body))
	require.Equal(t, 2, msg.Deliveries)

	// the expired delivery can no longer be settled
	require.True(t, queue.Error.Has(q.Ack(ctx, name, abandoned)))
	require.True(t, queue.Error.Has(q.Nack(ctx, name, abandoned)))
	require.NoError(t, q.Ack(ctx, name, msg))

	expired, err = q.Expire(ctx, name, 0)
	require.NoError(t, err)
	require.Zero(t, expired)
}

func testNames(t *testing.T, q queue.Queue) {
	ctx := testcontext.New(t)

	require.NoError(t, q.Send(ctx, "names-a", []byte("a")))
	require.NoError(t, q.Send(ctx, "names-b", []byte("b")))

	msg, err := q.Receive(ctx, "names-b")
	require.NoError(t, err)
	require.Equal(t, "b", string(msg.Body))
	require.NoError(t, q.Ack(ctx, "names-b", msg))

	msg, err = q.Receive(ctx, "names-a")
	require.NoError(t, err)
	require.Equal(t, "a", string(msg.Body))
	require.NoError(t, q.Ack(ctx, "names-a", msg))
}

func testParallel(t *testing.T, q queue.Queue) {
	ctx := testcontext.New(t)
	const name = "parallel"
	const count = 50

	for i := range count {
		require.NoError(t, q.Send(ctx, name, []byte(fmt.Sprint(i))))
	}

	var mu sync.Mutex
	seen := map[string]int{}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, err := q.Receive(ctx, name)
				if queue.ErrEmpty.Has(err) {
					return
				}
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen[string(msg.Body)]++
				mu.Unlock()
				if err := q.Ack(ctx, name, msg); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, count)
	for body, n := range seen {
		require.Equal(t, 1, n, body)
	}
}
