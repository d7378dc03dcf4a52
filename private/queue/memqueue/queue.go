// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package memqueue implements an in-process queue.Queue.
package memqueue

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"pwnedpasswords.io/ingest/private/queue"
)

type message struct {
	body       []byte
	deliveries int
}

type inflight struct {
	message
	name     string
	seq      int64
	received time.Time
}

// Queue is an in-memory queue.Queue.
type Queue struct {
	mu       sync.Mutex
	pending  map[string][]message
	inflight map[string]inflight
	next     int64
	nowFn    func() time.Time
}

var _ queue.Queue = (*Queue)(nil)

// New creates an empty in-memory queue.
func New() *Queue {
	return &Queue{
		pending:  map[string][]message{},
		inflight: map[string]inflight{},
		nowFn:    time.Now,
	}
}

// TestingSetNow allows tests to have the queue act as if the current time is whatever they want.
func (q *Queue) TestingSetNow(nowFn func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nowFn = nowFn
}

// Send appends body to the named queue.
func (q *Queue) Send(ctx context.Context, name string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending[name] = append(q.pending[name], message{body: bytes.Clone(body)})
	return nil
}

// Receive takes the oldest message of the named queue.
func (q *Queue) Receive(ctx context.Context, name string) (queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.pending[name]
	if len(pending) == 0 {
		return queue.Message{}, queue.ErrEmpty.New("%s", name)
	}
	msg := pending[0]
	q.pending[name] = pending[1:]

	msg.deliveries++
	q.next++
	receipt := name + "/" + strconv.FormatInt(q.next, 10)
	q.inflight[receipt] = inflight{
		message:  msg,
		name:     name,
		seq:      q.next,
		received: q.nowFn(),
	}

	return queue.Message{
		Body:       bytes.Clone(msg.body),
		Deliveries: msg.deliveries,
		Receipt:    receipt,
	}, nil
}

// Ack removes an in-flight message permanently.
func (q *Queue) Ack(ctx context.Context, name string, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inflight[msg.Receipt]; !ok {
		return queue.Error.New("unknown receipt %q", msg.Receipt)
	}
	delete(q.inflight, msg.Receipt)
	return nil
}

// Nack returns an in-flight message to the end of the queue.
func (q *Queue) Nack(ctx context.Context, name string, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	flight, ok := q.inflight[msg.Receipt]
	if !ok {
		return queue.Error.New("unknown receipt %q", msg.Receipt)
	}
	delete(q.inflight, msg.Receipt)
	q.pending[name] = append(q.pending[name], flight.message)
	return nil
}

// Expire returns messages of the named queue received at least lease ago
// to the end of the queue, oldest first.
func (q *Queue) Expire(ctx context.Context, name string, lease time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.nowFn().Add(-lease)

	var expired []string
	for receipt, flight := range q.inflight {
		if flight.name == name && !flight.received.After(cutoff) {
			expired = append(expired, receipt)
		}
	}
	sort.Slice(expired, func(i, k int) bool {
		return q.inflight[expired[i]].seq < q.inflight[expired[k]].seq
	})

	for _, receipt := range expired {
		q.pending[name] = append(q.pending[name], q.inflight[receipt].message)
		delete(q.inflight, receipt)
	}
	return len(expired), nil
}

// Len returns the number of messages waiting in the named queue.
func (q *Queue) Len(ctx context.Context, name string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending[name]), nil
}

// Inflight returns the number of received but not yet acknowledged messages.
func (q *Queue) Inflight() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.inflight)
}

// Close closes the queue.
func (q *Queue) Close() error { return nil }
