// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package queue defines named at-least-once message queues.
package queue

import (
	"context"
	"time"

	"github.com/zeebo/errs"
)

var (
	// Error is a standard error class for this package.
	Error = errs.Class("queue")

	// ErrEmpty is returned when attempting to Receive from an empty queue.
	ErrEmpty = errs.Class("empty queue")
)

// PoisonSuffix is appended to a queue name to get the queue holding
// messages that were delivered too many times.
const PoisonSuffix = "-poison"

// Message is a received message.
type Message struct {
	Body []byte
	// Deliveries is how many times the message has been received,
	// including this delivery.
	Deliveries int
	// Receipt identifies this delivery for Ack and Nack.
	Receipt string
}

// Queue is a set of named FIFO queues with at-least-once delivery.
//
// A received message stays in flight until it is acknowledged. Nack makes
// it available again with an increased delivery count, so does Expire for
// messages whose consumer never settled them.
type Queue interface {
	// Send appends body to the named queue.
	Send(ctx context.Context, name string, body []byte) error
	// Receive takes the oldest message of the named queue. It returns
	// ErrEmpty when no message is available.
	Receive(ctx context.Context, name string) (Message, error)
	// Ack removes an in-flight message permanently.
	Ack(ctx context.Context, name string, msg Message) error
	// Nack returns an in-flight message to the queue.
	Nack(ctx context.Context, name string, msg Message) error
	// Expire returns messages received at least lease ago to the queue and
	// reports how many were returned.
	Expire(ctx context.Context, name string, lease time.Duration) (int, error)
	// Len returns the number of messages waiting in the named queue.
	Len(ctx context.Context, name string) (int, error)
	// Close closes the queue.
	Close() error
}
