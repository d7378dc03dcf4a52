// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storj.io/common/sync2"

	"pwnedpasswords.io/ingest/ingest/batches"
	"pwnedpasswords.io/ingest/private/queue"
)

const (
	// DefaultMaxDeliveries is used when MaxDeliveries is not positive.
	DefaultMaxDeliveries = 5
	// DefaultLease is used when Lease is not positive.
	DefaultLease = 10 * time.Minute
	// SettleTimeout bounds acknowledging or returning a message once its
	// handler finished.
	SettleTimeout = 10 * time.Second
)

// WorkerConfig contains configurable values for the queue workers.
type WorkerConfig struct {
	Interval      time.Duration `help:"how often to recheck an empty queue" releaseDefault:"1s" devDefault:"100ms"`
	Concurrency   int           `help:"number of messages processed concurrently per queue" default:"4"`
	MaxDeliveries int           `help:"deliveries after which a failing message is moved to the poison queue" default:"5"`
	Lease         time.Duration `help:"how long a received message may stay unsettled before it is delivered again" default:"10m"`
}

// Handler processes the body of one message.
type Handler func(ctx context.Context, body []byte) error

// Worker drains a queue and hands every message to a handler. Messages are
// acknowledged when the handler succeeds and returned to the queue otherwise.
//
// architecture: Worker
type Worker struct {
	log     *zap.Logger
	queue   queue.Queue
	name    string
	handler Handler
	config  WorkerConfig

	Loop *sync2.Cycle
}

// NewWorker creates a worker for the named queue.
func NewWorker(log *zap.Logger, q queue.Queue, name string, config WorkerConfig, handler Handler) *Worker {
	if config.MaxDeliveries <= 0 {
		config.MaxDeliveries = DefaultMaxDeliveries
	}
	if config.Lease <= 0 {
		config.Lease = DefaultLease
	}

	return &Worker{
		log:     log,
		queue:   q,
		name:    name,
		handler: handler,
		config:  config,
		Loop:    sync2.NewCycle(config.Interval),
	}
}

// Run runs the worker until ctx is canceled.
func (worker *Worker) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return worker.Loop.Run(ctx, func(ctx context.Context) (err error) {
		defer mon.Task()(&ctx)(&err)
		if err := worker.Expire(ctx); err != nil {
			worker.log.Error("expire", zap.String("Queue", worker.name), zap.Error(Error.Wrap(err)))
		}
		err = worker.Process(ctx)
		if err != nil {
			worker.log.Error("process", zap.String("Queue", worker.name), zap.Error(Error.Wrap(err)))
		}
		return nil
	})
}

// Name returns the name of the consumed queue.
func (worker *Worker) Name() string { return worker.name }

// Close halts the worker.
func (worker *Worker) Close() error {
	worker.Loop.Close()
	return nil
}

// Expire returns messages whose lease ran out to the queue. Such messages
// belong to a consumer that stopped before settling them.
func (worker *Worker) Expire(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	expired, err := worker.queue.Expire(ctx, worker.name, worker.config.Lease)
	if expired > 0 {
		mon.Counter("messages_expired").Inc(int64(expired))
		worker.log.Warn("redelivering messages with expired lease",
			zap.String("Queue", worker.name),
			zap.Int("Count", expired))
	}
	return err
}

// Process receives messages until the queue is empty.
func (worker *Worker) Process(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	limiter := sync2.NewLimiter(max(worker.config.Concurrency, 1))
	defer limiter.Wait()

	for {
		msg, err := worker.queue.Receive(ctx, worker.name)
		if err != nil {
			if queue.ErrEmpty.Has(err) {
				return nil
			}
			return err
		}

		if msg.Deliveries > worker.config.MaxDeliveries {
			if err := worker.poison(ctx, msg); err != nil {
				return err
			}
			continue
		}

		started := limiter.Go(ctx, func() {
			worker.handle(ctx, msg)
		})
		if !started {
			worker.nack(ctx, msg)
			return ctx.Err()
		}
	}
}

// settleContext detaches ctx from cancellation so that a message can be
// settled after the worker was asked to stop.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), SettleTimeout)
}

func (worker *Worker) handle(ctx context.Context, msg queue.Message) {
	err := worker.handler(ctx, msg.Body)
	if err == nil {
		ctx, cancel := settleContext(ctx)
		defer cancel()

		if err := worker.queue.Ack(ctx, worker.name, msg); err != nil {
			worker.log.Error("failed to ack message", zap.String("Queue", worker.name), zap.Error(err))
		}
		return
	}

	mon.Counter("messages_failed").Inc(1)
	worker.log.Error("failed to process message",
		zap.String("Queue", worker.name),
		zap.Int("Deliveries", msg.Deliveries),
		zap.Error(err))

	worker.nack(ctx, msg)
}

func (worker *Worker) nack(ctx context.Context, msg queue.Message) {
	ctx, cancel := settleContext(ctx)
	defer cancel()

	if err := worker.queue.Nack(ctx, worker.name, msg); err != nil {
		worker.log.Error("failed to nack message", zap.String("Queue", worker.name), zap.Error(err))
	}
}

func (worker *Worker) poison(ctx context.Context, msg queue.Message) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := settleContext(ctx)
	defer cancel()

	mon.Counter("messages_poisoned").Inc(1)
	worker.log.Warn("moving message to poison queue",
		zap.String("Queue", worker.name),
		zap.Int("Deliveries", msg.Deliveries))

	if err := worker.queue.Send(ctx, worker.name+queue.PoisonSuffix, msg.Body); err != nil {
		return err
	}
	return worker.queue.Ack(ctx, worker.name, msg)
}

// HandleTransactionReady decodes a transaction ready message and processes it.
func (service *Service) HandleTransactionReady(ctx context.Context, body []byte) error {
	var ready batches.TransactionReady
	if err := batches.Decode(body, &ready); err != nil {
		return err
	}
	return service.ProcessTransaction(ctx, ready)
}

// HandleBatch decodes a password entry batch and processes it.
func (service *Service) HandleBatch(ctx context.Context, body []byte) error {
	var batch batches.PasswordEntryBatch
	if err := batches.Decode(body, &batch); err != nil {
		return err
	}
	return service.ProcessBatch(ctx, &batch)
}

// Workers creates the workers for both ingestion queues.
func (service *Service) Workers(q queue.Queue) []*Worker {
	return []*Worker{
		NewWorker(service.log.Named("transactions"), q, service.config.Queues.Transactions, service.config.Worker, service.HandleTransactionReady),
		NewWorker(service.log.Named("batches"), q, service.config.Queues.Batches, service.config.Worker, service.HandleBatch),
	}
}
