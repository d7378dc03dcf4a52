// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package batches

import (
	"context"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"

	"pwnedpasswords.io/ingest/private/hashutil"
	"pwnedpasswords.io/ingest/private/queue"
)

var mon = monkit.Package()

// Sender encodes messages and sends them to the ingestion queues.
type Sender struct {
	queue queue.Queue
	names Names
}

// NewSender creates a sender on q.
func NewSender(q queue.Queue, names Names) *Sender {
	return &Sender{queue: q, names: names}
}

// SendTransactionReady enqueues a transaction ready notification.
func (sender *Sender) SendTransactionReady(ctx context.Context, message TransactionReady) (err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := Encode(message)
	if err != nil {
		return err
	}
	return sender.queue.Send(ctx, sender.names.Transactions, data)
}

// SendBatch enqueues a password entry batch.
func (sender *Sender) SendBatch(ctx context.Context, batch *PasswordEntryBatch) (err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := Encode(batch)
	if err != nil {
		return err
	}
	if err := sender.queue.Send(ctx, sender.names.Batches, data); err != nil {
		return err
	}
	mon.Counter("batches_sent").Inc(1)
	mon.IntVal("batch_size").Observe(int64(batch.Len()))
	return nil
}

// Builder groups submitted values into batches and sends every batch once
// it holds batchSize values. Not threadsafe. Call Flush before discarding.
type Builder struct {
	sender    *Sender
	batchSize int

	subscriptionID string
	transactionID  string
	batch          *PasswordEntryBatch
	count          int
}

// NewBuilder creates a builder for the batches of one transaction.
func NewBuilder(sender *Sender, batchSize int, subscriptionID, transactionID string) *Builder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Builder{
		sender:         sender,
		batchSize:      batchSize,
		subscriptionID: subscriptionID,
		transactionID:  transactionID,
		batch:          NewPasswordEntryBatch(subscriptionID, transactionID),
	}
}

// Add adds one submitted value to the current batch and sends the batch
// when it is full. Hashes are upper-cased and sharded independently.
func (builder *Builder) Add(ctx context.Context, sha1Hash, ntlmHash string, prevalence uint32) (err error) {
	sha1Hash, ntlmHash = strings.ToUpper(sha1Hash), strings.ToUpper(ntlmHash)

	sha1Prefix, _ := hashutil.Split(sha1Hash)
	ntlmPrefix, _ := hashutil.Split(ntlmHash)

	builder.batch.SHA1[sha1Prefix] = append(builder.batch.SHA1[sha1Prefix], Entry{
		Hash:       sha1Hash,
		Prevalence: prevalence,
		NTLMHash:   ntlmHash,
	})
	builder.batch.NTLM[ntlmPrefix] = append(builder.batch.NTLM[ntlmPrefix], Entry{
		Hash:       ntlmHash,
		Prevalence: prevalence,
	})
	builder.count++

	if builder.count < builder.batchSize {
		return nil
	}
	return builder.Flush(ctx)
}

// Flush sends the current batch, if it holds anything.
func (builder *Builder) Flush(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if builder.count == 0 {
		return nil
	}
	if err := builder.sender.SendBatch(ctx, builder.batch); err != nil {
		return err
	}

	builder.batch = NewPasswordEntryBatch(builder.subscriptionID, builder.transactionID)
	builder.count = 0
	return nil
}
