// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package pipeline implements the ingestion of breached password submissions,
// from the bulk upload to the merge into the range files.
package pipeline

import (
	"bytes"
	"context"
	"io"
	"sort"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"

	"pwnedpasswords.io/ingest/ingest/batches"
	"pwnedpasswords.io/ingest/ingest/shardfiles"
	"pwnedpasswords.io/ingest/ingest/transactions"
	"pwnedpasswords.io/ingest/private/blobstore"
	"pwnedpasswords.io/ingest/private/codec"
	"pwnedpasswords.io/ingest/private/hashcodec"
	"pwnedpasswords.io/ingest/private/hashutil"
)

var (
	// Error is the error class for pipeline failures.
	Error = errs.Class("pipeline")

	// ErrValidation is returned for submissions that are rejected.
	ErrValidation = errs.Class("validation")

	// ErrRetriesExhausted is returned when an optimistic concurrency update
	// kept conflicting.
	ErrRetriesExhausted = errs.Class("retries exhausted")

	mon = monkit.Package()
)

// Config contains the configurable values of the pipeline.
type Config struct {
	MaxSubmissionBytes int64 `help:"maximum size of a submission body in bytes" default:"67108864"`
	BatchSize          int   `help:"number of submitted values per password entry batch" default:"500"`

	Retry  RetryConfig
	Queues batches.Names
	Worker WorkerConfig
}

// Service implements the ingestion pipeline.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	config Config

	transactions *transactions.Store
	shards       *shardfiles.Store
	artifacts    blobstore.Blobs
	sender       *batches.Sender
}

// NewService creates a new pipeline service.
func NewService(log *zap.Logger, config Config, transactions *transactions.Store, shards *shardfiles.Store, artifacts blobstore.Blobs, sender *batches.Sender) *Service {
	if config.BatchSize <= 0 {
		config.BatchSize = batches.DefaultBatchSize
	}
	return &Service{
		log:          log,
		config:       config,
		transactions: transactions,
		shards:       shards,
		artifacts:    artifacts,
		sender:       sender,
	}
}

// ArtifactKey returns the blob key of the stored submission.
func ArtifactKey(subscriptionID string, transactionID uuid.UUID) string {
	return "ingestion/" + subscriptionID + "/" + transactionID.String() + ".json.zst"
}

// Submit validates the JSON array in body, stores it and opens a new
// transaction for it. Nothing is stored when any entry is invalid.
func (service *Service) Submit(ctx context.Context, subscriptionID string, body io.Reader) (_ uuid.UUID, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := checkSubscriptionID(subscriptionID); err != nil {
		return uuid.UUID{}, err
	}

	limit := service.config.MaxSubmissionBytes
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return uuid.UUID{}, Error.Wrap(err)
	}
	if int64(len(data)) > limit {
		return uuid.UUID{}, ErrValidation.New("submission exceeds %d bytes", limit)
	}

	count, err := ValidateSubmission(bytes.NewReader(data))
	if err != nil {
		return uuid.UUID{}, err
	}

	id, err := uuid.New()
	if err != nil {
		return uuid.UUID{}, Error.Wrap(err)
	}

	if _, err := service.artifacts.Put(ctx, ArtifactKey(subscriptionID, id), codec.Compress(data)); err != nil {
		return uuid.UUID{}, Error.Wrap(err)
	}

	if _, err := service.transactions.CreateWithID(ctx, subscriptionID, id); err != nil {
		return uuid.UUID{}, err
	}

	mon.Counter("entries_submitted").Inc(int64(count))
	service.log.Info("submission accepted",
		zap.String("Subscription ID", subscriptionID),
		zap.Stringer("Transaction ID", id),
		zap.Int("Entries", count))

	return id, nil
}

// Confirm confirms the transaction and enqueues it for processing. Confirming
// an already confirmed transaction succeeds without enqueuing it again.
func (service *Service) Confirm(ctx context.Context, subscriptionID string, transactionID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	changed, err := service.transactions.Confirm(ctx, subscriptionID, transactionID)
	if err != nil {
		return err
	}
	if !changed {
		service.log.Debug("transaction already confirmed",
			zap.String("Subscription ID", subscriptionID),
			zap.Stringer("Transaction ID", transactionID))
		return nil
	}

	return service.sender.SendTransactionReady(ctx, batches.TransactionReady{
		SubscriptionID: subscriptionID,
		TransactionID:  transactionID.String(),
	})
}

// ProcessTransaction streams the stored submission of a confirmed
// transaction and enqueues it as password entry batches.
func (service *Service) ProcessTransaction(ctx context.Context, ready batches.TransactionReady) (err error) {
	defer mon.Task()(&ctx)(&err)

	log := service.log.With(
		zap.String("Subscription ID", ready.SubscriptionID),
		zap.String("Transaction ID", ready.TransactionID))

	transactionID, err := uuid.FromString(ready.TransactionID)
	if err != nil {
		return Error.Wrap(err)
	}

	confirmed, err := service.transactions.IsConfirmed(ctx, ready.SubscriptionID, transactionID)
	if err != nil {
		return err
	}
	if !confirmed {
		log.Warn("skipping unconfirmed transaction")
		return nil
	}

	artifact, _, err := service.artifacts.Open(ctx, ArtifactKey(ready.SubscriptionID, transactionID))
	if err != nil {
		log.Error("failed to open submission", zap.Error(err))
		return Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, artifact.Close()) }()

	decompressed, err := codec.NewDecompressor(artifact)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, decompressed.Close()) }()

	builder := batches.NewBuilder(service.sender, service.config.BatchSize, ready.SubscriptionID, ready.TransactionID)

	count := 0
	err = DecodeValues(decompressed, func(index int, value IngestionValue) error {
		if reason := value.Validate(); reason != "" {
			return ErrValidation.Wrap(&InvalidEntryError{Index: index, Reason: reason})
		}
		count++
		return builder.Add(ctx, value.SHA1Hash, value.NTLMHash, uint32(value.Prevalence))
	})
	if err == nil {
		err = builder.Flush(ctx)
	}
	if err != nil {
		log.Error("failed to process transaction", zap.Int("Processed", count), zap.Error(err))
		return Error.Wrap(err)
	}

	log.Info("transaction processed", zap.Int("Entries", count))
	return nil
}

// ProcessBatch adds every entry of the batch to its hash counter and merges
// the entries into the range files.
//
// A batch that is processed twice is counted twice.
func (service *Service) ProcessBatch(ctx context.Context, batch *batches.PasswordEntryBatch) (err error) {
	defer mon.Task()(&ctx)(&err)

	log := service.log.With(
		zap.String("Subscription ID", batch.SubscriptionID),
		zap.String("Transaction ID", batch.TransactionID))

	for _, kind := range hashutil.Kinds {
		shards := batch.SHA1
		if kind == hashutil.NTLM {
			shards = batch.NTLM
		}

		for _, prefix := range sortedPrefixes(shards) {
			entries := shards[prefix]

			if kind == hashutil.SHA1 {
				if err := service.incrementCounters(ctx, prefix, entries); err != nil {
					log.Error("failed to update hash counters", zap.String("Prefix", prefix), zap.Error(err))
					return err
				}
			}

			if err := service.transactions.MarkPrefixModified(ctx, kind, prefix); err != nil {
				log.Error("failed to mark prefix modified", zap.String("Prefix", prefix), zap.Error(err))
				return err
			}

			err := service.mergeShard(ctx, kind, prefix, entries)
			if err != nil {
				if shardfiles.ErrNotFound.Has(err) {
					mon.Counter("missing_shard_files").Inc(1)
					log.Error("shard file missing, dropping batch",
						zap.Stringer("Kind", kind), zap.String("Prefix", prefix), zap.Error(err))
					return nil
				}
				log.Error("failed to merge shard file",
					zap.Stringer("Kind", kind), zap.String("Prefix", prefix), zap.Error(err))
				return err
			}
		}
	}

	mon.Counter("batches_processed").Inc(1)
	return nil
}

func (service *Service) incrementCounters(ctx context.Context, prefix string, entries []batches.Entry) (err error) {
	defer mon.Task()(&ctx)(&err)

	for _, entry := range entries {
		_, suffix := hashutil.Split(entry.Hash)
		err := RetryCAS(ctx, service.config.Retry, func(ctx context.Context) (bool, error) {
			return service.transactions.IncrementHashCounter(ctx, prefix, suffix, entry.NTLMHash, entry.Prevalence)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// mergeShard merges entries into the shard file, rereading it whenever another
// writer replaced it first.
func (service *Service) mergeShard(ctx context.Context, kind hashutil.Kind, prefix string, entries []batches.Entry) (err error) {
	defer mon.Task()(&ctx)(&err)

	incoming, err := shardEntries(kind, prefix, entries)
	if err != nil {
		return err
	}
	defer hashcodec.ReleaseAll(incoming)

	return RetryCAS(ctx, service.config.Retry, func(ctx context.Context) (bool, error) {
		file, err := service.shards.Get(ctx, kind, prefix)
		if err != nil {
			return false, err
		}

		merged := hashcodec.Merge(file.Entries, incoming)
		defer hashcodec.ReleaseAll(merged)

		ok, err := service.shards.Replace(ctx, kind, prefix, merged, file.Version)
		if err != nil {
			return false, err
		}
		if !ok {
			mon.Counter("merge_conflicts").Inc(1)
		}
		return ok, nil
	})
}

// shardEntries converts batch entries to sorted, unique shard file entries.
func shardEntries(kind hashutil.Kind, prefix string, entries []batches.Entry) (_ []hashcodec.Entry, err error) {
	result := make([]hashcodec.Entry, 0, len(entries))
	for _, entry := range entries {
		if !hashutil.IsHexOfLength(entry.Hash, kind.HexLength()) {
			hashcodec.ReleaseAll(result)
			return nil, Error.New("invalid %s hash %q in batch", kind, entry.Hash)
		}
		if entryPrefix, _ := hashutil.Split(entry.Hash); entryPrefix != prefix {
			hashcodec.ReleaseAll(result)
			return nil, Error.New("hash %q does not belong to prefix %s", entry.Hash, prefix)
		}

		// shard files keep the fifth prefix character as the leading nibble.
		shardEntry, err := hashcodec.FromHex(entry.Hash[hashutil.PrefixLength-1:], entry.Prevalence)
		if err != nil {
			hashcodec.ReleaseAll(result)
			return nil, Error.Wrap(err)
		}
		result = append(result, shardEntry)
	}
	return hashcodec.Coalesce(result), nil
}

func sortedPrefixes(shards map[string][]batches.Entry) []string {
	prefixes := make([]string, 0, len(shards))
	for prefix := range shards {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}
